package jwe

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/x/b64url"
	"github.com/effective-security/xlog"
)

// Serializer names
const (
	CompactSerializer       = "jwe_compact"
	JSONFlattenedSerializer = "jwe_json_flattened"
	JSONGeneralSerializer   = "jwe_json_general"
)

// Serializer converts JWE to and from a wire format
type Serializer interface {
	// Name returns the serializer name
	Name() string
	// Serialize returns the wire format of JWE.
	// Single recipient formats use the recipient by index.
	Serialize(j *JWE, recipientIndex int) (string, error)
	// Unserialize parses the wire format
	Unserialize(input string) (*JWE, error)
}

// NewSerializer returns serializer by name
func NewSerializer(name string) (Serializer, error) {
	switch name {
	case CompactSerializer:
		return Compact{}, nil
	case JSONFlattenedSerializer:
		return JSONFlattened{}, nil
	case JSONGeneralSerializer:
		return JSONGeneral{}, nil
	}
	return nil, errors.Errorf("unsupported JWE serializer: %q", name)
}

// SerializerManager holds the allowed serializers.
// It is immutable and safe for concurrent use.
type SerializerManager struct {
	serializers map[string]Serializer
	names       []string
}

// NewSerializerManager returns SerializerManager
func NewSerializerManager(serializers ...Serializer) (*SerializerManager, error) {
	m := &SerializerManager{
		serializers: make(map[string]Serializer, len(serializers)),
	}
	for _, s := range serializers {
		name := s.Name()
		if _, ok := m.serializers[name]; ok {
			return nil, errors.Errorf("serializer already registered: %s", name)
		}
		m.serializers[name] = s
		m.names = append(m.names, name)
	}
	return m, nil
}

// NewSerializerManagerByName returns SerializerManager with serializers by names
func NewSerializerManagerByName(names ...string) (*SerializerManager, error) {
	list := make([]Serializer, 0, len(names))
	for _, name := range names {
		s, err := NewSerializer(name)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return NewSerializerManager(list...)
}

// Names returns the names of the serializers
func (m *SerializerManager) Names() []string {
	return append([]string(nil), m.names...)
}

// Serialize returns the wire format produced by the named serializer
func (m *SerializerManager) Serialize(name string, j *JWE, recipientIndex int) (string, error) {
	s, ok := m.serializers[name]
	if !ok {
		return "", errors.Errorf("serializer is not allowed: %q", name)
	}
	return s.Serialize(j, recipientIndex)
}

// Unserialize tries the serializers in order,
// and returns JWE with the name of the serializer that parsed it
func (m *SerializerManager) Unserialize(input string) (*JWE, string, error) {
	for _, name := range m.names {
		j, err := m.serializers[name].Unserialize(input)
		if err == nil {
			return j, name, nil
		}
		logger.KV(xlog.TRACE, "reason", "unserialize", "serializer", name, "err", err.Error())
	}
	return nil, "", errors.WithMessage(xjose.ErrInvalidFormat, "unsupported input")
}

// Compact is the JWE Compact Serialization, RFC 7516 Section 7.1
type Compact struct{}

// Name returns jwe_compact
func (Compact) Name() string { return CompactSerializer }

// Serialize returns
// BASE64URL(protected).BASE64URL(encrypted_key).BASE64URL(iv).BASE64URL(ciphertext).BASE64URL(tag)
func (Compact) Serialize(j *JWE, recipientIndex int) (string, error) {
	r, err := j.Recipient(recipientIndex)
	if err != nil {
		return "", err
	}
	if len(j.recipients) != 1 {
		return "", errors.New("compact serialization supports a single recipient")
	}
	if len(j.sharedUnprotected) > 0 || len(r.header) > 0 {
		return "", errors.New("compact serialization does not support unprotected header")
	}
	if j.aad != nil {
		return "", errors.New("compact serialization does not support AAD")
	}
	if j.encodedSharedProtected == "" {
		return "", errors.New("compact serialization requires protected header")
	}
	return strings.Join([]string{
		j.encodedSharedProtected,
		b64url.Encode(r.encryptedKey),
		b64url.Encode(j.iv),
		b64url.Encode(j.ciphertext),
		b64url.Encode(j.tag),
	}, "."), nil
}

// Unserialize parses compact JWE
func (Compact) Unserialize(input string) (*JWE, error) {
	parts := strings.Split(input, ".")
	if len(parts) != 5 {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "compact JWE must have 5 segments")
	}
	if parts[0] == "" {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "missing protected header")
	}
	decoded := make([][]byte, 4)
	for i, name := range []string{"encrypted key", "iv", "ciphertext", "tag"} {
		b, err := b64url.Decode(parts[i+1])
		if err != nil {
			return nil, errors.WithMessagef(xjose.ErrInvalidFormat, "invalid %s encoding", name)
		}
		decoded[i] = b
	}
	r := &RecipientInfo{header: header.Header{}, encryptedKey: decoded[0]}
	return newJWE(parts[0], nil, []*RecipientInfo{r}, decoded[1], decoded[2], decoded[3], nil)
}
