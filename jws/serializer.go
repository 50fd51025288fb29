package jws

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xlog"
)

// Serializer names
const (
	CompactSerializer       = "jws_compact"
	JSONFlattenedSerializer = "jws_json_flattened"
	JSONGeneralSerializer   = "jws_json_general"
)

// Serializer converts JWS to and from a wire format
type Serializer interface {
	// Name returns the serializer name
	Name() string
	// Serialize returns the wire format of JWS.
	// Single signature formats use the signature by index.
	Serialize(j *JWS, signatureIndex int) (string, error)
	// Unserialize parses the wire format,
	// the signatures are not verified
	Unserialize(input string) (*JWS, error)
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
	return nil, errors.Errorf("unsupported JWS serializer: %q", name)
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
func (m *SerializerManager) Serialize(name string, j *JWS, signatureIndex int) (string, error) {
	s, ok := m.serializers[name]
	if !ok {
		return "", errors.Errorf("serializer is not allowed: %q", name)
	}
	return s.Serialize(j, signatureIndex)
}

// Unserialize tries the serializers in order,
// and returns JWS with the name of the serializer that parsed it
func (m *SerializerManager) Unserialize(input string) (*JWS, string, error) {
	for _, name := range m.names {
		j, err := m.serializers[name].Unserialize(input)
		if err == nil {
			return j, name, nil
		}
		logger.KV(xlog.TRACE, "reason", "unserialize", "serializer", name, "err", err.Error())
	}
	return nil, "", errors.WithMessage(xjose.ErrInvalidFormat, "unsupported input")
}
