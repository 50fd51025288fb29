package jws

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/x/b64url"
)

// Compact is the JWS Compact Serialization, RFC 7515 Section 7.1
type Compact struct{}

// Name returns jws_compact
func (Compact) Name() string { return CompactSerializer }

// Serialize returns BASE64URL(protected).payload.BASE64URL(signature)
func (Compact) Serialize(j *JWS, signatureIndex int) (string, error) {
	s, err := j.Signature(signatureIndex)
	if err != nil {
		return "", err
	}
	if len(s.unprotected) > 0 {
		return "", errors.New("compact serialization does not support unprotected header")
	}
	if s.encodedProtected == "" {
		return "", errors.New("compact serialization requires protected header")
	}

	payload := ""
	if !j.detached {
		payload = j.EncodedPayload()
		if j.unencoded && strings.Contains(payload, ".") {
			return "", errors.New("unencoded payload must not contain '.' in compact serialization")
		}
	}
	return s.encodedProtected + "." + payload + "." + b64url.Encode(s.signature), nil
}

// Unserialize parses compact JWS, empty payload segment means detached payload
func (Compact) Unserialize(input string) (*JWS, error) {
	parts := strings.Split(input, ".")
	if len(parts) != 3 {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "compact JWS must have 3 segments")
	}
	if parts[0] == "" {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "missing protected header")
	}
	signature, err := b64url.Decode(parts[2])
	if err != nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "invalid signature encoding")
	}
	s, err := newSignature(parts[0], nil, signature)
	if err != nil {
		return nil, err
	}
	return newJWS(parts[1], parts[1] == "", []*Signature{s})
}

// newJWS returns JWS with the payload as it appears on the wire
func newJWS(payload string, detached bool, signatures []*Signature) (*JWS, error) {
	encoded, err := payloadEncoding(signatures)
	if err != nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, err.Error())
	}
	j := &JWS{
		detached:   detached,
		unencoded:  !encoded,
		signatures: signatures,
	}
	if detached {
		return j, nil
	}
	if j.unencoded {
		j.payload = []byte(payload)
		return j, nil
	}
	if j.payload, err = b64url.Decode(payload); err != nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "invalid payload encoding")
	}
	return j, nil
}
