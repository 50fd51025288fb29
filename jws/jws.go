// Package jws implements JSON Web Signature (RFC 7515),
// including unencoded payload option of RFC 7797.
package jws

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/x/b64url"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xjose", "jws")

// JWS is the signed structure.
// It is immutable, use WithPayload to attach detached payload.
type JWS struct {
	payload    []byte
	detached   bool
	unencoded  bool
	signatures []*Signature
}

// Signature is one signature of JWS
type Signature struct {
	protected        header.Header
	encodedProtected string
	unprotected      header.Header
	signature        []byte
}

// Payload returns the payload, nil if detached
func (j *JWS) Payload() []byte {
	return j.payload
}

// IsDetached returns true if the payload is not part of the serialization
func (j *JWS) IsDetached() bool {
	return j.detached
}

// IsPayloadEncoded returns false if b64 header is false, RFC 7797
func (j *JWS) IsPayloadEncoded() bool {
	return !j.unencoded
}

// EncodedPayload returns the payload as it is used in the signing input
func (j *JWS) EncodedPayload() string {
	if j.unencoded {
		return string(j.payload)
	}
	return b64url.Encode(j.payload)
}

// Signatures returns the signatures
func (j *JWS) Signatures() []*Signature {
	return append([]*Signature(nil), j.signatures...)
}

// CountSignatures returns the number of signatures
func (j *JWS) CountSignatures() int {
	return len(j.signatures)
}

// Signature returns the signature by index
func (j *JWS) Signature(i int) (*Signature, error) {
	if i < 0 || i >= len(j.signatures) {
		return nil, errors.Errorf("signature index out of range: %d", i)
	}
	return j.signatures[i], nil
}

// WithPayload returns a copy of JWS with the payload.
// The copy is not detached.
func (j *JWS) WithPayload(payload []byte) *JWS {
	c := *j
	c.payload = append([]byte(nil), payload...)
	c.detached = false
	return &c
}

// signingInput returns ASCII(BASE64URL(protected) || '.' || payload)
func (j *JWS) signingInput(s *Signature) []byte {
	return []byte(s.encodedProtected + "." + j.EncodedPayload())
}

// ProtectedHeader returns a copy of the protected header
func (s *Signature) ProtectedHeader() header.Header {
	return s.protected.Clone()
}

// EncodedProtectedHeader returns the protected header as it appears on the wire
func (s *Signature) EncodedProtectedHeader() string {
	return s.encodedProtected
}

// UnprotectedHeader returns a copy of the unprotected header
func (s *Signature) UnprotectedHeader() header.Header {
	return s.unprotected.Clone()
}

// CompleteHeader returns the union of protected and unprotected header
func (s *Signature) CompleteHeader() header.Header {
	h, err := header.Merge(s.protected, s.unprotected)
	if err != nil {
		// duplicates are rejected on build and unserialize
		return s.protected.Clone()
	}
	return h
}

// Algorithm returns alg from the complete header
func (s *Signature) Algorithm() string {
	if alg := s.protected.Algorithm(); alg != "" {
		return alg
	}
	return s.unprotected.Algorithm()
}

// KeyID returns kid from the complete header
func (s *Signature) KeyID() string {
	if kid := s.protected.KeyID(); kid != "" {
		return kid
	}
	return s.unprotected.KeyID()
}

// Signature returns the signature value
func (s *Signature) Signature() []byte {
	return append([]byte(nil), s.signature...)
}

// newSignature validates the headers of a parsed signature
func newSignature(encodedProtected string, unprotected header.Header, signature []byte) (*Signature, error) {
	protected := header.Header{}
	if encodedProtected != "" {
		var err error
		if protected, err = header.Decode(encodedProtected); err != nil {
			return nil, err
		}
	}
	if _, err := header.Merge(protected, unprotected); err != nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, err.Error())
	}
	return &Signature{
		protected:        protected,
		encodedProtected: encodedProtected,
		unprotected:      unprotected.Clone(),
		signature:        signature,
	}, nil
}

// payloadEncoding returns the value of b64 shared by all signatures
func payloadEncoding(signatures []*Signature) (bool, error) {
	encoded := true
	for i, s := range signatures {
		if s.unprotected.Has(header.Base64Payload) {
			return false, errors.WithMessage(xjose.ErrHeaderValidation, "b64 must be in the protected header")
		}
		b64, err := s.protected.Base64Payload()
		if err != nil {
			return false, err
		}
		if !b64 {
			crit, err := s.protected.Critical()
			if err != nil {
				return false, err
			}
			if !slices.Contains(crit, header.Base64Payload) {
				return false, errors.WithMessage(xjose.ErrHeaderValidation, "b64 must be listed in crit")
			}
		}
		if i > 0 && b64 != encoded {
			return false, errors.WithMessage(xjose.ErrHeaderValidation, "b64 must be the same for all signatures")
		}
		encoded = b64
	}
	return encoded, nil
}
