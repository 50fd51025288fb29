// Package jwa implements JSON Web Algorithms (RFC 7518):
// signature, key management, content encryption and compression algorithms,
// and the Manager that holds the explicit allow-list of a pipeline.
package jwa

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/jwk"
)

// Named is implemented by all the algorithms
type Named interface {
	// Name returns the algorithm name, as in alg or enc header
	Name() string
}

// Algorithm is an algorithm that uses JWK
type Algorithm interface {
	Named
	// AllowedKeyTypes returns the list of supported kty values
	AllowedKeyTypes() []string
}

// SignatureAlgorithm computes and verifies signatures
type SignatureAlgorithm interface {
	Algorithm
	// Sign returns the signature of the input
	Sign(key *jwk.JWK, input []byte) ([]byte, error)
	// Verify returns true if the signature is valid.
	// An error is returned only if the key can not be used.
	Verify(key *jwk.JWK, input, signature []byte) (bool, error)
}

// Mode is the key management mode
type Mode int

// Key management modes, RFC 7516 Section 2
const (
	ModeKeyEncryption Mode = iota + 1
	ModeKeyWrapping
	ModeDirectEncryption
	ModeKeyAgreement
	ModeKeyAgreementWithKeyWrapping
)

func (m Mode) String() string {
	switch m {
	case ModeKeyEncryption:
		return "enc"
	case ModeKeyWrapping:
		return "wrap"
	case ModeDirectEncryption:
		return "dir"
	case ModeKeyAgreement:
		return "agree"
	case ModeKeyAgreementWithKeyWrapping:
		return "agree_wrap"
	}
	return "unknown"
}

// IsDirect returns true if the mode determines the CEK,
// and so it can not be used with other recipients
func (m Mode) IsDirect() bool {
	return m == ModeDirectEncryption || m == ModeKeyAgreement
}

// ModesCompatible returns true if the modes can be used for recipients of the same JWE
func ModesCompatible(modes ...Mode) bool {
	if len(modes) < 2 {
		return true
	}
	for _, m := range modes {
		if m.IsDirect() {
			return false
		}
	}
	return true
}

// KeyManagementAlgorithm determines the CEK
type KeyManagementAlgorithm interface {
	Algorithm
	// Mode returns the key management mode
	Mode() Mode
}

// KeyEncryption encrypts a random CEK for a recipient.
// It is implemented by key encryption, key wrapping and
// key agreement with key wrapping algorithms.
type KeyEncryption interface {
	KeyManagementAlgorithm
	// EncryptKey returns the encrypted CEK,
	// and the header parameters to add to the recipient header
	EncryptKey(key *jwk.JWK, cek []byte, hdr header.Header) ([]byte, header.Header, error)
	// DecryptKey returns the CEK
	DecryptKey(key *jwk.JWK, encryptedKey []byte, hdr header.Header) ([]byte, error)
}

// DirectKey derives the CEK from the recipient key.
// It is implemented by dir and ECDH-ES algorithms.
type DirectKey interface {
	KeyManagementAlgorithm
	// CEK returns the CEK of size bytes,
	// and the header parameters to add to the recipient header
	CEK(key *jwk.JWK, hdr header.Header, size int) ([]byte, header.Header, error)
	// RecoverCEK returns the CEK of size bytes
	RecoverCEK(key *jwk.JWK, hdr header.Header, size int) ([]byte, error)
}

// ContentEncryptionAlgorithm encrypts the payload with CEK
type ContentEncryptionAlgorithm interface {
	Named
	// CEKSize returns the size of CEK in bytes
	CEKSize() int
	// IVSize returns the size of IV in bytes
	IVSize() int
	// TagSize returns the size of authentication tag in bytes
	TagSize() int
	// Encrypt returns the ciphertext and authentication tag
	Encrypt(cek, plaintext, iv, aad []byte) (ciphertext, tag []byte, err error)
	// Decrypt returns the plaintext if the tag is valid
	Decrypt(cek, ciphertext, iv, aad, tag []byte) ([]byte, error)
}

// CompressionMethod compresses the plaintext before encryption
type CompressionMethod interface {
	Named
	Compress(data []byte) ([]byte, error)
	Uncompress(data []byte) ([]byte, error)
}

// CheckKey returns ErrKeyTypeMismatch if the key can not be used with the algorithm.
// If use is not empty, the key must not be restricted to another use.
func CheckKey(alg Algorithm, key *jwk.JWK, use string) error {
	if key == nil {
		return errors.WithMessagef(xjose.ErrKeyTypeMismatch, "missing key for %s", alg.Name())
	}
	if !slices.Contains(alg.AllowedKeyTypes(), key.KeyType()) {
		return errors.WithMessagef(xjose.ErrKeyTypeMismatch, "key type %q is not allowed for %s", key.KeyType(), alg.Name())
	}
	if use != "" && key.Use() != "" && key.Use() != use {
		return errors.WithMessagef(xjose.ErrKeyTypeMismatch, "key with %q use is not allowed for %s", key.Use(), alg.Name())
	}
	if a := key.Algorithm(); a != "" && a != alg.Name() {
		return errors.WithMessagef(xjose.ErrKeyTypeMismatch, "key is restricted to %s, not %s", a, alg.Name())
	}
	return nil
}

func checkKeyType(alg Algorithm, key *jwk.JWK) error {
	if key == nil || !slices.Contains(alg.AllowedKeyTypes(), key.KeyType()) {
		kty := ""
		if key != nil {
			kty = key.KeyType()
		}
		return errors.WithMessagef(xjose.ErrKeyTypeMismatch, "key type %q is not allowed for %s", kty, alg.Name())
	}
	return nil
}
