package xjose

import "github.com/cockroachdb/errors"

// Errors returned by the JOSE pipelines.
// Use errors.Is to test for a category, the message carries the details.
var (
	// ErrInvalidFormat is returned for malformed wire input
	ErrInvalidFormat = errors.New("invalid format")
	// ErrUnsupportedAlgorithm is returned when an algorithm is not in the allow-list
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	// ErrMissingAlgorithm is returned when a header does not specify an algorithm
	ErrMissingAlgorithm = errors.New("missing algorithm")
	// ErrKeyTypeMismatch is returned when a key can not be used with an algorithm
	ErrKeyTypeMismatch = errors.New("key type mismatch")
	// ErrHeaderValidation is returned when a header checker rejects a header
	ErrHeaderValidation = errors.New("header validation failed")
	// ErrClaimValidation is returned when a claim checker rejects a claim
	ErrClaimValidation = errors.New("claim validation failed")
	// ErrInvalidSignature is returned when no key and signature pair verified
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrDecryptionFailure is returned when no key and recipient pair decrypted the content.
	// The error is intentionally undifferentiated.
	ErrDecryptionFailure = errors.New("unable to decrypt")
	// ErrKeyAgreement is returned when a key agreement can not be completed
	ErrKeyAgreement = errors.New("key agreement failed")
	// ErrUnwrap is returned when a content encryption key can not be unwrapped
	ErrUnwrap = errors.New("unable to unwrap key")
	// ErrAuthentication is returned when an authentication tag does not match
	ErrAuthentication = errors.New("authentication failed")
	// ErrKeyNotFound is returned when a key set has no key for the operation
	ErrKeyNotFound = errors.New("key not found")
)
