// Package b64url provides the unpadded base64url encoding used by JOSE.
package b64url

import (
	"encoding/base64"
	"strings"

	"github.com/cockroachdb/errors"
)

// Encode returns base64url encoding with padding stripped
func Encode(seg []byte) string {
	return base64.RawURLEncoding.EncodeToString(seg)
}

// EncodeString returns base64url encoding of a string with padding stripped
func EncodeString(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

// Decode decodes unpadded base64url segment.
// Padding, whitespace and the standard alphabet are rejected.
func Decode(seg string) ([]byte, error) {
	if strings.ContainsAny(seg, "=+/ \t\r\n") {
		return nil, errors.Errorf("invalid base64url segment")
	}
	b, err := base64.RawURLEncoding.Strict().DecodeString(seg)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid base64url segment")
	}
	return b, nil
}
