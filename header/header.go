// Package header provides JOSE header with accessors for the registered parameters.
package header

import (
	"encoding/json"
	"maps"
	"math"
	"slices"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/internal/jsonutil"
	"github.com/effective-security/xjose/jwk"
	"github.com/effective-security/xjose/x/b64url"
)

// Registered header parameter names
const (
	Algorithm           = "alg"
	Encryption          = "enc"
	KeyID               = "kid"
	Type                = "typ"
	ContentType         = "cty"
	Critical            = "crit"
	Compression         = "zip"
	EphemeralKey        = "epk"
	AgreementPartyUInfo = "apu"
	AgreementPartyVInfo = "apv"
	InitVector          = "iv"
	Tag                 = "tag"
	PBES2Salt           = "p2s"
	PBES2Count          = "p2c"
	Base64Payload       = "b64"
	JWKSetURL           = "jku"
	JSONWebKey          = "jwk"
	X509URL             = "x5u"
	X509Chain           = "x5c"
	X509Thumbprint      = "x5t"
)

// Header is JOSE header
type Header map[string]any

// Decode returns header from base64url encoded JSON object
func Decode(encoded string) (Header, error) {
	raw, err := b64url.Decode(encoded)
	if err != nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "invalid header encoding")
	}
	return Parse(raw)
}

// Parse returns header from JSON object
func Parse(raw []byte) (Header, error) {
	h := Header{}
	if err := jsonutil.Unmarshal(raw, &h, false); err != nil || h == nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "header must be a single JSON object")
	}
	return h, nil
}

// Encode returns base64url encoded JSON of the header,
// or empty string for empty header
func (h Header) Encode() (string, error) {
	if len(h) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return "", errors.WithMessage(err, "unable to encode header")
	}
	return b64url.Encode(raw), nil
}

// Clone returns a copy of the header
func (h Header) Clone() Header {
	if h == nil {
		return Header{}
	}
	return maps.Clone(h)
}

// Names returns sorted parameter names
func (h Header) Names() []string {
	names := slices.Collect(maps.Keys(h))
	sort.Strings(names)
	return names
}

// Has returns true if the parameter is present
func (h Header) Has(name string) bool {
	_, ok := h[name]
	return ok
}

// Get returns parameter value
func (h Header) Get(name string) (any, bool) {
	v, ok := h[name]
	return v, ok
}

// String returns the parameter as string, or empty string
func (h Header) String(name string) string {
	s, _ := h[name].(string)
	return s
}

// Algorithm returns alg
func (h Header) Algorithm() string {
	return h.String(Algorithm)
}

// Encryption returns enc
func (h Header) Encryption() string {
	return h.String(Encryption)
}

// KeyID returns kid
func (h Header) KeyID() string {
	return h.String(KeyID)
}

// Type returns typ
func (h Header) Type() string {
	return h.String(Type)
}

// ContentType returns cty
func (h Header) ContentType() string {
	return h.String(ContentType)
}

// Compression returns zip
func (h Header) Compression() string {
	return h.String(Compression)
}

// Critical returns the names listed in crit
func (h Header) Critical() ([]string, error) {
	v, ok := h[Critical]
	if !ok {
		return nil, nil
	}
	var list []string
	switch typ := v.(type) {
	case []string:
		list = typ
	case []any:
		for _, i := range typ {
			s, ok := i.(string)
			if !ok || s == "" {
				return nil, errors.WithMessage(xjose.ErrHeaderValidation, "crit must be a list of strings")
			}
			list = append(list, s)
		}
	default:
		return nil, errors.WithMessage(xjose.ErrHeaderValidation, "crit must be a list of strings")
	}
	if len(list) == 0 {
		return nil, errors.WithMessage(xjose.ErrHeaderValidation, "crit must not be empty")
	}
	return list, nil
}

// EphemeralKey returns epk
func (h Header) EphemeralKey() (*jwk.JWK, error) {
	v, ok := h[EphemeralKey]
	if !ok {
		return nil, errors.Errorf("missing %q header", EphemeralKey)
	}
	switch typ := v.(type) {
	case *jwk.JWK:
		return typ, nil
	case map[string]any:
		return jwk.New(typ)
	}
	return nil, errors.Errorf("invalid %q header", EphemeralKey)
}

// Base64Payload returns b64 value, true if not present
func (h Header) Base64Payload() (bool, error) {
	v, ok := h[Base64Payload]
	if !ok {
		return true, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.WithMessage(xjose.ErrHeaderValidation, "b64 must be a boolean")
	}
	return b, nil
}

// Bytes returns base64url decoded parameter
func (h Header) Bytes(name string) ([]byte, error) {
	s, ok := h[name].(string)
	if !ok {
		return nil, errors.Errorf("missing %q header", name)
	}
	b, err := b64url.Decode(s)
	if err != nil {
		return nil, errors.Errorf("invalid %q header", name)
	}
	return b, nil
}

// Int returns integer parameter
func (h Header) Int(name string) (int, error) {
	switch v := h[name].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
			return 0, errors.Errorf("invalid %q header", name)
		}
		return int(v), nil
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, errors.Errorf("invalid %q header", name)
		}
		return int(i), nil
	case nil:
		return 0, errors.Errorf("missing %q header", name)
	}
	return 0, errors.Errorf("invalid %q header", name)
}

// Merge returns a new header with all parameters.
// It fails if a parameter is present in more than one header.
func Merge(headers ...Header) (Header, error) {
	res := Header{}
	for _, h := range headers {
		for k, v := range h {
			if _, ok := res[k]; ok {
				return nil, errors.WithMessagef(xjose.ErrHeaderValidation, "duplicate header parameter: %q", k)
			}
			res[k] = v
		}
	}
	return res, nil
}
