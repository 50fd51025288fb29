// Package jwk implements JSON Web Key (RFC 7517) and JSON Web Key Set.
//
// A JWK is immutable once created: every method that changes a key
// returns a new instance.
package jwk

import (
	"bytes"
	"encoding/json"
	"maps"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/x/b64url"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xjose", "jwk")

// Key types
const (
	KeyTypeRSA  = "RSA"
	KeyTypeEC   = "EC"
	KeyTypeOKP  = "OKP"
	KeyTypeOct  = "oct"
	KeyTypeNone = "none"
)

// Key usage
const (
	UseSignature  = "sig"
	UseEncryption = "enc"
)

// required members, also used to compute the thumbprint
var requiredMembers = map[string][]string{
	KeyTypeRSA:  {"e", "kty", "n"},
	KeyTypeEC:   {"crv", "kty", "x", "y"},
	KeyTypeOKP:  {"crv", "kty", "x"},
	KeyTypeOct:  {"k", "kty"},
	KeyTypeNone: {"kty"},
}

// base64url encoded members
var binaryMembers = map[string][]string{
	KeyTypeRSA: {"n", "e", "d", "p", "q", "dp", "dq", "qi"},
	KeyTypeEC:  {"x", "y", "d"},
	KeyTypeOKP: {"x", "d"},
	KeyTypeOct: {"k"},
}

var privateMembers = map[string][]string{
	KeyTypeRSA: {"d", "p", "q", "dp", "dq", "qi", "oth"},
	KeyTypeEC:  {"d"},
	KeyTypeOKP: {"d"},
	KeyTypeOct: {"k"},
}

// JWK is JSON Web Key
type JWK struct {
	params map[string]any
}

// New returns a key from the parameters.
// The parameters are copied, the caller may reuse the map.
func New(params map[string]any) (*JWK, error) {
	if params == nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "empty key")
	}
	cp, err := deepCopy(params)
	if err != nil {
		return nil, err
	}
	k := &JWK{params: cp}
	if err = k.validate(); err != nil {
		return nil, err
	}
	return k, nil
}

// MustNew returns a key, or panics on error
func MustNew(params map[string]any) *JWK {
	k, err := New(params)
	if err != nil {
		logger.Panicf("invalid key: %+v", err)
	}
	return k
}

// Parse returns a key from JSON
func Parse(raw []byte) (*JWK, error) {
	params := map[string]any{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.WithMessagef(xjose.ErrInvalidFormat, "unable to decode key: %s", err.Error())
	}
	return New(params)
}

func (k *JWK) validate() error {
	kty, ok := k.params["kty"].(string)
	if !ok || kty == "" {
		return errors.WithMessage(xjose.ErrInvalidFormat, "missing kty parameter")
	}
	required, ok := requiredMembers[kty]
	if !ok {
		return errors.WithMessagef(xjose.ErrInvalidFormat, "unsupported key type: %q", kty)
	}
	for _, name := range required {
		if s, ok := k.params[name].(string); !ok || s == "" {
			return errors.WithMessagef(xjose.ErrInvalidFormat, "missing %q parameter for %s key", name, kty)
		}
	}
	for _, name := range binaryMembers[kty] {
		if _, ok := k.params[name]; !ok {
			continue
		}
		if _, err := k.Bytes(name); err != nil {
			return errors.WithMessagef(xjose.ErrInvalidFormat, "invalid %q parameter for %s key", name, kty)
		}
	}
	for _, name := range []string{"kid", "use", "alg"} {
		if v, ok := k.params[name]; ok {
			if _, ok := v.(string); !ok {
				return errors.WithMessagef(xjose.ErrInvalidFormat, "%q parameter must be a string", name)
			}
		}
	}
	return nil
}

// Get returns the parameter value
func (k *JWK) Get(name string) (any, bool) {
	v, ok := k.params[name]
	if !ok {
		return nil, false
	}
	cp, _ := copyValue(v)
	return cp, true
}

// Has returns true if the parameter is present
func (k *JWK) Has(name string) bool {
	_, ok := k.params[name]
	return ok
}

// String returns the parameter as string, or empty string
func (k *JWK) String(name string) string {
	s, _ := k.params[name].(string)
	return s
}

// Bytes returns base64url decoded parameter
func (k *JWK) Bytes(name string) ([]byte, error) {
	s, ok := k.params[name].(string)
	if !ok {
		return nil, errors.Errorf("missing %q parameter", name)
	}
	return b64url.Decode(s)
}

// All returns a copy of all parameters
func (k *JWK) All() map[string]any {
	cp, _ := deepCopy(k.params)
	return cp
}

// KeyType returns kty
func (k *JWK) KeyType() string {
	return k.String("kty")
}

// KeyID returns kid
func (k *JWK) KeyID() string {
	return k.String("kid")
}

// Use returns use
func (k *JWK) Use() string {
	return k.String("use")
}

// Algorithm returns alg
func (k *JWK) Algorithm() string {
	return k.String("alg")
}

// Curve returns crv
func (k *JWK) Curve() string {
	return k.String("crv")
}

// KeyOps returns key_ops
func (k *JWK) KeyOps() []string {
	list, _ := k.params["key_ops"].([]any)
	var ops []string
	for _, v := range list {
		if s, ok := v.(string); ok {
			ops = append(ops, s)
		}
	}
	return ops
}

// IsPrivate returns true if the key has private material
func (k *JWK) IsPrivate() bool {
	kty := k.KeyType()
	if kty == KeyTypeOct {
		return true
	}
	for _, name := range privateMembers[kty] {
		if k.Has(name) {
			return true
		}
	}
	return false
}

// With returns a new key with the parameters added or replaced
func (k *JWK) With(params map[string]any) (*JWK, error) {
	all := k.All()
	maps.Copy(all, params)
	return New(all)
}

// Without returns a new key without the parameters
func (k *JWK) Without(names ...string) (*JWK, error) {
	all := k.All()
	for _, name := range names {
		delete(all, name)
	}
	return New(all)
}

// Public returns a new key without private members
func (k *JWK) Public() (*JWK, error) {
	kty := k.KeyType()
	if kty == KeyTypeOct {
		return nil, errors.WithMessage(xjose.ErrKeyTypeMismatch, "symmetric key has no public part")
	}
	return k.Without(privateMembers[kty]...)
}

// Equal returns true if both keys have identical parameters
func (k *JWK) Equal(other *JWK) bool {
	if other == nil {
		return false
	}
	a, _ := json.Marshal(k.params)
	b, _ := json.Marshal(other.params)
	return bytes.Equal(a, b)
}

// MarshalJSON implements json.Marshaler
func (k *JWK) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.params)
}

// UnmarshalJSON implements json.Unmarshaler
func (k *JWK) UnmarshalJSON(raw []byte) error {
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	k.params = parsed.params
	return nil
}

// deepCopy normalizes the values to JSON types
func deepCopy(params map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, errors.WithMessagef(xjose.ErrInvalidFormat, "invalid key parameters: %s", err.Error())
	}
	cp := map[string]any{}
	if err = json.Unmarshal(raw, &cp); err != nil {
		return nil, errors.WithStack(err)
	}
	return cp, nil
}

func copyValue(v any) (any, error) {
	switch v.(type) {
	case string, bool, float64, nil:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var cp any
	if err = json.Unmarshal(raw, &cp); err != nil {
		return nil, errors.WithStack(err)
	}
	return cp, nil
}
