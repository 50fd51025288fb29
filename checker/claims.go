package checker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/internal/jsonutil"
	"github.com/golang-jwt/jwt/v5"
)

// Claims provides generic claims on map
type Claims jwt.MapClaims

// ParseClaims returns Claims from JSON object.
// Numbers are decoded as json.Number.
func ParseClaims(raw []byte) (Claims, error) {
	c := Claims{}
	if err := jsonutil.Unmarshal(raw, &c, true); err != nil {
		return nil, errors.WithMessagef(xjose.ErrInvalidFormat, "claims must be a single JSON object: %s", err.Error())
	}
	if c == nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "claims must be a JSON object")
	}
	return c, nil
}

// Has returns true if the claim is present
func (c Claims) Has(k string) bool {
	_, ok := c[k]
	return ok
}

// To converts the claims to the value pointed to by v.
func (c Claims) To(val any) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return errors.WithStack(err)
	}

	d := json.NewDecoder(bytes.NewReader(raw))
	if err := d.Decode(val); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Marshal returns JSON encoded string
func (c Claims) Marshal() string {
	raw, _ := json.Marshal(c)
	return string(raw)
}

// String will return the named claim as a string,
// if the underlying type is not a string,
// it will try and co-oerce it to a string.
func (c Claims) String(k string) string {
	v := c[k]
	if v == nil {
		return ""
	}
	switch tv := v.(type) {
	case string:
		return tv
	case json.Number:
		return tv.String()
	default:
		return fmt.Sprint(v)
	}
}

// Bool will return the named claim as Bool
func (c Claims) Bool(k string) bool {
	b, _ := c[k].(bool)
	return b
}

// Int will return the named claim as an int
func (c Claims) Int(k string) int {
	switch tv := c[k].(type) {
	case int:
		return tv
	case int64:
		return int(tv)
	case float64:
		return int(tv)
	case json.Number:
		i, err := tv.Int64()
		if err != nil {
			return 0
		}
		return int(i)
	case string:
		i, err := strconv.Atoi(tv)
		if err != nil {
			return 0
		}
		return i
	}
	return 0
}

// Time will return the named claim as Time,
// the claim must be a NumericDate
func (c Claims) Time(k string) *time.Time {
	nd, err := numericDate(c[k])
	if err != nil || nd == nil {
		return nil
	}
	return &nd.Time
}

// Audience returns aud claim as a list
func (c Claims) Audience() []string {
	aud, err := jwt.MapClaims(c).GetAudience()
	if err != nil {
		return nil
	}
	return aud
}

// numericDate parses a NumericDate value, RFC 7519 Section 2
func numericDate(v any) (*jwt.NumericDate, error) {
	switch tv := v.(type) {
	case int:
		v = float64(tv)
	case int64:
		v = float64(tv)
	case time.Time:
		return jwt.NewNumericDate(tv), nil
	}
	return jwt.MapClaims{"exp": v}.GetExpirationTime()
}
