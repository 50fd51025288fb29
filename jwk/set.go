package jwk

import (
	"encoding/json"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xlog"
)

// Algorithm describes what key types an algorithm can use
type Algorithm interface {
	Name() string
	AllowedKeyTypes() []string
}

// Set is an ordered JSON Web Key Set.
// Lookups return a deterministic first match.
type Set struct {
	keys []*JWK
}

type jsonSet struct {
	Keys []json.RawMessage `json:"keys"`
}

// NewSet returns key set
func NewSet(keys ...*JWK) *Set {
	s := &Set{}
	for _, k := range keys {
		if k != nil {
			s.keys = append(s.keys, k)
		}
	}
	return s
}

// ParseSet returns key set from JSON.
// Keys with unsupported key types are skipped.
func ParseSet(raw []byte) (*Set, error) {
	var js jsonSet
	if err := json.Unmarshal(raw, &js); err != nil {
		return nil, errors.WithMessagef(xjose.ErrInvalidFormat, "unable to decode key set: %s", err.Error())
	}
	if js.Keys == nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "missing keys")
	}
	s := &Set{}
	for i, r := range js.Keys {
		k, err := Parse(r)
		if err != nil {
			logger.KV(xlog.WARNING,
				"reason", "skip_key",
				"index", i,
				"err", err.Error())
			continue
		}
		s.keys = append(s.keys, k)
	}
	return s, nil
}

// MarshalJSON implements json.Marshaler
func (s *Set) MarshalJSON() ([]byte, error) {
	keys := s.keys
	if keys == nil {
		keys = []*JWK{}
	}
	return json.Marshal(struct {
		Keys []*JWK `json:"keys"`
	}{Keys: keys})
}

// UnmarshalJSON implements json.Unmarshaler
func (s *Set) UnmarshalJSON(raw []byte) error {
	parsed, err := ParseSet(raw)
	if err != nil {
		return err
	}
	s.keys = parsed.keys
	return nil
}

// Keys returns the keys
func (s *Set) Keys() []*JWK {
	return slices.Clone(s.keys)
}

// Len returns the number of keys
func (s *Set) Len() int {
	return len(s.keys)
}

// Get returns the key at index
func (s *Set) Get(i int) *JWK {
	if i < 0 || i >= len(s.keys) {
		return nil
	}
	return s.keys[i]
}

// With returns a new set with the keys appended
func (s *Set) With(keys ...*JWK) *Set {
	return NewSet(append(slices.Clone(s.keys), keys...)...)
}

// Filter returns a new set with the keys matching the predicate
func (s *Set) Filter(fn func(*JWK) bool) *Set {
	ns := &Set{}
	for _, k := range s.keys {
		if fn(k) {
			ns.keys = append(ns.keys, k)
		}
	}
	return ns
}

// FindByKeyID returns the first key with kid
func (s *Set) FindByKeyID(kid string) (*JWK, bool) {
	for _, k := range s.keys {
		if k.KeyID() == kid {
			return k, true
		}
	}
	return nil, false
}

// Select returns the preferred key for the use, kid and algorithm.
// Empty use, kid and nil alg are not filtered.
// The precedence is explicit kid match, then use match, then the first compatible key.
func (s *Set) Select(use, kid string, alg Algorithm) (*JWK, bool) {
	c := s.Candidates(use, kid, alg)
	if len(c) == 0 {
		return nil, false
	}
	return c[0], true
}

// Candidates returns all the keys compatible with the use and algorithm,
// ordered by the Select precedence.
func (s *Set) Candidates(use, kid string, alg Algorithm) []*JWK {
	var byKid, byUse, rest []*JWK
	for _, k := range s.keys {
		if !Compatible(k, use, alg) {
			continue
		}
		switch {
		case kid != "" && k.KeyID() == kid:
			byKid = append(byKid, k)
		case use != "" && k.Use() == use:
			byUse = append(byUse, k)
		default:
			rest = append(rest, k)
		}
	}
	return append(append(byKid, byUse...), rest...)
}

// Compatible returns true if the key can be used for the use and algorithm
func Compatible(k *JWK, use string, alg Algorithm) bool {
	if use != "" && k.Use() != "" && k.Use() != use {
		return false
	}
	if alg == nil {
		return true
	}
	if a := k.Algorithm(); a != "" && a != alg.Name() {
		return false
	}
	return slices.Contains(alg.AllowedKeyTypes(), k.KeyType())
}
