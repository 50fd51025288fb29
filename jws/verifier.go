package jws

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/jwa"
	"github.com/effective-security/xjose/jwk"
	"github.com/effective-security/xjose/metricskey"
	"github.com/effective-security/xlog"
)

// Verifier verifies JWS with the allowed signature algorithms.
// It is immutable and safe for concurrent use.
type Verifier struct {
	algorithms *jwa.SignatureManager
}

// NewVerifier returns Verifier
func NewVerifier(algorithms *jwa.SignatureManager) *Verifier {
	return &Verifier{algorithms: algorithms}
}

// SignatureAlgorithms returns the allow-list
func (v *Verifier) SignatureAlgorithms() *jwa.SignatureManager {
	return v.algorithms
}

// VerifyWithKey returns the index of the first signature verified by the key.
// The detached payload must be provided if the JWS payload is detached.
func (v *Verifier) VerifyWithKey(j *JWS, key *jwk.JWK, detached []byte) (int, error) {
	return v.verify(j, detached, nil, keyCandidates(key))
}

// VerifyWithKeySet returns the index of the first signature verified by a key from the set.
// The keys are tried in the set order, the keys with matching kid first.
func (v *Verifier) VerifyWithKeySet(j *JWS, set *jwk.Set, detached []byte) (int, error) {
	return v.verify(j, detached, nil, keySetCandidates(set))
}

type candidatesFunc func(s *Signature, alg jwa.SignatureAlgorithm) ([]*jwk.JWK, error)

func keyCandidates(key *jwk.JWK) candidatesFunc {
	return func(_ *Signature, alg jwa.SignatureAlgorithm) ([]*jwk.JWK, error) {
		if err := jwa.CheckKey(alg, key, "sig"); err != nil {
			return nil, err
		}
		return []*jwk.JWK{key}, nil
	}
}

func keySetCandidates(set *jwk.Set) candidatesFunc {
	if set == nil {
		set = jwk.NewSet()
	}
	return func(s *Signature, alg jwa.SignatureAlgorithm) ([]*jwk.JWK, error) {
		keys := set.Candidates("sig", s.KeyID(), alg)
		if len(keys) == 0 {
			return nil, errors.WithMessagef(xjose.ErrKeyNotFound, "no key for %s", alg.Name())
		}
		return keys, nil
	}
}

// verify tries the signatures in order, skipping the excluded ones.
// If no signature could be tried, the first error is returned.
func (v *Verifier) verify(j *JWS, detached []byte, excluded map[int]bool, candidates candidatesFunc) (int, error) {
	var err error
	if j, err = withDetached(j, detached); err != nil {
		return -1, err
	}

	var firstErr error
	tried := false
	for i, s := range j.signatures {
		if excluded[i] {
			continue
		}
		alg, keys, err := v.prepare(s, candidates)
		if err != nil {
			logger.KV(xlog.DEBUG, "reason", "skip_signature", "index", i, "err", err.Error())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		tried = true
		input := j.signingInput(s)
		for _, key := range keys {
			if verifySignature(alg, key, input, s.signature) {
				return i, nil
			}
		}
	}
	if tried || firstErr == nil {
		return -1, errors.WithMessage(xjose.ErrInvalidSignature, "no signature verified")
	}
	return -1, firstErr
}

func (v *Verifier) prepare(s *Signature, candidates candidatesFunc) (jwa.SignatureAlgorithm, []*jwk.JWK, error) {
	name := s.Algorithm()
	if name == "" {
		return nil, nil, errors.WithMessage(xjose.ErrMissingAlgorithm, `"alg" header is required`)
	}
	alg, err := v.algorithms.Get(name)
	if err != nil {
		return nil, nil, err
	}
	keys, err := candidates(s, alg)
	if err != nil {
		return nil, nil, err
	}
	return alg, keys, nil
}

func verifySignature(alg jwa.SignatureAlgorithm, key *jwk.JWK, input, signature []byte) bool {
	defer metricskey.PerfJWSOperation.MeasureSince(time.Now(), "verify", alg.Name())
	ok, err := alg.Verify(key, input, signature)
	if err != nil {
		logger.KV(xlog.DEBUG, "reason", "verify", "alg", alg.Name(), "kid", key.KeyID(), "err", err.Error())
		return false
	}
	return ok
}

func withDetached(j *JWS, detached []byte) (*JWS, error) {
	if detached == nil {
		if j.detached {
			return nil, errors.WithMessage(xjose.ErrInvalidFormat, "detached payload is required")
		}
		return j, nil
	}
	if !j.detached {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "payload is not detached")
	}
	return j.WithPayload(detached), nil
}
