package jws

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose/checker"
	"github.com/effective-security/xjose/jwk"
	"github.com/effective-security/xlog"
)

// Loader parses, checks the headers, and verifies JWS.
// It is immutable and safe for concurrent use.
type Loader struct {
	serializers   *SerializerManager
	verifier      *Verifier
	headerChecker *checker.HeaderCheckerManager
}

// NewLoader returns Loader.
// If headerChecker is nil, only crit is enforced:
// any critical header parameter is rejected.
func NewLoader(serializers *SerializerManager, verifier *Verifier, headerChecker *checker.HeaderCheckerManager) (*Loader, error) {
	if serializers == nil || verifier == nil {
		return nil, errors.New("serializers and verifier are required")
	}
	if headerChecker == nil {
		headerChecker, _ = checker.NewHeaderCheckerManager()
	}
	return &Loader{
		serializers:   serializers,
		verifier:      verifier,
		headerChecker: headerChecker,
	}, nil
}

// Serializers returns the allowed serializers
func (l *Loader) Serializers() *SerializerManager {
	return l.serializers
}

// Verifier returns the verifier
func (l *Loader) Verifier() *Verifier {
	return l.verifier
}

// LoadAndVerifyWithKey returns JWS and the index of the verified signature
func (l *Loader) LoadAndVerifyWithKey(token string, key *jwk.JWK, detached []byte) (*JWS, int, error) {
	return l.load(token, detached, keyCandidates(key))
}

// LoadAndVerifyWithKeySet returns JWS and the index of the verified signature.
// The header checks run for each signature before verification,
// the signatures with invalid headers are not verified.
func (l *Loader) LoadAndVerifyWithKeySet(token string, set *jwk.Set, detached []byte) (*JWS, int, error) {
	return l.load(token, detached, keySetCandidates(set))
}

func (l *Loader) load(token string, detached []byte, candidates candidatesFunc) (*JWS, int, error) {
	j, name, err := l.serializers.Unserialize(token)
	if err != nil {
		return nil, -1, err
	}

	excluded := map[int]bool{}
	var firstErr error
	for i, s := range j.signatures {
		if err = l.headerChecker.Check(s.protected, s.unprotected); err != nil {
			logger.KV(xlog.DEBUG, "reason", "check_header", "serializer", name, "index", i, "err", err.Error())
			excluded[i] = true
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if len(excluded) == len(j.signatures) {
		return nil, -1, firstErr
	}

	idx, err := l.verifier.verify(j, detached, excluded, candidates)
	if err != nil {
		logger.KV(xlog.DEBUG, "reason", "verify", "serializer", name, "err", err.Error())
		return nil, -1, err
	}
	if detached != nil {
		j = j.WithPayload(detached)
	}
	return j, idx, nil
}
