package jwe

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose/checker"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/jwk"
	"github.com/effective-security/xlog"
)

// Loader parses, checks the headers, and decrypts JWE.
// It is immutable and safe for concurrent use.
type Loader struct {
	serializers   *SerializerManager
	decrypter     *Decrypter
	headerChecker *checker.HeaderCheckerManager
}

// NewLoader returns Loader.
// If headerChecker is nil, only crit is enforced:
// any critical header parameter is rejected.
func NewLoader(serializers *SerializerManager, decrypter *Decrypter, headerChecker *checker.HeaderCheckerManager) (*Loader, error) {
	if serializers == nil || decrypter == nil {
		return nil, errors.New("serializers and decrypter are required")
	}
	if headerChecker == nil {
		headerChecker, _ = checker.NewHeaderCheckerManager()
	}
	return &Loader{
		serializers:   serializers,
		decrypter:     decrypter,
		headerChecker: headerChecker,
	}, nil
}

// Serializers returns the allowed serializers
func (l *Loader) Serializers() *SerializerManager {
	return l.serializers
}

// Decrypter returns the decrypter
func (l *Loader) Decrypter() *Decrypter {
	return l.decrypter
}

// LoadAndDecryptWithKey returns the decrypted JWE and the index of the recipient
func (l *Loader) LoadAndDecryptWithKey(token string, key *jwk.JWK) (*JWE, int, error) {
	return l.load(token, []*jwk.JWK{key})
}

// LoadAndDecryptWithKeySet returns the decrypted JWE and the index of the recipient.
// The header checks run for each recipient before decryption,
// the recipients with invalid headers are skipped.
func (l *Loader) LoadAndDecryptWithKeySet(token string, set *jwk.Set) (*JWE, int, error) {
	return l.load(token, setKeys(set))
}

func (l *Loader) load(token string, keys []*jwk.JWK) (*JWE, int, error) {
	j, name, err := l.serializers.Unserialize(token)
	if err != nil {
		return nil, -1, err
	}

	excluded := map[int]bool{}
	var firstErr error
	for i, r := range j.recipients {
		unprotected, err := header.Merge(j.sharedUnprotected, r.header)
		if err == nil {
			err = l.headerChecker.Check(j.sharedProtected, unprotected)
		}
		if err != nil {
			logger.KV(xlog.DEBUG, "reason", "check_header", "serializer", name, "index", i, "err", err.Error())
			excluded[i] = true
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if len(excluded) == len(j.recipients) {
		return nil, -1, firstErr
	}

	res, idx, err := l.decrypter.decrypt(j, keys, allRecipients(j), excluded)
	if err != nil {
		logger.KV(xlog.DEBUG, "reason", "decrypt", "serializer", name, "err", err.Error())
		return nil, -1, err
	}
	return res, idx, nil
}
