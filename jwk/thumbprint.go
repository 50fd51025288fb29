package jwk

import (
	"crypto"
	_ "crypto/sha256" // register SHA-256 for thumbprints
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose/x/b64url"
)

// Thumbprint returns RFC 7638 thumbprint of the key
func (k *JWK) Thumbprint(hash crypto.Hash) ([]byte, error) {
	if !hash.Available() {
		return nil, errors.Errorf("hash function is not available: %v", hash)
	}
	members := map[string]string{}
	for _, name := range requiredMembers[k.KeyType()] {
		members[name] = k.String(name)
	}
	// json.Marshal sorts map keys and does not add whitespace
	raw, err := json.Marshal(members)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	h := hash.New()
	h.Write(raw)
	return h.Sum(nil), nil
}

// ThumbprintString returns base64url encoded SHA-256 thumbprint of the key
func (k *JWK) ThumbprintString() (string, error) {
	tp, err := k.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return b64url.Encode(tp), nil
}
