package dataprotection

import (
	"context"
	"crypto/sha256"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose/checker"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/jwa"
	"github.com/effective-security/xjose/jwe"
	"github.com/effective-security/xjose/jwk"
	"github.com/effective-security/xlog"
	"golang.org/x/crypto/hkdf"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xjose", "dataprotection")

type symProvider struct {
	key     *jwk.JWK
	builder *jwe.Builder
	loader  *jwe.Loader
}

// NewSymmetric returns Provider producing compact JWE
// with dir key management and A256GCM content encryption.
// The 256 bit key is derived from the secret with HKDF-SHA256.
func NewSymmetric(secret []byte) (Provider, error) {
	if len(secret) == 0 {
		return nil, errors.New("secret is required")
	}
	kdf := hkdf.New(sha256.New, secret, nil, nil)
	cek := make([]byte, 32)
	if _, err := io.ReadFull(kdf, cek); err != nil {
		return nil, errors.WithStack(err)
	}

	key, err := jwk.FromKey(cek, map[string]any{"alg": jwa.Direct, "use": "enc"})
	if err != nil {
		return nil, err
	}

	km, err := jwa.NewKeyManagementManager(jwa.Direct)
	if err != nil {
		return nil, err
	}
	ce, err := jwa.NewContentEncryptionManager(jwa.A256GCM)
	if err != nil {
		return nil, err
	}
	serializers, err := jwe.NewSerializerManagerByName(jwe.CompactSerializer)
	if err != nil {
		return nil, err
	}
	hc, err := checker.NewHeaderCheckerManager(
		checker.NewAlgorithmChecker([]string{jwa.Direct}, true),
		checker.NewIsEqualChecker(header.Encryption, jwa.A256GCM, true),
	)
	if err != nil {
		return nil, err
	}
	loader, err := jwe.NewLoader(serializers, jwe.NewDecrypter(km, ce, nil), hc)
	if err != nil {
		return nil, err
	}

	return &symProvider{
		key:     key,
		builder: jwe.NewBuilder(km, ce, nil),
		loader:  loader,
	}, nil
}

// Protect returns compact JWE
func (p *symProvider) Protect(_ context.Context, data []byte) ([]byte, error) {
	j, err := p.builder.Build(data,
		header.Header{header.Algorithm: jwa.Direct, header.Encryption: jwa.A256GCM},
		nil,
		[]jwe.Recipient{{Key: p.key}},
	)
	if err != nil {
		return nil, err
	}
	token, err := jwe.Compact{}.Serialize(j, 0)
	if err != nil {
		return nil, err
	}
	return []byte(token), nil
}

// Unprotect returns unprotected data
func (p *symProvider) Unprotect(_ context.Context, protected []byte) ([]byte, error) {
	if len(protected) == 0 {
		return nil, errors.Errorf("invalid data")
	}
	j, _, err := p.loader.LoadAndDecryptWithKey(string(protected), p.key)
	if err != nil {
		logger.KV(xlog.DEBUG, "reason", "unprotect", "err", err.Error())
		return nil, errors.WithMessage(err, "failed to unprotect")
	}
	return j.Payload(), nil
}

// IsReady returns true when provider has encryption keys
func (p *symProvider) IsReady() bool {
	return p.key != nil
}
