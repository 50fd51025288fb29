package jws

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/jwa"
	"github.com/effective-security/xjose/jwk"
	"github.com/effective-security/xjose/metricskey"
)

// Signer describes one signature of JWS
type Signer struct {
	// Key is the private or symmetric key
	Key *jwk.JWK
	// Protected header, covered by the signature
	Protected header.Header
	// Unprotected header, optional
	Unprotected header.Header
}

// BuildOption configures Build
type BuildOption func(*buildOptions)

type buildOptions struct {
	detached bool
}

// WithDetachedPayload produces JWS with detached payload, RFC 7515 Appendix F
func WithDetachedPayload() BuildOption {
	return func(o *buildOptions) {
		o.detached = true
	}
}

// Builder creates JWS with the allowed signature algorithms.
// It is immutable and safe for concurrent use.
type Builder struct {
	algorithms *jwa.SignatureManager
}

// NewBuilder returns Builder
func NewBuilder(algorithms *jwa.SignatureManager) *Builder {
	return &Builder{algorithms: algorithms}
}

// SignatureAlgorithms returns the allow-list
func (b *Builder) SignatureAlgorithms() *jwa.SignatureManager {
	return b.algorithms
}

// Build returns JWS with one signature per signer, in the order of signers
func (b *Builder) Build(payload []byte, signers []Signer, opts ...BuildOption) (*JWS, error) {
	if len(signers) == 0 {
		return nil, errors.New("at least one signer is required")
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	j := &JWS{
		payload:  append([]byte(nil), payload...),
		detached: o.detached,
	}

	// headers first, b64 must be known before signing
	type prepared struct {
		sig *Signature
		alg jwa.SignatureAlgorithm
		key *jwk.JWK
	}
	list := make([]prepared, 0, len(signers))
	for i, s := range signers {
		alg, err := b.algorithm(s)
		if err != nil {
			return nil, errors.WithMessagef(err, "signer %d", i)
		}
		if err = jwa.CheckKey(alg, s.Key, "sig"); err != nil {
			return nil, errors.WithMessagef(err, "signer %d", i)
		}
		encoded, err := s.Protected.Encode()
		if err != nil {
			return nil, err
		}
		list = append(list, prepared{
			sig: &Signature{
				protected:        s.Protected.Clone(),
				encodedProtected: encoded,
				unprotected:      s.Unprotected.Clone(),
			},
			alg: alg,
			key: s.Key,
		})
	}
	for _, p := range list {
		j.signatures = append(j.signatures, p.sig)
	}

	encoded, err := payloadEncoding(j.signatures)
	if err != nil {
		return nil, err
	}
	j.unencoded = !encoded

	for _, p := range list {
		if p.sig.signature, err = sign(p.alg, p.key, j.signingInput(p.sig)); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func (b *Builder) algorithm(s Signer) (jwa.SignatureAlgorithm, error) {
	complete, err := header.Merge(s.Protected, s.Unprotected)
	if err != nil {
		return nil, err
	}
	name := complete.Algorithm()
	if name == "" {
		return nil, errors.WithMessage(xjose.ErrMissingAlgorithm, `"alg" header is required`)
	}
	return b.algorithms.Get(name)
}

func sign(alg jwa.SignatureAlgorithm, key *jwk.JWK, input []byte) ([]byte, error) {
	defer metricskey.PerfJWSOperation.MeasureSince(time.Now(), "sign", alg.Name())
	sig, err := alg.Sign(key, input)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to sign with %s", alg.Name())
	}
	return sig, nil
}
