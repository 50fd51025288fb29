package jwa

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha1" // RSA-OAEP
	_ "crypto/sha256"
	_ "crypto/sha512"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/jwk"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// minimum RSA modulus size, RFC 7518 Section 3.3
const minRSAKeySize = 2048

type hmacAlg struct {
	name string
	hash crypto.Hash
}

func (a *hmacAlg) Name() string              { return a.name }
func (a *hmacAlg) AllowedKeyTypes() []string { return []string{jwk.KeyTypeOct} }

func (a *hmacAlg) Sign(key *jwk.JWK, input []byte) ([]byte, error) {
	if err := checkKeyType(a, key); err != nil {
		return nil, err
	}
	k, err := key.SymmetricKey()
	if err != nil {
		return nil, err
	}
	if len(k) < a.hash.Size() {
		return nil, errors.WithMessagef(xjose.ErrKeyTypeMismatch, "%s key must be at least %d bytes", a.name, a.hash.Size())
	}
	h := hmac.New(a.hash.New, k)
	h.Write(input)
	return h.Sum(nil), nil
}

func (a *hmacAlg) Verify(key *jwk.JWK, input, signature []byte) (bool, error) {
	expected, err := a.Sign(key, input)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, signature), nil
}

type rsaAlg struct {
	name string
	hash crypto.Hash
	pss  bool
}

func (a *rsaAlg) Name() string              { return a.name }
func (a *rsaAlg) AllowedKeyTypes() []string { return []string{jwk.KeyTypeRSA} }

func (a *rsaAlg) pssOptions() *rsa.PSSOptions {
	return &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: a.hash}
}

func (a *rsaAlg) Sign(key *jwk.JWK, input []byte) ([]byte, error) {
	if err := checkKeyType(a, key); err != nil {
		return nil, err
	}
	pk, err := key.PrivateKey()
	if err != nil {
		return nil, err
	}
	priv := pk.(*rsa.PrivateKey)
	if priv.N.BitLen() < minRSAKeySize {
		return nil, errors.WithMessagef(xjose.ErrKeyTypeMismatch, "%s key must be at least %d bits", a.name, minRSAKeySize)
	}

	digest := hashOf(a.hash, input)
	var sig []byte
	if a.pss {
		sig, err = rsa.SignPSS(rand.Reader, priv, a.hash, digest, a.pssOptions())
	} else {
		sig, err = rsa.SignPKCS1v15(rand.Reader, priv, a.hash, digest)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to sign with %s", a.name)
	}
	return sig, nil
}

func (a *rsaAlg) Verify(key *jwk.JWK, input, signature []byte) (bool, error) {
	if err := checkKeyType(a, key); err != nil {
		return false, err
	}
	pk, err := key.PublicKey()
	if err != nil {
		return false, err
	}
	pub := pk.(*rsa.PublicKey)
	if pub.N.BitLen() < minRSAKeySize {
		return false, errors.WithMessagef(xjose.ErrKeyTypeMismatch, "%s key must be at least %d bits", a.name, minRSAKeySize)
	}

	digest := hashOf(a.hash, input)
	if a.pss {
		err = rsa.VerifyPSS(pub, a.hash, digest, signature, a.pssOptions())
	} else {
		err = rsa.VerifyPKCS1v15(pub, a.hash, digest, signature)
	}
	return err == nil, nil
}

type ecdsaAlg struct {
	name string
	hash crypto.Hash
	crv  string
}

func (a *ecdsaAlg) Name() string              { return a.name }
func (a *ecdsaAlg) AllowedKeyTypes() []string { return []string{jwk.KeyTypeEC} }

func (a *ecdsaAlg) checkCurve(key *jwk.JWK) error {
	if err := checkKeyType(a, key); err != nil {
		return err
	}
	if key.Curve() != a.crv {
		return errors.WithMessagef(xjose.ErrKeyTypeMismatch, "%s requires %s key, got %q", a.name, a.crv, key.Curve())
	}
	return nil
}

func (a *ecdsaAlg) Sign(key *jwk.JWK, input []byte) ([]byte, error) {
	if err := a.checkCurve(key); err != nil {
		return nil, err
	}
	pk, err := key.PrivateKey()
	if err != nil {
		return nil, err
	}
	der, err := ecdsa.SignASN1(rand.Reader, pk.(*ecdsa.PrivateKey), hashOf(a.hash, input))
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to sign with %s", a.name)
	}

	// for ECDSA, signature is encoded ASN1{r,s}
	var (
		r, s  = &big.Int{}, &big.Int{}
		inner cryptobyte.String
	)
	in := cryptobyte.String(der)
	if !in.ReadASN1(&inner, asn1.SEQUENCE) ||
		!in.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) ||
		!inner.Empty() {
		return nil, errors.Errorf("unable to decode ECDSA signature")
	}

	// r and s are big-endian, zero padded to the curve size
	keyBytes := jwk.CurveKeySize(a.crv)
	out := make([]byte, 2*keyBytes)
	r.FillBytes(out[:keyBytes])
	s.FillBytes(out[keyBytes:])
	return out, nil
}

func (a *ecdsaAlg) Verify(key *jwk.JWK, input, signature []byte) (bool, error) {
	if err := a.checkCurve(key); err != nil {
		return false, err
	}
	pk, err := key.PublicKey()
	if err != nil {
		return false, err
	}
	keyBytes := jwk.CurveKeySize(a.crv)
	if len(signature) != 2*keyBytes {
		return false, nil
	}
	r := new(big.Int).SetBytes(signature[:keyBytes])
	s := new(big.Int).SetBytes(signature[keyBytes:])
	return ecdsa.Verify(pk.(*ecdsa.PublicKey), hashOf(a.hash, input), r, s), nil
}

type eddsaAlg struct{}

func (a *eddsaAlg) Name() string              { return EdDSA }
func (a *eddsaAlg) AllowedKeyTypes() []string { return []string{jwk.KeyTypeOKP} }

func (a *eddsaAlg) checkCurve(key *jwk.JWK) error {
	if err := checkKeyType(a, key); err != nil {
		return err
	}
	if key.Curve() != jwk.CurveEd25519 {
		return errors.WithMessagef(xjose.ErrKeyTypeMismatch, "unsupported EdDSA curve: %q", key.Curve())
	}
	return nil
}

func (a *eddsaAlg) Sign(key *jwk.JWK, input []byte) ([]byte, error) {
	if err := a.checkCurve(key); err != nil {
		return nil, err
	}
	pk, err := key.PrivateKey()
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(pk.(ed25519.PrivateKey), input), nil
}

func (a *eddsaAlg) Verify(key *jwk.JWK, input, signature []byte) (bool, error) {
	if err := a.checkCurve(key); err != nil {
		return false, err
	}
	pk, err := key.PublicKey()
	if err != nil {
		return false, err
	}
	if len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(pk.(ed25519.PublicKey), input, signature), nil
}

// noneAlg is the unsecured JWS, it requires a key of "none" type
type noneAlg struct{}

func (a *noneAlg) Name() string              { return None }
func (a *noneAlg) AllowedKeyTypes() []string { return []string{jwk.KeyTypeNone} }

func (a *noneAlg) Sign(key *jwk.JWK, _ []byte) ([]byte, error) {
	if err := checkKeyType(a, key); err != nil {
		return nil, err
	}
	return []byte{}, nil
}

func (a *noneAlg) Verify(key *jwk.JWK, _ []byte, signature []byte) (bool, error) {
	if err := checkKeyType(a, key); err != nil {
		return false, err
	}
	return len(signature) == 0, nil
}

func hashOf(hash crypto.Hash, input []byte) []byte {
	h := hash.New()
	h.Write(input)
	return h.Sum(nil)
}
