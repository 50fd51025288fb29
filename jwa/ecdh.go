package jwa

import (
	"crypto"
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/jwk"
	josecipher "github.com/go-jose/go-jose/v3/cipher"
)

var ecdhKeyTypes = []string{jwk.KeyTypeEC, jwk.KeyTypeOKP}

// ecdhES implements ECDH-ES direct key agreement
type ecdhES struct {
	name string
}

func (a *ecdhES) Name() string              { return a.name }
func (a *ecdhES) AllowedKeyTypes() []string { return ecdhKeyTypes }
func (a *ecdhES) Mode() Mode                { return ModeKeyAgreement }

// CEK returns the agreed key, the algorithm ID for Concat KDF is enc value
func (a *ecdhES) CEK(key *jwk.JWK, hdr header.Header, size int) ([]byte, header.Header, error) {
	if err := checkKeyType(a, key); err != nil {
		return nil, nil, err
	}
	enc := hdr.Encryption()
	if enc == "" {
		return nil, nil, errors.WithMessagef(xjose.ErrKeyAgreement, "%s requires enc", a.name)
	}
	return agree(key, hdr, enc, size)
}

func (a *ecdhES) RecoverCEK(key *jwk.JWK, hdr header.Header, size int) ([]byte, error) {
	if err := checkKeyType(a, key); err != nil {
		return nil, err
	}
	enc := hdr.Encryption()
	if enc == "" {
		return nil, errors.WithMessagef(xjose.ErrKeyAgreement, "%s requires enc", a.name)
	}
	return recoverAgreed(key, hdr, enc, size)
}

// ecdhESKeyWrap implements ECDH-ES+A128KW, ECDH-ES+A192KW and ECDH-ES+A256KW
type ecdhESKeyWrap struct {
	name string
	size int
}

func (a *ecdhESKeyWrap) Name() string              { return a.name }
func (a *ecdhESKeyWrap) AllowedKeyTypes() []string { return ecdhKeyTypes }
func (a *ecdhESKeyWrap) Mode() Mode                { return ModeKeyAgreementWithKeyWrapping }

func (a *ecdhESKeyWrap) EncryptKey(key *jwk.JWK, cek []byte, hdr header.Header) ([]byte, header.Header, error) {
	if err := checkKeyType(a, key); err != nil {
		return nil, nil, err
	}
	kek, extra, err := agree(key, hdr, a.name, a.size)
	if err != nil {
		return nil, nil, err
	}
	ek, err := wrap(kek, cek)
	if err != nil {
		return nil, nil, err
	}
	return ek, extra, nil
}

func (a *ecdhESKeyWrap) DecryptKey(key *jwk.JWK, encryptedKey []byte, hdr header.Header) ([]byte, error) {
	if err := checkKeyType(a, key); err != nil {
		return nil, err
	}
	kek, err := recoverAgreed(key, hdr, a.name, a.size)
	if err != nil {
		return nil, err
	}
	return unwrap(kek, encryptedKey)
}

// agree generates ephemeral key on the recipient's curve,
// and returns the derived key with epk header
func agree(key *jwk.JWK, hdr header.Header, algID string, size int) ([]byte, header.Header, error) {
	pub, err := key.ECDHPublicKey()
	if err != nil {
		return nil, nil, errors.WithMessagef(xjose.ErrKeyAgreement, "invalid recipient key: %s", err.Error())
	}
	eph, err := pub.Curve().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	z, err := eph.ECDH(pub)
	if err != nil {
		return nil, nil, errors.WithMessage(xjose.ErrKeyAgreement, err.Error())
	}
	epk, err := jwk.FromKey(eph.PublicKey(), nil)
	if err != nil {
		return nil, nil, err
	}
	derived, err := concatKDF(z, algID, hdr, size)
	if err != nil {
		return nil, nil, err
	}
	return derived, header.Header{header.EphemeralKey: epk.All()}, nil
}

func recoverAgreed(key *jwk.JWK, hdr header.Header, algID string, size int) ([]byte, error) {
	epk, err := hdr.EphemeralKey()
	if err != nil {
		return nil, errors.WithMessage(xjose.ErrKeyAgreement, err.Error())
	}
	if epk.KeyType() != key.KeyType() || epk.Curve() != key.Curve() {
		return nil, errors.WithMessagef(xjose.ErrKeyAgreement, "epk is %s %s key", epk.KeyType(), epk.Curve())
	}
	priv, err := key.ECDHPrivateKey()
	if err != nil {
		return nil, errors.WithMessagef(xjose.ErrKeyAgreement, "invalid recipient key: %s", err.Error())
	}
	epub, err := epk.ECDHPublicKey()
	if err != nil {
		return nil, errors.WithMessagef(xjose.ErrKeyAgreement, "invalid epk: %s", err.Error())
	}
	z, err := priv.ECDH(epub)
	if err != nil {
		return nil, errors.WithMessage(xjose.ErrKeyAgreement, err.Error())
	}
	return concatKDF(z, algID, hdr, size)
}

// concatKDF derives key of size bytes, RFC 7518 Section 4.6.2
func concatKDF(z []byte, algID string, hdr header.Header, size int) ([]byte, error) {
	var apu, apv []byte
	var err error
	if hdr.Has(header.AgreementPartyUInfo) {
		if apu, err = hdr.Bytes(header.AgreementPartyUInfo); err != nil {
			return nil, errors.WithMessage(xjose.ErrKeyAgreement, err.Error())
		}
	}
	if hdr.Has(header.AgreementPartyVInfo) {
		if apv, err = hdr.Bytes(header.AgreementPartyVInfo); err != nil {
			return nil, errors.WithMessage(xjose.ErrKeyAgreement, err.Error())
		}
	}

	// SuppPubInfo is the key length in bits
	supPubInfo := make([]byte, 4)
	binary.BigEndian.PutUint32(supPubInfo, uint32(size)*8)

	reader := josecipher.NewConcatKDF(crypto.SHA256, z,
		lengthPrefixed([]byte(algID)),
		lengthPrefixed(apu),
		lengthPrefixed(apv),
		supPubInfo,
		[]byte{})

	key := make([]byte, size)
	if _, err = io.ReadFull(reader, key); err != nil {
		return nil, errors.WithStack(err)
	}
	return key, nil
}

func lengthPrefixed(data []byte) []byte {
	out := make([]byte, len(data)+4)
	binary.BigEndian.PutUint32(out, uint32(len(data)))
	copy(out[4:], data)
	return out
}
