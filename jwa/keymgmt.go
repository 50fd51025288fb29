package jwa

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/jwk"
	"github.com/effective-security/xjose/x/b64url"
	josecipher "github.com/go-jose/go-jose/v3/cipher"
	"golang.org/x/crypto/pbkdf2"
)

// PBES2 parameters
const (
	// DefaultPBES2SaltSize is the size of p2s generated when not provided in the header
	DefaultPBES2SaltSize = 64
	// DefaultPBES2Count is p2c used when not provided in the header
	DefaultPBES2Count = 4096
	// MaxPBES2Count is the maximum p2c accepted on decryption
	MaxPBES2Count = 1000000

	minPBES2SaltSize = 8
)

// rsaKeyEncryption implements RSA1_5 and RSA-OAEP family
type rsaKeyEncryption struct {
	name string
	// hash is zero for RSA1_5
	hash crypto.Hash
}

func (a *rsaKeyEncryption) Name() string              { return a.name }
func (a *rsaKeyEncryption) AllowedKeyTypes() []string { return []string{jwk.KeyTypeRSA} }
func (a *rsaKeyEncryption) Mode() Mode                { return ModeKeyEncryption }

func (a *rsaKeyEncryption) EncryptKey(key *jwk.JWK, cek []byte, _ header.Header) ([]byte, header.Header, error) {
	if err := checkKeyType(a, key); err != nil {
		return nil, nil, err
	}
	pk, err := key.PublicKey()
	if err != nil {
		return nil, nil, err
	}
	pub := pk.(*rsa.PublicKey)

	var ek []byte
	if a.hash == 0 {
		ek, err = rsa.EncryptPKCS1v15(rand.Reader, pub, cek)
	} else {
		ek, err = rsa.EncryptOAEP(a.hash.New(), rand.Reader, pub, cek, nil)
	}
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "unable to encrypt key with %s", a.name)
	}
	return ek, nil, nil
}

func (a *rsaKeyEncryption) DecryptKey(key *jwk.JWK, encryptedKey []byte, hdr header.Header) ([]byte, error) {
	if err := checkKeyType(a, key); err != nil {
		return nil, err
	}
	pk, err := key.PrivateKey()
	if err != nil {
		return nil, err
	}
	priv := pk.(*rsa.PrivateKey)

	if a.hash != 0 {
		cek, err := rsa.DecryptOAEP(a.hash.New(), rand.Reader, priv, encryptedKey, nil)
		if err != nil {
			return nil, errors.WithMessage(xjose.ErrUnwrap, a.name)
		}
		return cek, nil
	}

	// RFC 3218: on PKCS#1 v1.5 padding failure continue with a random CEK,
	// the content decryption fails on the tag
	size := cekSize(hdr.Encryption())
	if size == 0 {
		return nil, errors.WithMessagef(xjose.ErrUnwrap, "%s requires known enc", a.name)
	}
	cek := make([]byte, size)
	if _, err = rand.Read(cek); err != nil {
		return nil, errors.WithStack(err)
	}
	if err = rsa.DecryptPKCS1v15SessionKey(rand.Reader, priv, encryptedKey, cek); err != nil {
		return nil, errors.WithMessage(xjose.ErrUnwrap, a.name)
	}
	return cek, nil
}

// aesKeyWrap implements A128KW, A192KW and A256KW
type aesKeyWrap struct {
	name string
	size int
}

func (a *aesKeyWrap) Name() string              { return a.name }
func (a *aesKeyWrap) AllowedKeyTypes() []string { return []string{jwk.KeyTypeOct} }
func (a *aesKeyWrap) Mode() Mode                { return ModeKeyWrapping }

func (a *aesKeyWrap) EncryptKey(key *jwk.JWK, cek []byte, _ header.Header) ([]byte, header.Header, error) {
	kek, err := symmetricKey(a, key, a.size)
	if err != nil {
		return nil, nil, err
	}
	ek, err := wrap(kek, cek)
	return ek, nil, err
}

func (a *aesKeyWrap) DecryptKey(key *jwk.JWK, encryptedKey []byte, _ header.Header) ([]byte, error) {
	kek, err := symmetricKey(a, key, a.size)
	if err != nil {
		return nil, err
	}
	return unwrap(kek, encryptedKey)
}

// aesGCMKeyWrap implements A128GCMKW, A192GCMKW and A256GCMKW
type aesGCMKeyWrap struct {
	name string
	size int
}

func (a *aesGCMKeyWrap) Name() string              { return a.name }
func (a *aesGCMKeyWrap) AllowedKeyTypes() []string { return []string{jwk.KeyTypeOct} }
func (a *aesGCMKeyWrap) Mode() Mode                { return ModeKeyWrapping }

func (a *aesGCMKeyWrap) EncryptKey(key *jwk.JWK, cek []byte, _ header.Header) ([]byte, header.Header, error) {
	kek, err := symmetricKey(a, key, a.size)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := newGCM(kek)
	if err != nil {
		return nil, nil, err
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(iv); err != nil {
		return nil, nil, errors.WithStack(err)
	}
	sealed := gcm.Seal(nil, iv, cek, nil)
	offset := len(sealed) - gcm.Overhead()

	extra := header.Header{
		header.InitVector: b64url.Encode(iv),
		header.Tag:        b64url.Encode(sealed[offset:]),
	}
	return sealed[:offset], extra, nil
}

func (a *aesGCMKeyWrap) DecryptKey(key *jwk.JWK, encryptedKey []byte, hdr header.Header) ([]byte, error) {
	kek, err := symmetricKey(a, key, a.size)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(kek)
	if err != nil {
		return nil, err
	}
	iv, err := hdr.Bytes(header.InitVector)
	if err != nil || len(iv) != gcm.NonceSize() {
		return nil, errors.WithMessagef(xjose.ErrUnwrap, "%s: invalid iv", a.name)
	}
	tag, err := hdr.Bytes(header.Tag)
	if err != nil || len(tag) != gcm.Overhead() {
		return nil, errors.WithMessagef(xjose.ErrUnwrap, "%s: invalid tag", a.name)
	}
	cek, err := gcm.Open(nil, iv, append(append([]byte{}, encryptedKey...), tag...), nil)
	if err != nil {
		return nil, errors.WithMessage(xjose.ErrUnwrap, a.name)
	}
	return cek, nil
}

// pbes2 implements PBES2 with AES key wrap, RFC 7518 Section 4.8
type pbes2 struct {
	name string
	hash crypto.Hash
	size int
}

func (a *pbes2) Name() string              { return a.name }
func (a *pbes2) AllowedKeyTypes() []string { return []string{jwk.KeyTypeOct} }
func (a *pbes2) Mode() Mode                { return ModeKeyWrapping }

func (a *pbes2) deriveKey(password, salt []byte, count int) []byte {
	// salt input is UTF8(alg) || 0x00 || p2s
	input := make([]byte, 0, len(a.name)+1+len(salt))
	input = append(input, a.name...)
	input = append(input, 0)
	input = append(input, salt...)
	return pbkdf2.Key(password, input, count, a.size, a.hash.New)
}

func (a *pbes2) EncryptKey(key *jwk.JWK, cek []byte, hdr header.Header) ([]byte, header.Header, error) {
	password, err := symmetricKey(a, key, 0)
	if err != nil {
		return nil, nil, err
	}

	var salt []byte
	if hdr.Has(header.PBES2Salt) {
		if salt, err = hdr.Bytes(header.PBES2Salt); err != nil {
			return nil, nil, err
		}
	} else {
		salt = make([]byte, DefaultPBES2SaltSize)
		if _, err = rand.Read(salt); err != nil {
			return nil, nil, errors.WithStack(err)
		}
	}
	if len(salt) < minPBES2SaltSize {
		return nil, nil, errors.Errorf("%s: salt must be at least %d bytes", a.name, minPBES2SaltSize)
	}

	count := DefaultPBES2Count
	if hdr.Has(header.PBES2Count) {
		if count, err = hdr.Int(header.PBES2Count); err != nil {
			return nil, nil, err
		}
	}
	if count < 1 || count > MaxPBES2Count {
		return nil, nil, errors.Errorf("%s: invalid count: %d", a.name, count)
	}

	ek, err := wrap(a.deriveKey(password, salt, count), cek)
	if err != nil {
		return nil, nil, err
	}
	extra := header.Header{
		header.PBES2Salt:  b64url.Encode(salt),
		header.PBES2Count: count,
	}
	return ek, extra, nil
}

func (a *pbes2) DecryptKey(key *jwk.JWK, encryptedKey []byte, hdr header.Header) ([]byte, error) {
	password, err := symmetricKey(a, key, 0)
	if err != nil {
		return nil, err
	}
	salt, err := hdr.Bytes(header.PBES2Salt)
	if err != nil || len(salt) < minPBES2SaltSize {
		return nil, errors.WithMessagef(xjose.ErrUnwrap, "%s: invalid p2s", a.name)
	}
	count, err := hdr.Int(header.PBES2Count)
	if err != nil || count < 1 || count > MaxPBES2Count {
		return nil, errors.WithMessagef(xjose.ErrUnwrap, "%s: invalid p2c", a.name)
	}
	return unwrap(a.deriveKey(password, salt, count), encryptedKey)
}

// direct uses the shared symmetric key as CEK
type direct struct{}

func (a *direct) Name() string              { return Direct }
func (a *direct) AllowedKeyTypes() []string { return []string{jwk.KeyTypeOct} }
func (a *direct) Mode() Mode                { return ModeDirectEncryption }

func (a *direct) CEK(key *jwk.JWK, _ header.Header, size int) ([]byte, header.Header, error) {
	cek, err := symmetricKey(a, key, size)
	return cek, nil, err
}

func (a *direct) RecoverCEK(key *jwk.JWK, _ header.Header, size int) ([]byte, error) {
	return symmetricKey(a, key, size)
}

// symmetricKey returns the oct key, checking the size if not zero
func symmetricKey(alg Algorithm, key *jwk.JWK, size int) ([]byte, error) {
	if err := checkKeyType(alg, key); err != nil {
		return nil, err
	}
	k, err := key.SymmetricKey()
	if err != nil {
		return nil, err
	}
	if size > 0 && subtle.ConstantTimeEq(int32(len(k)), int32(size)) != 1 {
		return nil, errors.WithMessagef(xjose.ErrKeyTypeMismatch, "%s requires %d bytes key", alg.Name(), size)
	}
	if len(k) == 0 {
		return nil, errors.WithMessagef(xjose.ErrKeyTypeMismatch, "%s requires non-empty key", alg.Name())
	}
	return k, nil
}

func wrap(kek, cek []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	ek, err := josecipher.KeyWrap(block, cek)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to wrap key")
	}
	return ek, nil
}

func unwrap(kek, encryptedKey []byte) ([]byte, error) {
	// at least 128 bits of CEK and the integrity block
	if len(encryptedKey) < 24 || len(encryptedKey)%8 != 0 {
		return nil, errors.WithMessage(xjose.ErrUnwrap, "invalid wrapped key size")
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cek, err := josecipher.KeyUnwrap(block, encryptedKey)
	if err != nil {
		return nil, errors.WithMessage(xjose.ErrUnwrap, "AES key unwrap failed")
	}
	return cek, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return gcm, nil
}
