package jwa

import (
	"crypto/aes"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	josecipher "github.com/go-jose/go-jose/v3/cipher"
)

// aesGCM implements A128GCM, A192GCM and A256GCM
type aesGCM struct {
	name string
	size int
}

func (a *aesGCM) Name() string { return a.name }
func (a *aesGCM) CEKSize() int { return a.size }
func (a *aesGCM) IVSize() int  { return 12 }
func (a *aesGCM) TagSize() int { return 16 }

func (a *aesGCM) Encrypt(cek, plaintext, iv, aad []byte) ([]byte, []byte, error) {
	if len(cek) != a.size || len(iv) != a.IVSize() {
		return nil, nil, errors.Errorf("%s: invalid CEK or IV size", a.name)
	}
	gcm, err := newGCM(cek)
	if err != nil {
		return nil, nil, err
	}
	sealed := gcm.Seal(nil, iv, plaintext, aad)
	offset := len(sealed) - a.TagSize()
	return sealed[:offset], sealed[offset:], nil
}

func (a *aesGCM) Decrypt(cek, ciphertext, iv, aad, tag []byte) ([]byte, error) {
	if len(cek) != a.size || len(iv) != a.IVSize() || len(tag) != a.TagSize() {
		return nil, errors.WithMessagef(xjose.ErrAuthentication, "%s: invalid CEK, IV or tag size", a.name)
	}
	gcm, err := newGCM(cek)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, errors.WithMessage(xjose.ErrAuthentication, a.name)
	}
	return plaintext, nil
}

// aesCBCHMAC implements AES_CBC_HMAC_SHA2 family, RFC 7518 Section 5.2.
// The first half of CEK is the MAC key, the second half is the encryption key.
type aesCBCHMAC struct {
	name string
	size int
}

func (a *aesCBCHMAC) Name() string { return a.name }
func (a *aesCBCHMAC) CEKSize() int { return a.size }
func (a *aesCBCHMAC) IVSize() int  { return aes.BlockSize }
func (a *aesCBCHMAC) TagSize() int { return a.size / 2 }

func (a *aesCBCHMAC) Encrypt(cek, plaintext, iv, aad []byte) ([]byte, []byte, error) {
	if len(cek) != a.size || len(iv) != a.IVSize() {
		return nil, nil, errors.Errorf("%s: invalid CEK or IV size", a.name)
	}
	aead, err := josecipher.NewCBCHMAC(cek, aes.NewCipher)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	sealed := aead.Seal(nil, iv, plaintext, aad)
	offset := len(sealed) - a.TagSize()
	return sealed[:offset], sealed[offset:], nil
}

func (a *aesCBCHMAC) Decrypt(cek, ciphertext, iv, aad, tag []byte) ([]byte, error) {
	if len(cek) != a.size || len(iv) != a.IVSize() || len(tag) != a.TagSize() {
		return nil, errors.WithMessagef(xjose.ErrAuthentication, "%s: invalid CEK, IV or tag size", a.name)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.WithMessagef(xjose.ErrAuthentication, "%s: invalid ciphertext size", a.name)
	}
	aead, err := josecipher.NewCBCHMAC(cek, aes.NewCipher)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	// the tag is verified in constant time before decryption
	plaintext, err := aead.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, errors.WithMessage(xjose.ErrAuthentication, a.name)
	}
	return plaintext, nil
}
