// Package jwe implements JSON Web Encryption (RFC 7516):
// the JWE structure, Builder, Decrypter, Loader and the serializers.
package jwe

import (
	"bytes"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/x/b64url"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xjose", "jwe")

// JWE is JSON Web Encryption.
// The payload is available only after decryption.
type JWE struct {
	ciphertext []byte
	iv         []byte
	tag        []byte
	aad        []byte

	sharedProtected        header.Header
	encodedSharedProtected string
	sharedUnprotected      header.Header
	recipients             []*RecipientInfo

	payload []byte
}

// RecipientInfo is the per-recipient part of JWE
type RecipientInfo struct {
	header       header.Header
	encryptedKey []byte
}

// Header returns a copy of the per-recipient unprotected header
func (r *RecipientInfo) Header() header.Header {
	return r.header.Clone()
}

// EncryptedKey returns the encrypted CEK, empty for direct modes
func (r *RecipientInfo) EncryptedKey() []byte {
	return bytes.Clone(r.encryptedKey)
}

// Ciphertext returns the ciphertext
func (j *JWE) Ciphertext() []byte {
	return bytes.Clone(j.ciphertext)
}

// IV returns the initialization vector
func (j *JWE) IV() []byte {
	return bytes.Clone(j.iv)
}

// Tag returns the authentication tag
func (j *JWE) Tag() []byte {
	return bytes.Clone(j.tag)
}

// AAD returns the additional authenticated data, nil if not present
func (j *JWE) AAD() []byte {
	return bytes.Clone(j.aad)
}

// SharedProtectedHeader returns a copy of the decoded protected header
func (j *JWE) SharedProtectedHeader() header.Header {
	return j.sharedProtected.Clone()
}

// EncodedSharedProtectedHeader returns the protected header as it appears on the wire
func (j *JWE) EncodedSharedProtectedHeader() string {
	return j.encodedSharedProtected
}

// SharedHeader returns a copy of the shared unprotected header
func (j *JWE) SharedHeader() header.Header {
	return j.sharedUnprotected.Clone()
}

// Recipients returns the recipients
func (j *JWE) Recipients() []*RecipientInfo {
	return slices.Clone(j.recipients)
}

// CountRecipients returns the number of recipients
func (j *JWE) CountRecipients() int {
	return len(j.recipients)
}

// Recipient returns the recipient by index
func (j *JWE) Recipient(i int) (*RecipientInfo, error) {
	if i < 0 || i >= len(j.recipients) {
		return nil, errors.Errorf("recipient index out of range: %d", i)
	}
	return j.recipients[i], nil
}

// Payload returns the decrypted payload, nil if JWE is not decrypted
func (j *JWE) Payload() []byte {
	return bytes.Clone(j.payload)
}

// WithPayload returns a copy of JWE with the payload
func (j *JWE) WithPayload(payload []byte) *JWE {
	c := *j
	c.payload = bytes.Clone(payload)
	return &c
}

// CompleteHeader returns the union of the shared headers and the recipient header
func (j *JWE) CompleteHeader(i int) (header.Header, error) {
	r, err := j.Recipient(i)
	if err != nil {
		return nil, err
	}
	return header.Merge(j.sharedProtected, j.sharedUnprotected, r.header)
}

// contentAAD returns ASCII(BASE64URL(protected) || '.' || BASE64URL(aad))
func (j *JWE) contentAAD() []byte {
	if j.aad == nil {
		return []byte(j.encodedSharedProtected)
	}
	return []byte(j.encodedSharedProtected + "." + b64url.Encode(j.aad))
}

// newJWE returns JWE parsed from the wire segments
func newJWE(encodedProtected string, unprotected header.Header, recipients []*RecipientInfo, iv, ciphertext, tag, aad []byte) (*JWE, error) {
	protected := header.Header{}
	if encodedProtected != "" {
		var err error
		if protected, err = header.Decode(encodedProtected); err != nil {
			return nil, err
		}
	}
	if len(recipients) == 0 {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "missing recipients")
	}
	for _, r := range recipients {
		if _, err := header.Merge(protected, unprotected, r.header); err != nil {
			return nil, errors.WithMessage(xjose.ErrInvalidFormat, err.Error())
		}
	}
	return &JWE{
		ciphertext:             ciphertext,
		iv:                     iv,
		tag:                    tag,
		aad:                    aad,
		sharedProtected:        protected,
		encodedSharedProtected: encodedProtected,
		sharedUnprotected:      unprotected.Clone(),
		recipients:             recipients,
	}, nil
}
