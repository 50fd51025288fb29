package jwe

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/jwa"
	"github.com/effective-security/xjose/jwk"
	"github.com/effective-security/xjose/metricskey"
	"github.com/effective-security/xlog"
)

// Decrypter decrypts JWE with the allowed algorithms.
// It is immutable and safe for concurrent use.
//
// Once the algorithms are resolved from the headers,
// all the failures are reported as ErrDecryptionFailure,
// the reason is not disclosed.
type Decrypter struct {
	keyManagement *jwa.KeyManagementManager
	content       *jwa.ContentEncryptionManager
	compression   *jwa.CompressionManager
}

// NewDecrypter returns Decrypter with the allowed algorithms,
// nil compression means no compression method is allowed
func NewDecrypter(keyManagement *jwa.KeyManagementManager, content *jwa.ContentEncryptionManager, compression *jwa.CompressionManager) *Decrypter {
	if compression == nil {
		compression, _ = jwa.NewCompressionManager()
	}
	return &Decrypter{
		keyManagement: keyManagement,
		content:       content,
		compression:   compression,
	}
}

// KeyManagementAlgorithms returns the allow-list
func (d *Decrypter) KeyManagementAlgorithms() *jwa.KeyManagementManager {
	return d.keyManagement
}

// ContentEncryptionAlgorithms returns the allow-list
func (d *Decrypter) ContentEncryptionAlgorithms() *jwa.ContentEncryptionManager {
	return d.content
}

// CompressionMethods returns the allow-list
func (d *Decrypter) CompressionMethods() *jwa.CompressionManager {
	return d.compression
}

// DecryptUsingKey returns a copy of JWE with the payload
// decrypted with the key for the recipient by index
func (d *Decrypter) DecryptUsingKey(j *JWE, key *jwk.JWK, recipientIndex int) (*JWE, error) {
	if _, err := j.Recipient(recipientIndex); err != nil {
		return nil, err
	}
	res, _, err := d.decrypt(j, []*jwk.JWK{key}, []int{recipientIndex}, nil)
	return res, err
}

// DecryptUsingKeySet returns a copy of JWE with the decrypted payload,
// and the index of the recipient.
// Each key of the set is tried with each recipient, in order.
func (d *Decrypter) DecryptUsingKeySet(j *JWE, set *jwk.Set) (*JWE, int, error) {
	return d.decrypt(j, setKeys(set), allRecipients(j), nil)
}

type decryptionParams struct {
	alg      jwa.KeyManagementAlgorithm
	complete header.Header
	info     *RecipientInfo
}

func (d *Decrypter) decrypt(j *JWE, keys []*jwk.JWK, indexes []int, excluded map[int]bool) (*JWE, int, error) {
	content, zip, err := d.contentParams(j)
	if err != nil {
		return nil, -1, err
	}

	var firstErr error
	params := make(map[int]*decryptionParams, len(indexes))
	for _, i := range indexes {
		if excluded[i] {
			continue
		}
		p, err := d.recipientParams(j, i)
		if err != nil {
			logger.KV(xlog.DEBUG, "reason", "skip_recipient", "index", i, "err", err.Error())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		params[i] = p
	}
	if len(params) == 0 {
		if firstErr == nil {
			firstErr = xjose.ErrDecryptionFailure
		}
		return nil, -1, firstErr
	}

	aad := j.contentAAD()
	for _, key := range keys {
		if key == nil {
			continue
		}
		for _, i := range indexes {
			p := params[i]
			if p == nil || !usable(key, p) {
				continue
			}
			payload, err := d.decryptContent(j, key, p, content, zip, aad)
			if err == nil {
				return j.WithPayload(payload), i, nil
			}
			logger.KV(xlog.DEBUG, "reason", "decrypt", "index", i, "kid", key.KeyID(), "alg", p.alg.Name())
		}
	}
	return nil, -1, xjose.ErrDecryptionFailure
}

// contentParams returns the content encryption and compression algorithms
func (d *Decrypter) contentParams(j *JWE) (jwa.ContentEncryptionAlgorithm, jwa.CompressionMethod, error) {
	shared, err := header.Merge(j.sharedProtected, j.sharedUnprotected)
	if err != nil {
		return nil, nil, err
	}
	enc := shared.Encryption()
	if enc == "" {
		return nil, nil, errors.WithMessage(xjose.ErrMissingAlgorithm, `"enc" header is required`)
	}
	content, err := d.content.Get(enc)
	if err != nil {
		return nil, nil, err
	}

	if j.sharedUnprotected.Has(header.Compression) {
		return nil, nil, errors.WithMessage(xjose.ErrHeaderValidation, "zip must be in the protected header")
	}
	name := j.sharedProtected.Compression()
	if name == "" {
		return content, nil, nil
	}
	zip, err := d.compression.Get(name)
	if err != nil {
		return nil, nil, err
	}
	return content, zip, nil
}

func (d *Decrypter) recipientParams(j *JWE, i int) (*decryptionParams, error) {
	complete, err := j.CompleteHeader(i)
	if err != nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, err.Error())
	}
	r := j.recipients[i]
	if r.header.Has(header.Encryption) || r.header.Has(header.Compression) {
		return nil, errors.WithMessage(xjose.ErrHeaderValidation, "enc and zip must be in the shared header")
	}
	name := complete.Algorithm()
	if name == "" {
		return nil, errors.WithMessage(xjose.ErrMissingAlgorithm, `"alg" header is required`)
	}
	alg, err := d.keyManagement.Get(name)
	if err != nil {
		return nil, err
	}
	if err = checkKeyManagement(alg); err != nil {
		return nil, err
	}
	return &decryptionParams{alg: alg, complete: complete, info: r}, nil
}

// usable returns false if the key can not be used with the recipient
func usable(key *jwk.JWK, p *decryptionParams) bool {
	if !jwk.Compatible(key, "enc", p.alg) {
		return false
	}
	kid := p.complete.KeyID()
	return kid == "" || key.KeyID() == "" || kid == key.KeyID()
}

// decryptContent recovers CEK and decrypts the content.
// If CEK can not be recovered, a random CEK is used,
// so the failure is detected only by the content decryption.
func (d *Decrypter) decryptContent(j *JWE, key *jwk.JWK, p *decryptionParams, content jwa.ContentEncryptionAlgorithm, zip jwa.CompressionMethod, aad []byte) ([]byte, error) {
	defer metricskey.PerfJWEOperation.MeasureSince(time.Now(), "decrypt", p.alg.Name())

	cek, cekErr := recoverCEK(key, p, content.CEKSize())
	if cekErr != nil || len(cek) != content.CEKSize() {
		var err error
		if cek, err = randomBytes(content.CEKSize()); err != nil {
			return nil, err
		}
	}
	plaintext, err := content.Decrypt(cek, j.ciphertext, j.iv, aad, j.tag)
	if cekErr != nil {
		return nil, cekErr
	}
	if err != nil {
		return nil, err
	}
	if zip != nil {
		return zip.Uncompress(plaintext)
	}
	return plaintext, nil
}

func recoverCEK(key *jwk.JWK, p *decryptionParams, size int) ([]byte, error) {
	switch alg := p.alg.(type) {
	case jwa.DirectKey:
		if len(p.info.encryptedKey) != 0 {
			return nil, errors.WithMessagef(xjose.ErrUnwrap, "%s requires empty encrypted key", alg.Name())
		}
		return alg.RecoverCEK(key, p.complete, size)
	case jwa.KeyEncryption:
		if len(p.info.encryptedKey) == 0 {
			return nil, errors.WithMessagef(xjose.ErrUnwrap, "%s requires encrypted key", alg.Name())
		}
		return alg.DecryptKey(key, p.info.encryptedKey, p.complete)
	}
	return nil, errors.WithMessagef(xjose.ErrUnsupportedAlgorithm, "%s does not provide CEK", p.alg.Name())
}

func setKeys(set *jwk.Set) []*jwk.JWK {
	if set == nil {
		return nil
	}
	return set.Keys()
}

func allRecipients(j *JWE) []int {
	indexes := make([]int, len(j.recipients))
	for i := range indexes {
		indexes[i] = i
	}
	return indexes
}
