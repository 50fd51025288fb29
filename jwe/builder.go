package jwe

import (
	"crypto/rand"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/jwa"
	"github.com/effective-security/xjose/jwk"
	"github.com/effective-security/xjose/metricskey"
)

// Recipient is the key and the per-recipient header used to encrypt CEK
type Recipient struct {
	Key    *jwk.JWK
	Header header.Header
}

type buildOptions struct {
	aad []byte
}

// BuildOption is an option for Build
type BuildOption func(*buildOptions)

// WithAAD adds the additional authenticated data
func WithAAD(aad []byte) BuildOption {
	return func(o *buildOptions) {
		o.aad = append([]byte{}, aad...)
	}
}

// Builder encrypts the payload for one or more recipients.
// It is immutable and safe for concurrent use.
type Builder struct {
	keyManagement *jwa.KeyManagementManager
	content       *jwa.ContentEncryptionManager
	compression   *jwa.CompressionManager
}

// NewBuilder returns Builder with the allowed algorithms,
// nil compression means no compression method is allowed
func NewBuilder(keyManagement *jwa.KeyManagementManager, content *jwa.ContentEncryptionManager, compression *jwa.CompressionManager) *Builder {
	if compression == nil {
		compression, _ = jwa.NewCompressionManager()
	}
	return &Builder{
		keyManagement: keyManagement,
		content:       content,
		compression:   compression,
	}
}

// KeyManagementAlgorithms returns the allow-list
func (b *Builder) KeyManagementAlgorithms() *jwa.KeyManagementManager {
	return b.keyManagement
}

// ContentEncryptionAlgorithms returns the allow-list
func (b *Builder) ContentEncryptionAlgorithms() *jwa.ContentEncryptionManager {
	return b.content
}

// CompressionMethods returns the allow-list
func (b *Builder) CompressionMethods() *jwa.CompressionManager {
	return b.compression
}

type preparedRecipient struct {
	key      *jwk.JWK
	alg      jwa.KeyManagementAlgorithm
	header   header.Header
	complete header.Header
}

// Build returns JWE with the payload encrypted for the recipients.
// The enc must be in the shared headers, and zip in the protected header.
// With a single recipient, the parameters produced by the key management
// algorithm (epk, iv, tag, p2s, p2c) are added to the protected header,
// otherwise to the recipient header.
func (b *Builder) Build(payload []byte, protected, unprotected header.Header, recipients []Recipient, opts ...BuildOption) (*JWE, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	if len(recipients) == 0 {
		return nil, errors.New("at least one recipient is required")
	}

	for i, r := range recipients {
		if r.Header.Has(header.Encryption) {
			return nil, errors.WithMessagef(xjose.ErrHeaderValidation, "recipient %d: enc must be in the shared header", i)
		}
		if r.Header.Has(header.Compression) {
			return nil, errors.WithMessagef(xjose.ErrHeaderValidation, "recipient %d: zip must be in the protected header", i)
		}
	}

	shared, err := header.Merge(protected, unprotected)
	if err != nil {
		return nil, err
	}
	enc := shared.Encryption()
	if enc == "" {
		return nil, errors.WithMessage(xjose.ErrMissingAlgorithm, `"enc" header is required`)
	}
	content, err := b.content.Get(enc)
	if err != nil {
		return nil, err
	}
	zip, err := b.compressionMethod(protected, unprotected)
	if err != nil {
		return nil, err
	}

	list, modes, err := b.prepare(shared, recipients)
	if err != nil {
		return nil, err
	}
	if !jwa.ModesCompatible(modes...) {
		return nil, errors.Errorf("key management modes can not be combined: %v", modes)
	}

	protected = protected.Clone()
	infos := make([]*RecipientInfo, 0, len(list))
	var cek []byte
	if dk, ok := list[0].alg.(jwa.DirectKey); ok {
		// the only recipient determines CEK
		r := list[0]
		var extra header.Header
		if cek, extra, err = dk.CEK(r.key, r.complete, content.CEKSize()); err != nil {
			return nil, errors.WithMessage(err, "recipient 0")
		}
		if err = addParams(protected, r.complete, extra, dk.Name()); err != nil {
			return nil, err
		}
		infos = append(infos, &RecipientInfo{header: r.header})
	} else {
		if cek, err = randomBytes(content.CEKSize()); err != nil {
			return nil, err
		}
		for i, r := range list {
			ke := r.alg.(jwa.KeyEncryption)
			ek, extra, err := ke.EncryptKey(r.key, cek, r.complete)
			if err != nil {
				return nil, errors.WithMessagef(err, "recipient %d", i)
			}
			target := r.header
			if len(list) == 1 {
				target = protected
			}
			if err = addParams(target, r.complete, extra, ke.Name()); err != nil {
				return nil, err
			}
			infos = append(infos, &RecipientInfo{header: r.header, encryptedKey: ek})
		}
	}

	encoded, err := protected.Encode()
	if err != nil {
		return nil, err
	}

	plaintext := payload
	if zip != nil {
		if plaintext, err = zip.Compress(payload); err != nil {
			return nil, err
		}
	}

	j := &JWE{
		aad:                    o.aad,
		sharedProtected:        protected,
		encodedSharedProtected: encoded,
		sharedUnprotected:      unprotected.Clone(),
		recipients:             infos,
		payload:                append([]byte{}, payload...),
	}
	if j.iv, err = randomBytes(content.IVSize()); err != nil {
		return nil, err
	}
	if j.ciphertext, j.tag, err = encrypt(content, cek, plaintext, j.iv, j.contentAAD()); err != nil {
		return nil, err
	}
	return j, nil
}

func (b *Builder) prepare(shared header.Header, recipients []Recipient) ([]preparedRecipient, []jwa.Mode, error) {
	list := make([]preparedRecipient, 0, len(recipients))
	modes := make([]jwa.Mode, 0, len(recipients))
	for i, r := range recipients {
		hdr := r.Header.Clone()
		complete, err := header.Merge(shared, hdr)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "recipient %d", i)
		}
		name := complete.Algorithm()
		if name == "" {
			return nil, nil, errors.WithMessagef(xjose.ErrMissingAlgorithm, `recipient %d: "alg" header is required`, i)
		}
		alg, err := b.keyManagement.Get(name)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "recipient %d", i)
		}
		if err = checkKeyManagement(alg); err != nil {
			return nil, nil, err
		}
		if err = jwa.CheckKey(alg, r.Key, "enc"); err != nil {
			return nil, nil, errors.WithMessagef(err, "recipient %d", i)
		}
		list = append(list, preparedRecipient{
			key:      r.Key,
			alg:      alg,
			header:   hdr,
			complete: complete,
		})
		modes = append(modes, alg.Mode())
	}
	return list, modes, nil
}

func (b *Builder) compressionMethod(protected, unprotected header.Header) (jwa.CompressionMethod, error) {
	if unprotected.Has(header.Compression) {
		return nil, errors.WithMessage(xjose.ErrHeaderValidation, "zip must be in the protected header")
	}
	name := protected.Compression()
	if name == "" {
		return nil, nil
	}
	return b.compression.Get(name)
}

// checkKeyManagement returns error if the algorithm neither derives nor encrypts CEK
func checkKeyManagement(alg jwa.KeyManagementAlgorithm) error {
	switch alg.(type) {
	case jwa.DirectKey, jwa.KeyEncryption:
		return nil
	}
	return errors.WithMessagef(xjose.ErrUnsupportedAlgorithm, "%s does not provide CEK", alg.Name())
}

// addParams adds the parameters produced by the key management algorithm.
// The p2s and p2c provided by the caller are used as is.
func addParams(target, complete, extra header.Header, alg string) error {
	for k, v := range extra {
		if complete.Has(k) {
			if k == header.PBES2Salt || k == header.PBES2Count {
				continue
			}
			return errors.WithMessagef(xjose.ErrHeaderValidation, "%q header parameter is set by %s", k, alg)
		}
		target[k] = v
	}
	return nil
}

func encrypt(content jwa.ContentEncryptionAlgorithm, cek, plaintext, iv, aad []byte) ([]byte, []byte, error) {
	defer metricskey.PerfJWEOperation.MeasureSince(time.Now(), "encrypt", content.Name())
	return content.Encrypt(cek, plaintext, iv, aad)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}
