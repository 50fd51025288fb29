// Package nested creates and loads nested tokens:
// a compact JWS used as the plaintext of JWE.
package nested

import (
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/jwe"
	"github.com/effective-security/xjose/jwk"
	"github.com/effective-security/xjose/jws"
	"github.com/effective-security/xjose/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xjose", "nested")

// DefaultContentType is the cty of JWE with nested JWT
const DefaultContentType = "JWT"

// Option is an option for Builder
type Option func(*Builder)

// WithContentType sets the cty added to the JWE protected header
func WithContentType(cty string) Option {
	return func(b *Builder) {
		b.contentType = cty
	}
}

// Builder signs the payload and encrypts the compact JWS.
// It is immutable and safe for concurrent use.
type Builder struct {
	jwsBuilder     *jws.Builder
	jwsSerializers *jws.SerializerManager
	jweBuilder     *jwe.Builder
	jweSerializers *jwe.SerializerManager
	contentType    string
}

// NewBuilder returns Builder, the JWS serializers must allow jws_compact
func NewBuilder(jwsBuilder *jws.Builder, jwsSerializers *jws.SerializerManager, jweBuilder *jwe.Builder, jweSerializers *jwe.SerializerManager, opts ...Option) (*Builder, error) {
	if jwsBuilder == nil || jwsSerializers == nil || jweBuilder == nil || jweSerializers == nil {
		return nil, errors.New("JWS and JWE builders and serializers are required")
	}
	if !slices.Contains(jwsSerializers.Names(), jws.CompactSerializer) {
		return nil, errors.Errorf("nested token requires %q serializer", jws.CompactSerializer)
	}
	b := &Builder{
		jwsBuilder:     jwsBuilder,
		jwsSerializers: jwsSerializers,
		jweBuilder:     jweBuilder,
		jweSerializers: jweSerializers,
		contentType:    DefaultContentType,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Create returns JWE in jweFormat with the payload signed by the signers.
// The cty header is added to the JWE protected header unless present.
// The aad is optional, and is not supported by jwe_compact.
func (b *Builder) Create(
	payload []byte,
	signers []jws.Signer,
	jwsFormat string,
	jweProtected, jweUnprotected header.Header,
	recipients []jwe.Recipient,
	jweFormat string,
	aad []byte,
) (string, error) {
	defer metricskey.PerfNestedOperation.MeasureSince(time.Now(), "create")

	if jwsFormat != jws.CompactSerializer {
		return "", errors.Errorf("nested token requires %q serializer, got %q", jws.CompactSerializer, jwsFormat)
	}
	signed, err := b.jwsBuilder.Build(payload, signers)
	if err != nil {
		return "", errors.WithMessage(err, "unable to sign")
	}
	token, err := b.jwsSerializers.Serialize(jwsFormat, signed, 0)
	if err != nil {
		return "", err
	}

	protected := jweProtected.Clone()
	if !protected.Has(header.ContentType) && !jweUnprotected.Has(header.ContentType) {
		protected[header.ContentType] = b.contentType
	}
	var opts []jwe.BuildOption
	if aad != nil {
		opts = append(opts, jwe.WithAAD(aad))
	}
	encrypted, err := b.jweBuilder.Build([]byte(token), protected, jweUnprotected, recipients, opts...)
	if err != nil {
		return "", errors.WithMessage(err, "unable to encrypt")
	}
	return b.jweSerializers.Serialize(jweFormat, encrypted, 0)
}

// Loader decrypts nested token, and verifies the compact JWS.
// It is immutable and safe for concurrent use.
type Loader struct {
	jweLoader *jwe.Loader
	jwsLoader *jws.Loader
}

// NewLoader returns Loader, the JWS loader must allow jws_compact
func NewLoader(jweLoader *jwe.Loader, jwsLoader *jws.Loader) (*Loader, error) {
	if jweLoader == nil || jwsLoader == nil {
		return nil, errors.New("JWE and JWS loaders are required")
	}
	if !slices.Contains(jwsLoader.Serializers().Names(), jws.CompactSerializer) {
		return nil, errors.Errorf("nested token requires %q serializer", jws.CompactSerializer)
	}
	return &Loader{
		jweLoader: jweLoader,
		jwsLoader: jwsLoader,
	}, nil
}

// Load returns the verified JWS and the index of the verified signature
func (l *Loader) Load(token string, encryptionKeys, signatureKeys *jwk.Set) (*jws.JWS, int, error) {
	defer metricskey.PerfNestedOperation.MeasureSince(time.Now(), "load")

	decrypted, _, err := l.jweLoader.LoadAndDecryptWithKeySet(token, encryptionKeys)
	if err != nil {
		return nil, -1, err
	}
	signed, err := jws.Compact{}.Unserialize(string(decrypted.Payload()))
	if err != nil {
		logger.KV(xlog.DEBUG, "reason", "nested_jws", "err", err.Error())
		return nil, -1, err
	}
	if signed.IsDetached() {
		return nil, -1, errors.WithMessage(xjose.ErrInvalidFormat, "nested JWS must not be detached")
	}
	return l.jwsLoader.LoadAndVerifyWithKeySet(string(decrypted.Payload()), signatureKeys, nil)
}
