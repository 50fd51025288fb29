package cli

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose/checker"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/jwa"
	"github.com/effective-security/xjose/jwe"
	"github.com/effective-security/xjose/jwk"
)

// JWECmd is the parent for JWE commands
type JWECmd struct {
	Encrypt JWEEncryptCmd `cmd:"" help:"encrypt payload"`
	Decrypt JWEDecryptCmd `cmd:"" help:"decrypt JWE and print the payload"`
}

// JWEEncryptCmd specifies flags for encrypt command
type JWEEncryptCmd struct {
	Key     string `required:"" help:"recipient public or symmetric JWK file"`
	Alg     string `required:"" help:"key management algorithm"`
	Enc     string `required:"" help:"content encryption algorithm"`
	Zip     string `help:"compression method"`
	In      string `required:"" help:"payload file, or - for stdin"`
	Cty     string `help:"cty header"`
	Format  string `default:"jwe_compact" enum:"jwe_compact,jwe_json_flattened,jwe_json_general" help:"serialization format"`
	Builder string `help:"builder name in --cfg, the algorithms must be allowed by the builder"`
}

// Run the command
func (a *JWEEncryptCmd) Run(ctx *Cli) error {
	b, err := a.builder(ctx)
	if err != nil {
		return err
	}
	key, err := ctx.ReadKey(a.Key)
	if err != nil {
		return err
	}
	if key.IsPrivate() && key.KeyType() != jwk.KeyTypeOct {
		if key, err = key.Public(); err != nil {
			return err
		}
	}
	payload, err := ctx.ReadFile(a.In)
	if err != nil {
		return errors.WithMessage(err, "unable to load payload")
	}

	protected := header.Header{header.Algorithm: a.Alg, header.Encryption: a.Enc}
	if a.Zip != "" {
		protected[header.Compression] = a.Zip
	}
	if a.Cty != "" {
		protected[header.ContentType] = a.Cty
	}
	if kid := key.KeyID(); kid != "" {
		protected[header.KeyID] = kid
	}

	j, err := b.Build(payload, protected, nil, []jwe.Recipient{{Key: key}})
	if err != nil {
		return err
	}
	s, err := jwe.NewSerializer(a.Format)
	if err != nil {
		return err
	}
	token, err := s.Serialize(j, 0)
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Writer(), token)
	return nil
}

func (a *JWEEncryptCmd) builder(ctx *Cli) (*jwe.Builder, error) {
	if a.Builder != "" {
		f, err := ctx.Factory()
		if err != nil {
			return nil, err
		}
		return f.JWEBuilder(a.Builder)
	}
	km, err := jwa.NewKeyManagementManager(a.Alg)
	if err != nil {
		return nil, err
	}
	ce, err := jwa.NewContentEncryptionManager(a.Enc)
	if err != nil {
		return nil, err
	}
	var zips []string
	if a.Zip != "" {
		zips = append(zips, a.Zip)
	}
	zip, err := jwa.NewCompressionManager(zips...)
	if err != nil {
		return nil, err
	}
	return jwe.NewBuilder(km, ce, zip), nil
}

// JWEDecryptCmd specifies flags for decrypt command
type JWEDecryptCmd struct {
	Keys        string   `required:"" help:"JWK or JWK Set file with decryption keys"`
	In          string   `required:"" help:"JWE file, or - for stdin"`
	Alg         []string `help:"allowed key management algorithms"`
	Enc         []string `help:"allowed content encryption algorithms"`
	Zip         []string `help:"allowed compression methods"`
	Serializers []string `default:"jwe_compact,jwe_json_flattened,jwe_json_general" help:"allowed serialization formats"`
	Loader      string   `help:"loader name in --cfg, instead of --alg, --enc, --zip and --serializers"`
}

// Run the command
func (a *JWEDecryptCmd) Run(ctx *Cli) error {
	l, err := a.loader(ctx)
	if err != nil {
		return err
	}
	set, err := ctx.ReadKeySet(a.Keys)
	if err != nil {
		return err
	}
	token, err := ctx.readToken(a.In)
	if err != nil {
		return err
	}
	j, _, err := l.LoadAndDecryptWithKeySet(token, set)
	if err != nil {
		return err
	}
	_, err = ctx.Writer().Write(j.Payload())
	return errors.WithStack(err)
}

func (a *JWEDecryptCmd) loader(ctx *Cli) (*jwe.Loader, error) {
	if a.Loader != "" {
		f, err := ctx.Factory()
		if err != nil {
			return nil, err
		}
		return f.JWELoader(a.Loader)
	}
	if len(a.Alg) == 0 || len(a.Enc) == 0 {
		return nil, errors.New("either --alg and --enc, or --loader is required")
	}
	km, err := jwa.NewKeyManagementManager(a.Alg...)
	if err != nil {
		return nil, err
	}
	ce, err := jwa.NewContentEncryptionManager(a.Enc...)
	if err != nil {
		return nil, err
	}
	zip, err := jwa.NewCompressionManager(a.Zip...)
	if err != nil {
		return nil, err
	}
	serializers, err := jwe.NewSerializerManagerByName(a.Serializers...)
	if err != nil {
		return nil, err
	}
	hc, err := checker.NewHeaderCheckerManager(checker.NewAlgorithmChecker(a.Alg, false))
	if err != nil {
		return nil, err
	}
	return jwe.NewLoader(serializers, jwe.NewDecrypter(km, ce, zip), hc)
}
