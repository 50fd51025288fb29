package cli

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose/checker"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/jwa"
	"github.com/effective-security/xjose/jws"
)

// JWSCmd is the parent for JWS commands
type JWSCmd struct {
	Sign   JWSSignCmd   `cmd:"" help:"sign payload"`
	Verify JWSVerifyCmd `cmd:"" help:"verify JWS and print the payload"`
}

// JWSSignCmd specifies flags for sign command
type JWSSignCmd struct {
	Key      string `required:"" help:"private or symmetric JWK file"`
	Alg      string `required:"" help:"signature algorithm"`
	In       string `required:"" help:"payload file, or - for stdin"`
	Typ      string `help:"typ header"`
	Format   string `default:"jws_compact" enum:"jws_compact,jws_json_flattened,jws_json_general" help:"serialization format"`
	Detached bool   `help:"produce JWS with detached payload"`
	Builder  string `help:"builder name in --cfg, the signature algorithm must be allowed by the builder"`
}

// Run the command
func (a *JWSSignCmd) Run(ctx *Cli) error {
	b, err := a.builder(ctx)
	if err != nil {
		return err
	}
	key, err := ctx.ReadKey(a.Key)
	if err != nil {
		return err
	}
	payload, err := ctx.ReadFile(a.In)
	if err != nil {
		return errors.WithMessage(err, "unable to load payload")
	}

	protected := header.Header{header.Algorithm: a.Alg}
	if kid := key.KeyID(); kid != "" {
		protected[header.KeyID] = kid
	}
	if a.Typ != "" {
		protected[header.Type] = a.Typ
	}

	var opts []jws.BuildOption
	if a.Detached {
		opts = append(opts, jws.WithDetachedPayload())
	}
	j, err := b.Build(payload, []jws.Signer{{Key: key, Protected: protected}}, opts...)
	if err != nil {
		return err
	}
	s, err := jws.NewSerializer(a.Format)
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

func (a *JWSSignCmd) builder(ctx *Cli) (*jws.Builder, error) {
	if a.Builder != "" {
		f, err := ctx.Factory()
		if err != nil {
			return nil, err
		}
		return f.JWSBuilder(a.Builder)
	}
	algs, err := jwa.NewSignatureManager(a.Alg)
	if err != nil {
		return nil, err
	}
	return jws.NewBuilder(algs), nil
}

// JWSVerifyCmd specifies flags for verify command
type JWSVerifyCmd struct {
	Keys        string   `required:"" help:"JWK or JWK Set file with verification keys"`
	In          string   `required:"" help:"JWS file, or - for stdin"`
	Alg         []string `help:"allowed signature algorithms"`
	Serializers []string `default:"jws_compact,jws_json_flattened,jws_json_general" help:"allowed serialization formats"`
	Detached    string   `help:"detached payload file"`
	Loader      string   `help:"loader name in --cfg, instead of --alg and --serializers"`
}

// Run the command
func (a *JWSVerifyCmd) Run(ctx *Cli) error {
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
	var detached []byte
	if a.Detached != "" {
		detached, err = ctx.ReadFile(a.Detached)
		if err != nil {
			return errors.WithMessage(err, "unable to load detached payload")
		}
	}

	j, _, err := l.LoadAndVerifyWithKeySet(token, set, detached)
	if err != nil {
		return err
	}
	if detached == nil {
		_, err = ctx.Writer().Write(j.Payload())
	}
	return errors.WithStack(err)
}

func (a *JWSVerifyCmd) loader(ctx *Cli) (*jws.Loader, error) {
	if a.Loader != "" {
		f, err := ctx.Factory()
		if err != nil {
			return nil, err
		}
		return f.JWSLoader(a.Loader)
	}
	if len(a.Alg) == 0 {
		return nil, errors.New("either --alg or --loader is required")
	}
	algs, err := jwa.NewSignatureManager(a.Alg...)
	if err != nil {
		return nil, err
	}
	serializers, err := jws.NewSerializerManagerByName(a.Serializers...)
	if err != nil {
		return nil, err
	}
	hc, err := checker.NewHeaderCheckerManager(checker.NewAlgorithmChecker(a.Alg, false))
	if err != nil {
		return nil, err
	}
	return jws.NewLoader(serializers, jws.NewVerifier(algs), hc)
}
