package config

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/xjose/checker"
	"github.com/effective-security/xjose/jwa"
	"github.com/effective-security/xjose/jwe"
	"github.com/effective-security/xjose/jwk"
	"github.com/effective-security/xjose/jws"
	"github.com/effective-security/xjose/nested"
	"github.com/effective-security/xlog"
	"github.com/jinzhu/copier"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xjose", "config")

// Factory provides keys, builders and loaders created from Config.
// All pipelines are created and validated by NewFactory,
// Factory is immutable and safe for concurrent use.
type Factory struct {
	keys    map[string]*jwk.JWK
	keySets map[string]*jwk.Set

	jwsBuilders    map[string]*jws.Builder
	jwsLoaders     map[string]*jws.Loader
	jweBuilders    map[string]*jwe.Builder
	jweLoaders     map[string]*jwe.Loader
	nestedBuilders map[string]*nested.Builder
	nestedLoaders  map[string]*nested.Loader
}

// Load returns Factory created from the configuration file
func Load(file string) (*Factory, error) {
	cfg, err := LoadConfig(file)
	if err != nil {
		return nil, err
	}
	return NewFactory(cfg)
}

// NewFactory resolves the keys and creates all configured pipelines
func NewFactory(cfg *Config) (*Factory, error) {
	f := &Factory{
		keys:           map[string]*jwk.JWK{},
		keySets:        map[string]*jwk.Set{},
		jwsBuilders:    map[string]*jws.Builder{},
		jwsLoaders:     map[string]*jws.Loader{},
		jweBuilders:    map[string]*jwe.Builder{},
		jweLoaders:     map[string]*jwe.Loader{},
		nestedBuilders: map[string]*nested.Builder{},
		nestedLoaders:  map[string]*nested.Loader{},
	}

	for _, name := range sortedNames(cfg.Keys) {
		raw, err := configloader.ResolveValue(cfg.Keys[name])
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to resolve key %q", name)
		}
		k, err := jwk.Parse([]byte(strings.TrimSpace(raw)))
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to parse key %q", name)
		}
		f.keys[name] = k
	}
	for _, name := range sortedNames(cfg.KeySets) {
		raw, err := configloader.ResolveValue(cfg.KeySets[name])
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to resolve key set %q", name)
		}
		s, err := jwk.ParseSet([]byte(strings.TrimSpace(raw)))
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to parse key set %q", name)
		}
		f.keySets[name] = s
	}

	if err := build(cfg, "jws.builders", cfg.JWS.Builders, f.jwsBuilders, newJWSBuilder); err != nil {
		return nil, err
	}
	if err := build(cfg, "jws.loaders", cfg.JWS.Loaders, f.jwsLoaders, newJWSLoader); err != nil {
		return nil, err
	}
	if err := build(cfg, "jwe.builders", cfg.JWE.Builders, f.jweBuilders, newJWEBuilder); err != nil {
		return nil, err
	}
	if err := build(cfg, "jwe.loaders", cfg.JWE.Loaders, f.jweLoaders, newJWELoader); err != nil {
		return nil, err
	}
	if err := build(cfg, "nested_token.builders", cfg.NestedToken.Builders, f.nestedBuilders, newNestedBuilder); err != nil {
		return nil, err
	}
	if err := build(cfg, "nested_token.loaders", cfg.NestedToken.Loaders, f.nestedLoaders, newNestedLoader); err != nil {
		return nil, err
	}
	return f, nil
}

// Key returns the key by name
func (f *Factory) Key(name string) (*jwk.JWK, error) {
	return lookup(f.keys, "key", name)
}

// KeySet returns the key set by name
func (f *Factory) KeySet(name string) (*jwk.Set, error) {
	return lookup(f.keySets, "key set", name)
}

// JWSBuilder returns the JWS builder by name
func (f *Factory) JWSBuilder(name string) (*jws.Builder, error) {
	return lookup(f.jwsBuilders, "JWS builder", name)
}

// JWSLoader returns the JWS loader by name
func (f *Factory) JWSLoader(name string) (*jws.Loader, error) {
	return lookup(f.jwsLoaders, "JWS loader", name)
}

// JWEBuilder returns the JWE builder by name
func (f *Factory) JWEBuilder(name string) (*jwe.Builder, error) {
	return lookup(f.jweBuilders, "JWE builder", name)
}

// JWELoader returns the JWE loader by name
func (f *Factory) JWELoader(name string) (*jwe.Loader, error) {
	return lookup(f.jweLoaders, "JWE loader", name)
}

// NestedBuilder returns the nested token builder by name
func (f *Factory) NestedBuilder(name string) (*nested.Builder, error) {
	return lookup(f.nestedBuilders, "nested token builder", name)
}

// NestedLoader returns the nested token loader by name
func (f *Factory) NestedLoader(name string) (*nested.Loader, error) {
	return lookup(f.nestedLoaders, "nested token loader", name)
}

func lookup[T any](m map[string]T, kind, name string) (T, error) {
	v, ok := m[name]
	if !ok {
		var empty T
		return empty, errors.Errorf("%s not found: %q", kind, name)
	}
	return v, nil
}

func sortedNames[T any](m map[string]T) []string {
	return slices.Sorted(maps.Keys(m))
}

type pipelineFactory[T any] func(path string, p *Pipeline) (T, error)

func build[T any](cfg *Config, prefix string, pipelines map[string]*Pipeline, res map[string]T, factory pipelineFactory[T]) error {
	for _, name := range sortedNames(pipelines) {
		path := prefix + "." + name
		p, err := merge(&cfg.Defaults, pipelines[name])
		if err != nil {
			return errors.WithMessagef(err, "unable to merge defaults at path %q", path)
		}
		v, err := factory(path, p)
		if err != nil {
			return err
		}
		res[name] = v
		logger.KV(xlog.DEBUG, "status", "created", "path", path)
	}
	return nil
}

// merge returns a copy of defaults overridden by the non-empty values of p
func merge(defaults, p *Pipeline) (*Pipeline, error) {
	merged := new(Pipeline)
	if err := copier.CopyWithOption(merged, defaults, copier.Option{DeepCopy: true}); err != nil {
		return nil, errors.WithStack(err)
	}
	if p != nil {
		if err := copier.CopyWithOption(merged, p, copier.Option{IgnoreEmpty: true, DeepCopy: true}); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return merged, nil
}

type node struct {
	name   string
	values []string
}

func required(path string, nodes ...node) error {
	for _, n := range nodes {
		if len(n.values) == 0 {
			return errors.Errorf("the child node %q at path %q must be configured", n.name, path)
		}
	}
	return nil
}

func atPath(err error, path string) error {
	return errors.WithMessagef(err, "invalid configuration at path %q", path)
}

func newJWSBuilder(path string, p *Pipeline) (*jws.Builder, error) {
	if err := required(path, node{"signature_algorithms", p.SignatureAlgorithms}); err != nil {
		return nil, err
	}
	algs, err := jwa.NewSignatureManager(p.SignatureAlgorithms...)
	if err != nil {
		return nil, atPath(err, path)
	}
	return jws.NewBuilder(algs), nil
}

func newJWSLoader(path string, p *Pipeline) (*jws.Loader, error) {
	err := required(path,
		node{"signature_algorithms", p.SignatureAlgorithms},
		node{"serializers", p.Serializers},
	)
	if err != nil {
		return nil, err
	}
	return jwsLoader(path, p.SignatureAlgorithms, p.Serializers, p.HeaderCheckers, p.ClockSkew)
}

func jwsLoader(path string, algorithms, serializers, checkers []string, clockSkew string) (*jws.Loader, error) {
	algs, err := jwa.NewSignatureManager(algorithms...)
	if err != nil {
		return nil, atPath(err, path)
	}
	sm, err := jws.NewSerializerManagerByName(serializers...)
	if err != nil {
		return nil, atPath(err, path)
	}
	hc, err := headerCheckers(checkers, algorithms, clockSkew)
	if err != nil {
		return nil, atPath(err, path)
	}
	return jws.NewLoader(sm, jws.NewVerifier(algs), hc)
}

func encryptionAlgorithms(path string, p *Pipeline) (*jwa.KeyManagementManager, *jwa.ContentEncryptionManager, *jwa.CompressionManager, error) {
	km, err := jwa.NewKeyManagementManager(p.KeyEncryptionAlgorithms...)
	if err != nil {
		return nil, nil, nil, atPath(err, path)
	}
	ce, err := jwa.NewContentEncryptionManager(p.ContentEncryptionAlgorithms...)
	if err != nil {
		return nil, nil, nil, atPath(err, path)
	}
	zip, err := jwa.NewCompressionManager(p.CompressionMethods...)
	if err != nil {
		return nil, nil, nil, atPath(err, path)
	}
	return km, ce, zip, nil
}

func newJWEBuilder(path string, p *Pipeline) (*jwe.Builder, error) {
	err := required(path,
		node{"key_encryption_algorithms", p.KeyEncryptionAlgorithms},
		node{"content_encryption_algorithms", p.ContentEncryptionAlgorithms},
	)
	if err != nil {
		return nil, err
	}
	km, ce, zip, err := encryptionAlgorithms(path, p)
	if err != nil {
		return nil, err
	}
	return jwe.NewBuilder(km, ce, zip), nil
}

func newJWELoader(path string, p *Pipeline) (*jwe.Loader, error) {
	err := required(path,
		node{"key_encryption_algorithms", p.KeyEncryptionAlgorithms},
		node{"content_encryption_algorithms", p.ContentEncryptionAlgorithms},
		node{"serializers", p.Serializers},
	)
	if err != nil {
		return nil, err
	}
	return jweLoader(path, p, p.Serializers, p.HeaderCheckers)
}

func jweLoader(path string, p *Pipeline, serializers, checkers []string) (*jwe.Loader, error) {
	km, ce, zip, err := encryptionAlgorithms(path, p)
	if err != nil {
		return nil, err
	}
	sm, err := jwe.NewSerializerManagerByName(serializers...)
	if err != nil {
		return nil, atPath(err, path)
	}
	hc, err := headerCheckers(checkers, p.KeyEncryptionAlgorithms, p.ClockSkew)
	if err != nil {
		return nil, atPath(err, path)
	}
	return jwe.NewLoader(sm, jwe.NewDecrypter(km, ce, zip), hc)
}

func nestedRequired(path string, p *Pipeline) error {
	return required(path,
		node{"signature_algorithms", p.SignatureAlgorithms},
		node{"key_encryption_algorithms", p.KeyEncryptionAlgorithms},
		node{"content_encryption_algorithms", p.ContentEncryptionAlgorithms},
		node{"jws_serializers", p.JWSSerializers},
		node{"jwe_serializers", p.JWESerializers},
	)
}

func newNestedBuilder(path string, p *Pipeline) (*nested.Builder, error) {
	if err := nestedRequired(path, p); err != nil {
		return nil, err
	}
	algs, err := jwa.NewSignatureManager(p.SignatureAlgorithms...)
	if err != nil {
		return nil, atPath(err, path)
	}
	km, ce, zip, err := encryptionAlgorithms(path, p)
	if err != nil {
		return nil, err
	}
	jwsSerializers, err := jws.NewSerializerManagerByName(p.JWSSerializers...)
	if err != nil {
		return nil, atPath(err, path)
	}
	jweSerializers, err := jwe.NewSerializerManagerByName(p.JWESerializers...)
	if err != nil {
		return nil, atPath(err, path)
	}
	b, err := nested.NewBuilder(jws.NewBuilder(algs), jwsSerializers, jwe.NewBuilder(km, ce, zip), jweSerializers)
	if err != nil {
		return nil, atPath(err, path)
	}
	return b, nil
}

func newNestedLoader(path string, p *Pipeline) (*nested.Loader, error) {
	if err := nestedRequired(path, p); err != nil {
		return nil, err
	}
	jl, err := jweLoader(path, p, p.JWESerializers, p.JWEHeaderCheckers)
	if err != nil {
		return nil, err
	}
	sl, err := jwsLoader(path, p.SignatureAlgorithms, p.JWSSerializers, p.JWSHeaderCheckers, p.ClockSkew)
	if err != nil {
		return nil, err
	}
	l, err := nested.NewLoader(jl, sl)
	if err != nil {
		return nil, atPath(err, path)
	}
	return l, nil
}

// headerCheckers returns the manager for the checker names:
// alg, crit, exp, nbf, iat, b64, cty:<value> and typ:<value>.
// The alg checker uses the algorithms of the pipeline and accepts alg
// from unprotected or per-recipient headers.
func headerCheckers(names, algorithms []string, clockSkew string) (*checker.HeaderCheckerManager, error) {
	var skew time.Duration
	if clockSkew != "" {
		var err error
		skew, err = time.ParseDuration(clockSkew)
		if err != nil {
			return nil, errors.WithMessagef(err, "invalid clock_skew: %q", clockSkew)
		}
	}

	var list []checker.HeaderChecker
	for _, name := range names {
		key, value, hasValue := strings.Cut(name, ":")
		switch {
		case key == "alg" && !hasValue:
			list = append(list, checker.NewAlgorithmChecker(algorithms, false))
		case key == "crit" && !hasValue:
			// always enforced by the manager
		case key == "exp" && !hasValue:
			list = append(list, checker.NewExpirationTimeChecker(checker.WithSkew(skew)))
		case key == "nbf" && !hasValue:
			list = append(list, checker.NewNotBeforeChecker(checker.WithSkew(skew)))
		case key == "iat" && !hasValue:
			list = append(list, checker.NewIssuedAtChecker(checker.WithSkew(skew)))
		case key == "b64" && !hasValue:
			list = append(list, checker.UnencodedPayloadChecker{})
		case (key == "cty" || key == "typ") && value != "":
			list = append(list, checker.NewIsEqualChecker(key, value, false))
		default:
			return nil, errors.Errorf("unsupported header checker: %q", name)
		}
	}
	return checker.NewHeaderCheckerManager(list...)
}
