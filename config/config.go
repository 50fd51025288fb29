// Package config loads JOSE pipelines from YAML or JSON configuration.
//
// Every pipeline names its algorithms and serializers explicitly,
// nothing is enabled implicitly.
package config

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config of JOSE pipelines
type Config struct {
	// Defaults are merged into every builder and loader,
	// values set in a pipeline take precedence
	Defaults Pipeline `json:"defaults" yaml:"defaults"`
	// Keys specifies JWK by name, the value can be inline JSON,
	// or a reference with file:// or env:// schema
	Keys map[string]string `json:"keys" yaml:"keys"`
	// KeySets specifies JWK Set by name, the value can be inline JSON,
	// or a reference with file:// or env:// schema
	KeySets map[string]string `json:"key_sets" yaml:"key_sets"`

	JWS         Pipelines `json:"jws" yaml:"jws"`
	JWE         Pipelines `json:"jwe" yaml:"jwe"`
	NestedToken Pipelines `json:"nested_token" yaml:"nested_token"`
}

// Pipelines specifies named builders and loaders
type Pipelines struct {
	Builders map[string]*Pipeline `json:"builders" yaml:"builders"`
	Loaders  map[string]*Pipeline `json:"loaders" yaml:"loaders"`
}

// Pipeline specifies the allow-lists of a builder or loader.
// The fields that do not apply to the pipeline kind are ignored.
type Pipeline struct {
	SignatureAlgorithms         []string `json:"signature_algorithms,omitempty" yaml:"signature_algorithms,omitempty"`
	KeyEncryptionAlgorithms     []string `json:"key_encryption_algorithms,omitempty" yaml:"key_encryption_algorithms,omitempty"`
	ContentEncryptionAlgorithms []string `json:"content_encryption_algorithms,omitempty" yaml:"content_encryption_algorithms,omitempty"`
	CompressionMethods          []string `json:"compression_methods,omitempty" yaml:"compression_methods,omitempty"`

	// Serializers of JWS or JWE loader
	Serializers []string `json:"serializers,omitempty" yaml:"serializers,omitempty"`
	// HeaderCheckers of JWS or JWE loader
	HeaderCheckers []string `json:"header_checkers,omitempty" yaml:"header_checkers,omitempty"`

	JWSSerializers    []string `json:"jws_serializers,omitempty" yaml:"jws_serializers,omitempty"`
	JWESerializers    []string `json:"jwe_serializers,omitempty" yaml:"jwe_serializers,omitempty"`
	JWSHeaderCheckers []string `json:"jws_header_checkers,omitempty" yaml:"jws_header_checkers,omitempty"`
	JWEHeaderCheckers []string `json:"jwe_header_checkers,omitempty" yaml:"jwe_header_checkers,omitempty"`

	// ClockSkew is the leeway of exp, nbf and iat checkers, like 60s
	ClockSkew string `json:"clock_skew,omitempty" yaml:"clock_skew,omitempty"`
}

// LoadConfig returns configuration loaded from a file,
// the format is JSON if the file has .json suffix, and YAML otherwise
func LoadConfig(file string) (*Config, error) {
	if file == "" {
		return &Config{}, nil
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var config Config
	if strings.HasSuffix(file, ".json") {
		err = json.Unmarshal(raw, &config)
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to unmarshal JSON: %q", file)
		}
	} else {
		err = yaml.Unmarshal(raw, &config)
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to unmarshal YAML: %q", file)
		}
	}
	return &config, nil
}
