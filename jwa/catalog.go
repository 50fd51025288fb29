package jwa

import (
	"crypto"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
)

// Signature algorithm names
const (
	HS256 = "HS256"
	HS384 = "HS384"
	HS512 = "HS512"
	RS256 = "RS256"
	RS384 = "RS384"
	RS512 = "RS512"
	PS256 = "PS256"
	PS384 = "PS384"
	PS512 = "PS512"
	ES256 = "ES256"
	ES384 = "ES384"
	ES512 = "ES512"
	EdDSA = "EdDSA"
	None  = "none"
)

// Key management algorithm names
const (
	RSA1_5             = "RSA1_5"
	RSA_OAEP           = "RSA-OAEP"
	RSA_OAEP_256       = "RSA-OAEP-256"
	RSA_OAEP_384       = "RSA-OAEP-384"
	RSA_OAEP_512       = "RSA-OAEP-512"
	A128KW             = "A128KW"
	A192KW             = "A192KW"
	A256KW             = "A256KW"
	A128GCMKW          = "A128GCMKW"
	A192GCMKW          = "A192GCMKW"
	A256GCMKW          = "A256GCMKW"
	PBES2_HS256_A128KW = "PBES2-HS256+A128KW"
	PBES2_HS384_A192KW = "PBES2-HS384+A192KW"
	PBES2_HS512_A256KW = "PBES2-HS512+A256KW"
	Direct             = "dir"
	ECDH_ES            = "ECDH-ES"
	ECDH_ES_A128KW     = "ECDH-ES+A128KW"
	ECDH_ES_A192KW     = "ECDH-ES+A192KW"
	ECDH_ES_A256KW     = "ECDH-ES+A256KW"
)

// Content encryption algorithm names
const (
	A128GCM       = "A128GCM"
	A192GCM       = "A192GCM"
	A256GCM       = "A256GCM"
	A128CBC_HS256 = "A128CBC-HS256"
	A192CBC_HS384 = "A192CBC-HS384"
	A256CBC_HS512 = "A256CBC-HS512"
)

// Compression method names
const (
	Deflate = "DEF"
)

var signatureFactory = map[string]func() SignatureAlgorithm{
	HS256: func() SignatureAlgorithm { return &hmacAlg{name: HS256, hash: crypto.SHA256} },
	HS384: func() SignatureAlgorithm { return &hmacAlg{name: HS384, hash: crypto.SHA384} },
	HS512: func() SignatureAlgorithm { return &hmacAlg{name: HS512, hash: crypto.SHA512} },
	RS256: func() SignatureAlgorithm { return &rsaAlg{name: RS256, hash: crypto.SHA256} },
	RS384: func() SignatureAlgorithm { return &rsaAlg{name: RS384, hash: crypto.SHA384} },
	RS512: func() SignatureAlgorithm { return &rsaAlg{name: RS512, hash: crypto.SHA512} },
	PS256: func() SignatureAlgorithm { return &rsaAlg{name: PS256, hash: crypto.SHA256, pss: true} },
	PS384: func() SignatureAlgorithm { return &rsaAlg{name: PS384, hash: crypto.SHA384, pss: true} },
	PS512: func() SignatureAlgorithm { return &rsaAlg{name: PS512, hash: crypto.SHA512, pss: true} },
	ES256: func() SignatureAlgorithm { return &ecdsaAlg{name: ES256, hash: crypto.SHA256, crv: "P-256"} },
	ES384: func() SignatureAlgorithm { return &ecdsaAlg{name: ES384, hash: crypto.SHA384, crv: "P-384"} },
	ES512: func() SignatureAlgorithm { return &ecdsaAlg{name: ES512, hash: crypto.SHA512, crv: "P-521"} },
	EdDSA: func() SignatureAlgorithm { return &eddsaAlg{} },
	None:  func() SignatureAlgorithm { return &noneAlg{} },
}

var keyManagementFactory = map[string]func() KeyManagementAlgorithm{
	RSA1_5:             func() KeyManagementAlgorithm { return &rsaKeyEncryption{name: RSA1_5} },
	RSA_OAEP:           func() KeyManagementAlgorithm { return &rsaKeyEncryption{name: RSA_OAEP, hash: crypto.SHA1} },
	RSA_OAEP_256:       func() KeyManagementAlgorithm { return &rsaKeyEncryption{name: RSA_OAEP_256, hash: crypto.SHA256} },
	RSA_OAEP_384:       func() KeyManagementAlgorithm { return &rsaKeyEncryption{name: RSA_OAEP_384, hash: crypto.SHA384} },
	RSA_OAEP_512:       func() KeyManagementAlgorithm { return &rsaKeyEncryption{name: RSA_OAEP_512, hash: crypto.SHA512} },
	A128KW:             func() KeyManagementAlgorithm { return &aesKeyWrap{name: A128KW, size: 16} },
	A192KW:             func() KeyManagementAlgorithm { return &aesKeyWrap{name: A192KW, size: 24} },
	A256KW:             func() KeyManagementAlgorithm { return &aesKeyWrap{name: A256KW, size: 32} },
	A128GCMKW:          func() KeyManagementAlgorithm { return &aesGCMKeyWrap{name: A128GCMKW, size: 16} },
	A192GCMKW:          func() KeyManagementAlgorithm { return &aesGCMKeyWrap{name: A192GCMKW, size: 24} },
	A256GCMKW:          func() KeyManagementAlgorithm { return &aesGCMKeyWrap{name: A256GCMKW, size: 32} },
	PBES2_HS256_A128KW: func() KeyManagementAlgorithm { return &pbes2{name: PBES2_HS256_A128KW, hash: crypto.SHA256, size: 16} },
	PBES2_HS384_A192KW: func() KeyManagementAlgorithm { return &pbes2{name: PBES2_HS384_A192KW, hash: crypto.SHA384, size: 24} },
	PBES2_HS512_A256KW: func() KeyManagementAlgorithm { return &pbes2{name: PBES2_HS512_A256KW, hash: crypto.SHA512, size: 32} },
	Direct:             func() KeyManagementAlgorithm { return &direct{} },
	ECDH_ES:            func() KeyManagementAlgorithm { return &ecdhES{name: ECDH_ES} },
	ECDH_ES_A128KW:     func() KeyManagementAlgorithm { return &ecdhESKeyWrap{name: ECDH_ES_A128KW, size: 16} },
	ECDH_ES_A192KW:     func() KeyManagementAlgorithm { return &ecdhESKeyWrap{name: ECDH_ES_A192KW, size: 24} },
	ECDH_ES_A256KW:     func() KeyManagementAlgorithm { return &ecdhESKeyWrap{name: ECDH_ES_A256KW, size: 32} },
}

var contentEncryptionFactory = map[string]func() ContentEncryptionAlgorithm{
	A128GCM:       func() ContentEncryptionAlgorithm { return &aesGCM{name: A128GCM, size: 16} },
	A192GCM:       func() ContentEncryptionAlgorithm { return &aesGCM{name: A192GCM, size: 24} },
	A256GCM:       func() ContentEncryptionAlgorithm { return &aesGCM{name: A256GCM, size: 32} },
	A128CBC_HS256: func() ContentEncryptionAlgorithm { return &aesCBCHMAC{name: A128CBC_HS256, size: 32} },
	A192CBC_HS384: func() ContentEncryptionAlgorithm { return &aesCBCHMAC{name: A192CBC_HS384, size: 48} },
	A256CBC_HS512: func() ContentEncryptionAlgorithm { return &aesCBCHMAC{name: A256CBC_HS512, size: 64} },
}

var compressionFactory = map[string]func() CompressionMethod{
	Deflate: func() CompressionMethod { return &deflate{limit: defaultUncompressLimit} },
}

// NewSignatureAlgorithm returns signature algorithm by name
func NewSignatureAlgorithm(name string) (SignatureAlgorithm, error) {
	return create(signatureFactory, name)
}

// NewKeyManagementAlgorithm returns key management algorithm by name
func NewKeyManagementAlgorithm(name string) (KeyManagementAlgorithm, error) {
	return create(keyManagementFactory, name)
}

// NewContentEncryptionAlgorithm returns content encryption algorithm by name
func NewContentEncryptionAlgorithm(name string) (ContentEncryptionAlgorithm, error) {
	return create(contentEncryptionFactory, name)
}

// NewCompressionMethod returns compression method by name
func NewCompressionMethod(name string) (CompressionMethod, error) {
	return create(compressionFactory, name)
}

// SignatureAlgorithms returns names of all the supported signature algorithms
func SignatureAlgorithms() []string {
	return []string{HS256, HS384, HS512, RS256, RS384, RS512, PS256, PS384, PS512, ES256, ES384, ES512, EdDSA, None}
}

// KeyManagementAlgorithms returns names of all the supported key management algorithms
func KeyManagementAlgorithms() []string {
	return []string{
		RSA1_5, RSA_OAEP, RSA_OAEP_256, RSA_OAEP_384, RSA_OAEP_512,
		A128KW, A192KW, A256KW, A128GCMKW, A192GCMKW, A256GCMKW,
		PBES2_HS256_A128KW, PBES2_HS384_A192KW, PBES2_HS512_A256KW,
		Direct, ECDH_ES, ECDH_ES_A128KW, ECDH_ES_A192KW, ECDH_ES_A256KW,
	}
}

// ContentEncryptionAlgorithms returns names of all the supported content encryption algorithms
func ContentEncryptionAlgorithms() []string {
	return []string{A128GCM, A192GCM, A256GCM, A128CBC_HS256, A192CBC_HS384, A256CBC_HS512}
}

// CompressionMethods returns names of all the supported compression methods
func CompressionMethods() []string {
	return []string{Deflate}
}

func create[T any](factory map[string]func() T, name string) (T, error) {
	f, ok := factory[name]
	if !ok {
		var empty T
		return empty, errors.WithMessagef(xjose.ErrUnsupportedAlgorithm, "%q is not supported", name)
	}
	return f(), nil
}

// cekSize returns CEK size of the content encryption algorithm, or 0
func cekSize(enc string) int {
	if f, ok := contentEncryptionFactory[enc]; ok {
		return f().CEKSize()
	}
	return 0
}
