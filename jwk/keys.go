package jwk

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/x/b64url"
)

// Curve names
const (
	CurveP256    = "P-256"
	CurveP384    = "P-384"
	CurveP521    = "P-521"
	CurveEd25519 = "Ed25519"
	CurveX25519  = "X25519"
)

type curveInfo struct {
	name   string
	curve  elliptic.Curve
	ecdh   ecdh.Curve
	keyLen int
}

var curves = map[string]curveInfo{
	CurveP256: {name: CurveP256, curve: elliptic.P256(), ecdh: ecdh.P256(), keyLen: 32},
	CurveP384: {name: CurveP384, curve: elliptic.P384(), ecdh: ecdh.P384(), keyLen: 48},
	CurveP521: {name: CurveP521, curve: elliptic.P521(), ecdh: ecdh.P521(), keyLen: 66},
}

// CurveByName returns elliptic curve for crv value
func CurveByName(crv string) (elliptic.Curve, bool) {
	c, ok := curves[crv]
	return c.curve, ok
}

// CurveKeySize returns the size in bytes of the coordinates on the curve
func CurveKeySize(crv string) int {
	return curves[crv].keyLen
}

func curveName(c elliptic.Curve) (string, bool) {
	for name, info := range curves {
		if info.curve == c {
			return name, true
		}
	}
	return "", false
}

func ecdhCurveName(c ecdh.Curve) (string, bool) {
	if c == ecdh.X25519() {
		return CurveX25519, true
	}
	for name, info := range curves {
		if info.ecdh == c {
			return name, true
		}
	}
	return "", false
}

// PublicKey returns crypto.PublicKey:
// *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey or *ecdh.PublicKey for X25519
func (k *JWK) PublicKey() (crypto.PublicKey, error) {
	switch k.KeyType() {
	case KeyTypeRSA:
		return k.rsaPublicKey()
	case KeyTypeEC:
		return k.ecdsaPublicKey()
	case KeyTypeOKP:
		x, _ := k.Bytes("x")
		switch k.Curve() {
		case CurveEd25519:
			if len(x) != ed25519.PublicKeySize {
				return nil, errors.WithMessage(xjose.ErrInvalidFormat, "invalid Ed25519 public key")
			}
			return ed25519.PublicKey(x), nil
		case CurveX25519:
			pub, err := ecdh.X25519().NewPublicKey(x)
			if err != nil {
				return nil, errors.WithMessage(xjose.ErrInvalidFormat, "invalid X25519 public key")
			}
			return pub, nil
		}
		return nil, errors.WithMessagef(xjose.ErrKeyTypeMismatch, "unsupported OKP curve: %q", k.Curve())
	}
	return nil, errors.WithMessagef(xjose.ErrKeyTypeMismatch, "%s key has no public key", k.KeyType())
}

// PrivateKey returns crypto.PrivateKey:
// *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey or *ecdh.PrivateKey for X25519
func (k *JWK) PrivateKey() (crypto.PrivateKey, error) {
	if !k.Has("d") {
		return nil, errors.WithMessagef(xjose.ErrKeyTypeMismatch, "%s key is not private", k.KeyType())
	}
	switch k.KeyType() {
	case KeyTypeRSA:
		return k.rsaPrivateKey()
	case KeyTypeEC:
		return k.ecdsaPrivateKey()
	case KeyTypeOKP:
		d, _ := k.Bytes("d")
		x, _ := k.Bytes("x")
		switch k.Curve() {
		case CurveEd25519:
			if len(d) != ed25519.SeedSize {
				return nil, errors.WithMessage(xjose.ErrInvalidFormat, "invalid Ed25519 private key")
			}
			priv := ed25519.NewKeyFromSeed(d)
			if !priv.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(x)) {
				return nil, errors.WithMessage(xjose.ErrInvalidFormat, "Ed25519 private key does not match public key")
			}
			return priv, nil
		case CurveX25519:
			return k.ECDHPrivateKey()
		}
		return nil, errors.WithMessagef(xjose.ErrKeyTypeMismatch, "unsupported OKP curve: %q", k.Curve())
	}
	return nil, errors.WithMessagef(xjose.ErrKeyTypeMismatch, "%s key has no private key", k.KeyType())
}

// SymmetricKey returns the secret of oct key
func (k *JWK) SymmetricKey() ([]byte, error) {
	if k.KeyType() != KeyTypeOct {
		return nil, errors.WithMessagef(xjose.ErrKeyTypeMismatch, "%s key is not symmetric", k.KeyType())
	}
	return k.Bytes("k")
}

// ECDHPublicKey returns public key for key agreement
func (k *JWK) ECDHPublicKey() (*ecdh.PublicKey, error) {
	switch k.KeyType() {
	case KeyTypeEC:
		pub, err := k.ecdsaPublicKey()
		if err != nil {
			return nil, err
		}
		return pub.ECDH()
	case KeyTypeOKP:
		if k.Curve() == CurveX25519 {
			pub, err := k.PublicKey()
			if err != nil {
				return nil, err
			}
			return pub.(*ecdh.PublicKey), nil
		}
	}
	return nil, errors.WithMessagef(xjose.ErrKeyTypeMismatch, "%s %s key can not be used for key agreement", k.KeyType(), k.Curve())
}

// ECDHPrivateKey returns private key for key agreement
func (k *JWK) ECDHPrivateKey() (*ecdh.PrivateKey, error) {
	switch k.KeyType() {
	case KeyTypeEC:
		priv, err := k.ecdsaPrivateKey()
		if err != nil {
			return nil, err
		}
		return priv.ECDH()
	case KeyTypeOKP:
		if k.Curve() == CurveX25519 {
			d, err := k.Bytes("d")
			if err != nil {
				return nil, errors.WithMessage(xjose.ErrKeyTypeMismatch, "X25519 key is not private")
			}
			priv, err := ecdh.X25519().NewPrivateKey(d)
			if err != nil {
				return nil, errors.WithMessage(xjose.ErrInvalidFormat, "invalid X25519 private key")
			}
			x, _ := k.Bytes("x")
			if string(priv.PublicKey().Bytes()) != string(x) {
				return nil, errors.WithMessage(xjose.ErrInvalidFormat, "X25519 private key does not match public key")
			}
			return priv, nil
		}
	}
	return nil, errors.WithMessagef(xjose.ErrKeyTypeMismatch, "%s %s key can not be used for key agreement", k.KeyType(), k.Curve())
}

func (k *JWK) rsaPublicKey() (*rsa.PublicKey, error) {
	n, _ := k.Bytes("n")
	e, _ := k.Bytes("e")
	if len(e) == 0 || len(e) > 4 {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "invalid RSA exponent")
	}
	exp := new(big.Int).SetBytes(e)
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(exp.Int64()),
	}, nil
}

func (k *JWK) rsaPrivateKey() (*rsa.PrivateKey, error) {
	pub, err := k.rsaPublicKey()
	if err != nil {
		return nil, err
	}
	if k.Has("oth") {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "multi-prime RSA keys are not supported")
	}

	d, _ := k.Bytes("d")
	p, perr := k.Bytes("p")
	q, qerr := k.Bytes("q")
	if perr != nil || qerr != nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "RSA private key must have primes")
	}
	priv := &rsa.PrivateKey{
		PublicKey: *pub,
		D:         new(big.Int).SetBytes(d),
		Primes: []*big.Int{
			new(big.Int).SetBytes(p),
			new(big.Int).SetBytes(q),
		},
	}
	if err = priv.Validate(); err != nil {
		return nil, errors.WithMessagef(xjose.ErrInvalidFormat, "invalid RSA private key: %s", err.Error())
	}
	priv.Precompute()
	return priv, nil
}

func (k *JWK) ecdsaPublicKey() (*ecdsa.PublicKey, error) {
	info, ok := curves[k.Curve()]
	if !ok {
		return nil, errors.WithMessagef(xjose.ErrKeyTypeMismatch, "unsupported EC curve: %q", k.Curve())
	}
	x, _ := k.Bytes("x")
	y, _ := k.Bytes("y")
	if len(x) != info.keyLen || len(y) != info.keyLen {
		return nil, errors.WithMessagef(xjose.ErrInvalidFormat, "invalid %s coordinates", info.name)
	}
	pub := &ecdsa.PublicKey{
		Curve: info.curve,
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}
	// ECDH conversion checks the point is on the curve
	if _, err := pub.ECDH(); err != nil {
		return nil, errors.WithMessagef(xjose.ErrInvalidFormat, "invalid %s public key", info.name)
	}
	return pub, nil
}

func (k *JWK) ecdsaPrivateKey() (*ecdsa.PrivateKey, error) {
	pub, err := k.ecdsaPublicKey()
	if err != nil {
		return nil, err
	}
	d, err := k.Bytes("d")
	if err != nil {
		return nil, errors.WithMessage(xjose.ErrKeyTypeMismatch, "EC key is not private")
	}
	info := curves[k.Curve()]
	if len(d) != info.keyLen {
		return nil, errors.WithMessagef(xjose.ErrInvalidFormat, "invalid %s private key", info.name)
	}
	priv := &ecdsa.PrivateKey{
		PublicKey: *pub,
		D:         new(big.Int).SetBytes(d),
	}
	epriv, err := priv.ECDH()
	if err != nil {
		return nil, errors.WithMessagef(xjose.ErrInvalidFormat, "invalid %s private key", info.name)
	}
	epub, _ := pub.ECDH()
	if !epriv.PublicKey().Equal(epub) {
		return nil, errors.WithMessagef(xjose.ErrInvalidFormat, "%s private key does not match public key", info.name)
	}
	return priv, nil
}

// FromKey returns JWK for the crypto key.
// Supported types: *rsa.PublicKey, *rsa.PrivateKey, *ecdsa.PublicKey, *ecdsa.PrivateKey,
// ed25519.PublicKey, ed25519.PrivateKey, *ecdh.PublicKey, *ecdh.PrivateKey and []byte for oct keys.
// Optional params such as kid, use or alg are added to the key.
func FromKey(key any, params map[string]any) (*JWK, error) {
	m := map[string]any{}
	for k, v := range params {
		m[k] = v
	}

	switch typ := key.(type) {
	case []byte:
		m["kty"] = KeyTypeOct
		m["k"] = b64url.Encode(typ)
	case *rsa.PublicKey:
		setRSAPublic(m, typ)
	case *rsa.PrivateKey:
		if len(typ.Primes) != 2 {
			return nil, errors.Errorf("multi-prime RSA keys are not supported")
		}
		typ.Precompute()
		setRSAPublic(m, &typ.PublicKey)
		m["d"] = b64url.Encode(typ.D.Bytes())
		m["p"] = b64url.Encode(typ.Primes[0].Bytes())
		m["q"] = b64url.Encode(typ.Primes[1].Bytes())
		m["dp"] = b64url.Encode(typ.Precomputed.Dp.Bytes())
		m["dq"] = b64url.Encode(typ.Precomputed.Dq.Bytes())
		m["qi"] = b64url.Encode(typ.Precomputed.Qinv.Bytes())
	case *ecdsa.PublicKey:
		if err := setECPublic(m, typ); err != nil {
			return nil, err
		}
	case *ecdsa.PrivateKey:
		if err := setECPublic(m, &typ.PublicKey); err != nil {
			return nil, err
		}
		m["d"] = b64url.Encode(typ.D.FillBytes(make([]byte, CurveKeySize(m["crv"].(string)))))
	case ed25519.PublicKey:
		m["kty"] = KeyTypeOKP
		m["crv"] = CurveEd25519
		m["x"] = b64url.Encode(typ)
	case ed25519.PrivateKey:
		m["kty"] = KeyTypeOKP
		m["crv"] = CurveEd25519
		m["x"] = b64url.Encode(typ.Public().(ed25519.PublicKey))
		m["d"] = b64url.Encode(typ.Seed())
	case *ecdh.PublicKey:
		if err := setECDHPublic(m, typ); err != nil {
			return nil, err
		}
	case *ecdh.PrivateKey:
		if err := setECDHPublic(m, typ.PublicKey()); err != nil {
			return nil, err
		}
		m["d"] = b64url.Encode(typ.Bytes())
	default:
		return nil, errors.WithMessagef(xjose.ErrKeyTypeMismatch, "unsupported key type: %T", key)
	}
	return New(m)
}

func setRSAPublic(m map[string]any, pub *rsa.PublicKey) {
	m["kty"] = KeyTypeRSA
	m["n"] = b64url.Encode(pub.N.Bytes())
	m["e"] = b64url.Encode(big.NewInt(int64(pub.E)).Bytes())
}

func setECPublic(m map[string]any, pub *ecdsa.PublicKey) error {
	if _, ok := curveName(pub.Curve); !ok {
		return errors.WithMessage(xjose.ErrKeyTypeMismatch, "unsupported EC curve")
	}
	epub, err := pub.ECDH()
	if err != nil {
		return errors.WithMessage(xjose.ErrInvalidFormat, "invalid EC public key")
	}
	return setECDHPublic(m, epub)
}

func setECDHPublic(m map[string]any, pub *ecdh.PublicKey) error {
	crv, ok := ecdhCurveName(pub.Curve())
	if !ok {
		return errors.WithMessage(xjose.ErrKeyTypeMismatch, "unsupported ECDH curve")
	}
	raw := pub.Bytes()
	if crv == CurveX25519 {
		m["kty"] = KeyTypeOKP
		m["crv"] = crv
		m["x"] = b64url.Encode(raw)
		return nil
	}
	// uncompressed point: 0x04 || X || Y
	size := CurveKeySize(crv)
	m["kty"] = KeyTypeEC
	m["crv"] = crv
	m["x"] = b64url.Encode(raw[1 : 1+size])
	m["y"] = b64url.Encode(raw[1+size:])
	return nil
}
