package jwk_test

import (
	"encoding/json"
	"testing"

	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAlg struct {
	name string
	kty  []string
}

func (a testAlg) Name() string              { return a.name }
func (a testAlg) AllowedKeyTypes() []string { return a.kty }

func octKey(t *testing.T, params map[string]any) *jwk.JWK {
	params["kty"] = "oct"
	params["k"] = "c2VjcmV0"
	k, err := jwk.New(params)
	require.NoError(t, err)
	return k
}

func TestSet_Select(t *testing.T) {
	hs256 := testAlg{name: "HS256", kty: []string{"oct"}}
	es256 := testAlg{name: "ES256", kty: []string{"EC"}}

	first := octKey(t, map[string]any{"kid": "first"})
	enc := octKey(t, map[string]any{"kid": "enc", "use": "enc"})
	sig := octKey(t, map[string]any{"kid": "sig", "use": "sig"})
	other := octKey(t, map[string]any{"kid": "other", "alg": "HS512"})
	ec, err := jwk.Parse([]byte(peregrinKey))
	require.NoError(t, err)

	set := jwk.NewSet(first, enc, sig, other, ec, nil)
	assert.Equal(t, 5, set.Len())

	k, ok := set.Select("sig", "sig", hs256)
	require.True(t, ok)
	assert.Equal(t, "sig", k.KeyID())

	// kid wins over use
	k, ok = set.Select("sig", "first", hs256)
	require.True(t, ok)
	assert.Equal(t, "first", k.KeyID())

	// use wins over order
	k, ok = set.Select("sig", "", hs256)
	require.True(t, ok)
	assert.Equal(t, "sig", k.KeyID())

	// first compatible
	k, ok = set.Select("", "", hs256)
	require.True(t, ok)
	assert.Equal(t, "first", k.KeyID())

	// key with different use is excluded
	k, ok = set.Select("sig", "enc", hs256)
	require.True(t, ok)
	assert.Equal(t, "sig", k.KeyID())

	// key with different alg is excluded
	_, ok = set.Select("", "other", hs256)
	assert.True(t, ok)
	c := set.Candidates("", "other", hs256)
	assert.Len(t, c, 3)
	for _, k := range c {
		assert.NotEqual(t, "other", k.KeyID())
	}

	k, ok = set.Select("enc", "", es256)
	require.True(t, ok)
	assert.Equal(t, "EC", k.KeyType())

	_, ok = set.Select("", "", testAlg{name: "EdDSA", kty: []string{"OKP"}})
	assert.False(t, ok)

	k, ok = set.FindByKeyID("enc")
	require.True(t, ok)
	assert.Equal(t, "enc", k.Use())
	_, ok = set.FindByKeyID("missing")
	assert.False(t, ok)

	assert.Nil(t, set.Get(10))
	assert.Equal(t, "first", set.Get(0).KeyID())

	ecOnly := set.Filter(func(k *jwk.JWK) bool { return k.KeyType() == "EC" })
	assert.Equal(t, 1, ecOnly.Len())
	assert.Equal(t, 5, set.Len())

	more := set.With(octKey(t, map[string]any{"kid": "last"}))
	assert.Equal(t, 6, more.Len())
	assert.Equal(t, 5, set.Len())
}

func TestSet_JSON(t *testing.T) {
	raw := `{"keys":[` + peregrinKey + `,` + rfc7638Key + `,{"kty":"unknown"},` + rfc8037Key + `]}`

	set, err := jwk.ParseSet([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, "RSA", set.Get(1).KeyType())

	js, err := json.Marshal(set)
	require.NoError(t, err)

	var set2 jwk.Set
	require.NoError(t, json.Unmarshal(js, &set2))
	require.Equal(t, 3, set2.Len())
	for i, k := range set.Keys() {
		assert.True(t, k.Equal(set2.Get(i)))
	}

	js, err = json.Marshal(jwk.NewSet())
	require.NoError(t, err)
	assert.Equal(t, `{"keys":[]}`, string(js))

	_, err = jwk.ParseSet([]byte(`{}`))
	assert.ErrorIs(t, err, xjose.ErrInvalidFormat)
	_, err = jwk.ParseSet([]byte(`[`))
	assert.ErrorIs(t, err, xjose.ErrInvalidFormat)
}
