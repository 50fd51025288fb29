package jws_test

import (
	"testing"

	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/jwa"
	"github.com/effective-security/xjose/jws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializerManager(t *testing.T) {
	_, err := jws.NewSerializerManagerByName("jws_xml")
	assert.EqualError(t, err, `unsupported JWS serializer: "jws_xml"`)

	_, err = jws.NewSerializerManager(jws.Compact{}, jws.Compact{})
	assert.EqualError(t, err, "serializer already registered: jws_compact")

	m, err := jws.NewSerializerManagerByName(jws.JSONGeneralSerializer, jws.CompactSerializer)
	require.NoError(t, err)
	assert.Equal(t, []string{"jws_json_general", "jws_compact"}, m.Names())

	key := parseKey(t, hmacKey)
	j, err := jws.NewBuilder(signatureManager(t, jwa.HS256)).Build([]byte("hello"), []jws.Signer{{
		Key:         key,
		Protected:   header.Header{"alg": "HS256"},
		Unprotected: header.Header{"kid": "k1"},
	}})
	require.NoError(t, err)

	_, err = m.Serialize(jws.JSONFlattenedSerializer, j, 0)
	assert.EqualError(t, err, `serializer is not allowed: "jws_json_flattened"`)

	token, err := m.Serialize(jws.JSONGeneralSerializer, j, 0)
	require.NoError(t, err)
	parsed, name, err := m.Unserialize(token)
	require.NoError(t, err)
	assert.Equal(t, jws.JSONGeneralSerializer, name)
	assert.Equal(t, []byte("hello"), parsed.Payload())

	flattened, err := jws.JSONFlattened{}.Serialize(j, 0)
	require.NoError(t, err)
	_, _, err = m.Unserialize(flattened)
	assert.ErrorIs(t, err, xjose.ErrInvalidFormat)
}

func TestSerializers_RoundTrip(t *testing.T) {
	key := parseKey(t, hmacKey)
	b := jws.NewBuilder(signatureManager(t, jwa.HS256, jwa.HS384))

	j, err := b.Build([]byte(`{"msg":"round trip"}`), []jws.Signer{
		{Key: key, Protected: header.Header{"alg": "HS256", "typ": "JWT"}},
		{Key: key, Protected: header.Header{"alg": "HS384"}, Unprotected: header.Header{"kid": "k2"}},
	})
	require.NoError(t, err)

	tcases := []struct {
		serializer jws.Serializer
		idx        int
		count      int
	}{
		{serializer: jws.Compact{}, idx: 0, count: 1},
		{serializer: jws.JSONFlattened{}, idx: 0, count: 1},
		{serializer: jws.JSONFlattened{}, idx: 1, count: 1},
		{serializer: jws.JSONGeneral{}, idx: 0, count: 2},
	}
	for _, tc := range tcases {
		t.Run(tc.serializer.Name(), func(t *testing.T) {
			token, err := tc.serializer.Serialize(j, tc.idx)
			require.NoError(t, err)

			parsed, err := tc.serializer.Unserialize(token)
			require.NoError(t, err)
			assert.Equal(t, j.Payload(), parsed.Payload())
			require.Equal(t, tc.count, parsed.CountSignatures())

			expected := j.Signatures()[tc.idx]
			actual := parsed.Signatures()[0]
			assert.Equal(t, expected.EncodedProtectedHeader(), actual.EncodedProtectedHeader())
			assert.Equal(t, expected.ProtectedHeader(), actual.ProtectedHeader())
			assert.Equal(t, expected.UnprotectedHeader(), actual.UnprotectedHeader())
			assert.Equal(t, expected.Signature(), actual.Signature())

			again, err := tc.serializer.Serialize(parsed, 0)
			require.NoError(t, err)
			assert.Equal(t, token, again)
		})
	}
}

func TestSerializers_InvalidInput(t *testing.T) {
	sig := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	hdr := "eyJhbGciOiJIUzI1NiJ9"

	tcases := []struct {
		name       string
		serializer jws.Serializer
		input      string
	}{
		{name: "empty", serializer: jws.Compact{}, input: ""},
		{name: "two segments", serializer: jws.Compact{}, input: hdr + "." + sig},
		{name: "four segments", serializer: jws.Compact{}, input: hdr + ".e30." + sig + ".x"},
		{name: "missing header", serializer: jws.Compact{}, input: ".e30." + sig},
		{name: "padded header", serializer: jws.Compact{}, input: hdr + "=.e30." + sig},
		{name: "header not json", serializer: jws.Compact{}, input: "bm90IGpzb24.e30." + sig},
		{name: "header array", serializer: jws.Compact{}, input: "WzFd.e30." + sig},
		{name: "header trailing brace", serializer: jws.Compact{}, input: "eyJhbGciOiJIUzI1NiJ9fQ.e30." + sig},
		{name: "bad payload", serializer: jws.Compact{}, input: hdr + ".e30*." + sig},
		{name: "bad signature", serializer: jws.Compact{}, input: hdr + ".e30.***"},
		{name: "b64 not critical", serializer: jws.Compact{}, input: "eyJhbGciOiJIUzI1NiIsImI2NCI6ZmFsc2V9.e30." + sig},

		{name: "flattened not object", serializer: jws.JSONFlattened{}, input: `[]`},
		{name: "flattened trailing", serializer: jws.JSONFlattened{}, input: `{"protected":"` + hdr + `","signature":"` + sig + `"} {}`},
		{name: "flattened trailing brace", serializer: jws.JSONFlattened{}, input: `{"payload":"e30","protected":"` + hdr + `","signature":"` + sig + `"}}`},
		{name: "general trailing bracket", serializer: jws.JSONGeneral{}, input: `{"payload":"e30","signatures":[{"protected":"` + hdr + `","signature":"` + sig + `"}]}]`},
		{name: "flattened no signature", serializer: jws.JSONFlattened{}, input: `{"payload":"e30","protected":"` + hdr + `"}`},
		{name: "flattened no header", serializer: jws.JSONFlattened{}, input: `{"payload":"e30","signature":"` + sig + `"}`},
		{name: "flattened with signatures", serializer: jws.JSONFlattened{}, input: `{"payload":"e30","protected":"` + hdr + `","signature":"` + sig + `","signatures":[]}`},
		{name: "flattened bad header type", serializer: jws.JSONFlattened{}, input: `{"payload":"e30","header":"x","signature":"` + sig + `"}`},
		{name: "flattened duplicate", serializer: jws.JSONFlattened{}, input: `{"payload":"e30","protected":"` + hdr + `","header":{"alg":"HS256"},"signature":"` + sig + `"}`},

		{name: "general no signatures", serializer: jws.JSONGeneral{}, input: `{"payload":"e30","signatures":[]}`},
		{name: "general with signature", serializer: jws.JSONGeneral{}, input: `{"payload":"e30","signatures":[{"protected":"` + hdr + `","signature":"` + sig + `"}],"signature":"` + sig + `"}`},
		{name: "general bad entry", serializer: jws.JSONGeneral{}, input: `{"payload":"e30","signatures":[{"protected":"` + hdr + `"}]}`},
		{name: "general bad payload", serializer: jws.JSONGeneral{}, input: `{"payload":"***","signatures":[{"protected":"` + hdr + `","signature":"` + sig + `"}]}`},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.serializer.Unserialize(tc.input)
			assert.ErrorIs(t, err, xjose.ErrInvalidFormat)
		})
	}
}
