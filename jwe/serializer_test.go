package jwe_test

import (
	"strings"
	"testing"

	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/jwa"
	"github.com/effective-security/xjose/jwe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializerManager(t *testing.T) {
	_, err := jwe.NewSerializerManagerByName("jwe_xml")
	assert.EqualError(t, err, `unsupported JWE serializer: "jwe_xml"`)

	_, err = jwe.NewSerializerManager(jwe.JSONGeneral{}, jwe.JSONGeneral{})
	assert.EqualError(t, err, "serializer already registered: jwe_json_general")

	m, err := jwe.NewSerializerManagerByName(jwe.CompactSerializer)
	require.NoError(t, err)
	assert.Equal(t, []string{"jwe_compact"}, m.Names())

	key := fromKey(t, randBytes(t, 16), nil)
	j, err := newBuilder(t, []string{jwa.A128KW}, []string{jwa.A128GCM}).
		Build([]byte("hello"), header.Header{"alg": "A128KW", "enc": "A128GCM"}, nil, []jwe.Recipient{{Key: key}})
	require.NoError(t, err)

	_, err = m.Serialize(jwe.JSONGeneralSerializer, j, 0)
	assert.EqualError(t, err, `serializer is not allowed: "jwe_json_general"`)

	token, err := m.Serialize(jwe.CompactSerializer, j, 0)
	require.NoError(t, err)
	parsed, name, err := m.Unserialize(token)
	require.NoError(t, err)
	assert.Equal(t, jwe.CompactSerializer, name)
	assert.Equal(t, j.Ciphertext(), parsed.Ciphertext())

	general, err := jwe.JSONGeneral{}.Serialize(j, 0)
	require.NoError(t, err)
	_, _, err = m.Unserialize(general)
	assert.ErrorIs(t, err, xjose.ErrInvalidFormat)
}

func TestSerializers_RoundTrip(t *testing.T) {
	k1 := fromKey(t, randBytes(t, 16), nil)
	k2 := fromKey(t, randBytes(t, 32), nil)
	b := newBuilder(t, []string{jwa.A128KW, jwa.A256KW}, []string{jwa.A192GCM})

	j, err := b.Build([]byte("round trip"),
		header.Header{"enc": "A192GCM"},
		header.Header{"typ": "JOSE"},
		[]jwe.Recipient{
			{Key: k1, Header: header.Header{"alg": "A128KW", "kid": "1"}},
			{Key: k2, Header: header.Header{"alg": "A256KW", "kid": "2"}},
		},
		jwe.WithAAD([]byte("aad")),
	)
	require.NoError(t, err)

	for _, s := range []jwe.Serializer{jwe.JSONFlattened{}, jwe.JSONGeneral{}} {
		token, err := s.Serialize(j, 1)
		require.NoError(t, err)

		parsed, err := s.Unserialize(token)
		require.NoError(t, err)
		assert.Equal(t, j.EncodedSharedProtectedHeader(), parsed.EncodedSharedProtectedHeader())
		assert.Equal(t, j.SharedHeader(), parsed.SharedHeader())
		assert.Equal(t, j.IV(), parsed.IV())
		assert.Equal(t, j.Ciphertext(), parsed.Ciphertext())
		assert.Equal(t, j.Tag(), parsed.Tag())
		assert.Equal(t, j.AAD(), parsed.AAD())

		last := parsed.Recipients()[parsed.CountRecipients()-1]
		assert.Equal(t, j.Recipients()[1].Header(), last.Header())
		assert.Equal(t, j.Recipients()[1].EncryptedKey(), last.EncryptedKey())

		again, err := s.Serialize(parsed, parsed.CountRecipients()-1)
		require.NoError(t, err)
		assert.Equal(t, token, again)
	}

	_, err = jwe.JSONFlattened{}.Serialize(j, 2)
	assert.EqualError(t, err, "recipient index out of range: 2")
}

func TestSerializers_InvalidInput(t *testing.T) {
	hdr := "eyJhbGciOiJBMTI4S1ciLCJlbmMiOiJBMTI4R0NNIn0"
	ek := "6KB707dM9YTIgHtLvtgWQ8mKwboJW3of9locizkDTHzBC2IlrT1oOQ"
	iv := "AxY8DCtDaGlsbGljb3RoZQ"
	ct := "KDlTtXchhZTGufMYmOYGS4HffxPSUrfmqCHXaI9wOGY"
	tag := "U0m_YmjN04DJvceFICbCVQ"
	compact := strings.Join([]string{hdr, ek, iv, ct, tag}, ".")

	_, err := jwe.Compact{}.Unserialize(compact)
	require.NoError(t, err)

	tcases := []struct {
		name       string
		serializer jwe.Serializer
		input      string
	}{
		{name: "four segments", serializer: jwe.Compact{}, input: strings.Join([]string{hdr, ek, iv, ct}, ".")},
		{name: "six segments", serializer: jwe.Compact{}, input: compact + ".x"},
		{name: "missing header", serializer: jwe.Compact{}, input: strings.Join([]string{"", ek, iv, ct, tag}, ".")},
		{name: "header not object", serializer: jwe.Compact{}, input: strings.Join([]string{"WzFd", ek, iv, ct, tag}, ".")},
		{name: "header trailing brace", serializer: jwe.Compact{}, input: strings.Join([]string{"eyJhbGciOiJBMTI4S1ciLCJlbmMiOiJBMTI4R0NNIn19", ek, iv, ct, tag}, ".")},
		{name: "bad encrypted key", serializer: jwe.Compact{}, input: strings.Join([]string{hdr, ek + "=", iv, ct, tag}, ".")},
		{name: "bad iv", serializer: jwe.Compact{}, input: strings.Join([]string{hdr, ek, "*", ct, tag}, ".")},
		{name: "bad ciphertext", serializer: jwe.Compact{}, input: strings.Join([]string{hdr, ek, iv, ct + "/", tag}, ".")},
		{name: "bad tag", serializer: jwe.Compact{}, input: strings.Join([]string{hdr, ek, iv, ct, tag + "+"}, ".")},
		{name: "compact as JSON", serializer: jwe.JSONGeneral{}, input: compact},

		{name: "flattened array", serializer: jwe.JSONFlattened{}, input: `[{}]`},
		{name: "flattened trailing", serializer: jwe.JSONFlattened{}, input: `{"protected":"` + hdr + `","ciphertext":"` + ct + `"}{}`},
		{name: "flattened trailing brace", serializer: jwe.JSONFlattened{}, input: `{"protected":"` + hdr + `","encrypted_key":"` + ek + `","iv":"` + iv + `","ciphertext":"` + ct + `","tag":"` + tag + `"}}`},
		{name: "flattened no ciphertext", serializer: jwe.JSONFlattened{}, input: `{"protected":"` + hdr + `","encrypted_key":"` + ek + `","iv":"` + iv + `","tag":"` + tag + `"}`},
		{name: "flattened recipients", serializer: jwe.JSONFlattened{}, input: `{"protected":"` + hdr + `","recipients":[],"ciphertext":"` + ct + `"}`},
		{name: "flattened duplicate", serializer: jwe.JSONFlattened{}, input: `{"protected":"` + hdr + `","header":{"enc":"A128GCM"},"ciphertext":"` + ct + `"}`},
		{name: "flattened no header", serializer: jwe.JSONFlattened{}, input: `{"encrypted_key":"` + ek + `","ciphertext":"` + ct + `"}`},
		{name: "flattened bad aad", serializer: jwe.JSONFlattened{}, input: `{"protected":"` + hdr + `","aad":"***","ciphertext":"` + ct + `"}`},

		{name: "general no recipients", serializer: jwe.JSONGeneral{}, input: `{"protected":"` + hdr + `","recipients":[],"ciphertext":"` + ct + `"}`},
		{name: "general with header", serializer: jwe.JSONGeneral{}, input: `{"protected":"` + hdr + `","header":{},"recipients":[{}],"ciphertext":"` + ct + `"}`},
		{name: "general with encrypted_key", serializer: jwe.JSONGeneral{}, input: `{"protected":"` + hdr + `","encrypted_key":"` + ek + `","recipients":[{}],"ciphertext":"` + ct + `"}`},
		{name: "general bad recipient", serializer: jwe.JSONGeneral{}, input: `{"protected":"` + hdr + `","recipients":[{"encrypted_key":"=="}],"ciphertext":"` + ct + `"}`},
		{name: "general recipient not object", serializer: jwe.JSONGeneral{}, input: `{"protected":"` + hdr + `","recipients":["x"],"ciphertext":"` + ct + `"}`},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.serializer.Unserialize(tc.input)
			assert.ErrorIs(t, err, xjose.ErrInvalidFormat)
		})
	}
}
