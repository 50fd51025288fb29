package b64url_test

import (
	"testing"

	"github.com/effective-security/xjose/x/b64url"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	tcases := []struct {
		raw string
		exp string
	}{
		{"", ""},
		{"f", "Zg"},
		{"fo", "Zm8"},
		{"foo", "Zm9v"},
		{"\xfb\xff", "-_8"},
	}
	for _, tc := range tcases {
		assert.Equal(t, tc.exp, b64url.EncodeString(tc.raw))
		b, err := b64url.Decode(tc.exp)
		require.NoError(t, err)
		assert.Equal(t, tc.raw, string(b))
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, s := range []string{"Zg==", "+/8", "Zm 9v", "Z", "Zm9v\n"} {
		_, err := b64url.Decode(s)
		assert.ErrorContains(t, err, "invalid base64url segment", s)
	}
}
