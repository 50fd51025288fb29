package dataprotection

import (
	"context"
	"strings"
	"testing"

	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/jwe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSymmetric(t *testing.T) {
	_, err := NewSymmetric(nil)
	assert.EqualError(t, err, "secret is required")

	p, err := NewSymmetric([]byte("secret"))
	require.NoError(t, err)
	assert.True(t, p.IsReady())

	plaintext := []byte(`small data`)
	ctx := context.Background()
	protected, err := p.Protect(ctx, plaintext)
	require.NoError(t, err)

	parts := strings.Split(string(protected), ".")
	require.Len(t, parts, 5)
	assert.Empty(t, parts[1], "dir has no encrypted key")

	j, err := jwe.Compact{}.Unserialize(string(protected))
	require.NoError(t, err)
	assert.Equal(t, "dir", j.SharedProtectedHeader().Algorithm())
	assert.Equal(t, "A256GCM", j.SharedProtectedHeader().Encryption())

	unprotected, err := p.Unprotect(ctx, protected)
	require.NoError(t, err)
	assert.Equal(t, plaintext, unprotected)

	// the same secret derives the same key
	p2, err := NewSymmetric([]byte("secret"))
	require.NoError(t, err)
	unprotected, err = p2.Unprotect(ctx, protected)
	require.NoError(t, err)
	assert.Equal(t, plaintext, unprotected)

	other, err := NewSymmetric([]byte("other secret"))
	require.NoError(t, err)
	_, err = other.Unprotect(ctx, protected)
	assert.EqualError(t, err, "failed to unprotect: unable to decrypt")

	// modify the ciphertext
	ct := []byte(parts[3])
	if ct[0] == 'A' {
		ct[0] = 'B'
	} else {
		ct[0] = 'A'
	}
	parts[3] = string(ct)
	_, err = p.Unprotect(ctx, []byte(strings.Join(parts, ".")))
	assert.ErrorIs(t, err, xjose.ErrDecryptionFailure)

	_, err = p.Unprotect(ctx, nil)
	assert.EqualError(t, err, "invalid data")

	_, err = p.Unprotect(ctx, protected[:11])
	assert.ErrorIs(t, err, xjose.ErrInvalidFormat)

	s := state{Str: "hello", ID: 123}
	token, err := ProtectObject(ctx, p, s)
	require.NoError(t, err)
	var s2 state
	err = UnprotectObject(ctx, p, token, &s2)
	require.NoError(t, err)
	assert.Equal(t, s, s2)

	err = UnprotectObject(ctx, p, "", &s2)
	assert.EqualError(t, err, "failed to unprotect data: invalid data")

	err = UnprotectObject(ctx, other, token, &s2)
	assert.EqualError(t, err, "failed to unprotect data: failed to unprotect: unable to decrypt")

	_, err = ProtectObject(ctx, p, func() {})
	assert.ErrorContains(t, err, "failed to marshal")
}

type state struct {
	Str string `json:"str,omitempty"`
	ID  uint64 `json:"id,omitempty"`
}
