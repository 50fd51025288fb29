package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain_UnexpectedArgument(t *testing.T) {
	out := bytes.NewBuffer([]byte{})
	errout := bytes.NewBuffer([]byte{})
	rc := 0
	exit := func(c int) {
		rc = c
	}

	realMain([]string{"jose-tool", "version"}, out, errout, exit)
	assert.Equal(t, 1, rc)
	assert.Equal(t, "jose-tool: error: unexpected argument version\n", errout.String())
	assert.Empty(t, out.String())
}

func TestMain_SignVerify(t *testing.T) {
	dir := t.TempDir()
	key := filepath.Join(dir, "hs256.json")
	payload := filepath.Join(dir, "payload.txt")
	token := filepath.Join(dir, "token.txt")
	require.NoError(t, os.WriteFile(key, []byte(`{"kty":"oct","kid":"k1","k":"AyM1SysPpbyDfgZld3umj1qzKObwVMkoqQ-EstJQLr_T-1qS0gZH75aKtMN3Yj0iPS4hcgUuTwjAzZr1Z9CAow"}`), 0o600))
	require.NoError(t, os.WriteFile(payload, []byte("hello"), 0o600))

	out := bytes.NewBuffer([]byte{})
	errout := bytes.NewBuffer([]byte{})
	rc := 0
	exit := func(c int) {
		rc = c
	}

	realMain([]string{"jose-tool", "jws", "sign", "--key", key, "--alg", "HS256", "--in", payload}, out, errout, exit)
	require.Equal(t, 0, rc, errout.String())
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "."), 3)
	require.NoError(t, os.WriteFile(token, out.Bytes(), 0o600))

	out.Reset()
	realMain([]string{"jose-tool", "jws", "verify", "--keys", key, "--alg", "HS256", "--in", token}, out, errout, exit)
	require.Equal(t, 0, rc, errout.String())
	assert.Equal(t, "hello", out.String())

	out.Reset()
	realMain([]string{"jose-tool", "jws", "verify", "--keys", key, "--alg", "HS512", "--in", token}, out, errout, exit)
	assert.Equal(t, 1, rc)
	assert.Contains(t, errout.String(), "jose-tool: error:")
}
