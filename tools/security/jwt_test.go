package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))

	tok, hash, exp, err := Generate(opts, "u-1", []string{"chat"})
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := Verify(opts, tok, hash)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject())
}

func TestVerifyRejects(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))
	tok, _, _, err := Generate(opts, "u-1", nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		opts Options
		tok  string
		hash string
	}{
		{name: "wrong secret", opts: DefaultOptions([]byte("other")), tok: tok},
		{name: "hash mismatch", opts: opts, tok: tok, hash: "sha256:00"},
		{name: "garbage", opts: opts, tok: "not-a-jwt"},
		{name: "bad alg", opts: Options{Secret: opts.Secret, Alg: "RS256"}, tok: tok},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Verify(tt.opts, tt.tok, tt.hash)
			assert.Error(t, err)
		})
	}
}

func TestVerifyExpired(t *testing.T) {
	opts := Options{Secret: []byte("s"), Alg: "HS512", TTL: time.Millisecond}
	tok, _, _, err := Generate(opts, "u-2", nil)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	_, err = Verify(opts, tok, "")
	assert.Error(t, err)
}

func TestScopesAndIssuer(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))
	opts.Issuer = "chathub"

	tok, _, _, err := Generate(opts, "ops", []string{"presence:read"})
	require.NoError(t, err)

	claims, err := Verify(opts, tok, "")
	require.NoError(t, err)
	assert.True(t, claims.HasScope("presence:read"))
	assert.False(t, claims.HasScope("admin"))

	other := opts
	other.Issuer = "someone-else"
	_, err = Verify(other, tok, "")
	assert.Error(t, err)
}

func TestVerifyRejectsAlgSwap(t *testing.T) {
	secret := []byte("test-secret")
	tok, _, _, err := Generate(Options{Secret: secret, Alg: "HS384"}, "u-1", nil)
	require.NoError(t, err)

	_, err = Verify(DefaultOptions(secret), tok, "")
	assert.Error(t, err)
}
