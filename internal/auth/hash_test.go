package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAPIKey(t *testing.T) {
	key, hash, err := NewAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "mq_"))
	assert.Contains(t, hash, "$")

	ok, err := VerifyAPIKey(key, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	// Each call mints distinct material.
	key2, hash2, err := NewAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, key2)
	assert.NotEqual(t, hash, hash2)
}

func TestVerifyAPIKeyRejectsWrongKey(t *testing.T) {
	_, hash, err := NewAPIKey()
	require.NoError(t, err)

	ok, err := VerifyAPIKey("mq_not-the-key", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashAPIKeyIsSalted(t *testing.T) {
	h1, err := HashAPIKey("mq_same-key")
	require.NoError(t, err)
	h2, err := HashAPIKey("mq_same-key")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	for _, h := range []string{h1, h2} {
		ok, err := VerifyAPIKey("mq_same-key", h)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestVerifyAPIKeyMalformedHash(t *testing.T) {
	_, err := VerifyAPIKey("mq_key", "no-dollar-separator")
	assert.Error(t, err)

	_, err = VerifyAPIKey("mq_key", "!!notbase64$also-not")
	assert.Error(t, err)
}
