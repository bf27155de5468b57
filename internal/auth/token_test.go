package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToken(t *testing.T) {
	token, hash, err := NewToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Len(t, hash, 64, "sha-256 hex digest")
	assert.Equal(t, HashToken(token), hash)

	token2, hash2, err := NewToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
	assert.NotEqual(t, hash, hash2)
}

func TestVerifyToken(t *testing.T) {
	token, hash, err := NewToken()
	require.NoError(t, err)

	assert.True(t, VerifyToken(token, hash))
	assert.False(t, VerifyToken("wrong", hash))
	assert.False(t, VerifyToken(token, HashToken("other")))
}
