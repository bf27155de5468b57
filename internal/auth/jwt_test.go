package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewJWTManagerRejectsShortSecret(t *testing.T) {
	_, err := NewJWTManager("too-short", time.Hour)
	assert.Error(t, err)
}

func TestIssueAndValidateToken(t *testing.T) {
	mgr, err := NewJWTManager(testSecret, time.Hour)
	require.NoError(t, err)

	token, exp, err := mgr.IssueToken("user_123", "admin")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user_123", claims.ClerkUserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "metriq", claims.Issuer)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	mgr, err := NewJWTManager(testSecret, time.Hour)
	require.NoError(t, err)
	other, err := NewJWTManager("fedcba9876543210fedcba9876543210", time.Hour)
	require.NoError(t, err)

	token, _, err := mgr.IssueToken("user_123", "user")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	mgr, err := NewJWTManager(testSecret, -time.Minute)
	require.NoError(t, err)

	token, _, err := mgr.IssueToken("user_123", "user")
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	mgr, err := NewJWTManager(testSecret, time.Hour)
	require.NoError(t, err)

	_, err = mgr.ValidateToken("not.a.jwt")
	assert.Error(t, err)
	_, err = mgr.ValidateToken("")
	assert.Error(t, err)
}
