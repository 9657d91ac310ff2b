package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasetoService_RoundTrip(t *testing.T) {
	svc, err := NewPasetoService(testKey)
	require.NoError(t, err)

	userID := uuid.New()
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)

	token, err := svc.CreateToken(userID, "secret-value", expiresAt)
	require.NoError(t, err)
	assert.Contains(t, token, "v4.local.")

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "secret-value", claims.Secret)
	assert.Equal(t, userID, claims.UserID)
	assert.True(t, expiresAt.Equal(claims.ExpiresAt))
}

func TestPasetoService_DoesNotEnforceExpiry(t *testing.T) {
	svc, err := NewPasetoService(testKey)
	require.NoError(t, err)

	token, err := svc.CreateToken(uuid.New(), "secret-value", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = svc.VerifyToken(token)
	assert.NoError(t, err)
}

func TestPasetoService_RejectsForeignTokens(t *testing.T) {
	svc, err := NewPasetoService(testKey)
	require.NoError(t, err)
	other, err := NewPasetoService([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)

	token, err := other.CreateToken(uuid.New(), "secret-value", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = svc.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.VerifyToken("v4.local.garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasetoService_KeyLength(t *testing.T) {
	_, err := NewPasetoService([]byte("short"))
	assert.Error(t, err)
}

func TestPasetoService_EmptySecret(t *testing.T) {
	svc, err := NewPasetoService(testKey)
	require.NoError(t, err)

	_, err = svc.CreateToken(uuid.New(), "", time.Now().Add(time.Hour))
	assert.Error(t, err)
}
