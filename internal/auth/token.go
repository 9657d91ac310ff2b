package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// TokenKind distinguishes what a stored token grants
type TokenKind string

const (
	KindAccess            TokenKind = "access"
	KindPasswordReset     TokenKind = "password_reset"
	KindEmailVerification TokenKind = "email_verification"
)

// tokenBytes is the entropy of every generated secret
const tokenBytes = 32

// Token is a persisted credential. Only the hash of the secret is kept.
type Token struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Kind      TokenKind
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the token is past its expiry at now
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// AccessToken is returned to clients after login, registration and refresh
type AccessToken struct {
	Type      string    `json:"type"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// hashToken returns the hex SHA-256 of a token secret
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// generateRandomToken creates a cryptographically secure random token
func generateRandomToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
