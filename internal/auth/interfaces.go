package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/blog-api/internal/user"
)

// TokenService seals access-token secrets into a tamper-proof envelope.
// PasetoService (PASETO v4.local) is the implementation.
type TokenService interface {
	CreateToken(userID uuid.UUID, secret string, expiresAt time.Time) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// TokenRepository stores token hashes. Implementations: Repository (postgres)
// and RedisRepository. Lookups by an unknown value return ErrTokenNotFound.
type TokenRepository interface {
	Create(ctx context.Context, userID uuid.UUID, kind TokenKind, secret string, expiresAt time.Time) error
	Find(ctx context.Context, kind TokenKind, secret string) (*Token, error)
	// Consume deletes and returns the token in one step; of several concurrent
	// callers at most one receives it.
	Consume(ctx context.Context, kind TokenKind, secret string) (*Token, error)
	// Delete removes the token if present. A missing token is not an error.
	Delete(ctx context.Context, kind TokenKind, secret string) error
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserStore is the subset of the user repository the service needs
type UserStore interface {
	Create(ctx context.Context, nu user.NewUser) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByEmailOrUsername(ctx context.Context, identifier string) (*user.User, error)
	FindConflicts(ctx context.Context, username, email, phone string, excludeID uuid.UUID) ([]string, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	MarkEmailAsVerified(ctx context.Context, userID uuid.UUID) error
}

// EmailService delivers links out-of-band
type EmailService interface {
	SendVerificationEmail(ctx context.Context, toEmail, token string) error
	SendPasswordResetEmail(ctx context.Context, toEmail, token string) error
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(encodedHash, password string) bool
}

// MetricsRecorder receives auth events. internal/metrics.Collector implements it.
type MetricsRecorder interface {
	Operation(op, outcome string)
	TokenIssued(kind string)
	TokenConsumed(kind string)
	NotificationFailed(kind string)
	TokensPruned(n int64)
}

// RateLimiter throttles abusive clients on unauthenticated endpoints
type RateLimiter interface {
	CheckIPRateLimitWithPurpose(ctx context.Context, ip, purpose string) (bool, error)
	RecordIPRequestWithPurpose(ctx context.Context, ip, purpose string) error
	CheckEmailCooldown(ctx context.Context, email string) (bool, error)
	SetEmailCooldown(ctx context.Context, email string) error
}

type nopMetrics struct{}

func (nopMetrics) Operation(string, string)  {}
func (nopMetrics) TokenIssued(string)        {}
func (nopMetrics) TokenConsumed(string)      {}
func (nopMetrics) NotificationFailed(string) {}
func (nopMetrics) TokensPruned(int64)        {}
