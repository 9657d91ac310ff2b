package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/redmonkez12/blog-api/internal/httputil"
	"github.com/redmonkez12/blog-api/internal/logging"
	"github.com/redmonkez12/blog-api/internal/user"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	UserContextKey  ContextKey = "user"
	TokenContextKey ContextKey = "access_token"
)

// Authenticator resolves an access token to its owner
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*user.User, error)
}

// Middleware handles authentication for protected routes
type Middleware struct {
	authenticator Authenticator
}

func NewMiddleware(authenticator Authenticator) *Middleware {
	return &Middleware{authenticator: authenticator}
}

// RequireAuth validates the access token against the token store
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.GetLoggerFromContext(r.Context())

		token, err := extractToken(r)
		if err != nil {
			if errors.Is(err, errMalformedHeader) {
				httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeInvalidAuthHeader, http.StatusUnauthorized)
				return
			}
			httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
			return
		}

		u, err := m.authenticator.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidToken):
				httputil.RespondErrorWithCode(w, "invalid or expired token", httputil.CodeInvalidToken, http.StatusUnauthorized)
			case errors.Is(err, ErrUnavailable):
				logger.Error("authentication unavailable", "error", err)
				httputil.RespondErrorWithCode(w, "service temporarily unavailable", httputil.CodeServiceUnavailable, http.StatusServiceUnavailable)
			default:
				logger.Error("authentication failed", "error", err)
				httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
			}
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, u)
		ctx = context.WithValue(ctx, TokenContextKey, token)
		ctx = logging.WithLogger(ctx, logger.WithFields(map[string]any{"user_id": u.ID.String()}))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserFromContext extracts the authenticated user from the request context
func GetUserFromContext(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(UserContextKey).(*user.User)
	return u, ok
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	u, ok := GetUserFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return u.ID, true
}

// GetTokenFromContext returns the access token the request authenticated with
func GetTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenContextKey).(string)
	return token, ok
}
