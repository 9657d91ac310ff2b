package auth

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/redmonkez12/blog-api/internal/httputil"
	"github.com/redmonkez12/blog-api/internal/logging"
	"github.com/redmonkez12/blog-api/internal/user"
)

// Rate limit purposes
const (
	purposeLogin          = "login"
	purposeRegister       = "register"
	purposeForgotPassword = "forgot_password"
)

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service       *Service
	rateLimiter   RateLimiter
	secureCookies bool
}

func NewHandler(service *Service, rateLimiter RateLimiter, secureCookies bool) *Handler {
	return &Handler{
		service:       service,
		rateLimiter:   rateLimiter,
		secureCookies: secureCookies,
	}
}

// LoginRequest represents the login request body.
// UID may be an email address or a username; Email is accepted as an alias.
type LoginRequest struct {
	UID      string `json:"uid" example:"alice"`
	Email    string `json:"email,omitempty" example:"alice@example.com"`
	Password string `json:"password" example:"s3cret-pass"`
}

// ForgotPasswordRequest represents the password reset request
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest carries the new password; the token is in the path
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// ChangePasswordRequest represents the change password request
type ChangePasswordRequest struct {
	Email           string `json:"email"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// RefreshRequest represents the token refresh request body
type RefreshRequest struct {
	Token string `json:"token"`
}

// SessionResponse is the user record with its access token
type SessionResponse struct {
	*user.User
	Token *AccessToken `json:"token"`
}

// RefreshResponse wraps a freshly issued access token
type RefreshResponse struct {
	Token *AccessToken `json:"token"`
}

// LogoutResponse acknowledges a logout
type LogoutResponse struct {
	Revoked bool `json:"revoked"`
}

// Login handles user login
// @Summary      User login
// @Description  Authenticate with email or username and receive an access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} SessionResponse
// @Failure      400 {object} httputil.ErrorResponse "Unknown user or invalid credentials"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      503 {object} httputil.ErrorResponse "Store unavailable"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, purposeLogin) {
		return
	}

	var req LoginRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	identifier := req.UID
	if identifier == "" {
		identifier = req.Email
	}
	logger = logger.WithFields(map[string]any{"uid": identifier})

	session, err := h.service.Login(r.Context(), identifier, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			logger.Warn("login failed: unknown user")
			httputil.RespondErrorWithCode(w, "Email or username does not exist", httputil.CodeUserNotFound, http.StatusBadRequest)
		case errors.Is(err, ErrInvalidCredentials):
			logger.Warn("login failed: invalid credentials")
			httputil.RespondErrorWithCode(w, "Invalid credentials", httputil.CodeInvalidCredentials, http.StatusBadRequest)
		default:
			respondServiceError(w, logger, "login", err)
		}
		return
	}

	logger.Info("user logged in successfully", "user_id", session.User.ID)

	if ShouldUseCookies(r) {
		SetAccessTokenCookie(w, session.Token.Token, session.Token.ExpiresAt, h.secureCookies)
	}
	httputil.RespondJSON(w, SessionResponse{User: session.User, Token: session.Token}, http.StatusOK)
}

// Register handles user registration
// @Summary      Register a new user
// @Description  Create an unverified account. A verification link is emailed to the user.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterInput true "Registration data"
// @Success      200 {object} SessionResponse
// @Failure      400 {object} httputil.ValidationErrorResponse "Validation failed or value already taken"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      503 {object} httputil.ErrorResponse "Store unavailable"
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, purposeRegister) {
		return
	}

	var req RegisterInput
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	session, err := h.service.Register(r.Context(), req)
	if err != nil {
		respondServiceError(w, logger, "registration", err)
		return
	}

	logger.Info("user registered successfully", "user_id", session.User.ID)

	if ShouldUseCookies(r) {
		SetAccessTokenCookie(w, session.Token.Token, session.Token.ExpiresAt, h.secureCookies)
	}
	httputil.RespondJSON(w, SessionResponse{User: session.User, Token: session.Token}, http.StatusOK)
}

// Logout handles user logout
// @Summary      User logout
// @Description  Revoke the presented access token. Revoking an unknown token still succeeds.
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} LogoutResponse
// @Failure      401 {object} httputil.ErrorResponse "Missing token"
// @Failure      503 {object} httputil.ErrorResponse "Store unavailable"
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	token, err := extractToken(r)
	if err != nil {
		code := httputil.CodeMissingAuth
		if errors.Is(err, errMalformedHeader) {
			code = httputil.CodeInvalidAuthHeader
		}
		httputil.RespondErrorWithCode(w, err.Error(), code, http.StatusUnauthorized)
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		respondServiceError(w, logger, "logout", err)
		return
	}

	ClearAuthCookies(w)

	logger.Info("user logged out successfully")
	httputil.RespondJSON(w, LogoutResponse{Revoked: true}, http.StatusOK)
}

// ForgotPassword handles password reset requests
// @Summary      Request password reset
// @Description  Email a single-use password reset link valid for 60 minutes
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ForgotPasswordRequest true "Email address"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ValidationErrorResponse "Invalid request body"
// @Failure      404 {object} httputil.ErrorResponse "Email does not exist"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /auth/forgot-password [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ForgotPasswordRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid forgot password request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if !h.allow(w, r, purposeForgotPassword) {
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	logger = logger.WithFields(map[string]any{"email": email})

	if email != "" {
		onCooldown, err := h.rateLimiter.CheckEmailCooldown(r.Context(), email)
		if err != nil {
			// Continue despite error to avoid blocking legitimate requests
			logger.Error("failed to check email cooldown", "error", err.Error())
		} else if onCooldown {
			logger.Warn("email on cooldown")
			httputil.RespondErrorWithCode(w, "please wait before requesting another reset", httputil.CodeCooldownActive, http.StatusTooManyRequests)
			return
		}
	}

	if err := h.service.ForgotPassword(r.Context(), email); err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Warn("password reset requested for unknown email")
			httputil.RespondErrorWithCode(w, "Email does not exist", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		respondServiceError(w, logger, "forgot password", err)
		return
	}

	if err := h.rateLimiter.SetEmailCooldown(r.Context(), email); err != nil {
		logger.Error("failed to set email cooldown", "error", err.Error())
	}

	logger.Info("password reset link issued")
	httputil.RespondMessage(w, "Reset password email sent successfully", http.StatusOK)
}

// ResetPassword handles password reset with token
// @Summary      Reset password
// @Description  Set a new password using the single-use token from the reset email
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        token   path string               true "Reset token"
// @Param        request body ResetPasswordRequest true "New password"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ValidationErrorResponse "Password policy violated"
// @Failure      404 {object} httputil.ErrorResponse "Invalid or expired token"
// @Router       /auth/reset-password/{token} [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ResetPasswordRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid reset password request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	err := h.service.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.NewPassword)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrNotFound) {
			logger.Warn("password reset failed: invalid or expired token")
			httputil.RespondErrorWithCode(w, "Invalid or expired reset link", httputil.CodeInvalidResetToken, http.StatusNotFound)
			return
		}
		respondServiceError(w, logger, "password reset", err)
		return
	}

	logger.Info("password reset successfully")
	httputil.RespondMessage(w, "Password changed successfully", http.StatusOK)
}

// ChangePassword handles password change with the current password
// @Summary      Change password
// @Description  Replace the password after verifying the current one
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ChangePasswordRequest true "Current and new password"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Unknown email, wrong password or policy violation"
// @Router       /auth/change-password [post]
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ChangePasswordRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid change password request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	err := h.service.ChangePassword(r.Context(), req.Email, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			logger.Warn("change password failed: unknown email")
			httputil.RespondErrorWithCode(w, "Email does not exist", httputil.CodeUserNotFound, http.StatusBadRequest)
		case errors.Is(err, ErrWrongPassword):
			logger.Warn("change password failed: wrong current password")
			httputil.RespondErrorWithCode(w, "Current password is wrong", httputil.CodeWrongPassword, http.StatusBadRequest)
		default:
			respondServiceError(w, logger, "change password", err)
		}
		return
	}

	logger.Info("password changed successfully")
	httputil.RespondMessage(w, "Password changed successfully", http.StatusOK)
}

// VerifyEmail handles email verification
// @Summary      Verify email address
// @Description  Mark the account verified using the single-use token from the verification email
// @Tags         auth
// @Produce      json
// @Param        token path string true "Verification token"
// @Success      200 {object} httputil.MessageResponse
// @Failure      404 {object} httputil.ErrorResponse "Invalid or expired token"
// @Router       /auth/verify/{token} [get]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if err := h.service.VerifyEmail(r.Context(), chi.URLParam(r, "token")); err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrNotFound) {
			logger.Warn("email verification failed: invalid or expired token")
			httputil.RespondErrorWithCode(w, "Invalid or expired verification link", httputil.CodeVerificationFailed, http.StatusNotFound)
			return
		}
		respondServiceError(w, logger, "email verification", err)
		return
	}

	logger.Info("email verified successfully")
	httputil.RespondMessage(w, "Email verified successfully", http.StatusOK)
}

// RefreshToken handles access token refresh
// @Summary      Refresh access token
// @Description  Exchange a live access token for a new one. The old token stops working.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RefreshRequest true "Current access token"
// @Success      200 {object} RefreshResponse
// @Failure      404 {object} httputil.ErrorResponse "Unknown or expired token"
// @Router       /auth/refresh-token [post]
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RefreshRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil && r.ContentLength != 0 {
		logger.Warn("invalid refresh request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	oldToken := strings.TrimSpace(req.Token)
	if oldToken == "" {
		// Fall back to the token the client authenticates with
		oldToken, _ = extractToken(r)
	}

	token, err := h.service.RefreshToken(r.Context(), oldToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrNotFound) {
			logger.Warn("token refresh failed: invalid or expired token")
			httputil.RespondErrorWithCode(w, "Token not found", httputil.CodeInvalidToken, http.StatusNotFound)
			return
		}
		respondServiceError(w, logger, "token refresh", err)
		return
	}

	logger.Info("access token refreshed successfully")

	if ShouldUseCookies(r) {
		SetAccessTokenCookie(w, token.Token, token.ExpiresAt, h.secureCookies)
	}
	httputil.RespondJSON(w, RefreshResponse{Token: token}, http.StatusOK)
}

// ResendVerification handles resending the verification email
// @Summary      Resend verification email
// @Description  Issue a new verification link for the authenticated, unverified user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Already verified"
// @Failure      401 {object} httputil.ErrorResponse "Not authenticated"
// @Router       /auth/resend-verification [post]
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	if err := h.service.ResendVerification(r.Context(), userID); err != nil {
		if errors.Is(err, ErrAlreadyVerified) {
			httputil.RespondErrorWithCode(w, "This email is already verified", httputil.CodeAlreadyVerified, http.StatusBadRequest)
			return
		}
		respondServiceError(w, logger, "resend verification", err)
		return
	}

	logger.Info("verification email resent")
	httputil.RespondMessage(w, "Verification email sent", http.StatusOK)
}

// allow applies the per-IP rate limit for purpose and writes 429 when exceeded.
// Limiter failures are logged and the request is let through.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, purpose string) bool {
	logger := logging.GetLoggerFromContext(r.Context())
	ip := getClientIP(r)

	exceeded, err := h.rateLimiter.CheckIPRateLimitWithPurpose(r.Context(), ip, purpose)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		httputil.RespondErrorWithCode(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return false
	}

	if err := h.rateLimiter.RecordIPRequestWithPurpose(r.Context(), ip, purpose); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}
	return true
}

// respondServiceError maps the errors every operation can return
func respondServiceError(w http.ResponseWriter, logger *logging.Logger, op string, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		logger.Warn(op+" failed: validation error", "fields", verr.Fields)
		httputil.RespondValidationError(w, verr.Fields, http.StatusBadRequest)
	case errors.Is(err, ErrUnavailable):
		logger.Error(op+" failed: store unavailable", "error", err.Error())
		httputil.RespondErrorWithCode(w, "service temporarily unavailable", httputil.CodeServiceUnavailable, http.StatusServiceUnavailable)
	default:
		logger.Error(op+" failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
	}
}

// getClientIP extracts the client IP address from the request.
// chi's RealIP middleware has already applied X-Forwarded-For / X-Real-IP.
func getClientIP(r *http.Request) string {
	// RemoteAddr is "IP:port" unless RealIP replaced it with a bare IP
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
