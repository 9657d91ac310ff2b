package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/blog-api/internal/logging"
	"github.com/redmonkez12/blog-api/internal/user"
	"github.com/redmonkez12/blog-api/internal/validation"
)

// Config holds token lifetimes and the password policy
type Config struct {
	AccessTokenDuration       time.Duration
	VerificationTokenDuration time.Duration
	PasswordResetDuration     time.Duration
	PasswordMinLength         int
	NotificationTimeout       time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		AccessTokenDuration:       7 * 24 * time.Hour,
		VerificationTokenDuration: 60 * time.Minute,
		PasswordResetDuration:     60 * time.Minute,
		PasswordMinLength:         8,
		NotificationTimeout:       30 * time.Second,
	}
}

// RegisterInput is the registration payload
type RegisterInput struct {
	Name     string  `json:"name" validate:"required,max=255"`
	Username string  `json:"username" validate:"required,max=255,excludes=@"`
	Email    string  `json:"email" validate:"required,email,max=254"`
	Phone    string  `json:"phone" validate:"required,max=32"`
	Password string  `json:"password" validate:"required"`
	Avatar   *string `json:"avatar,omitempty" validate:"omitempty,max=2048"`
}

// Session is the result of a successful login or registration
type Session struct {
	User  *user.User
	Token *AccessToken
}

// Option customizes a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records auth events
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// Service handles authentication business logic
type Service struct {
	userRepo     UserStore
	tokenRepo    TokenRepository
	hasher       PasswordHasher
	tokenService TokenService
	emailService EmailService
	metrics      MetricsRecorder
	validator    *validation.Validator
	logger       *logging.Logger
	cfg          Config
	now          func() time.Time

	// in-flight notifications, drained by Wait
	notifications sync.WaitGroup
}

func NewService(
	userRepo UserStore,
	tokenRepo TokenRepository,
	hasher PasswordHasher,
	tokenService TokenService,
	emailService EmailService,
	logger *logging.Logger,
	cfg Config,
	opts ...Option,
) *Service {
	s := &Service{
		userRepo:     userRepo,
		tokenRepo:    tokenRepo,
		hasher:       hasher,
		tokenService: tokenService,
		emailService: emailService,
		metrics:      nopMetrics{},
		validator:    validation.New(),
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates by email or username and issues an access token
func (s *Service) Login(ctx context.Context, identifier, password string) (_ *Session, err error) {
	defer s.observe("login", &err)

	identifier = strings.TrimSpace(identifier)
	verr := &ValidationError{}
	if identifier == "" {
		verr.Add("uid", "The uid is required")
	}
	if password == "" {
		verr.Add("password", "The password is required")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	u, err := s.userRepo.GetByEmailOrUsername(ctx, identifier)
	if err != nil {
		return nil, s.userLookupError(err)
	}

	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.issueAccessToken(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	return &Session{User: u, Token: token}, nil
}

// Register creates an unverified account, issues an access token and
// sends the email verification link out-of-band
func (s *Service) Register(ctx context.Context, in RegisterInput) (_ *Session, err error) {
	defer s.observe("register", &err)

	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)

	verr := &ValidationError{Fields: s.validator.Struct(in)}
	s.checkPasswordPolicy(verr, "password", in.Password)
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	taken, err := s.userRepo.FindConflicts(ctx, in.Username, in.Email, in.Phone, uuid.Nil)
	if err != nil {
		return nil, unavailable("failed to check unique fields", err)
	}
	if len(taken) > 0 {
		return nil, NewDuplicateError(taken)
	}

	passwordHash, _, err := s.hashPasswordIfChanged("", in.Password)
	if err != nil {
		return nil, err
	}

	newUser, err := s.userRepo.Create(ctx, user.NewUser{
		Name:         in.Name,
		Username:     in.Username,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: passwordHash,
		Avatar:       in.Avatar,
	})
	if err != nil {
		// Lost a race with a concurrent registration
		var dup *user.DuplicateError
		if errors.As(err, &dup) {
			return nil, NewDuplicateError(dup.Fields)
		}
		return nil, unavailable("failed to create user", err)
	}

	token, err := s.issueAccessToken(ctx, newUser.ID)
	if err != nil {
		return nil, err
	}

	if err := s.sendVerification(ctx, newUser); err != nil {
		// The account exists; the user can ask for a new link later
		s.logger.Warn("failed to issue verification token", "user_id", newUser.ID, "error", err)
	}

	return &Session{User: newUser, Token: token}, nil
}

// Logout revokes the presented access token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, accessToken string) (err error) {
	defer s.observe("logout", &err)

	claims, err := s.tokenService.VerifyToken(accessToken)
	if err != nil {
		return nil
	}

	if err := s.tokenRepo.Delete(ctx, KindAccess, claims.Secret); err != nil {
		return unavailable("failed to revoke access token", err)
	}

	return nil
}

// ForgotPassword issues a password reset token and mails the reset link
func (s *Service) ForgotPassword(ctx context.Context, email string) (err error) {
	defer s.observe("forgot_password", &err)

	email = strings.TrimSpace(email)
	if email == "" {
		return &ValidationError{Fields: map[string]string{"email": "The email is required"}}
	}

	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return s.userLookupError(err)
	}

	token, _, err := s.issueToken(ctx, u.ID, KindPasswordReset, s.cfg.PasswordResetDuration)
	if err != nil {
		return err
	}

	s.dispatch("password_reset", func(ctx context.Context) error {
		return s.emailService.SendPasswordResetEmail(ctx, u.Email, token)
	})

	return nil
}

// ResetPassword consumes a reset token and sets a new password
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer s.observe("reset_password", &err)

	verr := &ValidationError{}
	s.checkPasswordPolicy(verr, "new_password", newPassword)
	if err := verr.orNil(); err != nil {
		return err
	}

	t, err := s.consume(ctx, KindPasswordReset, token)
	if err != nil {
		return err
	}

	u, err := s.userRepo.GetByID(ctx, t.UserID)
	if err != nil {
		return s.userLookupError(err)
	}

	return s.storePassword(ctx, u, newPassword)
}

// ChangePassword replaces the password after checking the current one
func (s *Service) ChangePassword(ctx context.Context, email, currentPassword, newPassword string) (err error) {
	defer s.observe("change_password", &err)

	email = strings.TrimSpace(email)
	verr := &ValidationError{}
	if email == "" {
		verr.Add("email", "The email is required")
	}
	if currentPassword == "" {
		verr.Add("current_password", "The current_password is required")
	}
	if err := verr.orNil(); err != nil {
		return err
	}

	// an unknown account is reported before the new password is judged
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return s.userLookupError(err)
	}

	s.checkPasswordPolicy(verr, "new_password", newPassword)
	if err := verr.orNil(); err != nil {
		return err
	}

	if !s.hasher.Verify(u.PasswordHash, currentPassword) {
		return ErrWrongPassword
	}

	return s.storePassword(ctx, u, newPassword)
}

// VerifyEmail consumes a verification token and marks the owner verified
func (s *Service) VerifyEmail(ctx context.Context, token string) (err error) {
	defer s.observe("verify_email", &err)

	t, err := s.consume(ctx, KindEmailVerification, token)
	if err != nil {
		return err
	}

	u, err := s.userRepo.GetByID(ctx, t.UserID)
	if err != nil {
		return s.userLookupError(err)
	}

	if err := s.userRepo.MarkEmailAsVerified(ctx, u.ID); err != nil {
		return s.userLookupError(err)
	}

	return nil
}

// RefreshToken trades a live access token for a fresh one.
// The old token is consumed so it cannot be used again.
func (s *Service) RefreshToken(ctx context.Context, oldToken string) (_ *AccessToken, err error) {
	defer s.observe("refresh_token", &err)

	claims, err := s.tokenService.VerifyToken(oldToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	t, err := s.consume(ctx, KindAccess, claims.Secret)
	if err != nil {
		return nil, err
	}
	if t.UserID != claims.UserID {
		return nil, ErrInvalidToken
	}

	u, err := s.userRepo.GetByID(ctx, t.UserID)
	if err != nil {
		return nil, s.userLookupError(err)
	}

	return s.issueAccessToken(ctx, u.ID)
}

// Authenticate resolves an access token to its active owner
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*user.User, error) {
	claims, err := s.tokenService.VerifyToken(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	t, err := s.tokenRepo.Find(ctx, KindAccess, claims.Secret)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, unavailable("failed to look up access token", err)
	}
	if t.IsExpired(s.now()) || t.UserID != claims.UserID {
		return nil, ErrInvalidToken
	}

	u, err := s.userRepo.GetByID(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, unavailable("failed to load user", err)
	}

	return u, nil
}

// ResendVerification issues a fresh verification link for an unverified user
func (s *Service) ResendVerification(ctx context.Context, userID uuid.UUID) (err error) {
	defer s.observe("resend_verification", &err)

	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return s.userLookupError(err)
	}

	if u.IsVerified {
		return ErrAlreadyVerified
	}

	return s.sendVerification(ctx, u)
}

// RevokeAll deletes every token held by a user
func (s *Service) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.tokenRepo.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, unavailable("failed to revoke user tokens", err)
	}
	return n, nil
}

// PruneExpiredTokens removes expired tokens from the store
func (s *Service) PruneExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.tokenRepo.CleanupExpired(ctx, s.now())
	if err != nil {
		return 0, unavailable("failed to prune expired tokens", err)
	}

	s.metrics.TokensPruned(n)
	return n, nil
}

// Wait blocks until in-flight notifications have finished
func (s *Service) Wait() {
	s.notifications.Wait()
}

// hashPasswordIfChanged returns the hash to persist for plain.
// When plain already matches currentHash the existing hash is kept.
func (s *Service) hashPasswordIfChanged(currentHash, plain string) (string, bool, error) {
	if currentHash != "" && s.hasher.Verify(currentHash, plain) {
		return currentHash, false, nil
	}

	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return "", false, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, true, nil
}

func (s *Service) storePassword(ctx context.Context, u *user.User, plain string) error {
	hash, changed, err := s.hashPasswordIfChanged(u.PasswordHash, plain)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if err := s.userRepo.UpdatePassword(ctx, u.ID, hash); err != nil {
		return s.userLookupError(err)
	}
	return nil
}

func (s *Service) checkPasswordPolicy(verr *ValidationError, field, password string) {
	switch {
	case password == "":
		verr.Add(field, fmt.Sprintf("The %s is required", field))
	case len(password) < s.cfg.PasswordMinLength:
		verr.Add(field, fmt.Sprintf("The %s must be at least %d characters", field, s.cfg.PasswordMinLength))
	}
}

func (s *Service) sendVerification(ctx context.Context, u *user.User) error {
	token, _, err := s.issueToken(ctx, u.ID, KindEmailVerification, s.cfg.VerificationTokenDuration)
	if err != nil {
		return err
	}

	s.dispatch("email_verification", func(ctx context.Context) error {
		return s.emailService.SendVerificationEmail(ctx, u.Email, token)
	})
	return nil
}

// issueToken stores a new random secret and returns it with its expiry
func (s *Service) issueToken(ctx context.Context, userID uuid.UUID, kind TokenKind, ttl time.Duration) (string, time.Time, error) {
	secret, err := generateRandomToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate %s token: %w", kind, err)
	}

	expiresAt := s.now().Add(ttl)
	if err := s.tokenRepo.Create(ctx, userID, kind, secret, expiresAt); err != nil {
		return "", time.Time{}, unavailable("failed to store token", err)
	}

	s.metrics.TokenIssued(string(kind))
	return secret, expiresAt, nil
}

func (s *Service) issueAccessToken(ctx context.Context, userID uuid.UUID) (*AccessToken, error) {
	secret, expiresAt, err := s.issueToken(ctx, userID, KindAccess, s.cfg.AccessTokenDuration)
	if err != nil {
		return nil, err
	}

	sealed, err := s.tokenService.CreateToken(userID, secret, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	return &AccessToken{
		Type:      "bearer",
		Token:     sealed,
		ExpiresAt: expiresAt,
	}, nil
}

// consume takes a single-use token out of the store
func (s *Service) consume(ctx context.Context, kind TokenKind, secret string) (*Token, error) {
	if secret == "" {
		return nil, ErrInvalidToken
	}

	t, err := s.tokenRepo.Consume(ctx, kind, secret)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, unavailable("failed to consume token", err)
	}

	s.metrics.TokenConsumed(string(kind))

	if t.IsExpired(s.now()) {
		return nil, ErrInvalidToken
	}
	return t, nil
}

// dispatch runs a notification in the background, detached from the request
func (s *Service) dispatch(kind string, send func(ctx context.Context) error) {
	s.notifications.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.NotificationTimeout)
		defer cancel()

		if err := send(ctx); err != nil {
			s.logger.Warn("failed to send notification", "kind", kind, "error", err)
			s.metrics.NotificationFailed(kind)
		}
	})
}

func (s *Service) userLookupError(err error) error {
	if errors.Is(err, user.ErrNotFound) {
		return ErrNotFound
	}
	return unavailable("user store", err)
}

func (s *Service) observe(op string, errp *error) {
	s.metrics.Operation(op, Outcome(*errp))
}

// Outcome classifies an error for metrics labels
func Outcome(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrWrongPassword), errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrAlreadyVerified):
		return "rejected"
	default:
		return "error"
	}
}
