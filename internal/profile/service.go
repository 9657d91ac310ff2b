package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/redmonkez12/blog-api/internal/auth"
	"github.com/redmonkez12/blog-api/internal/logging"
	"github.com/redmonkez12/blog-api/internal/user"
	"github.com/redmonkez12/blog-api/internal/validation"
)

// UserStore is the subset of the user repository the profile service needs
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	FindConflicts(ctx context.Context, username, email, phone string, excludeID uuid.UUID) ([]string, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, upd user.ProfileUpdate) (*user.User, error)
	SoftDelete(ctx context.Context, userID uuid.UUID) error
}

// TokenRevoker removes every token a user holds
type TokenRevoker interface {
	RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error)
}

// UpdateInput is a partial profile update. Omitted fields are left unchanged.
type UpdateInput struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Username *string `json:"username,omitempty" validate:"omitempty,max=255,excludes=@"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Avatar   *string `json:"avatar,omitempty" validate:"omitempty,max=2048"`
}

// Service manages the authenticated user's own account
type Service struct {
	users     UserStore
	tokens    TokenRevoker
	validator *validation.Validator
	logger    *logging.Logger
}

func NewService(users UserStore, tokens TokenRevoker, logger *logging.Logger) *Service {
	return &Service{
		users:     users,
		tokens:    tokens,
		validator: validation.New(),
		logger:    logger,
	}
}

// Show returns the user's current profile
func (s *Service) Show(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, lookupError(err)
	}
	return u, nil
}

// Update validates and applies a partial update. Taken username, email or
// phone values are reported per field.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, in UpdateInput) (*user.User, error) {
	upd := user.ProfileUpdate{
		Name:     trimmed(in.Name),
		Username: lowered(in.Username),
		Email:    lowered(in.Email),
		Phone:    trimmed(in.Phone),
		Avatar:   in.Avatar,
	}

	fields := s.validator.Struct(UpdateInput{
		Name:     upd.Name,
		Username: upd.Username,
		Email:    upd.Email,
		Phone:    upd.Phone,
		Avatar:   upd.Avatar,
	})
	verr := &auth.ValidationError{Fields: fields}
	for field, v := range map[string]*string{
		"name":     upd.Name,
		"username": upd.Username,
		"email":    upd.Email,
		"phone":    upd.Phone,
	} {
		if v != nil && *v == "" {
			verr.Add(field, fmt.Sprintf("The %s is required", field))
		}
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	if upd.IsEmpty() {
		return s.Show(ctx, userID)
	}

	taken, err := s.users.FindConflicts(ctx, deref(upd.Username), deref(upd.Email), deref(upd.Phone), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check unique fields: %w: %w", auth.ErrUnavailable, err)
	}
	if len(taken) > 0 {
		return nil, auth.NewDuplicateError(taken)
	}

	u, err := s.users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		var dup *user.DuplicateError
		if errors.As(err, &dup) {
			return nil, auth.NewDuplicateError(dup.Fields)
		}
		return nil, lookupError(err)
	}

	return u, nil
}

// Delete soft-deletes the account and revokes all of its tokens
func (s *Service) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.SoftDelete(ctx, userID); err != nil {
		return lookupError(err)
	}

	n, err := s.tokens.RevokeAll(ctx, userID)
	if err != nil {
		// The account is already gone; remaining tokens fail authentication
		// because their owner no longer resolves
		s.logger.Error("failed to revoke tokens of deleted user", "user_id", userID, "error", err)
		return nil
	}

	s.logger.Info("user deleted", "user_id", userID, "revoked_tokens", n)
	return nil
}

func lookupError(err error) error {
	if errors.Is(err, user.ErrNotFound) {
		return auth.ErrNotFound
	}
	return fmt.Errorf("%w: %w", auth.ErrUnavailable, err)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func lowered(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*s))
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
