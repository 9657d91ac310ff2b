package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/blog-api/internal/database"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("value already exists")
)

// uniqueViolation is the SQLSTATE postgres reports for unique index conflicts
const uniqueViolation = "23505"

// constraintFields maps unique index names to the field they protect
var constraintFields = map[string]string{
	"users_username_key": "username",
	"users_email_key":    "email",
	"users_phone_key":    "phone",
}

// DuplicateError reports which unique fields collided with an existing active user
type DuplicateError struct {
	Fields []string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s already exists", strings.Join(e.Fields, ", "))
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// Repository handles user data persistence.
// Every query goes through activeOnly so soft-deleted accounts are invisible.
type Repository struct {
	db bun.IDB
}

func NewRepository(db bun.IDB) *Repository {
	return &Repository{db: db}
}

// activeOnly filters out soft-deleted rows
func activeOnly(q bun.QueryBuilder) bun.QueryBuilder {
	return q.Where("deleted_at IS NULL")
}

// Create inserts a new user. Username and email are normalized to lower case.
func (r *Repository) Create(ctx context.Context, nu NewUser) (*User, error) {
	dbUser := &database.User{
		Name:         nu.Name,
		Username:     strings.ToLower(nu.Username),
		Email:        strings.ToLower(nu.Email),
		Phone:        nu.Phone,
		PasswordHash: nu.PasswordHash,
		Avatar:       nu.Avatar,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if dup := asDuplicate(err); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByID retrieves an active user by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		ApplyQueryBuilder(activeOnly).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByEmail retrieves an active user by email, ignoring case
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		ApplyQueryBuilder(activeOnly).
		Where("lower(email) = lower(?)", email).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByEmailOrUsername retrieves an active user whose email or username matches identifier.
// The email owner is preferred when both match different rows.
func (r *Repository) GetByEmailOrUsername(ctx context.Context, identifier string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		ApplyQueryBuilder(activeOnly).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("lower(email) = lower(?)", identifier).
				WhereOr("lower(username) = lower(?)", identifier)
		}).
		// an email match wins over a username that happens to equal it
		OrderExpr("lower(email) = lower(?) DESC", identifier).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by identifier: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// FindConflicts returns the unique fields already taken by another active user.
// Empty arguments are not checked; excludeID skips the caller's own row.
// This is a best-effort pre-check, the unique indexes remain authoritative.
func (r *Repository) FindConflicts(ctx context.Context, username, email, phone string, excludeID uuid.UUID) ([]string, error) {
	if username == "" && email == "" && phone == "" {
		return nil, nil
	}

	var rows []database.User
	q := r.db.NewSelect().
		Model(&rows).
		Column("username", "email", "phone").
		ApplyQueryBuilder(activeOnly).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			if username != "" {
				q = q.WhereOr("lower(username) = lower(?)", username)
			}
			if email != "" {
				q = q.WhereOr("lower(email) = lower(?)", email)
			}
			if phone != "" {
				q = q.WhereOr("phone = ?", phone)
			}
			return q
		})
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to check unique fields: %w", err)
	}

	taken := map[string]bool{}
	for _, row := range rows {
		if username != "" && strings.EqualFold(row.Username, username) {
			taken["username"] = true
		}
		if email != "" && strings.EqualFold(row.Email, email) {
			taken["email"] = true
		}
		if phone != "" && row.Phone == phone {
			taken["phone"] = true
		}
	}

	fields := make([]string, 0, len(taken))
	for _, f := range []string{"username", "email", "phone"} {
		if taken[f] {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// MarkEmailAsVerified flips is_verified to true
func (r *Repository) MarkEmailAsVerified(ctx context.Context, userID uuid.UUID) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		ApplyQueryBuilder(activeOnly).
		Set("is_verified = ?", true).
		Set("updated_at = NOW()").
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark email as verified: %w", err)
	}

	return requireRow(result)
}

// UpdatePassword replaces a user's password hash
func (r *Repository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		ApplyQueryBuilder(activeOnly).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = NOW()").
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return requireRow(result)
}

// UpdateProfile applies a partial profile update and returns the stored result
func (r *Repository) UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (*User, error) {
	dbUser := new(database.User)
	q := r.db.NewUpdate().
		Model(dbUser).
		ApplyQueryBuilder(activeOnly).
		Where("id = ?", userID)

	if upd.Name != nil {
		q = q.Set("name = ?", *upd.Name)
	}
	if upd.Username != nil {
		q = q.Set("username = ?", strings.ToLower(*upd.Username))
	}
	if upd.Email != nil {
		q = q.Set("email = ?", strings.ToLower(*upd.Email))
	}
	if upd.Phone != nil {
		q = q.Set("phone = ?", *upd.Phone)
	}
	if upd.Avatar != nil {
		q = q.Set("avatar = ?", *upd.Avatar)
	}

	result, err := q.Set("updated_at = NOW()").Returning("*").Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if dup := asDuplicate(err); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if err := requireRow(result); err != nil {
		return nil, err
	}

	return mapDBUserToModel(dbUser), nil
}

// SoftDelete marks the user as deleted without removing the row
func (r *Repository) SoftDelete(ctx context.Context, userID uuid.UUID) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		ApplyQueryBuilder(activeOnly).
		Set("deleted_at = NOW()").
		Set("updated_at = NOW()").
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// asDuplicate converts a unique violation into a DuplicateError, or returns nil
func asDuplicate(err error) *DuplicateError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return nil
	}

	field, ok := constraintFields[pqErr.Constraint]
	if !ok {
		field = "unknown"
	}
	return &DuplicateError{Fields: []string{field}}
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:           dbu.ID,
		Name:         dbu.Name,
		Username:     dbu.Username,
		Email:        dbu.Email,
		Phone:        dbu.Phone,
		PasswordHash: dbu.PasswordHash,
		IsVerified:   dbu.IsVerified,
		Avatar:       dbu.Avatar,
		CreatedAt:    dbu.CreatedAt,
		UpdatedAt:    dbu.UpdatedAt,
	}
}
