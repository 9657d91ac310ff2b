package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/blog-api/internal/database"
)

// Repository handles token persistence in postgres
type Repository struct {
	db bun.IDB
}

func NewRepository(db bun.IDB) *Repository {
	return &Repository{db: db}
}

// Create stores the hash of secret
func (r *Repository) Create(ctx context.Context, userID uuid.UUID, kind TokenKind, secret string, expiresAt time.Time) error {
	dbToken := &database.Token{
		UserID:    userID,
		Kind:      string(kind),
		TokenHash: hashToken(secret),
		ExpiresAt: expiresAt,
	}

	_, err := r.db.NewInsert().
		Model(dbToken).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store %s token: %w", kind, err)
	}

	return nil
}

// Find retrieves a token by kind and secret without consuming it
func (r *Repository) Find(ctx context.Context, kind TokenKind, secret string) (*Token, error) {
	dbToken := new(database.Token)
	err := r.db.NewSelect().
		Model(dbToken).
		Where("token_hash = ?", hashToken(secret)).
		Where("kind = ?", string(kind)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get %s token: %w", kind, err)
	}

	return mapDBTokenToModel(dbToken), nil
}

// Consume deletes the token and returns the deleted row in a single statement
func (r *Repository) Consume(ctx context.Context, kind TokenKind, secret string) (*Token, error) {
	dbToken := new(database.Token)
	result, err := r.db.NewDelete().
		Model(dbToken).
		Where("token_hash = ?", hashToken(secret)).
		Where("kind = ?", string(kind)).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to consume %s token: %w", kind, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrTokenNotFound
	}

	return mapDBTokenToModel(dbToken), nil
}

// Delete removes a token if it exists
func (r *Repository) Delete(ctx context.Context, kind TokenKind, secret string) error {
	_, err := r.db.NewDelete().
		Model((*database.Token)(nil)).
		Where("token_hash = ?", hashToken(secret)).
		Where("kind = ?", string(kind)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete %s token: %w", kind, err)
	}

	return nil
}

// DeleteAllForUser revokes every token a user holds
func (r *Repository) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := r.db.NewDelete().
		Model((*database.Token)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user tokens: %w", err)
	}

	return result.RowsAffected()
}

// CleanupExpired removes tokens whose expiry is at or before now
func (r *Repository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.NewDelete().
		Model((*database.Token)(nil)).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}

	return result.RowsAffected()
}

// mapDBTokenToModel converts database model to domain model
func mapDBTokenToModel(dbt *database.Token) *Token {
	return &Token{
		ID:        dbt.ID,
		UserID:    dbt.UserID,
		Kind:      TokenKind(dbt.Kind),
		TokenHash: dbt.TokenHash,
		ExpiresAt: dbt.ExpiresAt,
		CreatedAt: dbt.CreatedAt,
	}
}
