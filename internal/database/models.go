package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the persistence model for the users table.
// Username and email are stored lower-cased.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Name         string     `bun:"name,notnull"`
	Username     string     `bun:"username,notnull"`
	Email        string     `bun:"email,notnull"`
	Phone        string     `bun:"phone,notnull"`
	PasswordHash string     `bun:"password_hash,notnull"`
	IsVerified   bool       `bun:"is_verified,notnull,default:false"`
	Avatar       *string    `bun:"avatar"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	DeletedAt    *time.Time `bun:"deleted_at"`
}

// Token is the persistence model for issued tokens.
// Only the SHA-256 hash of the opaque value is stored.
type Token struct {
	bun.BaseModel `bun:"table:tokens,alias:t"`

	ID        uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	UserID    uuid.UUID `bun:"user_id,type:uuid,notnull"`
	Kind      string    `bun:"kind,notnull"`
	TokenHash string    `bun:"token_hash,notnull,unique"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
