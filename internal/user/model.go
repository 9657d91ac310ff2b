package user

import (
	"time"

	"github.com/google/uuid"
)

// User is the public identity record. The password hash never leaves the service layer.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"` // Never expose password hash in JSON
	IsVerified   bool      `json:"is_verified"`
	Avatar       *string   `json:"avatar"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewUser holds the fields required to create an account
type NewUser struct {
	Name         string
	Username     string
	Email        string
	Phone        string
	PasswordHash string
	Avatar       *string
}

// ProfileUpdate is a partial update; nil fields are left unchanged
type ProfileUpdate struct {
	Name     *string
	Username *string
	Email    *string
	Phone    *string
	Avatar   *string
}

// IsEmpty reports whether the update changes nothing
func (p ProfileUpdate) IsEmpty() bool {
	return p.Name == nil && p.Username == nil && p.Email == nil && p.Phone == nil && p.Avatar == nil
}
