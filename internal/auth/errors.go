package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("user does not exist")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWrongPassword      = errors.New("current password is wrong")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrAlreadyVerified    = errors.New("email already verified")

	// ErrUnavailable marks infrastructure failures (database, redis) so callers
	// can tell an outage apart from a definitive "not found".
	ErrUnavailable = errors.New("service temporarily unavailable")

	// ErrTokenNotFound is returned by token repositories when no row matches
	ErrTokenNotFound = errors.New("token not found")
)

// ValidationError carries per-field messages for rejected input
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a message for field unless one is already present
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

// orNil returns nil when no field failed so callers can return it directly
func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// DuplicateMessage is the message reported for a unique field already in use
func DuplicateMessage(field string) string {
	return fmt.Sprintf("This %s is exist", field)
}

// NewDuplicateError builds a ValidationError for every field already taken
func NewDuplicateError(fields []string) *ValidationError {
	verr := &ValidationError{}
	for _, f := range fields {
		verr.Add(f, DuplicateMessage(f))
	}
	return verr
}

func unavailable(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, ErrUnavailable, err)
}
