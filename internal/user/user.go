package user

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Sentinel errors for the user package.
var (
	ErrNotFound        = errors.New("user not found")
	ErrAlreadyExists   = errors.New("user already exists")
	ErrInvalidUsername = errors.New("username must be 1-32 characters")
)

// User is an account record. Identity is asserted by clients as an opaque UUID and checked against this table; there
// are no credentials.
type User struct {
	UUID     uuid.UUID
	Username string
	IsAdmin  bool
}

// ValidateUsername checks that a display name is non-empty after trimming and at most 32 runes. The trimmed name is
// returned.
func ValidateUsername(username string) (string, error) {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > 32 {
		return "", ErrInvalidUsername
	}
	return trimmed, nil
}

// Repository defines the data-access contract for user accounts.
type Repository interface {
	Create(ctx context.Context, u User) error
	GetByUUID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
