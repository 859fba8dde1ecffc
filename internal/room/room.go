package room

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a voice room does not exist.
var ErrNotFound = errors.New("voice room not found")

// DefaultRoom is the voice room every deployment starts with.
const DefaultRoom = "General"

// Room is a persisted voice channel. Runtime membership and presence live in the gateway; this is only the catalogue
// of valid room names.
type Room struct {
	ID   int64
	Name string
}

// Repository defines the data-access contract for voice rooms.
type Repository interface {
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]Room, error)
	Create(ctx context.Context, name string) (*Room, error)
	EnsureDefaults(ctx context.Context) error
}
