package message

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message types.
const (
	TypeText  = "text"
	TypeMedia = "media"
)

// History listing bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Sentinel errors for the message package.
var (
	ErrEmptyContent = errors.New("message content is empty")
	ErrInvalidType  = errors.New("invalid message type")
)

// Message is a persisted chat message. For media messages Content holds the stored file name rather than inline
// text, so history eviction can unlink the file alongside the row.
type Message struct {
	ID        int64
	Type      string
	Content   string
	UserUUID  *uuid.UUID
	Username  *string
	CreatedAt time.Time
}

// Stored describes a message after it has been written: the assigned id, the database timestamp, and the media keys
// of any messages evicted to keep history under the cap.
type Stored struct {
	ID          int64
	CreatedAt   time.Time
	EvictedKeys []string
}

// ClampLimit normalises a requested history page size into [1, MaxLimit], substituting DefaultLimit for
// non-positive values.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Repository defines the data-access contract for chat history.
type Repository interface {
	// Add persists a message and evicts the oldest rows beyond the history cap in the same transaction.
	Add(ctx context.Context, msgType, content string, author uuid.UUID) (*Stored, error)
	// Recent returns up to limit messages, newest first, with author usernames resolved.
	Recent(ctx context.Context, limit int) ([]Message, error)
	Count(ctx context.Context) (int, error)
}
