package message

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley-server/internal/postgres"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	max int
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed message repository. max is the history cap enforced by Add.
func NewPGRepository(db *pgxpool.Pool, max int, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, max: max, log: logger}
}

// Add inserts a message and trims history down to the configured cap. Both happen in one transaction so a crash
// cannot leave history over the cap with the new row committed. The media keys of evicted media rows are returned
// so the caller can unlink the underlying files once the transaction is durable.
func (r *PGRepository) Add(ctx context.Context, msgType, content string, author uuid.UUID) (*Stored, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if msgType != TypeText && msgType != TypeMedia {
		return nil, ErrInvalidType
	}

	var stored Stored
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO messages (type, content, user_uuid) VALUES ($1, $2, $3) RETURNING id, created_at`,
			msgType, content, author,
		).Scan(&stored.ID, &stored.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		rows, err := tx.Query(ctx,
			`DELETE FROM messages WHERE id IN (
				SELECT id FROM messages ORDER BY created_at DESC, id DESC OFFSET $1
			) RETURNING type, content`,
			r.max,
		)
		if err != nil {
			return fmt.Errorf("evict messages: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var evictedType, evictedContent string
			if err := rows.Scan(&evictedType, &evictedContent); err != nil {
				return fmt.Errorf("scan evicted message: %w", err)
			}
			if evictedType == TypeMedia {
				stored.EvictedKeys = append(stored.EvictedKeys, evictedContent)
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Recent returns up to limit messages, newest first. Authors deleted since posting come back with a nil username.
func (r *PGRepository) Recent(ctx context.Context, limit int) ([]Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT m.id, m.type, m.content, m.user_uuid, u.username, m.created_at
		 FROM messages m
		 LEFT JOIN users u ON u.uuid = m.user_uuid
		 ORDER BY m.created_at DESC, m.id DESC
		 LIMIT $1`,
		ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Type, &m.Content, &m.UserUUID, &m.Username, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// Count returns the number of persisted messages.
func (r *PGRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
