package room

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley-server/internal/postgres"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed room repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Exists reports whether a voice room with the given name is in the catalogue.
func (r *PGRepository) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM voice_rooms WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check voice room: %w", err)
	}
	return exists, nil
}

// List returns all voice rooms ordered by id.
func (r *PGRepository) List(ctx context.Context) ([]Room, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM voice_rooms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query voice rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var rm Room
		if err := rows.Scan(&rm.ID, &rm.Name); err != nil {
			return nil, fmt.Errorf("scan voice room: %w", err)
		}
		rooms = append(rooms, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voice rooms: %w", err)
	}
	return rooms, nil
}

// Create inserts a new voice room and returns it.
func (r *PGRepository) Create(ctx context.Context, name string) (*Room, error) {
	var rm Room
	rm.Name = name
	err := r.db.QueryRow(ctx,
		`INSERT INTO voice_rooms (name) VALUES ($1) RETURNING id`, name,
	).Scan(&rm.ID)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, fmt.Errorf("voice room %q already exists", name)
		}
		return nil, fmt.Errorf("insert voice room: %w", err)
	}
	return &rm, nil
}

// EnsureDefaults makes sure the default room exists. Safe to call on every startup.
func (r *PGRepository) EnsureDefaults(ctx context.Context) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO voice_rooms (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, DefaultRoom,
	)
	if err != nil {
		return fmt.Errorf("seed default voice room: %w", err)
	}
	return nil
}
