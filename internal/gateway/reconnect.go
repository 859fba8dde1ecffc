package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoReconnectRecord is returned by Consume when no record exists for the user, either because the session left
// cleanly or because the TTL elapsed.
var ErrNoReconnectRecord = errors.New("no reconnect record")

// Record captures the room state of a vanished session so a same-identity reopen within the TTL can restore it.
type Record struct {
	Room        string      `json:"room"`
	IsMicMuted  bool        `json:"is_mic_muted"`
	IsDeafened  bool        `json:"is_deafened"`
	IsStreaming bool        `json:"is_streaming"`
	StreamingTo []uuid.UUID `json:"streaming_to"`
}

// ReconnectStore holds reconnect records in Valkey, keyed by user UUID. The key TTL doubles as the stale-entry
// sweep: a record not consumed within the window simply expires. Re-insertion overwrites; only the latest disconnect
// matters.
type ReconnectStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewReconnectStore creates a reconnect buffer with the given record lifetime.
func NewReconnectStore(rdb *redis.Client, ttl time.Duration) *ReconnectStore {
	return &ReconnectStore{rdb: rdb, ttl: ttl}
}

func reconnectKey(userID uuid.UUID) string { return "reconnect:" + userID.String() }

// Save stages a record at session teardown, replacing any previous one for the same user.
func (s *ReconnectStore) Save(ctx context.Context, userID uuid.UUID, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal reconnect record: %w", err)
	}
	if err := s.rdb.Set(ctx, reconnectKey(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save reconnect record: %w", err)
	}
	return nil
}

// Consume atomically retrieves and deletes the record for a user, so at most one reopened session can claim it.
func (s *ReconnectStore) Consume(ctx context.Context, userID uuid.UUID) (*Record, error) {
	raw, err := s.rdb.GetDel(ctx, reconnectKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoReconnectRecord
		}
		return nil, fmt.Errorf("consume reconnect record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal reconnect record: %w", err)
	}
	return &rec, nil
}
