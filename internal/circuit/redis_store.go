package circuit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of Store. Circuit state lives in
// one JSON value per circuit; the audit trail is a capped list with the
// newest event at the head.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func stateKey(name string) string  { return fmt.Sprintf("circuit:%s:state", name) }
func eventsKey(name string) string { return fmt.Sprintf("circuit:%s:events", name) }

// Load hydrates the persisted state for a circuit, or ErrNotFound.
func (s *RedisStore) Load(ctx context.Context, name string) (*Record, error) {
	raw, err := s.rdb.Get(ctx, stateKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load circuit state: %w", err)
	}

	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode circuit state: %w", err)
	}
	return &r, nil
}

// Save upserts the circuit's state.
func (s *RedisStore) Save(ctx context.Context, record *Record) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode circuit state: %w", err)
	}
	if err := s.rdb.Set(ctx, stateKey(record.Name), raw, 0).Err(); err != nil {
		return fmt.Errorf("save circuit state: %w", err)
	}
	return nil
}

// AppendEvent pushes one audit record onto the circuit's trail and trims
// it to the per-circuit cap.
func (s *RedisStore) AppendEvent(ctx context.Context, event *Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode circuit event: %w", err)
	}

	key := eventsKey(event.Circuit)
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, maxEventsPerCircuit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append circuit event: %w", err)
	}
	return nil
}

// Events returns up to limit audit records for a circuit, newest first.
func (s *RedisStore) Events(ctx context.Context, name string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}

	raws, err := s.rdb.LRange(ctx, eventsKey(name), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read circuit events: %w", err)
	}

	events := make([]*Event, 0, len(raws))
	for _, raw := range raws {
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode circuit event: %w", err)
		}
		events = append(events, &e)
	}
	return events, nil
}

// Ping verifies connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
