package circuit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a PostgreSQL implementation of Store backed by two
// tables:
//
//	circuits        one row per circuit name, upserted on every save
//	circuit_events  append-only audit trail
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Load hydrates the persisted state for a circuit, or ErrNotFound.
func (s *PostgresStore) Load(ctx context.Context, name string) (*Record, error) {
	query := `
		SELECT name, state, failures, successes,
		       consecutive_failures, consecutive_successes,
		       total_requests, rejected_requests,
		       last_failure_time, last_success_time,
		       last_state_change, next_attempt_time, updated_at
		FROM circuits
		WHERE name = $1
	`

	var (
		r     Record
		state string
	)
	err := s.pool.QueryRow(ctx, query, name).Scan(
		&r.Name,
		&state,
		&r.Failures,
		&r.Successes,
		&r.ConsecutiveFailures,
		&r.ConsecutiveSuccesses,
		&r.TotalRequests,
		&r.RejectedRequests,
		&r.LastFailureTime,
		&r.LastSuccessTime,
		&r.LastStateChange,
		&r.NextAttemptTime,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	parsed, err := ParseState(state)
	if err != nil {
		return nil, err
	}
	r.State = parsed

	return &r, nil
}

// Save upserts the circuit's state.
func (s *PostgresStore) Save(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO circuits (
			name, state, failures, successes,
			consecutive_failures, consecutive_successes,
			total_requests, rejected_requests,
			last_failure_time, last_success_time,
			last_state_change, next_attempt_time, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (name) DO UPDATE SET
			state = EXCLUDED.state,
			failures = EXCLUDED.failures,
			successes = EXCLUDED.successes,
			consecutive_failures = EXCLUDED.consecutive_failures,
			consecutive_successes = EXCLUDED.consecutive_successes,
			total_requests = EXCLUDED.total_requests,
			rejected_requests = EXCLUDED.rejected_requests,
			last_failure_time = EXCLUDED.last_failure_time,
			last_success_time = EXCLUDED.last_success_time,
			last_state_change = EXCLUDED.last_state_change,
			next_attempt_time = EXCLUDED.next_attempt_time,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		record.Name,
		string(record.State),
		record.Failures,
		record.Successes,
		record.ConsecutiveFailures,
		record.ConsecutiveSuccesses,
		record.TotalRequests,
		record.RejectedRequests,
		record.LastFailureTime,
		record.LastSuccessTime,
		record.LastStateChange,
		record.NextAttemptTime,
		record.UpdatedAt,
	)
	return err
}

// AppendEvent appends one audit record.
func (s *PostgresStore) AppendEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO circuit_events (id, circuit, event_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, query,
		event.ID,
		event.Circuit,
		string(event.Type),
		metadata,
		event.Timestamp,
	)
	return err
}

// Events returns up to limit audit records for a circuit, newest first.
func (s *PostgresStore) Events(ctx context.Context, name string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, circuit, event_type, metadata, created_at
		FROM circuit_events
		WHERE circuit = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			e            Event
			typ          string
			metadataJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.Circuit, &typ, &metadataJSON, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, err
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// Ping verifies connectivity to the database.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
