package circuit

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Load when no state has been persisted
// for the circuit.
var ErrNotFound = errors.New("circuit state not found")

// Record is the durable shape of a circuit's state. A Store must
// round-trip it losslessly so a restarted process resumes where the
// previous one left off.
type Record struct {
	Name                 string     `json:"name"`
	State                State      `json:"state"`
	Failures             uint64     `json:"failures"`
	Successes            uint64     `json:"successes"`
	ConsecutiveFailures  uint64     `json:"consecutiveFailures"`
	ConsecutiveSuccesses uint64     `json:"consecutiveSuccesses"`
	TotalRequests        uint64     `json:"totalRequests"`
	RejectedRequests     uint64     `json:"rejectedRequests"`
	LastFailureTime      *time.Time `json:"lastFailureTime,omitempty"`
	LastSuccessTime      *time.Time `json:"lastSuccessTime,omitempty"`
	LastStateChange      time.Time  `json:"lastStateChange"`
	NextAttemptTime      *time.Time `json:"nextAttemptTime,omitempty"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Store is the persistence and event-sink contract. All calls are
// best-effort from the breaker's point of view: a failing store degrades
// the service to in-memory operation and is surfaced only as logged
// warnings, never as errors to Execute callers.
type Store interface {
	// Load hydrates the state persisted for a circuit, or ErrNotFound.
	Load(ctx context.Context, name string) (*Record, error)

	// Save upserts the circuit's current state.
	Save(ctx context.Context, record *Record) error

	// AppendEvent appends one audit record. The trail is append-only.
	AppendEvent(ctx context.Context, event *Event) error

	// Events returns the most recent audit records for a circuit,
	// newest first, up to limit.
	Events(ctx context.Context, name string, limit int) ([]*Event, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// record converts the circuit into its durable shape. The caller must
// hold the circuit's lock.
func (c *Circuit) record(now time.Time) *Record {
	r := &Record{
		Name:                 c.Name,
		State:                c.State,
		Failures:             c.Failures,
		Successes:            c.Successes,
		ConsecutiveFailures:  c.ConsecutiveFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		TotalRequests:        c.TotalRequests,
		RejectedRequests:     c.RejectedRequests,
		LastStateChange:      c.LastStateChange,
		UpdatedAt:            now,
	}
	if c.LastFailureTime != nil {
		t := *c.LastFailureTime
		r.LastFailureTime = &t
	}
	if c.LastSuccessTime != nil {
		t := *c.LastSuccessTime
		r.LastSuccessTime = &t
	}
	if c.NextAttemptTime != nil {
		t := *c.NextAttemptTime
		r.NextAttemptTime = &t
	}
	return r
}

// restore overwrites the circuit's counters from a persisted record.
// The caller must hold the circuit's lock.
func (c *Circuit) restore(r *Record) {
	c.State = r.State
	c.Failures = r.Failures
	c.Successes = r.Successes
	c.ConsecutiveFailures = r.ConsecutiveFailures
	c.ConsecutiveSuccesses = r.ConsecutiveSuccesses
	c.TotalRequests = r.TotalRequests
	c.RejectedRequests = r.RejectedRequests
	c.LastStateChange = r.LastStateChange
	if r.LastFailureTime != nil {
		t := *r.LastFailureTime
		c.LastFailureTime = &t
	}
	if r.LastSuccessTime != nil {
		t := *r.LastSuccessTime
		c.LastSuccessTime = &t
	}
	if r.NextAttemptTime != nil {
		t := *r.NextAttemptTime
		c.NextAttemptTime = &t
	}
}
