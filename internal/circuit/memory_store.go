package circuit

import (
	"context"
	"sync"
)

// maxEventsPerCircuit caps the in-memory audit trail per circuit so a
// flapping dependency cannot grow memory without bound.
const maxEventsPerCircuit = 1000

// MemoryStore is an in-memory implementation of Store. It is the
// default when no durable backend is configured and is fully functional
// for single-process deployments; state simply does not survive a
// restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	events  map[string][]*Event
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		events:  make(map[string][]*Event),
	}
}

// Load returns the persisted state for a circuit, or ErrNotFound.
func (s *MemoryStore) Load(_ context.Context, name string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// Save upserts the circuit's state.
func (s *MemoryStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	s.records[record.Name] = &cp
	return nil
}

// AppendEvent appends one audit record, evicting the oldest entry once
// the per-circuit cap is reached.
func (s *MemoryStore) AppendEvent(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trail := s.events[event.Circuit]
	if len(trail) >= maxEventsPerCircuit {
		trail = trail[1:]
	}
	s.events[event.Circuit] = append(trail, event)
	return nil
}

// Events returns up to limit audit records for a circuit, newest first.
func (s *MemoryStore) Events(_ context.Context, name string, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trail := s.events[name]
	if limit <= 0 || limit > len(trail) {
		limit = len(trail)
	}
	out := make([]*Event, 0, limit)
	for i := len(trail) - 1; i >= len(trail)-limit; i-- {
		out = append(out, trail[i])
	}
	return out, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}
