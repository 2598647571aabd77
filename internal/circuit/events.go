package circuit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType classifies entries in the audit trail.
type EventType string

// Audit event types.
const (
	EventStateTransition EventType = "state_transition"
	EventFailure         EventType = "failure"
	EventRequestRejected EventType = "request_rejected"
	EventReset           EventType = "reset"
)

// Event is one append-only audit record for a circuit.
type Event struct {
	ID        string         `json:"id"`
	Circuit   string         `json:"circuit"`
	Type      EventType      `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func newEvent(circuit string, typ EventType, metadata map[string]any, now time.Time) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Circuit:   circuit,
		Type:      typ,
		Metadata:  metadata,
		Timestamp: now,
	}
}

// Publisher fans audit events out to an external bus. Publishing is
// best-effort; implementations must not block the calling goroutine for
// longer than their own internal timeout.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}
