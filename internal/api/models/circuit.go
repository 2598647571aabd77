package models

import (
	"github.com/circuitd/circuitd/internal/circuit"
)

// CircuitList is the response body for listing circuits.
type CircuitList struct {
	Circuits []circuit.Metrics `json:"circuits"`
	Count    int                `json:"count"`
}

// StateResponse is the response body for a circuit state lookup.
type StateResponse struct {
	Circuit string        `json:"circuit"`
	State   circuit.State `json:"state"`
}

// EventList is the response body for a circuit event history lookup.
type EventList struct {
	Circuit string           `json:"circuit"`
	Events  []*circuit.Event `json:"events"`
	Count   int              `json:"count"`
}

// ReportRequest is the request body for manually reporting an outcome.
// The reason, when present, is recorded in the event log.
type ReportRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ForceStateRequest is the request body for forcing a circuit into a state.
type ForceStateRequest struct {
	State string `json:"state"`
}
