package circuit

import "time"

// Metrics is a point-in-time snapshot of one circuit's counters. It is
// computed fresh on every query and never cached.
type Metrics struct {
	Name                 string     `json:"name"`
	State                State      `json:"state"`
	Failures             uint64     `json:"failures"`
	Successes            uint64     `json:"successes"`
	ConsecutiveFailures  uint64     `json:"consecutiveFailures"`
	ConsecutiveSuccesses uint64     `json:"consecutiveSuccesses"`
	TotalRequests        uint64     `json:"totalRequests"`
	RejectedRequests     uint64     `json:"rejectedRequests"`
	ErrorRate            float64    `json:"errorRate"`
	LastFailureTime      *time.Time `json:"lastFailureTime,omitempty"`
	LastSuccessTime      *time.Time `json:"lastSuccessTime,omitempty"`
	LastStateChange      time.Time  `json:"lastStateChange"`
	NextAttemptTime      *time.Time `json:"nextAttemptTime,omitempty"`
}

// snapshot derives the read-only metrics view from the raw counters.
// The caller must hold the circuit's lock.
func (c *Circuit) snapshot() Metrics {
	m := Metrics{
		Name:                 c.Name,
		State:                c.State,
		Failures:             c.Failures,
		Successes:            c.Successes,
		ConsecutiveFailures:  c.ConsecutiveFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		TotalRequests:        c.TotalRequests,
		RejectedRequests:     c.RejectedRequests,
		LastStateChange:      c.LastStateChange,
	}
	if total := c.Failures + c.Successes; total > 0 {
		m.ErrorRate = float64(c.Failures) / float64(total)
	}
	if c.LastFailureTime != nil {
		t := *c.LastFailureTime
		m.LastFailureTime = &t
	}
	if c.LastSuccessTime != nil {
		t := *c.LastSuccessTime
		m.LastSuccessTime = &t
	}
	if c.NextAttemptTime != nil {
		t := *c.NextAttemptTime
		m.NextAttemptTime = &t
	}
	return m
}
