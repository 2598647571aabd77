// Package circuit implements a named circuit breaker registry with
// durable state and an append-only audit trail.
//
// Each protected dependency is tracked by a Circuit identified by name.
// The breaker decides per call whether to run, short-circuit, or probe,
// and records the outcome. The OPEN to HALF_OPEN transition is evaluated
// lazily on each state query from stored timestamps plus the current
// time, so no background timer is needed per circuit.
package circuit

import (
	"fmt"
	"time"
)

// State is the protective state of a circuit.
type State string

// Circuit states.
const (
	// StateClosed allows all calls through.
	StateClosed State = "CLOSED"

	// StateOpen rejects calls until the open timeout elapses.
	StateOpen State = "OPEN"

	// StateHalfOpen allows probe calls through to test recovery.
	StateHalfOpen State = "HALF_OPEN"
)

// ParseState converts a string to a State.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateClosed, StateOpen, StateHalfOpen:
		return State(s), nil
	default:
		return "", fmt.Errorf("unknown circuit state %q", s)
	}
}

// Config holds the trip and recovery thresholds for a circuit.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// a CLOSED circuit to OPEN. Must be >= 1.
	FailureThreshold int `json:"failureThreshold" mapstructure:"failure_threshold"`

	// SuccessThreshold is the number of consecutive successful probes
	// that closes a HALF_OPEN circuit. Must be >= 1.
	SuccessThreshold int `json:"successThreshold" mapstructure:"success_threshold"`

	// Timeout is how long a circuit stays OPEN before a probe is allowed.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MonitoringPeriod is the rolling window for the optional rate-based
	// trip policy. Ignored unless VolumeThreshold > 0.
	MonitoringPeriod time.Duration `json:"monitoringPeriod" mapstructure:"monitoring_period"`

	// VolumeThreshold is the minimum number of requests in the monitoring
	// window before the rate-based policy may trip the circuit. Zero
	// disables rate-based tripping; the consecutive-failure policy always
	// applies.
	VolumeThreshold int `json:"volumeThreshold" mapstructure:"volume_threshold"`
}

// DefaultConfig returns the thresholds applied to circuits that have no
// explicit configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
		MonitoringPeriod: 60 * time.Second,
		VolumeThreshold:  0,
	}
}

// merge returns cfg with any non-zero fields of override applied on top.
func (c Config) merge(override *Config) Config {
	if override == nil {
		return c
	}
	out := c
	if override.FailureThreshold > 0 {
		out.FailureThreshold = override.FailureThreshold
	}
	if override.SuccessThreshold > 0 {
		out.SuccessThreshold = override.SuccessThreshold
	}
	if override.Timeout > 0 {
		out.Timeout = override.Timeout
	}
	if override.MonitoringPeriod > 0 {
		out.MonitoringPeriod = override.MonitoringPeriod
	}
	if override.VolumeThreshold > 0 {
		out.VolumeThreshold = override.VolumeThreshold
	}
	return out
}

// Validate checks that the thresholds are usable.
func (c Config) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be >= 1, got %d", c.FailureThreshold)
	}
	if c.SuccessThreshold < 1 {
		return fmt.Errorf("success threshold must be >= 1, got %d", c.SuccessThreshold)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// Circuit is the bookkeeping record for one protected dependency.
// All fields are mutated only while the owning registry entry is locked.
type Circuit struct {
	Name                 string
	State                State
	Failures             uint64
	Successes            uint64
	ConsecutiveFailures  uint64
	ConsecutiveSuccesses uint64
	TotalRequests        uint64
	RejectedRequests     uint64
	LastFailureTime      *time.Time
	LastSuccessTime      *time.Time
	LastStateChange      time.Time
	NextAttemptTime      *time.Time

	// Rolling window counters for the rate-based trip policy. These are
	// in-memory only and restart with the process.
	windowStart    time.Time
	windowRequests uint64
	windowFailures uint64
}

// transition captures a state change for event logging.
type transition struct {
	from State
	to   State
}

func newCircuit(name string, now time.Time) *Circuit {
	return &Circuit{
		Name:            name,
		State:           StateClosed,
		LastStateChange: now,
	}
}

// evaluate performs the lazy OPEN -> HALF_OPEN transition. It must be
// called before inspecting State on any code path that depends on it.
func (c *Circuit) evaluate(now time.Time) *transition {
	if c.State != StateOpen {
		return nil
	}
	if c.NextAttemptTime == nil || now.Before(*c.NextAttemptTime) {
		return nil
	}
	c.State = StateHalfOpen
	c.ConsecutiveSuccesses = 0
	c.LastStateChange = now
	return &transition{from: StateOpen, to: StateHalfOpen}
}

// recordSuccess applies a successful outcome and returns the state
// transition it caused, if any.
func (c *Circuit) recordSuccess(cfg Config, now time.Time) *transition {
	c.Successes++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
	t := now
	c.LastSuccessTime = &t
	c.observeWindow(cfg, now, false)

	if c.State == StateHalfOpen && c.ConsecutiveSuccesses >= uint64(cfg.SuccessThreshold) {
		c.State = StateClosed
		c.ConsecutiveFailures = 0
		c.ConsecutiveSuccesses = 0
		c.NextAttemptTime = nil
		c.LastStateChange = now
		return &transition{from: StateHalfOpen, to: StateClosed}
	}
	return nil
}

// recordFailure applies a failed outcome and returns the state
// transition it caused, if any. A failure while probing re-opens the
// circuit immediately.
func (c *Circuit) recordFailure(cfg Config, now time.Time) *transition {
	c.Failures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
	t := now
	c.LastFailureTime = &t
	c.observeWindow(cfg, now, true)

	switch {
	case c.State == StateHalfOpen:
		c.open(cfg, now)
		return &transition{from: StateHalfOpen, to: StateOpen}
	case c.State == StateClosed && c.shouldTrip(cfg):
		c.open(cfg, now)
		return &transition{from: StateClosed, to: StateOpen}
	}
	return nil
}

// shouldTrip reports whether a CLOSED circuit has crossed its trip
// policy. The consecutive-failure policy always applies; the rate-based
// policy only participates when VolumeThreshold is set.
func (c *Circuit) shouldTrip(cfg Config) bool {
	if c.ConsecutiveFailures >= uint64(cfg.FailureThreshold) {
		return true
	}
	if cfg.VolumeThreshold > 0 && c.windowRequests >= uint64(cfg.VolumeThreshold) {
		return c.windowFailures*2 >= c.windowRequests
	}
	return false
}

// observeWindow folds an outcome into the rolling monitoring window,
// restarting the window when the monitoring period has elapsed.
func (c *Circuit) observeWindow(cfg Config, now time.Time, failed bool) {
	if cfg.VolumeThreshold <= 0 || cfg.MonitoringPeriod <= 0 {
		return
	}
	if c.windowStart.IsZero() || now.Sub(c.windowStart) >= cfg.MonitoringPeriod {
		c.windowStart = now
		c.windowRequests = 0
		c.windowFailures = 0
	}
	c.windowRequests++
	if failed {
		c.windowFailures++
	}
}

// open moves the circuit to OPEN and schedules the next probe.
func (c *Circuit) open(cfg Config, now time.Time) {
	next := now.Add(cfg.Timeout)
	c.State = StateOpen
	c.NextAttemptTime = &next
	c.LastStateChange = now
}

// force moves the circuit to the requested state unconditionally and
// returns the resulting transition.
func (c *Circuit) force(state State, cfg Config, now time.Time) *transition {
	from := c.State
	switch state {
	case StateOpen:
		c.open(cfg, now)
	case StateHalfOpen:
		c.State = StateHalfOpen
		c.ConsecutiveSuccesses = 0
		c.LastStateChange = now
	default:
		c.State = StateClosed
		c.NextAttemptTime = nil
		c.LastStateChange = now
	}
	return &transition{from: from, to: c.State}
}

// reset returns the circuit to CLOSED with all counters zeroed.
func (c *Circuit) reset(now time.Time) {
	*c = Circuit{
		Name:            c.Name,
		State:           StateClosed,
		LastStateChange: now,
	}
}
