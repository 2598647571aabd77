package circuit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_BoundaryIsInclusive(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	cfg := Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}

	c := newCircuit("db", now)
	tr := c.recordFailure(cfg, now)
	require.NotNil(t, tr)
	require.Equal(t, StateOpen, c.State)

	// One nanosecond early: still open.
	assert.Nil(t, c.evaluate(now.Add(time.Minute-time.Nanosecond)))
	assert.Equal(t, StateOpen, c.State)

	// Exactly at nextAttemptTime: the probe window opens.
	tr = c.evaluate(now.Add(time.Minute))
	require.NotNil(t, tr)
	assert.Equal(t, StateOpen, tr.from)
	assert.Equal(t, StateHalfOpen, tr.to)
	assert.Equal(t, StateHalfOpen, c.State)
	assert.Zero(t, c.ConsecutiveSuccesses)
}

func TestRecordFailure_ClosedBelowThresholdStaysClosed(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	cfg := Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute}

	c := newCircuit("db", now)
	assert.Nil(t, c.recordFailure(cfg, now))
	assert.Nil(t, c.recordFailure(cfg, now))
	assert.Equal(t, StateClosed, c.State)
	assert.Nil(t, c.NextAttemptTime)

	// The threshold failure trips.
	tr := c.recordFailure(cfg, now)
	require.NotNil(t, tr)
	assert.Equal(t, StateOpen, tr.to)
	require.NotNil(t, c.NextAttemptTime)
	assert.Equal(t, now.Add(time.Minute), *c.NextAttemptTime)
}

func TestRecordSuccess_BreaksFailureStreak(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	cfg := Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute}

	c := newCircuit("db", now)
	c.recordFailure(cfg, now)
	c.recordFailure(cfg, now)
	c.recordSuccess(cfg, now)

	assert.Zero(t, c.ConsecutiveFailures)
	assert.Equal(t, uint64(1), c.ConsecutiveSuccesses)

	// Two more failures do not trip: the streak restarted.
	c.recordFailure(cfg, now)
	assert.Nil(t, c.recordFailure(cfg, now))
	assert.Equal(t, StateClosed, c.State)
}

func TestForce_ToOpenSchedulesProbe(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	cfg := Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute}

	c := newCircuit("db", now)
	tr := c.force(StateOpen, cfg, now)
	assert.Equal(t, StateClosed, tr.from)
	assert.Equal(t, StateOpen, tr.to)
	require.NotNil(t, c.NextAttemptTime)

	tr = c.force(StateHalfOpen, cfg, now)
	assert.Equal(t, StateHalfOpen, c.State)
	assert.Equal(t, StateOpen, tr.from)
}

func TestReset_PreservesName(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	cfg := Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}

	c := newCircuit("db", now)
	c.recordFailure(cfg, now)
	c.reset(now.Add(time.Second))

	assert.Equal(t, "db", c.Name)
	assert.Equal(t, StateClosed, c.State)
	assert.Zero(t, c.Failures)
	assert.Nil(t, c.LastFailureTime)
	assert.Equal(t, now.Add(time.Second), c.LastStateChange)
}

func TestConfig_Merge(t *testing.T) {
	base := DefaultConfig()

	merged := base.merge(&Config{FailureThreshold: 1, Timeout: 5 * time.Second})
	assert.Equal(t, 1, merged.FailureThreshold)
	assert.Equal(t, 5*time.Second, merged.Timeout)
	assert.Equal(t, base.SuccessThreshold, merged.SuccessThreshold)

	assert.Equal(t, base, base.merge(nil))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{FailureThreshold: 0, SuccessThreshold: 1, Timeout: time.Second}.Validate())
	assert.Error(t, Config{FailureThreshold: 1, SuccessThreshold: 0, Timeout: time.Second}.Validate())
	assert.Error(t, Config{FailureThreshold: 1, SuccessThreshold: 1}.Validate())
}

func TestParseState(t *testing.T) {
	for _, s := range []string{"CLOSED", "OPEN", "HALF_OPEN"} {
		got, err := ParseState(s)
		require.NoError(t, err)
		assert.Equal(t, State(s), got)
	}
	_, err := ParseState("half-open")
	assert.Error(t, err)
}

func TestRegistry_GetOrCreateIsIdempotentUnderContention(t *testing.T) {
	r := NewRegistry()
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	const workers = 32
	entries := make([]*entry, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i] = r.getOrCreate("payments", now)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, r.Len())
	for _, e := range entries[1:] {
		assert.Same(t, entries[0], e)
	}
	assert.Equal(t, []string{"payments"}, r.names())
}
