package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Operation is a protected call executed through the breaker. The
// breaker imposes no timeout of its own; callers that want one must
// apply it inside the operation so a timeout surfaces as a failure.
type Operation func(ctx context.Context) (any, error)

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Store persists circuit state and audit events. When nil an
	// in-memory store is used; state then does not survive a restart.
	Store Store

	// Publisher optionally fans audit events out to an external bus.
	Publisher Publisher

	// Logger receives structured warnings for degraded persistence and
	// info lines for administrative actions.
	Logger zerolog.Logger

	// Defaults are the thresholds applied when a call supplies no
	// override. Zero value means DefaultConfig().
	Defaults Config

	// Now overrides the clock. Intended for tests.
	Now func() time.Time
}

// Breaker wraps calls to unreliable dependencies, one circuit per name.
// It is safe for concurrent use from many goroutines: the registry map
// is read-locked on the hot path and each circuit serializes its own
// bookkeeping, so independent circuits never block each other.
type Breaker struct {
	registry *Registry
	store    Store
	journal  *journal
	logger   zerolog.Logger
	inst     *instruments
	now      func() time.Time

	mu       sync.RWMutex
	defaults Config
}

// New creates a Breaker. Call Close to drain pending persistence writes
// on shutdown.
func New(cfg BreakerConfig) *Breaker {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	defaults := cfg.Defaults
	if defaults == (Config{}) {
		defaults = DefaultConfig()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	inst, err := newInstruments()
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("breaker metrics disabled")
		inst = nil
	}

	return &Breaker{
		registry: NewRegistry(),
		store:    store,
		journal:  newJournal(store, cfg.Publisher, cfg.Logger),
		logger:   cfg.Logger,
		inst:     inst,
		now:      now,
		defaults: defaults,
	}
}

// Close drains pending persistence writes. The breaker must not be used
// after Close returns.
func (b *Breaker) Close() {
	b.journal.Close()
}

// Store exposes the configured store for read paths such as the audit
// event API and readiness checks.
func (b *Breaker) Store() Store {
	return b.store
}

// Execute runs op through the named circuit.
//
// If the circuit is OPEN the operation is not invoked: the fallback's
// result is returned when one is supplied, otherwise an *OpenError.
// Otherwise the operation runs and its outcome is recorded. A failure
// that freshly opens the circuit is answered by the fallback when one
// is supplied; in every other case the operation's own error propagates
// unchanged. Fallback outcomes are never recorded against the circuit.
func (b *Breaker) Execute(ctx context.Context, name string, op Operation, fallback Operation, override *Config) (any, error) {
	cfg := b.effectiveConfig(override)
	e := b.circuit(ctx, name)

	e.mu.Lock()
	now := b.now()
	b.applyTransition(ctx, e.c, e.c.evaluate(now), now)

	if e.c.State == StateOpen {
		e.c.RejectedRequests++
		b.emit(e.c.Name, EventRequestRejected, map[string]any{"state": string(e.c.State)}, now)
		b.journal.saveAsync(e.c.record(now))
		e.mu.Unlock()

		b.inst.recordRejection(ctx, name)
		if fallback != nil {
			return fallback(ctx)
		}
		return nil, &OpenError{Circuit: name}
	}

	e.c.TotalRequests++
	e.mu.Unlock()

	// The wrapped call runs outside the circuit's critical section so a
	// slow dependency never serializes other callers' bookkeeping.
	result, opErr := op(ctx)

	e.mu.Lock()
	now = b.now()
	var opened bool
	if opErr != nil {
		tr := e.c.recordFailure(cfg, now)
		opened = tr != nil && tr.to == StateOpen
		b.emit(e.c.Name, EventFailure, map[string]any{
			"error":               opErr.Error(),
			"consecutiveFailures": e.c.ConsecutiveFailures,
		}, now)
		b.applyTransition(ctx, e.c, tr, now)
	} else {
		b.applyTransition(ctx, e.c, e.c.recordSuccess(cfg, now), now)
	}
	b.journal.saveAsync(e.c.record(now))
	e.mu.Unlock()

	b.inst.recordExecution(ctx, name, opErr != nil)

	if opErr != nil && opened && fallback != nil {
		return fallback(ctx)
	}
	return result, opErr
}

// RecordSuccess applies a successful outcome for callers that invoke
// the dependency themselves and only want breaker bookkeeping.
func (b *Breaker) RecordSuccess(ctx context.Context, name string) {
	cfg := b.effectiveConfig(nil)
	e := b.circuit(ctx, name)

	e.mu.Lock()
	defer e.mu.Unlock()
	now := b.now()
	b.applyTransition(ctx, e.c, e.c.evaluate(now), now)
	e.c.TotalRequests++
	b.applyTransition(ctx, e.c, e.c.recordSuccess(cfg, now), now)
	b.journal.saveAsync(e.c.record(now))
}

// RecordFailure applies a failed outcome for callers that invoke the
// dependency themselves and only want breaker bookkeeping.
func (b *Breaker) RecordFailure(ctx context.Context, name string, opErr error) {
	cfg := b.effectiveConfig(nil)
	e := b.circuit(ctx, name)

	e.mu.Lock()
	defer e.mu.Unlock()
	now := b.now()
	b.applyTransition(ctx, e.c, e.c.evaluate(now), now)
	e.c.TotalRequests++
	tr := e.c.recordFailure(cfg, now)
	msg := ""
	if opErr != nil {
		msg = opErr.Error()
	}
	b.emit(e.c.Name, EventFailure, map[string]any{
		"error":               msg,
		"consecutiveFailures": e.c.ConsecutiveFailures,
	}, now)
	b.applyTransition(ctx, e.c, tr, now)
	b.journal.saveAsync(e.c.record(now))
}

// State reports the circuit's current state, performing the lazy
// OPEN -> HALF_OPEN evaluation.
func (b *Breaker) State(ctx context.Context, name string) State {
	e := b.circuit(ctx, name)

	e.mu.Lock()
	defer e.mu.Unlock()
	now := b.now()
	if tr := e.c.evaluate(now); tr != nil {
		b.applyTransition(ctx, e.c, tr, now)
		b.journal.saveAsync(e.c.record(now))
	}
	return e.c.State
}

// Metrics returns a fresh snapshot of the named circuit's counters,
// creating the circuit if it was never referenced.
func (b *Breaker) Metrics(ctx context.Context, name string) Metrics {
	e := b.circuit(ctx, name)

	e.mu.Lock()
	defer e.mu.Unlock()
	now := b.now()
	if tr := e.c.evaluate(now); tr != nil {
		b.applyTransition(ctx, e.c, tr, now)
		b.journal.saveAsync(e.c.record(now))
	}
	return e.c.snapshot()
}

// AllMetrics returns fresh snapshots for every known circuit, keyed by
// name.
func (b *Breaker) AllMetrics(ctx context.Context) map[string]Metrics {
	out := make(map[string]Metrics)
	for _, name := range b.registry.names() {
		e := b.registry.get(name)
		if e == nil {
			continue
		}
		e.mu.Lock()
		now := b.now()
		if tr := e.c.evaluate(now); tr != nil {
			b.applyTransition(ctx, e.c, tr, now)
			b.journal.saveAsync(e.c.record(now))
		}
		out[name] = e.c.snapshot()
		e.mu.Unlock()
	}
	return out
}

// Reset returns the named circuit to CLOSED with all counters zeroed.
func (b *Breaker) Reset(ctx context.Context, name string) {
	e := b.circuit(ctx, name)

	e.mu.Lock()
	defer e.mu.Unlock()
	now := b.now()
	e.c.reset(now)
	b.emit(name, EventReset, map[string]any{}, now)
	b.journal.saveAsync(e.c.record(now))
	b.logger.Info().Str("circuit", name).Msg("circuit reset")
}

// ForceState moves the named circuit to the requested state. This is an
// administrative override: it is always allowed and always logged.
func (b *Breaker) ForceState(ctx context.Context, name string, state State) {
	cfg := b.effectiveConfig(nil)
	e := b.circuit(ctx, name)

	e.mu.Lock()
	defer e.mu.Unlock()
	now := b.now()
	tr := e.c.force(state, cfg, now)
	b.emit(name, EventStateTransition, map[string]any{
		"oldState": string(tr.from),
		"newState": string(tr.to),
		"forced":   true,
	}, now)
	b.inst.recordTransition(ctx, name, tr)
	b.journal.saveAsync(e.c.record(now))
	b.logger.Info().
		Str("circuit", name).
		Str("from", string(tr.from)).
		Str("to", string(tr.to)).
		Msg("circuit state forced")
}

// ConfigureDefaults replaces the default thresholds applied to calls
// without an override.
func (b *Breaker) ConfigureDefaults(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	b.defaults = cfg
	b.mu.Unlock()
	b.logger.Info().
		Int("failure_threshold", cfg.FailureThreshold).
		Int("success_threshold", cfg.SuccessThreshold).
		Dur("timeout", cfg.Timeout).
		Msg("default thresholds reconfigured")
	return nil
}

// Defaults returns the current default thresholds.
func (b *Breaker) Defaults() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.defaults
}

func (b *Breaker) effectiveConfig(override *Config) Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.defaults.merge(override)
}

// circuit resolves the entry for name, hydrating persisted state on the
// first reference so a restarted process resumes where it left off.
func (b *Breaker) circuit(ctx context.Context, name string) *entry {
	e := b.registry.getOrCreate(name, b.now())

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hydrated {
		return e
	}
	e.hydrated = true

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalWriteTimeout)
	defer cancel()
	record, err := b.store.Load(loadCtx, name)
	switch {
	case err == nil:
		e.c.restore(record)
	case !errors.Is(err, ErrNotFound):
		b.logger.Warn().Err(err).Str("circuit", name).Msg("state load failed, starting closed")
	}
	return e
}

// applyTransition emits the audit event and metric for a state change.
// The caller must hold the circuit's lock. No-op when tr is nil.
func (b *Breaker) applyTransition(ctx context.Context, c *Circuit, tr *transition, now time.Time) {
	if tr == nil {
		return
	}
	b.emit(c.Name, EventStateTransition, map[string]any{
		"oldState": string(tr.from),
		"newState": string(tr.to),
	}, now)
	b.inst.recordTransition(ctx, c.Name, tr)
	b.logger.Info().
		Str("circuit", c.Name).
		Str("from", string(tr.from)).
		Str("to", string(tr.to)).
		Msg("circuit state changed")
}

// emit appends an audit event via the journal.
func (b *Breaker) emit(name string, typ EventType, metadata map[string]any, now time.Time) {
	b.journal.appendAsync(newEvent(name, typ, metadata, now))
}
