package circuit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// journalBuffer bounds the number of pending writes. When the buffer
	// is full new writes are dropped with a warning rather than blocking
	// a caller of Execute.
	journalBuffer = 1024

	// journalWriteTimeout bounds one store attempt.
	journalWriteTimeout = 5 * time.Second

	// journalMaxRetries is the number of backoff retries per write.
	journalMaxRetries = 3
)

// journalOp is one pending store write: either a state upsert or an
// audit event append. Exactly one field is set.
type journalOp struct {
	record *Record
	event  *Event
}

// journal decouples callers from the store. Writes are enqueued without
// blocking and drained by a single background goroutine that retries
// transient store failures with exponential backoff. A persistently
// failing store only produces warnings; the breaker stays correct
// in-memory.
type journal struct {
	store     Store
	publisher Publisher
	logger    zerolog.Logger
	ops       chan journalOp
	done      chan struct{}
}

func newJournal(store Store, publisher Publisher, logger zerolog.Logger) *journal {
	j := &journal{
		store:     store,
		publisher: publisher,
		logger:    logger,
		ops:       make(chan journalOp, journalBuffer),
		done:      make(chan struct{}),
	}
	go j.run()
	return j
}

// saveAsync enqueues a state upsert, dropping it if the buffer is full.
func (j *journal) saveAsync(r *Record) {
	select {
	case j.ops <- journalOp{record: r}:
	default:
		j.logger.Warn().Str("circuit", r.Name).Msg("journal buffer full, dropping state write")
	}
}

// appendAsync enqueues an audit event, dropping it if the buffer is full.
func (j *journal) appendAsync(e *Event) {
	select {
	case j.ops <- journalOp{event: e}:
	default:
		j.logger.Warn().
			Str("circuit", e.Circuit).
			Str("event_type", string(e.Type)).
			Msg("journal buffer full, dropping audit event")
	}
}

// Close stops the journal after draining pending writes.
func (j *journal) Close() {
	close(j.ops)
	<-j.done
}

func (j *journal) run() {
	defer close(j.done)
	for op := range j.ops {
		j.flush(op)
	}
}

func (j *journal) flush(op journalOp) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 1 * time.Second
	bo.MaxElapsedTime = 0 // bounded by WithMaxRetries

	write := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		defer cancel()
		if op.record != nil {
			return j.store.Save(ctx, op.record)
		}
		return j.store.AppendEvent(ctx, op.event)
	}

	if err := backoff.Retry(write, backoff.WithMaxRetries(bo, journalMaxRetries)); err != nil {
		evt := j.logger.Warn().Err(err)
		if op.record != nil {
			evt.Str("circuit", op.record.Name).Msg("state write failed, continuing in-memory")
		} else {
			evt.Str("circuit", op.event.Circuit).
				Str("event_type", string(op.event.Type)).
				Msg("audit event write failed, continuing in-memory")
		}
	}

	if op.event != nil && j.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		defer cancel()
		if err := j.publisher.Publish(ctx, op.event); err != nil {
			j.logger.Warn().Err(err).
				Str("circuit", op.event.Circuit).
				Str("event_type", string(op.event.Type)).
				Msg("event publish failed")
		}
	}
}
