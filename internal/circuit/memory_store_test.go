package circuit_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/circuitd/circuitd/internal/circuit"
)

func sampleRecord(name string) *circuit.Record {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	next := now.Add(time.Minute)
	return &circuit.Record{
		Name:                name,
		State:               circuit.StateOpen,
		Failures:            7,
		Successes:           3,
		ConsecutiveFailures: 5,
		TotalRequests:       10,
		RejectedRequests:    2,
		LastFailureTime:     &now,
		LastStateChange:     now,
		NextAttemptTime:     &next,
		UpdatedAt:           now,
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := circuit.NewMemoryStore()
	ctx := context.Background()

	_, err := store.Load(ctx, "payments")
	require.ErrorIs(t, err, circuit.ErrNotFound)

	want := sampleRecord("payments")
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx, "payments")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// The stored copy is isolated from later caller mutations.
	want.Failures = 99
	got, err = store.Load(ctx, "payments")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.Failures)
}

func TestMemoryStore_EventsNewestFirst(t *testing.T) {
	store := circuit.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendEvent(ctx, &circuit.Event{
			ID:        fmt.Sprintf("evt-%d", i),
			Circuit:   "payments",
			Type:      circuit.EventFailure,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	events, err := store.Events(ctx, "payments", 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "evt-4", events[0].ID)
	assert.Equal(t, "evt-2", events[2].ID)

	all, err := store.Events(ctx, "payments", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := store.Events(ctx, "unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_Ping(t *testing.T) {
	assert.NoError(t, circuit.NewMemoryStore().Ping(context.Background()))
}
