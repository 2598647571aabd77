package circuit_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/circuitd/circuitd/internal/circuit"
)

func newRedisStore(t *testing.T) *circuit.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return circuit.NewRedisStore(rdb)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	_, err := store.Load(ctx, "payments")
	require.ErrorIs(t, err, circuit.ErrNotFound)

	want := sampleRecord("payments")
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx, "payments")
	require.NoError(t, err)
	assert.Equal(t, want.State, got.State)
	assert.Equal(t, want.Failures, got.Failures)
	assert.Equal(t, want.RejectedRequests, got.RejectedRequests)
	require.NotNil(t, got.NextAttemptTime)
	assert.True(t, want.NextAttemptTime.Equal(*got.NextAttemptTime))
	require.NotNil(t, got.LastFailureTime)
	assert.True(t, want.LastFailureTime.Equal(*got.LastFailureTime))
}

func TestRedisStore_SaveOverwrites(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	first := sampleRecord("payments")
	require.NoError(t, store.Save(ctx, first))

	second := sampleRecord("payments")
	second.State = circuit.StateClosed
	second.Failures = 0
	second.NextAttemptTime = nil
	require.NoError(t, store.Save(ctx, second))

	got, err := store.Load(ctx, "payments")
	require.NoError(t, err)
	assert.Equal(t, circuit.StateClosed, got.State)
	assert.Zero(t, got.Failures)
	assert.Nil(t, got.NextAttemptTime)
}

func TestRedisStore_EventsNewestFirst(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	types := []circuit.EventType{
		circuit.EventFailure,
		circuit.EventStateTransition,
		circuit.EventRequestRejected,
	}
	for i, typ := range types {
		require.NoError(t, store.AppendEvent(ctx, &circuit.Event{
			ID:      string(rune('a' + i)),
			Circuit: "payments",
			Type:    typ,
			Metadata: map[string]any{
				"seq": float64(i),
			},
		}))
	}

	events, err := store.Events(ctx, "payments", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, circuit.EventRequestRejected, events[0].Type)
	assert.Equal(t, circuit.EventStateTransition, events[1].Type)
	assert.Equal(t, float64(1), events[1].Metadata["seq"])
}

func TestRedisStore_PingAfterClose(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := circuit.NewRedisStore(rdb)

	require.NoError(t, store.Ping(context.Background()))
	mr.Close()
	assert.Error(t, store.Ping(context.Background()))
}
