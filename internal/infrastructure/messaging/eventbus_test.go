package messaging

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

func newSyncBus(t *testing.T) *InMemoryEventBus {
	t.Helper()
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:     false,
		Logger:        discardLogger(),
		EnableMetrics: true,
	})
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestInMemoryEventBus_TypedAndGlobalSubscriptions(t *testing.T) {
	bus := newSyncBus(t)

	var typed, global atomic.Int64
	require.NoError(t, bus.Subscribe(shared.EventAttendanceMarked, func(shared.Event) error {
		typed.Add(1)
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		global.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(markedEvent("evt-hackathon")))
	require.NoError(t, bus.Publish(sessionStartedEvent("evt-hackathon")))

	// Typed handlers see their type only; global handlers see everything.
	assert.Equal(t, int64(1), typed.Load())
	assert.Equal(t, int64(2), global.Load())
}

func TestInMemoryEventBus_ClosedBusRejectsPublish(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false, Logger: discardLogger()})
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(markedEvent("evt-hackathon")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventAttendanceMarked, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_MetricsCountHandlerRuns(t *testing.T) {
	bus := newSyncBus(t)

	require.NoError(t, bus.Subscribe(shared.EventAttendanceMarked, func(shared.Event) error {
		return nil
	}))
	require.NoError(t, bus.Publish(markedEvent("evt-hackathon")))
	require.NoError(t, bus.Publish(markedEvent("evt-hackathon")))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.Equal(t, 1.0, snap.HandlerSuccessRate)
}

// ─────────────────────────────────────────────────────────────────────────────
// Redis bus
// ─────────────────────────────────────────────────────────────────────────────

type fakeRedisClient struct {
	published []string
	incoming  chan RedisMessage
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{incoming: make(chan RedisMessage, 8)}
}

func (c *fakeRedisClient) Publish(_ context.Context, _ string, message interface{}) error {
	c.published = append(c.published, message.(string))
	return nil
}

func (c *fakeRedisClient) Subscribe(_ context.Context, _ ...string) (<-chan RedisMessage, error) {
	return c.incoming, nil
}

func (c *fakeRedisClient) Close() error { return nil }

func newRedisBus(t *testing.T, client *fakeRedisClient) *RedisEventBus {
	t.Helper()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         client,
		InstanceID:     "replica-a",
		LocalBusConfig: InMemoryEventBusConfig{AsyncMode: false, Logger: discardLogger()},
		Logger:         discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestRedisEventBus_PublishFansOutAndRunsLocally(t *testing.T) {
	client := newFakeRedisClient()
	bus := newRedisBus(t, client)

	var local atomic.Int64
	require.NoError(t, bus.Subscribe(shared.EventAttendanceMarked, func(shared.Event) error {
		local.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(markedEvent("evt-hackathon")))
	assert.Equal(t, int64(1), local.Load())

	require.Len(t, client.published, 1)
	var envelope eventEnvelope
	require.NoError(t, json.Unmarshal([]byte(client.published[0]), &envelope))
	assert.Equal(t, "replica-a", envelope.InstanceID)
	assert.Equal(t, shared.EventAttendanceMarked, envelope.EventType)
	assert.Equal(t, "evt-hackathon", envelope.AggregateID)
}

func TestRedisEventBus_RemoteEventsReachLocalHandlers(t *testing.T) {
	client := newFakeRedisClient()
	bus := newRedisBus(t, client)

	handled := make(chan shared.Event, 2)
	require.NoError(t, bus.Subscribe(shared.EventAttendanceMarked, func(event shared.Event) error {
		handled <- event
		return nil
	}))

	remote, err := json.Marshal(eventEnvelope{
		InstanceID:  "replica-b",
		EventType:   shared.EventAttendanceMarked,
		AggregateID: "evt-hackathon",
		OccurredAt:  time.Now(),
		Payload:     map[string]interface{}{"registration_id": "reg-alice"},
	})
	require.NoError(t, err)
	client.incoming <- RedisMessage{Payload: string(remote)}

	select {
	case event := <-handled:
		assert.Equal(t, "evt-hackathon", event.AggregateID())
		assert.Equal(t, "reg-alice", event.Payload()["registration_id"])
	case <-time.After(time.Second):
		t.Fatal("remote event never reached the local handler")
	}

	// A replica's own envelope coming back from the channel is skipped.
	self, err := json.Marshal(eventEnvelope{
		InstanceID: "replica-a",
		EventType:  shared.EventAttendanceMarked,
	})
	require.NoError(t, err)
	client.incoming <- RedisMessage{Payload: string(self)}

	select {
	case <-handled:
		t.Fatal("self-published event must not be re-handled")
	case <-time.After(50 * time.Millisecond):
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Buffered bus
// ─────────────────────────────────────────────────────────────────────────────

func TestBufferedEventBus_FlushesWhenBufferFills(t *testing.T) {
	inner := newSyncBus(t)
	var delivered atomic.Int64
	require.NoError(t, inner.Subscribe(shared.EventAttendanceMarked, func(shared.Event) error {
		delivered.Add(1)
		return nil
	}))

	buffered := NewBufferedEventBus(BufferedEventBusConfig{
		Inner:         inner,
		BufferSize:    3,
		FlushInterval: time.Hour, // the buffer size decides, not the ticker
		Logger:        discardLogger(),
	})
	t.Cleanup(func() { _ = buffered.Close() })

	require.NoError(t, buffered.Publish(markedEvent("evt-hackathon")))
	require.NoError(t, buffered.Publish(markedEvent("evt-hackathon")))
	assert.Equal(t, int64(0), delivered.Load())

	require.NoError(t, buffered.Publish(markedEvent("evt-hackathon")))
	assert.Equal(t, int64(3), delivered.Load())
}

func TestBufferedEventBus_CloseFlushesRemainder(t *testing.T) {
	inner := newSyncBus(t)
	var delivered atomic.Int64
	require.NoError(t, inner.Subscribe(shared.EventAttendanceMarked, func(shared.Event) error {
		delivered.Add(1)
		return nil
	}))

	buffered := NewBufferedEventBus(BufferedEventBusConfig{
		Inner:         inner,
		BufferSize:    100,
		FlushInterval: time.Hour,
		Logger:        discardLogger(),
	})

	require.NoError(t, buffered.Publish(markedEvent("evt-hackathon")))
	require.NoError(t, buffered.Publish(markedEvent("evt-hackathon")))
	require.NoError(t, buffered.Close())

	assert.Equal(t, int64(2), delivered.Load())
	assert.ErrorIs(t, buffered.Publish(markedEvent("evt-hackathon")), ErrEventBusClosed)
}

func TestBufferedEventBus_ManualFlush(t *testing.T) {
	inner := newSyncBus(t)
	var delivered atomic.Int64
	require.NoError(t, inner.SubscribeAll(func(shared.Event) error {
		delivered.Add(1)
		return nil
	}))

	buffered := NewBufferedEventBus(BufferedEventBusConfig{
		Inner:         inner,
		BufferSize:    100,
		FlushInterval: time.Hour,
		Logger:        discardLogger(),
	})
	t.Cleanup(func() { _ = buffered.Close() })

	require.NoError(t, buffered.Publish(sessionStartedEvent("evt-hackathon")))
	require.NoError(t, buffered.Flush())
	assert.Equal(t, int64(1), delivered.Load())
}
