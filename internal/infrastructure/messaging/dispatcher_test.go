package messaging

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func markedEvent(eventID string) shared.Event {
	return shared.NewAttendanceMarkedEvent(eventID, "sess-opening", "reg-alice", "physical", false)
}

func sessionStartedEvent(eventID string) shared.Event {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return shared.NewSessionStartedEvent(eventID, "sess-opening", "Opening Keynote", start, start.Add(2*time.Hour), true)
}

// fastRetryConfig keeps backoff sleeps out of the test clock.
func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:        maxRetries,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func newTestDispatcher(t *testing.T, retry RetryConfig) *Dispatcher {
	t.Helper()
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false, Logger: discardLogger()})
	config := DefaultDispatcherConfig(bus)
	config.Logger = discardLogger()
	config.RetryConfig = retry
	d := NewDispatcher(config)
	t.Cleanup(func() {
		_ = d.Stop()
		_ = bus.Close()
	})
	return d
}

func TestDispatcher_RoutesToRegisteredHandler(t *testing.T) {
	d := newTestDispatcher(t, fastRetryConfig(0))

	var got atomic.Int64
	err := d.RegisterSync(shared.EventAttendanceMarked, "recorder", func(event shared.Event) error {
		assert.Equal(t, "evt-hackathon", event.AggregateID())
		got.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(markedEvent("evt-hackathon")))
	assert.Equal(t, int64(1), got.Load())

	// Foreign event types are a no-op, not an error.
	require.NoError(t, d.Dispatch(sessionStartedEvent("evt-hackathon")))
	assert.Equal(t, int64(1), got.Load())
}

func TestDispatcher_AsyncHandlersCompleteBeforeDispatchReturns(t *testing.T) {
	d := newTestDispatcher(t, fastRetryConfig(0))

	var calls atomic.Int64
	require.NoError(t, d.Register(shared.EventAttendanceMarked, "first", func(shared.Event) error {
		calls.Add(1)
		return nil
	}))
	require.NoError(t, d.Register(shared.EventAttendanceMarked, "second", func(shared.Event) error {
		calls.Add(1)
		return nil
	}))

	require.NoError(t, d.Dispatch(markedEvent("evt-hackathon")))
	assert.Equal(t, int64(2), calls.Load())
}

func TestDispatcher_RetrySucceedsAfterTransientFailure(t *testing.T) {
	d := newTestDispatcher(t, fastRetryConfig(3))

	var attempts atomic.Int64
	require.NoError(t, d.RegisterSync(shared.EventAttendanceMarked, "flaky", func(shared.Event) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, d.Dispatch(markedEvent("evt-hackathon")))
	assert.Equal(t, int64(2), attempts.Load())
	assert.Equal(t, 0, d.DeadLetterQueue().Size())
}

func TestDispatcher_ExhaustedRetriesGoToDeadLetterQueue(t *testing.T) {
	d := newTestDispatcher(t, fastRetryConfig(2))

	var attempts atomic.Int64
	require.NoError(t, d.RegisterSync(shared.EventAttendanceMarked, "broken", func(shared.Event) error {
		attempts.Add(1)
		return errors.New("permanent")
	}))

	err := d.Dispatch(markedEvent("evt-hackathon"))
	require.Error(t, err)
	assert.Equal(t, int64(3), attempts.Load())

	require.Equal(t, 1, d.DeadLetterQueue().Size())
	entry, ok := d.DeadLetterQueue().Pop()
	require.True(t, ok)
	assert.Equal(t, "broken", entry.HandlerName)
	assert.Equal(t, 3, entry.Attempts)
	assert.Equal(t, shared.EventAttendanceMarked, entry.Event.EventType())
}

func TestDispatcher_RecoveryMiddlewareConvertsPanicToError(t *testing.T) {
	d := newTestDispatcher(t, fastRetryConfig(0))
	d.Use(RecoveryMiddleware(discardLogger()))

	require.NoError(t, d.RegisterSync(shared.EventAttendanceMarked, "panicky", func(shared.Event) error {
		panic("boom")
	}))

	err := d.Dispatch(markedEvent("evt-hackathon"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panic")
}

func TestDispatcher_StartRoutesBusEvents(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false, Logger: discardLogger()})
	config := DefaultDispatcherConfig(bus)
	config.Logger = discardLogger()
	config.RetryConfig = fastRetryConfig(0)
	d := NewDispatcher(config)
	t.Cleanup(func() {
		_ = d.Stop()
		_ = bus.Close()
	})

	var got atomic.Int64
	require.NoError(t, d.RegisterSync(shared.EventSessionStarted, "listener", func(shared.Event) error {
		got.Add(1)
		return nil
	}))
	require.NoError(t, d.Start())

	require.NoError(t, bus.Publish(sessionStartedEvent("evt-workshop")))
	assert.Equal(t, int64(1), got.Load())
}

func TestDispatcher_MetricsTrackDispatches(t *testing.T) {
	d := newTestDispatcher(t, fastRetryConfig(0))

	require.NoError(t, d.RegisterSync(shared.EventAttendanceMarked, "counter", func(shared.Event) error {
		return nil
	}))
	require.NoError(t, d.Dispatch(markedEvent("evt-hackathon")))

	snap := d.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalDispatched)
}
