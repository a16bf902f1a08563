package eventhandler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

func sessionCompletedEvent() shared.SessionCompletedEvent {
	end := time.Date(2026, 3, 9, 11, 30, 0, 0, time.UTC)
	return shared.NewSessionCompletedEvent("event-1", "s-1", "Lecture 1", end)
}

func TestOnSessionCompleted_InvalidatesEventView(t *testing.T) {
	ledger := &fakeMarkLedger{counts: map[string]int{"s-1": 17}}
	cache := &fakeProgressCache{}
	refresher := &fakeRefresher{}

	handler := NewOnSessionCompletedHandler(ledger, cache, refresher, discardLogger(), DefaultSessionCompletedConfig())

	err := handler.Handle(sessionCompletedEvent())
	require.NoError(t, err)

	assert.Equal(t, []string{"s-1"}, ledger.countCalls)
	assert.Equal(t, []string{"event-1"}, cache.events)
	assert.Equal(t, 1, refresher.refreshCalls())
}

func TestOnSessionCompleted_CountFailureIsNotFatal(t *testing.T) {
	ledger := &fakeMarkLedger{err: errors.New("pg: connection reset")}
	cache := &fakeProgressCache{}

	handler := NewOnSessionCompletedHandler(ledger, cache, nil, discardLogger(), DefaultSessionCompletedConfig())

	err := handler.Handle(sessionCompletedEvent())
	require.NoError(t, err)

	// Invalidation proceeds even when the coverage readout failed.
	assert.Equal(t, []string{"event-1"}, cache.events)
}

func TestOnSessionCompleted_RefreshDisabled(t *testing.T) {
	ledger := &fakeMarkLedger{}
	refresher := &fakeRefresher{}

	config := DefaultSessionCompletedConfig()
	config.RequestRefresh = false
	handler := NewOnSessionCompletedHandler(ledger, nil, refresher, discardLogger(), config)

	require.NoError(t, handler.Handle(sessionCompletedEvent()))
	assert.Zero(t, refresher.refreshCalls())
}

func TestOnSessionCompleted_IgnoresUnexpectedEvent(t *testing.T) {
	cache := &fakeProgressCache{}
	handler := NewOnSessionCompletedHandler(nil, cache, nil, discardLogger(), DefaultSessionCompletedConfig())

	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	event := shared.NewSessionStartedEvent("event-1", "s-1", "Lecture 1", start, start.Add(time.Hour), true)

	err := handler.Handle(event)
	require.NoError(t, err)
	assert.Empty(t, cache.events)
}

func TestOnSessionCompleted_EventTypeMatchesSubscription(t *testing.T) {
	handler := NewOnSessionCompletedHandler(nil, nil, nil, discardLogger(), DefaultSessionCompletedConfig())
	assert.Equal(t, shared.EventSessionCompleted, handler.EventType())
	assert.Equal(t, handler.EventType(), sessionCompletedEvent().EventType())
}
