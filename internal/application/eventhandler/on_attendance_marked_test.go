package eventhandler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

type studentInvalidation struct {
	eventID        string
	registrationID string
}

type fakeProgressCache struct {
	mu         sync.Mutex
	students   []studentInvalidation
	events     []string
	studentErr error
	eventErr   error
}

func (c *fakeProgressCache) InvalidateStudent(_ context.Context, eventID, registrationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.studentErr != nil {
		return c.studentErr
	}
	c.students = append(c.students, studentInvalidation{eventID: eventID, registrationID: registrationID})
	return nil
}

func (c *fakeProgressCache) InvalidateEvent(_ context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eventErr != nil {
		return c.eventErr
	}
	c.events = append(c.events, eventID)
	return nil
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	busy  bool
}

func (r *fakeRefresher) Refresh(context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return !r.busy
}

func (r *fakeRefresher) refreshCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// fakeMarkLedger implements attendance.Repository; only CountBySession is
// meaningful for the handlers under test.
type fakeMarkLedger struct {
	counts     map[string]int
	countCalls []string
	err        error
}

func (r *fakeMarkLedger) InsertMark(context.Context, *attendance.AttendanceMark) (bool, error) {
	return false, nil
}

func (r *fakeMarkLedger) GetMarkedSessionIDs(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (r *fakeMarkLedger) GetMarksForStudent(context.Context, string, string) ([]*attendance.AttendanceMark, error) {
	return nil, nil
}

func (r *fakeMarkLedger) CountBySession(_ context.Context, sessionID string) (int, error) {
	r.countCalls = append(r.countCalls, sessionID)
	if r.err != nil {
		return 0, r.err
	}
	return r.counts[sessionID], nil
}

func (r *fakeMarkLedger) GetSessionMarkCounts(context.Context, string) (map[string]int, error) {
	return nil, nil
}

func (r *fakeMarkLedger) GetRegistrationIDs(context.Context, string) ([]string, error) {
	return nil, nil
}

func (r *fakeMarkLedger) SyncEventMarks(context.Context, string, []*attendance.AttendanceMark) error {
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOnAttendanceMarked_InvalidatesCaches(t *testing.T) {
	cache := &fakeProgressCache{}
	handler := NewOnAttendanceMarkedHandler(cache, nil, discardLogger(), DefaultAttendanceMarkedConfig())

	event := shared.NewAttendanceMarkedEvent("event-1", "s-1", "reg-a", "manual", false)

	err := handler.Handle(event)
	require.NoError(t, err)

	require.Len(t, cache.students, 1)
	assert.Equal(t, studentInvalidation{eventID: "event-1", registrationID: "reg-a"}, cache.students[0])
	assert.Equal(t, []string{"event-1"}, cache.events)
}

func TestOnAttendanceMarked_SkipsConfirmedDuplicate(t *testing.T) {
	cache := &fakeProgressCache{}
	refresher := &fakeRefresher{}

	config := DefaultAttendanceMarkedConfig()
	config.RequestRefresh = true
	handler := NewOnAttendanceMarkedHandler(cache, refresher, discardLogger(), config)

	event := shared.NewAttendanceMarkedEvent("event-1", "s-1", "reg-a", "manual", true)

	err := handler.Handle(event)
	require.NoError(t, err)

	assert.Empty(t, cache.students)
	assert.Empty(t, cache.events)
	assert.Zero(t, refresher.refreshCalls())
}

func TestOnAttendanceMarked_DuplicateStillInvalidatesWhenConfigured(t *testing.T) {
	cache := &fakeProgressCache{}

	config := DefaultAttendanceMarkedConfig()
	config.SkipAlreadyMarked = false
	handler := NewOnAttendanceMarkedHandler(cache, nil, discardLogger(), config)

	event := shared.NewAttendanceMarkedEvent("event-1", "s-1", "reg-a", "manual", true)

	require.NoError(t, handler.Handle(event))
	assert.Len(t, cache.students, 1)
}

func TestOnAttendanceMarked_RequestsRefreshWhenEnabled(t *testing.T) {
	cache := &fakeProgressCache{}
	refresher := &fakeRefresher{}

	config := DefaultAttendanceMarkedConfig()
	config.RequestRefresh = true
	handler := NewOnAttendanceMarkedHandler(cache, refresher, discardLogger(), config)

	event := shared.NewAttendanceMarkedEvent("event-1", "s-1", "reg-a", "qr_code", false)

	require.NoError(t, handler.Handle(event))
	assert.Equal(t, 1, refresher.refreshCalls())
}

func TestOnAttendanceMarked_CacheFailureIsNotFatal(t *testing.T) {
	cache := &fakeProgressCache{
		studentErr: errors.New("redis: connection refused"),
		eventErr:   errors.New("redis: connection refused"),
	}
	refresher := &fakeRefresher{}

	config := DefaultAttendanceMarkedConfig()
	config.RequestRefresh = true
	handler := NewOnAttendanceMarkedHandler(cache, refresher, discardLogger(), config)

	event := shared.NewAttendanceMarkedEvent("event-1", "s-1", "reg-a", "manual", false)

	err := handler.Handle(event)
	require.NoError(t, err)

	// The refresh request still goes out after cache failures.
	assert.Equal(t, 1, refresher.refreshCalls())
}

func TestOnAttendanceMarked_IgnoresUnexpectedEvent(t *testing.T) {
	cache := &fakeProgressCache{}
	handler := NewOnAttendanceMarkedHandler(cache, nil, discardLogger(), DefaultAttendanceMarkedConfig())

	event := shared.NewRefreshFailedEvent("event-1", 3, "store down")

	err := handler.Handle(event)
	require.NoError(t, err)
	assert.Empty(t, cache.students)
}

func TestOnAttendanceMarked_EventTypeMatchesSubscription(t *testing.T) {
	handler := NewOnAttendanceMarkedHandler(nil, nil, discardLogger(), DefaultAttendanceMarkedConfig())
	assert.Equal(t, shared.EventAttendanceMarked, handler.EventType())

	event := shared.NewAttendanceMarkedEvent("event-1", "s-1", "reg-a", "manual", false)
	assert.Equal(t, handler.EventType(), event.EventType())
	assert.WithinDuration(t, time.Now(), event.Timestamp, time.Minute)
}
