package eventhandler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

type fakeAtRiskNotifier struct {
	mu      sync.Mutex
	notices []AtRiskNotice
	err     error
}

func (n *fakeAtRiskNotifier) NotifyAtRisk(_ context.Context, notice AtRiskNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notices = append(n.notices, notice)
	return nil
}

func (n *fakeAtRiskNotifier) sent() []AtRiskNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]AtRiskNotice, len(n.notices))
	copy(out, n.notices)
	return out
}

func atRiskEvent(registrationID string) shared.StudentAtRiskEvent {
	return shared.NewStudentAtRiskEvent("event-1", registrationID, "session_based", 40, 75, 2, 5)
}

func TestOnStudentAtRisk_SendsNotification(t *testing.T) {
	notifier := &fakeAtRiskNotifier{}
	handler := NewOnStudentAtRiskHandler(notifier, discardLogger(), DefaultStudentAtRiskConfig())

	event := atRiskEvent("reg-a")

	err := handler.Handle(event)
	require.NoError(t, err)

	notices := notifier.sent()
	require.Len(t, notices, 1)
	assert.Equal(t, AtRiskNotice{
		EventID:           "event-1",
		RegistrationID:    "reg-a",
		StrategyKind:      "session_based",
		Percentage:        40,
		MinimumPercentage: 75,
		AttendedCount:     2,
		RequiredUnitCount: 5,
		DetectedAt:        event.Timestamp,
	}, notices[0])
}

func TestOnStudentAtRisk_CooldownSuppressesRepeat(t *testing.T) {
	notifier := &fakeAtRiskNotifier{}

	current := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	handler := NewOnStudentAtRiskHandler(notifier, discardLogger(), StudentAtRiskConfig{
		NotifyCooldown: time.Hour,
	}).WithClock(func() time.Time { return current })

	require.NoError(t, handler.Handle(atRiskEvent("reg-a")))
	require.NoError(t, handler.Handle(atRiskEvent("reg-a")))
	assert.Len(t, notifier.sent(), 1)

	// A different student is not suppressed.
	require.NoError(t, handler.Handle(atRiskEvent("reg-b")))
	assert.Len(t, notifier.sent(), 2)

	// After the window expires the same student is notified again.
	current = current.Add(time.Hour)
	require.NoError(t, handler.Handle(atRiskEvent("reg-a")))
	assert.Len(t, notifier.sent(), 3)
}

func TestOnStudentAtRisk_ZeroCooldownDisablesSuppression(t *testing.T) {
	notifier := &fakeAtRiskNotifier{}
	handler := NewOnStudentAtRiskHandler(notifier, discardLogger(), StudentAtRiskConfig{})

	require.NoError(t, handler.Handle(atRiskEvent("reg-a")))
	require.NoError(t, handler.Handle(atRiskEvent("reg-a")))
	assert.Len(t, notifier.sent(), 2)
}

func TestOnStudentAtRisk_SendFailureReturnsError(t *testing.T) {
	notifier := &fakeAtRiskNotifier{err: errors.New("smtp: timeout")}
	handler := NewOnStudentAtRiskHandler(notifier, discardLogger(), DefaultStudentAtRiskConfig())

	err := handler.Handle(atRiskEvent("reg-a"))
	require.Error(t, err)

	// A failed send must not start the suppression window.
	notifier.mu.Lock()
	notifier.err = nil
	notifier.mu.Unlock()

	require.NoError(t, handler.Handle(atRiskEvent("reg-a")))
	assert.Len(t, notifier.sent(), 1)
}

func TestOnStudentAtRisk_IgnoresUnexpectedEvent(t *testing.T) {
	notifier := &fakeAtRiskNotifier{}
	handler := NewOnStudentAtRiskHandler(notifier, discardLogger(), DefaultStudentAtRiskConfig())

	event := shared.NewAttendanceMarkedEvent("event-1", "s-1", "reg-a", "manual", false)

	err := handler.Handle(event)
	require.NoError(t, err)
	assert.Empty(t, notifier.sent())
}

func TestOnStudentAtRisk_EventTypeMatchesSubscription(t *testing.T) {
	handler := NewOnStudentAtRiskHandler(nil, discardLogger(), DefaultStudentAtRiskConfig())
	assert.Equal(t, shared.EventStudentAtRisk, handler.EventType())
	assert.Equal(t, handler.EventType(), atRiskEvent("reg-a").EventType())
}
