package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

func eventProgressFixture(t *testing.T) (*fakeSessionRepo, *fakeMarkRepo) {
	t.Helper()
	sessions := newFakeSessionRepo(
		scheduleSession(t, "s-1", "event-1", 0),
		scheduleSession(t, "s-2", "event-1", 24*time.Hour),
		scheduleSession(t, "s-3", "event-1", 48*time.Hour),
		scheduleSession(t, "s-4", "event-1", 72*time.Hour),
	)
	marks := newFakeMarkRepo()
	// reg-a attends 3 of 4, reg-b only 1 of 4
	seedMark(t, marks, "event-1", "s-1", "reg-a")
	seedMark(t, marks, "event-1", "s-2", "reg-a")
	seedMark(t, marks, "event-1", "s-3", "reg-a")
	seedMark(t, marks, "event-1", "s-1", "reg-b")
	return sessions, marks
}

func TestGetEventProgress_BuildsRoster(t *testing.T) {
	sessions, marks := eventProgressFixture(t)
	handler := NewGetEventProgressHandler(newFakeConfigRepo(sessionShareConfig(t, "event-1", 75)), sessions, marks).
		WithClock(func() time.Time { return queryClock })

	result, err := handler.Handle(context.Background(), GetEventProgressQuery{EventID: "event-1"})
	require.NoError(t, err)

	require.Len(t, result.Students, 2)
	assert.Equal(t, "reg-a", result.Students[0].RegistrationID) // sorted by registration
	assert.Equal(t, "reg-b", result.Students[1].RegistrationID)

	assert.Equal(t, 75, result.Students[0].Percentage)
	assert.True(t, result.Students[0].IsEligible)
	assert.Equal(t, 25, result.Students[1].Percentage)
	assert.False(t, result.Students[1].IsEligible)

	assert.Equal(t, 1, result.EligibleCount)
	assert.Equal(t, 1, result.AtRiskCount)
	assert.Equal(t, queryClock, result.GeneratedAt)
}

func TestGetEventProgress_OnlyAtRiskFilter(t *testing.T) {
	sessions, marks := eventProgressFixture(t)
	handler := NewGetEventProgressHandler(newFakeConfigRepo(sessionShareConfig(t, "event-1", 75)), sessions, marks).
		WithClock(func() time.Time { return queryClock })

	result, err := handler.Handle(context.Background(), GetEventProgressQuery{
		EventID:    "event-1",
		OnlyAtRisk: true,
	})
	require.NoError(t, err)

	require.Len(t, result.Students, 1)
	assert.Equal(t, "reg-b", result.Students[0].RegistrationID)
	// counters still describe the whole roster
	assert.Equal(t, 1, result.EligibleCount)
	assert.Equal(t, 1, result.AtRiskCount)
}

func TestGetEventProgress_BrokenStudentGetsZeroSummary(t *testing.T) {
	sessions, marks := eventProgressFixture(t)
	marks.errOnRegistration = "reg-a"

	handler := NewGetEventProgressHandler(newFakeConfigRepo(sessionShareConfig(t, "event-1", 75)), sessions, marks).
		WithClock(func() time.Time { return queryClock })

	result, err := handler.Handle(context.Background(), GetEventProgressQuery{EventID: "event-1"})
	require.NoError(t, err)
	require.Len(t, result.Students, 2)

	broken := result.Students[0]
	assert.Equal(t, "reg-a", broken.RegistrationID)
	assert.Equal(t, 0, broken.AttendedCount)
	assert.Equal(t, 0, broken.RequiredUnitCount)
	assert.Equal(t, 0, broken.Percentage)
	assert.False(t, broken.IsEligible)
	assert.False(t, broken.IsOnTrack)

	// the healthy student is unaffected
	healthy := result.Students[1]
	assert.Equal(t, "reg-b", healthy.RegistrationID)
	assert.Equal(t, 25, healthy.Percentage)
	assert.Equal(t, 4, healthy.RequiredUnitCount)
}

func TestGetEventProgress_ConfigMissing(t *testing.T) {
	sessions, marks := eventProgressFixture(t)
	handler := NewGetEventProgressHandler(newFakeConfigRepo(), sessions, marks)

	_, err := handler.Handle(context.Background(), GetEventProgressQuery{EventID: "event-1"})
	require.Error(t, err)
	assert.True(t, shared.IsConfigMissing(err))
}

func TestGetEventProgress_Validation(t *testing.T) {
	handler := NewGetEventProgressHandler(newFakeConfigRepo(), newFakeSessionRepo(), newFakeMarkRepo())

	_, err := handler.Handle(context.Background(), GetEventProgressQuery{})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}
