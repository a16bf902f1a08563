package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

func rollupHandler(t *testing.T, cfg *attendance.StrategyConfig, sessions *fakeSessionRepo, marks *fakeMarkRepo) *GetEventRollupHandler {
	t.Helper()
	return NewGetEventRollupHandler(newFakeConfigRepo(cfg), sessions, marks).
		WithClock(func() time.Time { return queryClock })
}

func TestGetEventRollup_CountsCoveredSessions(t *testing.T) {
	sessions := newFakeSessionRepo(
		scheduleSession(t, "s-1", "event-1", 0),
		scheduleSession(t, "s-2", "event-1", 24*time.Hour),
		scheduleSession(t, "s-3", "event-1", 48*time.Hour),
		scheduleSession(t, "s-4", "event-1", 72*time.Hour),
	)
	marks := newFakeMarkRepo()
	// s-1 covered by three students, s-2 by one; coverage ignores the counts.
	seedMark(t, marks, "event-1", "s-1", "reg-1")
	seedMark(t, marks, "event-1", "s-1", "reg-2")
	seedMark(t, marks, "event-1", "s-1", "reg-3")
	seedMark(t, marks, "event-1", "s-2", "reg-1")

	handler := rollupHandler(t, sessionShareConfig(t, "event-1", 50), sessions, marks)

	result, err := handler.Handle(context.Background(), GetEventRollupQuery{EventID: "event-1"})
	require.NoError(t, err)

	rollup := result.Rollup
	assert.Equal(t, 4, rollup.TotalSessions)
	assert.Equal(t, 2, rollup.SessionsWithAttendance)
	assert.Equal(t, 50, rollup.OverallPercentage)
	assert.Equal(t, 3, rollup.DistinctStudents)
	assert.True(t, rollup.IsOnTrack) // 50% coverage meets the 50% threshold
}

func TestGetEventRollup_BelowThresholdNotOnTrack(t *testing.T) {
	sessions := newFakeSessionRepo(
		scheduleSession(t, "s-1", "event-1", 0),
		scheduleSession(t, "s-2", "event-1", 24*time.Hour),
	)
	marks := newFakeMarkRepo()
	seedMark(t, marks, "event-1", "s-1", "reg-1")

	handler := rollupHandler(t, sessionShareConfig(t, "event-1", 75), sessions, marks)

	result, err := handler.Handle(context.Background(), GetEventRollupQuery{EventID: "event-1"})
	require.NoError(t, err)
	assert.Equal(t, 50, result.Rollup.OverallPercentage)
	assert.False(t, result.Rollup.IsOnTrack)
}

func TestGetEventRollup_IgnoresOffScheduleMarks(t *testing.T) {
	sessions := newFakeSessionRepo(scheduleSession(t, "s-1", "event-1", 0))
	marks := newFakeMarkRepo()
	seedMark(t, marks, "event-1", "s-1", "reg-1")
	// mark on a session that was dropped from the schedule
	seedMark(t, marks, "event-1", "dropped", "reg-1")

	handler := rollupHandler(t, sessionShareConfig(t, "event-1", 50), sessions, marks)

	result, err := handler.Handle(context.Background(), GetEventRollupQuery{EventID: "event-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rollup.TotalSessions)
	assert.Equal(t, 1, result.Rollup.SessionsWithAttendance)
	assert.Equal(t, 100, result.Rollup.OverallPercentage)
}

func TestGetEventRollup_MilestoneNeedsEveryMandatorySession(t *testing.T) {
	sessions := newFakeSessionRepo(
		scheduleSession(t, "s-1", "event-1", 0),
		scheduleSession(t, "s-2", "event-1", 24*time.Hour),
	)
	cfg, err := attendance.NewStrategyConfig("event-1", attendance.KindMilestoneBased, 0, []string{"s-1", "s-2"})
	require.NoError(t, err)

	marks := newFakeMarkRepo()
	seedMark(t, marks, "event-1", "s-1", "reg-1")

	handler := rollupHandler(t, cfg, sessions, marks)
	result, err := handler.Handle(context.Background(), GetEventRollupQuery{EventID: "event-1"})
	require.NoError(t, err)
	assert.False(t, result.Rollup.IsOnTrack)

	seedMark(t, marks, "event-1", "s-2", "reg-2")
	result, err = handler.Handle(context.Background(), GetEventRollupQuery{EventID: "event-1"})
	require.NoError(t, err)
	assert.True(t, result.Rollup.IsOnTrack)
}

func TestGetEventRollup_SingleMarkNeedsOneCoveredSession(t *testing.T) {
	sessions := newFakeSessionRepo(scheduleSession(t, "s-1", "event-1", 0))
	cfg, err := attendance.NewStrategyConfig("event-1", attendance.KindSingleMark, 0, nil)
	require.NoError(t, err)

	marks := newFakeMarkRepo()
	handler := rollupHandler(t, cfg, sessions, marks)

	result, err := handler.Handle(context.Background(), GetEventRollupQuery{EventID: "event-1"})
	require.NoError(t, err)
	assert.False(t, result.Rollup.IsOnTrack)

	seedMark(t, marks, "event-1", "s-1", "reg-1")
	result, err = handler.Handle(context.Background(), GetEventRollupQuery{EventID: "event-1"})
	require.NoError(t, err)
	assert.True(t, result.Rollup.IsOnTrack)
}

func TestGetEventRollup_EmptySchedule(t *testing.T) {
	handler := rollupHandler(t, sessionShareConfig(t, "event-1", 50), newFakeSessionRepo(), newFakeMarkRepo())

	result, err := handler.Handle(context.Background(), GetEventRollupQuery{EventID: "event-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Rollup.TotalSessions)
	assert.Equal(t, 0, result.Rollup.OverallPercentage)
}

func TestGetEventRollup_ConfigMissing(t *testing.T) {
	handler := NewGetEventRollupHandler(newFakeConfigRepo(), newFakeSessionRepo(), newFakeMarkRepo())

	_, err := handler.Handle(context.Background(), GetEventRollupQuery{EventID: "event-1"})
	require.Error(t, err)
	assert.True(t, shared.IsConfigMissing(err))
}
