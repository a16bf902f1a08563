package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

func TestGetSessionCoverage_ComputesShare(t *testing.T) {
	sessions := newFakeSessionRepo(scheduleSession(t, "s-1", "event-1", 0))
	marks := newFakeMarkRepo()
	for i := 0; i < 12; i++ {
		seedMark(t, marks, "event-1", "s-1", fmt.Sprintf("reg-%02d", i))
	}

	handler := NewGetSessionCoverageHandler(sessions, marks).
		WithClock(func() time.Time { return queryClock })

	result, err := handler.Handle(context.Background(), GetSessionCoverageQuery{
		EventID:         "event-1",
		SessionID:       "s-1",
		TotalRegistered: 40,
	})
	require.NoError(t, err)

	coverage := result.Coverage
	assert.Equal(t, "s-1", coverage.SessionID)
	assert.Equal(t, "Session s-1", coverage.Name)
	assert.Equal(t, 12, coverage.AttendedCount)
	assert.Equal(t, 40, coverage.TotalRegistered)
	assert.Equal(t, 30, coverage.CoveragePercent)
	assert.Equal(t, "completed", coverage.Status) // fixture clock is past the session end
}

func TestGetSessionCoverage_ZeroPopulation(t *testing.T) {
	sessions := newFakeSessionRepo(scheduleSession(t, "s-1", "event-1", 0))
	handler := NewGetSessionCoverageHandler(sessions, newFakeMarkRepo()).
		WithClock(func() time.Time { return queryClock })

	result, err := handler.Handle(context.Background(), GetSessionCoverageQuery{
		EventID:         "event-1",
		SessionID:       "s-1",
		TotalRegistered: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Coverage.CoveragePercent)
	assert.Equal(t, 0, result.Coverage.AttendedCount)
}

func TestGetSessionCoverage_SessionOfAnotherEvent(t *testing.T) {
	sessions := newFakeSessionRepo(scheduleSession(t, "s-1", "event-2", 0))
	handler := NewGetSessionCoverageHandler(sessions, newFakeMarkRepo()).
		WithClock(func() time.Time { return queryClock })

	_, err := handler.Handle(context.Background(), GetSessionCoverageQuery{
		EventID:         "event-1",
		SessionID:       "s-1",
		TotalRegistered: 10,
	})
	require.Error(t, err)
	assert.True(t, shared.IsInvalidSession(err))
}

func TestGetSessionCoverage_UnknownSession(t *testing.T) {
	handler := NewGetSessionCoverageHandler(newFakeSessionRepo(), newFakeMarkRepo()).
		WithClock(func() time.Time { return queryClock })

	_, err := handler.Handle(context.Background(), GetSessionCoverageQuery{
		EventID:         "event-1",
		SessionID:       "ghost",
		TotalRegistered: 10,
	})
	require.Error(t, err)
	assert.True(t, shared.IsInvalidSession(err))
}

func TestGetSessionCoverage_Validation(t *testing.T) {
	handler := NewGetSessionCoverageHandler(newFakeSessionRepo(), newFakeMarkRepo())

	_, err := handler.Handle(context.Background(), GetSessionCoverageQuery{
		EventID:         "event-1",
		SessionID:       "s-1",
		TotalRegistered: -1,
	})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}
