package refresh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/session"
)

var refreshClock = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

func buildSession(t *testing.T, id string, startOffset time.Duration) *session.Session {
	t.Helper()
	base := time.Date(2026, 3, 30, 10, 0, 0, 0, time.UTC)
	start := base.Add(startOffset)
	s, err := session.NewSession(id, "event-1", "Session "+id, start, start.Add(time.Hour), false, base)
	require.NoError(t, err)
	return s
}

func buildMark(t *testing.T, sessionID, registrationID string) *attendance.AttendanceMark {
	t.Helper()
	mark, err := attendance.NewMark(attendance.NewMarkParams{
		ID:             "mark-" + sessionID + "-" + registrationID,
		EventID:        "event-1",
		SessionID:      sessionID,
		RegistrationID: registrationID,
		MarkedAt:       refreshClock,
		Method:         "physical",
	})
	require.NoError(t, err)
	return mark
}

func shareConfig(t *testing.T, minimum int) *attendance.StrategyConfig {
	t.Helper()
	cfg, err := attendance.NewStrategyConfig("event-1", attendance.KindSessionBased, minimum, nil)
	require.NoError(t, err)
	return cfg
}

func TestBuildSnapshot_ComputesAllAggregates(t *testing.T) {
	sessions := []*session.Session{
		buildSession(t, "s-1", 0),
		buildSession(t, "s-2", 24*time.Hour),
		buildSession(t, "s-3", 48*time.Hour),
		buildSession(t, "s-4", 72*time.Hour),
	}
	marks := []*attendance.AttendanceMark{
		buildMark(t, "s-1", "reg-a"),
		buildMark(t, "s-2", "reg-a"),
		buildMark(t, "s-3", "reg-a"),
		buildMark(t, "s-1", "reg-b"),
	}
	registrations := []string{"reg-a", "reg-b", "reg-c"}

	snap, err := BuildSnapshot("event-1", 7, shareConfig(t, 75), sessions, marks, registrations, refreshClock)
	require.NoError(t, err)

	assert.Equal(t, "event-1", snap.EventID)
	assert.Equal(t, uint64(7), snap.Generation)
	assert.Equal(t, refreshClock, snap.RefreshedAt)
	assert.Equal(t, attendance.KindSessionBased, snap.StrategyKind)

	require.Equal(t, 3, snap.StudentCount())
	a, ok := snap.Student("reg-a")
	require.True(t, ok)
	assert.Equal(t, 75, a.Percentage)
	assert.True(t, a.IsEligible)

	b, ok := snap.Student("reg-b")
	require.True(t, ok)
	assert.Equal(t, 25, b.Percentage)
	assert.False(t, b.IsOnTrack)

	c, ok := snap.Student("reg-c")
	require.True(t, ok)
	assert.Equal(t, 0, c.AttendedCount)
	assert.Equal(t, 4, c.RequiredUnitCount)

	require.Len(t, snap.Sessions, 4)
	assert.Equal(t, "s-1", snap.Sessions[0].SessionID) // ordered by start time
	assert.Equal(t, 2, snap.Sessions[0].Attended)
	assert.Equal(t, 1, snap.Sessions[1].Attended)
	assert.Equal(t, 1, snap.Sessions[2].Attended)
	assert.Equal(t, 0, snap.Sessions[3].Attended)
	for _, coverage := range snap.Sessions {
		assert.Equal(t, 3, coverage.Total)
	}

	assert.Equal(t, 4, snap.Rollup.TotalSessions)
	assert.Equal(t, 3, snap.Rollup.SessionsWithAttendance)
	assert.Equal(t, 75, snap.Rollup.OverallPercentage)
	assert.True(t, snap.Rollup.IsOnTrack)
}

func TestBuildSnapshot_IncludesUnregisteredMarkedStudents(t *testing.T) {
	sessions := []*session.Session{buildSession(t, "s-1", 0)}
	marks := []*attendance.AttendanceMark{buildMark(t, "s-1", "reg-ghost")}

	snap, err := BuildSnapshot("event-1", 1, shareConfig(t, 50), sessions, marks, []string{"reg-a"}, refreshClock)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.StudentCount())
	ghost, ok := snap.Student("reg-ghost")
	require.True(t, ok)
	assert.Equal(t, 1, ghost.AttendedCount)
}

func TestBuildSnapshot_DuplicateLedgerRowsCountOnce(t *testing.T) {
	sessions := []*session.Session{buildSession(t, "s-1", 0)}
	marks := []*attendance.AttendanceMark{
		buildMark(t, "s-1", "reg-a"),
		buildMark(t, "s-1", "reg-a"),
	}

	snap, err := BuildSnapshot("event-1", 1, shareConfig(t, 50), sessions, marks, []string{"reg-a"}, refreshClock)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.Sessions[0].Attended)
	a, _ := snap.Student("reg-a")
	assert.Equal(t, 1, a.AttendedCount)
}

func TestBuildSnapshot_MilestoneVerdictNeedsEveryMandatory(t *testing.T) {
	sessions := []*session.Session{
		buildSession(t, "s-1", 0),
		buildSession(t, "s-2", 24*time.Hour),
	}
	cfg, err := attendance.NewStrategyConfig("event-1", attendance.KindMilestoneBased, 0, []string{"s-1", "s-2"})
	require.NoError(t, err)

	marks := []*attendance.AttendanceMark{buildMark(t, "s-1", "reg-a")}
	snap, err := BuildSnapshot("event-1", 1, cfg, sessions, marks, []string{"reg-a"}, refreshClock)
	require.NoError(t, err)
	assert.False(t, snap.Rollup.IsOnTrack)

	marks = append(marks, buildMark(t, "s-2", "reg-b"))
	snap, err = BuildSnapshot("event-1", 2, cfg, sessions, marks, []string{"reg-a", "reg-b"}, refreshClock)
	require.NoError(t, err)
	assert.True(t, snap.Rollup.IsOnTrack)
}

func TestBuildSnapshot_NilConfig(t *testing.T) {
	_, err := BuildSnapshot("event-1", 1, nil, nil, nil, nil, refreshClock)
	require.Error(t, err)
	assert.ErrorIs(t, err, attendance.ErrNilConfig)
}

func TestBuildSnapshot_EmptyEvent(t *testing.T) {
	snap, err := BuildSnapshot("event-1", 1, shareConfig(t, 50), nil, nil, nil, refreshClock)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.StudentCount())
	assert.Equal(t, 0, snap.Rollup.TotalSessions)
	assert.Equal(t, 0, snap.Rollup.OverallPercentage)
	assert.False(t, snap.Rollup.IsOnTrack)
}

func TestSnapshot_AtRiskRegistrationsSorted(t *testing.T) {
	sessions := []*session.Session{
		buildSession(t, "s-1", 0),
		buildSession(t, "s-2", 24*time.Hour),
	}
	marks := []*attendance.AttendanceMark{
		buildMark(t, "s-1", "reg-c"),
		buildMark(t, "s-2", "reg-c"),
	}

	snap, err := BuildSnapshot("event-1", 1, shareConfig(t, 100), sessions, marks, []string{"reg-b", "reg-a", "reg-c"}, refreshClock)
	require.NoError(t, err)

	// reg-c attends everything; reg-a and reg-b are at risk
	assert.Equal(t, []string{"reg-a", "reg-b"}, snap.AtRiskRegistrations())
}
