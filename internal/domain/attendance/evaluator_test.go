package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var evalNow = time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)

func daySessions(t *testing.T, count int) []SessionInfo {
	t.Helper()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sessions := make([]SessionInfo, 0, count)
	for i := 0; i < count; i++ {
		sessions = append(sessions, SessionInfo{
			ID:       string(rune('a' + i)),
			StartsAt: base.AddDate(0, 0, i),
		})
	}
	return sessions
}

func mustConfig(t *testing.T, kind Kind, minimum int, mandatory []string) *StrategyConfig {
	t.Helper()
	cfg, err := NewStrategyConfig("event-1", kind, minimum, mandatory)
	require.NoError(t, err)
	return cfg
}

func TestEvaluate_SessionBased_MeetsThreshold(t *testing.T) {
	cfg := mustConfig(t, KindSessionBased, 75, nil)
	sessions := daySessions(t, 4)
	marked := NewMarkSet("a", "b", "c")

	summary, err := Evaluate(cfg, sessions, marked, evalNow)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.AttendedCount)
	assert.Equal(t, 4, summary.RequiredUnitCount)
	assert.Equal(t, 75, summary.Percentage)
	assert.True(t, summary.IsEligible)
	assert.True(t, summary.IsOnTrack)
	assert.Equal(t, evalNow, summary.EvaluatedAt)
}

func TestEvaluate_SessionBased_BelowThreshold(t *testing.T) {
	cfg := mustConfig(t, KindSessionBased, 75, nil)
	sessions := daySessions(t, 4)
	marked := NewMarkSet("a", "b")

	summary, err := Evaluate(cfg, sessions, marked, evalNow)
	require.NoError(t, err)

	assert.Equal(t, 50, summary.Percentage)
	assert.False(t, summary.IsEligible)
	assert.False(t, summary.IsOnTrack)
}

func TestEvaluate_SessionBased_IgnoresMarksOutsideSchedule(t *testing.T) {
	cfg := mustConfig(t, KindSessionBased, 50, nil)
	sessions := daySessions(t, 2)
	// "z" was marked on a session that later dropped out of the schedule.
	marked := NewMarkSet("a", "z")

	summary, err := Evaluate(cfg, sessions, marked, evalNow)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.AttendedCount)
	assert.Equal(t, 2, summary.RequiredUnitCount)
	assert.Equal(t, 50, summary.Percentage)
	assert.True(t, summary.IsEligible)
}

func TestEvaluate_SingleMark(t *testing.T) {
	cfg := mustConfig(t, KindSingleMark, 0, nil)
	sessions := daySessions(t, 3)

	summary, err := Evaluate(cfg, sessions, NewMarkSet(), evalNow)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.AttendedCount)
	assert.Equal(t, 1, summary.RequiredUnitCount)
	assert.Equal(t, 0, summary.Percentage)
	assert.False(t, summary.IsEligible)
	assert.False(t, summary.IsOnTrack)

	summary, err = Evaluate(cfg, sessions, NewMarkSet("b"), evalNow)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.AttendedCount)
	assert.Equal(t, 100, summary.Percentage)
	assert.True(t, summary.IsEligible)
	assert.True(t, summary.IsOnTrack)
}

func TestEvaluate_Milestone_NoPartialCredit(t *testing.T) {
	cfg := mustConfig(t, KindMilestoneBased, 0, []string{"A", "B", "C"})
	sessions := daySessions(t, 5)
	marked := NewMarkSet("A", "B")

	summary, err := Evaluate(cfg, sessions, marked, evalNow)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.AttendedCount)
	assert.Equal(t, 3, summary.RequiredUnitCount)
	assert.Equal(t, 67, summary.Percentage)
	assert.False(t, summary.IsEligible)
	assert.False(t, summary.IsOnTrack)
}

func TestEvaluate_Milestone_AllMandatoryMarked(t *testing.T) {
	cfg := mustConfig(t, KindMilestoneBased, 0, []string{"A", "B"})
	marked := NewMarkSet("A", "B", "extra")

	summary, err := Evaluate(cfg, nil, marked, evalNow)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.AttendedCount)
	assert.Equal(t, 2, summary.RequiredUnitCount)
	assert.Equal(t, 100, summary.Percentage)
	assert.True(t, summary.IsEligible)
	assert.True(t, summary.IsOnTrack)
}

func TestEvaluate_DayBased_CountsDistinctDays(t *testing.T) {
	cfg := mustConfig(t, KindDayBased, 60, nil)
	day1 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sessions := []SessionInfo{
		{ID: "s1", StartsAt: day1},
		{ID: "s2", StartsAt: day1.Add(4 * time.Hour)}, // same day as s1
		{ID: "s3", StartsAt: day1.AddDate(0, 0, 1)},
		{ID: "s4", StartsAt: day1.AddDate(0, 0, 2)},
	}
	// Both sessions of day one plus day two: 2 of 3 days covered.
	marked := NewMarkSet("s1", "s2", "s3")

	summary, err := Evaluate(cfg, sessions, marked, evalNow)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.AttendedCount)
	assert.Equal(t, 3, summary.RequiredUnitCount)
	assert.Equal(t, 67, summary.Percentage)
	assert.True(t, summary.IsEligible)
}

func TestEvaluate_DayBased_UsesSessionOwnLocation(t *testing.T) {
	cfg := mustConfig(t, KindDayBased, 0, nil)
	almaty := time.FixedZone("UTC+5", 5*3600)
	sessions := []SessionInfo{
		// 20:00 UTC on March 10th.
		{ID: "s1", StartsAt: time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)},
		// The same instant, but local to UTC+5 it is already March 11th.
		{ID: "s2", StartsAt: time.Date(2026, 3, 11, 1, 0, 0, 0, almaty)},
	}

	summary, err := Evaluate(cfg, sessions, NewMarkSet("s1"), evalNow)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.RequiredUnitCount)
	assert.Equal(t, 1, summary.AttendedCount)
	assert.Equal(t, 50, summary.Percentage)
}

func TestEvaluate_ZeroSessions_NoDivisionError(t *testing.T) {
	for _, kind := range []Kind{KindSessionBased, KindDayBased, KindContinuous} {
		cfg := mustConfig(t, kind, 50, nil)

		summary, err := Evaluate(cfg, nil, NewMarkSet(), evalNow)
		require.NoError(t, err, "kind %s", kind)

		assert.Equal(t, 0, summary.RequiredUnitCount, "kind %s", kind)
		assert.Equal(t, 0, summary.Percentage, "kind %s", kind)
		assert.False(t, summary.IsEligible, "kind %s", kind)
		assert.False(t, summary.IsOnTrack, "kind %s", kind)
	}
}

func TestEvaluate_ContinuousMatchesSessionBased(t *testing.T) {
	sessions := daySessions(t, 5)
	marked := NewMarkSet("a", "c", "e")

	sessionCfg := mustConfig(t, KindSessionBased, 60, nil)
	continuousCfg := mustConfig(t, KindContinuous, 60, nil)

	fromSessions, err := Evaluate(sessionCfg, sessions, marked, evalNow)
	require.NoError(t, err)
	fromContinuous, err := Evaluate(continuousCfg, sessions, marked, evalNow)
	require.NoError(t, err)

	assert.Equal(t, fromSessions.AttendedCount, fromContinuous.AttendedCount)
	assert.Equal(t, fromSessions.RequiredUnitCount, fromContinuous.RequiredUnitCount)
	assert.Equal(t, fromSessions.Percentage, fromContinuous.Percentage)
	assert.Equal(t, fromSessions.IsEligible, fromContinuous.IsEligible)
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	cfg := mustConfig(t, KindSessionBased, 70, nil)
	sessions := daySessions(t, 4)
	marked := NewMarkSet("a", "d")

	first, err := Evaluate(cfg, sessions, marked, evalNow)
	require.NoError(t, err)
	second, err := Evaluate(cfg, sessions, marked, evalNow)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEvaluate_Rounding(t *testing.T) {
	cfg := mustConfig(t, KindSessionBased, 0, nil)

	// 1 of 3 rounds down, 2 of 3 rounds up, 5 of 8 rounds half up.
	summary, err := Evaluate(cfg, daySessions(t, 3), NewMarkSet("a"), evalNow)
	require.NoError(t, err)
	assert.Equal(t, 33, summary.Percentage)

	summary, err = Evaluate(cfg, daySessions(t, 3), NewMarkSet("a", "b"), evalNow)
	require.NoError(t, err)
	assert.Equal(t, 67, summary.Percentage)

	summary, err = Evaluate(cfg, daySessions(t, 8), NewMarkSet("a", "b", "c", "d", "e"), evalNow)
	require.NoError(t, err)
	assert.Equal(t, 63, summary.Percentage)
}

func TestEvaluate_ConfigErrors(t *testing.T) {
	_, err := Evaluate(nil, nil, NewMarkSet(), evalNow)
	assert.ErrorIs(t, err, ErrNilConfig)

	broken := &StrategyConfig{EventID: "event-1", Kind: Kind("weighted")}
	_, err = Evaluate(broken, nil, NewMarkSet(), evalNow)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}
