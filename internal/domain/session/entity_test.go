package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession_Validation(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	now := start.Add(-time.Hour)

	_, err := NewSession("", "event-1", "Kickoff", start, end, false, now)
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = NewSession("s-1", "", "Kickoff", start, end, false, now)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = NewSession("s-1", "event-1", "  ", start, end, false, now)
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = NewSession("s-1", "event-1", "Kickoff", start, start, false, now)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = NewSession("s-1", "event-1", "Kickoff", end, start, false, now)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	s, err := NewSession("s-1", "event-1", "Kickoff", start, end, true, now)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, s.Status)
	assert.True(t, s.IsMandatory)
}

func TestSessionStatusAt_Boundaries(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)
	s, err := NewSession("s-1", "event-1", "Standup", start, end, false, start)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, s.StatusAt(start.Add(-time.Second)))

	// Start boundary belongs to the active state.
	assert.Equal(t, StatusActive, s.StatusAt(start))
	assert.Equal(t, StatusActive, s.StatusAt(start.Add(45*time.Minute)))
	assert.Equal(t, StatusActive, s.StatusAt(end.Add(-time.Nanosecond)))

	// End boundary belongs to the completed state.
	assert.Equal(t, StatusCompleted, s.StatusAt(end))
	assert.Equal(t, StatusCompleted, s.StatusAt(end.Add(time.Hour)))
}

func TestSessionReclassify_ReportsChangeOnce(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	s, err := NewSession("s-1", "event-1", "Workshop", start, end, false, start.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, StatusPending, s.Status)

	assert.True(t, s.Reclassify(start.Add(time.Minute)))
	assert.Equal(t, StatusActive, s.Status)

	// Same instant again: no transition.
	assert.False(t, s.Reclassify(start.Add(time.Minute)))

	assert.True(t, s.Reclassify(end))
	assert.Equal(t, StatusCompleted, s.Status)
}

func TestSessionHelpers(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	s, err := NewSession("s-1", "event-1", "Lab", start, end, false, start)
	require.NoError(t, err)

	assert.True(t, s.IsActiveAt(start))
	assert.False(t, s.IsActiveAt(end))
	assert.True(t, s.HasEnded(end))
	assert.False(t, s.HasEnded(start))
	assert.Equal(t, time.Hour, s.Duration())

	assert.True(t, StatusActive.IsValid())
	assert.False(t, Status("cancelled").IsValid())
}
