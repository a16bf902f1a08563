package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/session"
)

// setupTestConnection connects to the database named by TEST_DATABASE_URL
// and applies migrations. Without the variable the test is skipped:
// repository tests need a live database.
func setupTestConnection(t *testing.T) *Connection {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	conn, err := NewConnectionFromURL(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	require.NoError(t, NewMigrator(conn).Migrate(ctx))
	return conn
}

func seedTestSessions(t *testing.T, conn *Connection, eventID string, sessionIDs ...string) {
	t.Helper()

	now := time.Now().UTC()
	sessions := make([]*session.Session, 0, len(sessionIDs))
	for i, id := range sessionIDs {
		start := now.Add(time.Duration(i) * time.Hour)
		s, err := session.NewSession(id, eventID, fmt.Sprintf("Session %d", i+1),
			start, start.Add(time.Hour), true, now)
		require.NoError(t, err)
		sessions = append(sessions, s)
	}
	require.NoError(t, NewSessionRepository(conn).UpsertBatch(context.Background(), sessions))

	t.Cleanup(func() {
		// Marks cascade with the sessions.
		_, err := conn.Exec(context.Background(), `DELETE FROM sessions WHERE event_id = $1`, eventID)
		assert.NoError(t, err)
	})
}

func mirroredMark(t *testing.T, eventID, sessionID, registrationID string) *attendance.AttendanceMark {
	t.Helper()

	mark, err := attendance.NewMark(attendance.NewMarkParams{
		ID:             uuid.New().String(),
		EventID:        eventID,
		SessionID:      sessionID,
		RegistrationID: registrationID,
		MarkedAt:       time.Now().UTC(),
		Method:         "physical",
	})
	require.NoError(t, err)
	return mark
}

func TestAttendanceRepository_SyncEventMarks(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	eventID := "evt-" + uuid.New().String()
	seedTestSessions(t, conn, eventID, eventID+"-s1", eventID+"-s2")
	repo := NewAttendanceRepository(conn)

	// The upsert batch and the prune run inside one transaction; syncing
	// a non-empty ledger must leave the connection usable for the prune.
	marks := []*attendance.AttendanceMark{
		mirroredMark(t, eventID, eventID+"-s1", "reg-alice"),
		mirroredMark(t, eventID, eventID+"-s1", "reg-bob"),
		mirroredMark(t, eventID, eventID+"-s2", "reg-alice"),
	}
	require.NoError(t, repo.SyncEventMarks(ctx, eventID, marks))

	stored, err := repo.GetEventMarks(ctx, eventID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	// Upstream dropped one mark: re-sync prunes it and keeps the rest.
	require.NoError(t, repo.SyncEventMarks(ctx, eventID, marks[:2]))

	stored, err = repo.GetEventMarks(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, mark := range stored {
		assert.Equal(t, eventID+"-s1", mark.SessionID)
	}
}

func TestAttendanceRepository_SyncEventMarksEmptyLedger(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	eventID := "evt-" + uuid.New().String()
	seedTestSessions(t, conn, eventID, eventID+"-s1")
	repo := NewAttendanceRepository(conn)

	require.NoError(t, repo.SyncEventMarks(ctx, eventID,
		[]*attendance.AttendanceMark{mirroredMark(t, eventID, eventID+"-s1", "reg-alice")}))

	// An empty upstream ledger clears the mirror outright.
	require.NoError(t, repo.SyncEventMarks(ctx, eventID, nil))

	stored, err := repo.GetEventMarks(ctx, eventID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestAttendanceRepository_SyncEventMarksIdempotent(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	eventID := "evt-" + uuid.New().String()
	seedTestSessions(t, conn, eventID, eventID+"-s1")
	repo := NewAttendanceRepository(conn)

	mark := mirroredMark(t, eventID, eventID+"-s1", "reg-alice")
	require.NoError(t, repo.SyncEventMarks(ctx, eventID, []*attendance.AttendanceMark{mark}))

	// Re-syncing the same pair updates in place instead of duplicating.
	resynced := mirroredMark(t, eventID, eventID+"-s1", "reg-alice")
	resynced.Notes = "confirmed"
	require.NoError(t, repo.SyncEventMarks(ctx, eventID, []*attendance.AttendanceMark{resynced}))

	stored, err := repo.GetEventMarks(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "confirmed", stored[0].Notes)
	// The surrogate id of the first insert survives the conflict update.
	assert.Equal(t, mark.ID, stored[0].ID)
}
