// Package postgres implements the PostgreSQL persistence layer for the
// campus attendance hub.
package postgres

import (
	"context"
	"fmt"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceRepository implements attendance.Repository for PostgreSQL.
// The UNIQUE(session_id, registration_id) constraint is the storage-level
// half of idempotent marking: re-marks hit ON CONFLICT DO NOTHING.
type AttendanceRepository struct {
	conn *Connection
}

// NewAttendanceRepository creates a new AttendanceRepository.
func NewAttendanceRepository(conn *Connection) *AttendanceRepository {
	return &AttendanceRepository{conn: conn}
}

// InsertMark idempotently records a mark. Returns created=false when a mark
// for the (session, registration) pair already existed.
func (r *AttendanceRepository) InsertMark(ctx context.Context, mark *attendance.AttendanceMark) (bool, error) {
	query := `
		INSERT INTO attendance_marks (id, event_id, session_id, registration_id, marked_at, method, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT(session_id, registration_id) DO NOTHING
	`

	result, err := r.conn.Exec(ctx, query,
		mark.ID,
		mark.EventID,
		mark.SessionID,
		mark.RegistrationID,
		mark.MarkedAt,
		mark.Method,
		mark.Notes,
		mark.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert mark: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// GetMarkedSessionIDs returns the sessions of an event on which the student
// is marked.
func (r *AttendanceRepository) GetMarkedSessionIDs(ctx context.Context, eventID, registrationID string) ([]string, error) {
	query := `
		SELECT session_id
		FROM attendance_marks
		WHERE event_id = $1 AND registration_id = $2
		ORDER BY session_id ASC
	`

	rows, err := r.conn.Query(ctx, query, eventID, registrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query marked sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// GetMarksForStudent returns the student's full marks for an event.
func (r *AttendanceRepository) GetMarksForStudent(ctx context.Context, eventID, registrationID string) ([]*attendance.AttendanceMark, error) {
	query := `
		SELECT id, event_id, session_id, registration_id, marked_at, method, notes, created_at
		FROM attendance_marks
		WHERE event_id = $1 AND registration_id = $2
		ORDER BY marked_at ASC
	`

	rows, err := r.conn.Query(ctx, query, eventID, registrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query marks for student: %w", err)
	}
	defer rows.Close()

	return r.scanMarks(rows)
}

// GetEventMarks returns every mark recorded for an event. Used by the
// mirror fallback when the campus API is unreachable.
func (r *AttendanceRepository) GetEventMarks(ctx context.Context, eventID string) ([]*attendance.AttendanceMark, error) {
	query := `
		SELECT id, event_id, session_id, registration_id, marked_at, method, notes, created_at
		FROM attendance_marks
		WHERE event_id = $1
		ORDER BY marked_at ASC
	`

	rows, err := r.conn.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query event marks: %w", err)
	}
	defer rows.Close()

	return r.scanMarks(rows)
}

// CountBySession returns the number of marked students on a session.
func (r *AttendanceRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM attendance_marks WHERE session_id = $1`,
		sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count marks by session: %w", err)
	}

	return count, nil
}

// GetSessionMarkCounts returns the mark count per session of an event.
// Sessions without marks do not appear in the map.
func (r *AttendanceRepository) GetSessionMarkCounts(ctx context.Context, eventID string) (map[string]int, error) {
	query := `
		SELECT session_id, COUNT(*)
		FROM attendance_marks
		WHERE event_id = $1
		GROUP BY session_id
	`

	rows, err := r.conn.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mark counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var sessionID string
		var count int
		if err := rows.Scan(&sessionID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan mark count: %w", err)
		}
		counts[sessionID] = count
	}

	return counts, rows.Err()
}

// GetRegistrationIDs returns every student with at least one mark on the event.
func (r *AttendanceRepository) GetRegistrationIDs(ctx context.Context, eventID string) ([]string, error) {
	query := `
		SELECT DISTINCT registration_id
		FROM attendance_marks
		WHERE event_id = $1
		ORDER BY registration_id ASC
	`

	rows, err := r.conn.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query registration ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan registration id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// SyncEventMarks brings the local mirror of an event's marks to the upstream
// state. Existing rows keep their surrogate id; rows absent upstream are
// removed.
func (r *AttendanceRepository) SyncEventMarks(ctx context.Context, eventID string, marks []*attendance.AttendanceMark) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if len(marks) > 0 {
			batch := &pgx.Batch{}
			for _, mark := range marks {
				batch.Queue(`
					INSERT INTO attendance_marks (id, event_id, session_id, registration_id, marked_at, method, notes, created_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
					ON CONFLICT(session_id, registration_id) DO UPDATE SET
						marked_at = EXCLUDED.marked_at,
						method = EXCLUDED.method,
						notes = EXCLUDED.notes
				`,
					mark.ID,
					mark.EventID,
					mark.SessionID,
					mark.RegistrationID,
					mark.MarkedAt,
					mark.Method,
					mark.Notes,
					mark.CreatedAt,
				)
			}

			br := tx.SendBatch(ctx, batch)
			for range marks {
				if _, err := br.Exec(); err != nil {
					br.Close()
					return fmt.Errorf("failed to sync mark: %w", err)
				}
			}
			// The connection stays busy until the batch results are
			// drained; the prune below runs on the same connection.
			if err := br.Close(); err != nil {
				return fmt.Errorf("failed to sync marks batch: %w", err)
			}
		}

		// Drop rows that disappeared upstream. Keys are compared as
		// session|registration pairs because composite NOT IN does not take
		// a single array parameter.
		keys := make([]string, 0, len(marks))
		for _, mark := range marks {
			keys = append(keys, mark.SessionID+"|"+mark.RegistrationID)
		}

		var err error
		if len(keys) == 0 {
			_, err = tx.Exec(ctx, `DELETE FROM attendance_marks WHERE event_id = $1`, eventID)
		} else {
			_, err = tx.Exec(ctx, `
				DELETE FROM attendance_marks
				WHERE event_id = $1
				  AND NOT (session_id || '|' || registration_id = ANY($2))
			`, eventID, keys)
		}
		if err != nil {
			return fmt.Errorf("failed to prune stale marks: %w", err)
		}

		return nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *AttendanceRepository) scanMarks(rows pgx.Rows) ([]*attendance.AttendanceMark, error) {
	var marks []*attendance.AttendanceMark

	for rows.Next() {
		var m attendance.AttendanceMark

		err := rows.Scan(
			&m.ID,
			&m.EventID,
			&m.SessionID,
			&m.RegistrationID,
			&m.MarkedAt,
			&m.Method,
			&m.Notes,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mark: %w", err)
		}

		marks = append(marks, &m)
	}

	return marks, rows.Err()
}
