// Package postgres implements the PostgreSQL persistence layer for the
// campus attendance hub.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/session"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SessionRepository implements session.Repository for PostgreSQL.
type SessionRepository struct {
	conn *Connection
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(conn *Connection) *SessionRepository {
	return &SessionRepository{conn: conn}
}

// UpsertBatch stores the latest upstream schedule for an event. Rows are
// keyed by the upstream session id, so repeated refreshes update in place.
func (r *SessionRepository) UpsertBatch(ctx context.Context, sessions []*session.Session) error {
	if len(sessions) == 0 {
		return nil
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, s := range sessions {
			batch.Queue(`
				INSERT INTO sessions (id, event_id, name, start_time, end_time, timezone, is_mandatory, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT(id) DO UPDATE SET
					event_id = EXCLUDED.event_id,
					name = EXCLUDED.name,
					start_time = EXCLUDED.start_time,
					end_time = EXCLUDED.end_time,
					timezone = EXCLUDED.timezone,
					is_mandatory = EXCLUDED.is_mandatory,
					status = EXCLUDED.status
			`,
				s.ID,
				s.EventID,
				s.Name,
				s.StartTime,
				s.EndTime,
				s.StartTime.Location().String(),
				s.IsMandatory,
				string(s.Status),
			)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for range sessions {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to upsert session: %w", err)
			}
		}

		return nil
	})
}

// GetByID returns a single session by its upstream identifier.
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*session.Session, error) {
	query := `
		SELECT id, event_id, name, start_time, end_time, timezone, is_mandatory, status
		FROM sessions
		WHERE id = $1
	`

	row := r.conn.QueryRow(ctx, query, sessionID)
	return r.scanSession(row)
}

// GetByEvent returns all sessions of an event ordered by start time.
func (r *SessionRepository) GetByEvent(ctx context.Context, eventID string) ([]*session.Session, error) {
	query := `
		SELECT id, event_id, name, start_time, end_time, timezone, is_mandatory, status
		FROM sessions
		WHERE event_id = $1
		ORDER BY start_time ASC, id ASC
	`

	rows, err := r.conn.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions by event: %w", err)
	}
	defer rows.Close()

	return r.scanSessions(rows)
}

// UpdateStatus persists a reclassified lifecycle status.
func (r *SessionRepository) UpdateStatus(ctx context.Context, sessionID string, status session.Status) error {
	if !status.IsValid() {
		return shared.ErrInvalidSessionStatus
	}

	result, err := r.conn.Exec(ctx,
		`UPDATE sessions SET status = $1 WHERE id = $2`,
		string(status),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrSessionNotFound
	}

	return nil
}

// DeleteByEvent removes every session of an event. Marks cascade.
func (r *SessionRepository) DeleteByEvent(ctx context.Context, eventID string) (int, error) {
	result, err := r.conn.Exec(ctx, `DELETE FROM sessions WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions by event: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *SessionRepository) scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	var status, tz string

	err := row.Scan(
		&s.ID,
		&s.EventID,
		&s.Name,
		&s.StartTime,
		&s.EndTime,
		&tz,
		&s.IsMandatory,
		&status,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	s.Status = session.Status(status)
	restoreSessionZone(&s, tz)

	return &s, nil
}

func (r *SessionRepository) scanSessions(rows pgx.Rows) ([]*session.Session, error) {
	var sessions []*session.Session

	for rows.Next() {
		var s session.Session
		var status, tz string

		err := rows.Scan(
			&s.ID,
			&s.EventID,
			&s.Name,
			&s.StartTime,
			&s.EndTime,
			&tz,
			&s.IsMandatory,
			&status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		s.Status = session.Status(status)
		restoreSessionZone(&s, tz)

		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}

// restoreSessionZone puts the stored instants back into the venue's zone.
// timestamptz keeps the instant, not the zone; day-based attribution needs
// the session's own calendar, so the zone name rides in a separate column.
func restoreSessionZone(s *session.Session, tz string) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	s.StartTime = s.StartTime.In(loc)
	s.EndTime = s.EndTime.In(loc)
}
