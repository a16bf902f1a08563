// Package postgres implements the PostgreSQL persistence layer for the
// campus attendance hub.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK-IN CODE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CheckinCodeRepository stores self check-in code hashes, one per session.
// Only the bcrypt hash ever reaches the database; rotation replaces the row.
type CheckinCodeRepository struct {
	conn *Connection
}

// NewCheckinCodeRepository creates a new CheckinCodeRepository.
func NewCheckinCodeRepository(conn *Connection) *CheckinCodeRepository {
	return &CheckinCodeRepository{conn: conn}
}

// SaveCodeHash stores the code hash for a session, replacing any previous one.
func (r *CheckinCodeRepository) SaveCodeHash(ctx context.Context, sessionID, eventID string, hash []byte, issuedAt, expiresAt time.Time) error {
	query := `
		INSERT INTO checkin_codes (id, session_id, event_id, code_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT(session_id) DO UPDATE SET
			code_hash = EXCLUDED.code_hash,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at
	`

	_, err := r.conn.Exec(ctx, query,
		uuid.New().String(),
		sessionID,
		eventID,
		string(hash),
		issuedAt,
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save check-in code: %w", err)
	}

	return nil
}

// GetCodeHash returns the stored hash and its expiry for a session.
// Returns shared.ErrCheckinCodeNotFound when no code is stored. Expiry is
// checked by the caller, not here.
func (r *CheckinCodeRepository) GetCodeHash(ctx context.Context, sessionID string) ([]byte, time.Time, error) {
	var hash string
	var expiresAt time.Time

	err := r.conn.QueryRow(ctx,
		`SELECT code_hash, expires_at FROM checkin_codes WHERE session_id = $1`,
		sessionID,
	).Scan(&hash, &expiresAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, time.Time{}, shared.ErrCheckinCodeNotFound
		}
		return nil, time.Time{}, fmt.Errorf("failed to get check-in code: %w", err)
	}

	return []byte(hash), expiresAt, nil
}

// DeleteCode removes the code of a session, if any.
func (r *CheckinCodeRepository) DeleteCode(ctx context.Context, sessionID string) error {
	_, err := r.conn.Exec(ctx,
		`DELETE FROM checkin_codes WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete check-in code: %w", err)
	}

	return nil
}

// DeleteExpired removes codes whose expiry has passed. Returns the number of
// removed rows. Used by the cleanup job.
func (r *CheckinCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := r.conn.Exec(ctx,
		`DELETE FROM checkin_codes WHERE expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired check-in codes: %w", err)
	}

	return int(result.RowsAffected()), nil
}
