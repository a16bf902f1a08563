// Package postgres implements the PostgreSQL persistence layer for the
// campus attendance hub.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STRATEGY CONFIG REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StrategyRepository implements attendance.ConfigRepository for PostgreSQL.
// Each event has at most one config row; Upsert replaces it in place.
type StrategyRepository struct {
	conn *Connection
}

// NewStrategyRepository creates a new StrategyRepository.
func NewStrategyRepository(conn *Connection) *StrategyRepository {
	return &StrategyRepository{conn: conn}
}

// Upsert inserts or replaces the strategy config of an event.
func (r *StrategyRepository) Upsert(ctx context.Context, cfg *attendance.StrategyConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid strategy config: %w", err)
	}

	mandatoryJSON, err := json.Marshal(cfg.MandatorySessionIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal mandatory session ids: %w", err)
	}

	query := `
		INSERT INTO strategy_configs (event_id, kind, minimum_percentage, mandatory_session_ids, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT(event_id) DO UPDATE SET
			kind = EXCLUDED.kind,
			minimum_percentage = EXCLUDED.minimum_percentage,
			mandatory_session_ids = EXCLUDED.mandatory_session_ids
	`

	_, err = r.conn.Exec(ctx, query,
		cfg.EventID,
		string(cfg.Kind),
		cfg.MinimumPercentage,
		mandatoryJSON,
		cfg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert strategy config: %w", err)
	}

	return nil
}

// GetByEvent returns the strategy config of an event.
// Returns shared.ErrStrategyConfigMissing when no config is stored.
func (r *StrategyRepository) GetByEvent(ctx context.Context, eventID string) (*attendance.StrategyConfig, error) {
	query := `
		SELECT event_id, kind, minimum_percentage, mandatory_session_ids, created_at
		FROM strategy_configs
		WHERE event_id = $1
	`

	var cfg attendance.StrategyConfig
	var kind string
	var mandatoryJSON []byte

	err := r.conn.QueryRow(ctx, query, eventID).Scan(
		&cfg.EventID,
		&kind,
		&cfg.MinimumPercentage,
		&mandatoryJSON,
		&cfg.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStrategyConfigMissing
		}
		return nil, fmt.Errorf("failed to get strategy config: %w", err)
	}

	cfg.Kind = attendance.Kind(kind)
	if len(mandatoryJSON) > 0 {
		if err := json.Unmarshal(mandatoryJSON, &cfg.MandatorySessionIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mandatory session ids: %w", err)
		}
	}

	// Rows bypass the constructor, so recheck them before handing them out.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("stored strategy config is invalid: %w", err)
	}

	return &cfg, nil
}
