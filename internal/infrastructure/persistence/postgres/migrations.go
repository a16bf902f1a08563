// Package postgres implements the PostgreSQL persistence layer for the
// campus attendance hub.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create sessions mirror
-- Version: 001
-- Sessions carry the identifiers assigned by the upstream campus platform,
-- so the primary key is the upstream id, not a locally generated one.

CREATE TABLE IF NOT EXISTS sessions (
    id VARCHAR(64) PRIMARY KEY,
    event_id VARCHAR(64) NOT NULL,
    name VARCHAR(255) NOT NULL,
    start_time TIMESTAMP WITH TIME ZONE NOT NULL,
    end_time TIMESTAMP WITH TIME ZONE NOT NULL,
    -- IANA zone name of the venue. timestamptz stores the instant only;
    -- calendar-day attribution needs the session's own zone back.
    timezone VARCHAR(64) NOT NULL DEFAULT 'UTC',
    is_mandatory BOOLEAN NOT NULL DEFAULT FALSE,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_session_status CHECK (status IN ('pending', 'active', 'completed')),
    CONSTRAINT valid_session_window CHECK (end_time > start_time)
);

-- Indexes for schedule queries
CREATE INDEX IF NOT EXISTS idx_sessions_event_id ON sessions(event_id);
CREATE INDEX IF NOT EXISTS idx_sessions_event_start ON sessions(event_id, start_time);
CREATE INDEX IF NOT EXISTS idx_sessions_open ON sessions(event_id, status) WHERE status != 'completed';

-- Updated_at trigger function for automatic timestamp updates
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ language 'plpgsql';

DROP TRIGGER IF EXISTS update_sessions_updated_at ON sessions;
CREATE TRIGGER update_sessions_updated_at
    BEFORE UPDATE ON sessions
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration001Down = `
DROP TRIGGER IF EXISTS update_sessions_updated_at ON sessions;
DROP FUNCTION IF EXISTS update_updated_at_column();
DROP TABLE IF EXISTS sessions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create attendance ledger and strategy configs
-- Version: 002
-- One mark per (session, registration): the unique constraint is what makes
-- marking idempotent at the storage level.

CREATE TABLE IF NOT EXISTS attendance_marks (
    id UUID PRIMARY KEY,
    event_id VARCHAR(64) NOT NULL,
    session_id VARCHAR(64) NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    registration_id VARCHAR(64) NOT NULL,
    marked_at TIMESTAMP WITH TIME ZONE NOT NULL,
    method VARCHAR(30) NOT NULL DEFAULT 'manual',
    notes TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(session_id, registration_id)
);

-- Indexes for the evaluator's access paths
CREATE INDEX IF NOT EXISTS idx_marks_event_registration ON attendance_marks(event_id, registration_id);
CREATE INDEX IF NOT EXISTS idx_marks_session ON attendance_marks(session_id);
CREATE INDEX IF NOT EXISTS idx_marks_event ON attendance_marks(event_id);

-- Strategy configuration mirror: one row per event, immutable upstream but
-- mirrored as-is on every sync.
CREATE TABLE IF NOT EXISTS strategy_configs (
    event_id VARCHAR(64) PRIMARY KEY,
    kind VARCHAR(30) NOT NULL,
    minimum_percentage INTEGER NOT NULL DEFAULT 0,
    mandatory_session_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_strategy_kind CHECK (kind IN ('single_mark', 'session_based', 'day_based', 'milestone_based', 'continuous')),
    CONSTRAINT valid_minimum_percentage CHECK (minimum_percentage >= 0 AND minimum_percentage <= 100)
);

DROP TRIGGER IF EXISTS update_strategy_configs_updated_at ON strategy_configs;
CREATE TRIGGER update_strategy_configs_updated_at
    BEFORE UPDATE ON strategy_configs
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration002Down = `
DROP TRIGGER IF EXISTS update_strategy_configs_updated_at ON strategy_configs;
DROP TABLE IF EXISTS strategy_configs;
DROP TABLE IF EXISTS attendance_marks;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE CHECKIN CODES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create check-in codes
-- Version: 003
-- Codes are stored as bcrypt hashes only. One active code per session;
-- rotating a code replaces the row in place.

CREATE TABLE IF NOT EXISTS checkin_codes (
    id UUID NOT NULL,
    session_id VARCHAR(64) PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
    event_id VARCHAR(64) NOT NULL,
    code_hash TEXT NOT NULL,
    issued_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_code_window CHECK (expires_at > issued_at)
);

CREATE INDEX IF NOT EXISTS idx_checkin_codes_event ON checkin_codes(event_id);
CREATE INDEX IF NOT EXISTS idx_checkin_codes_expiry ON checkin_codes(expires_at);
`

const migration003Down = `
DROP TABLE IF EXISTS checkin_codes;
`
