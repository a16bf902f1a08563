package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/session"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/external/campus"
	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/persistence/redis"
)

// rosterTTL bounds how long a cached roster may serve Exists checks
// without being re-verified against the campus API. The refresh cycle
// rewrites the roster far more often than this under normal operation.
const rosterTTL = 24 * time.Hour

// SessionMirror is the slice of the session store the adapter writes
// fetched schedules into and reads back when the campus API is down.
type SessionMirror interface {
	UpsertBatch(ctx context.Context, sessions []*session.Session) error
	GetByEvent(ctx context.Context, eventID string) ([]*session.Session, error)
}

// MarkMirror mirrors the event's attendance ledger.
type MarkMirror interface {
	SyncEventMarks(ctx context.Context, eventID string, marks []*attendance.AttendanceMark) error
	GetEventMarks(ctx context.Context, eventID string) ([]*attendance.AttendanceMark, error)
}

// ConfigMirror mirrors the event's strategy config.
type ConfigMirror interface {
	Upsert(ctx context.Context, cfg *attendance.StrategyConfig) error
	GetByEvent(ctx context.Context, eventID string) (*attendance.StrategyConfig, error)
}

// CampusSourceAdapter adapts campus.Client to the refresh coordinator's
// Source interface. Every successful upstream read is written through to
// the postgres mirror; when the campus API is unreachable the adapter
// serves the last mirrored state instead, so a refresh cycle can still
// rebuild a snapshot from the data we already hold.
//
// It also implements the registration directory used by bulk marking,
// backed by the Redis roster cache.
type CampusSourceAdapter struct {
	client   *campus.Client
	sessions SessionMirror
	marks    MarkMirror
	configs  ConfigMirror
	cache    *redis.Cache
	logger   *slog.Logger
	now      func() time.Time
}

func NewCampusSourceAdapter(
	client *campus.Client,
	sessions SessionMirror,
	marks MarkMirror,
	configs ConfigMirror,
	cache *redis.Cache,
	logger *slog.Logger,
) *CampusSourceAdapter {
	return &CampusSourceAdapter{
		client:   client,
		sessions: sessions,
		marks:    marks,
		configs:  configs,
		cache:    cache,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Tests use it to pin session
// status derivation.
func (a *CampusSourceAdapter) WithClock(now func() time.Time) *CampusSourceAdapter {
	a.now = now
	return a
}

// ─────────────────────────────────────────────────────────────────────────────
// refresh.Source
// ─────────────────────────────────────────────────────────────────────────────

func (a *CampusSourceAdapter) FetchSessions(ctx context.Context, eventID string) ([]*session.Session, error) {
	dtos, err := a.client.GetSessions(ctx, eventID)
	if err != nil {
		return a.sessionsFromMirror(ctx, eventID, err)
	}

	sessions, err := a.client.Mapper().SessionsFromDTOs(dtos, a.now())
	if err != nil {
		// Corrupt schedule upstream. The mirror still holds the last
		// coherent schedule; prefer it over failing the cycle.
		return a.sessionsFromMirror(ctx, eventID, err)
	}

	if a.sessions != nil {
		if mirrorErr := a.sessions.UpsertBatch(ctx, sessions); mirrorErr != nil {
			a.logger.Error("failed to mirror sessions", "event_id", eventID, "error", mirrorErr)
		}
	}

	return sessions, nil
}

func (a *CampusSourceAdapter) FetchMarks(ctx context.Context, eventID string) ([]*attendance.AttendanceMark, error) {
	dtos, err := a.client.GetAllEventMarks(ctx, eventID)
	if err != nil {
		return a.marksFromMirror(ctx, eventID, err)
	}

	marks, skipped := a.client.Mapper().MarksFromDTOs(dtos)
	if len(skipped) > 0 {
		a.logger.Warn("skipped corrupt marks from campus API",
			"event_id", eventID,
			"skipped", len(skipped),
			"first_error", skipped[0],
		)
	}

	if a.marks != nil {
		if mirrorErr := a.marks.SyncEventMarks(ctx, eventID, marks); mirrorErr != nil {
			a.logger.Error("failed to mirror marks", "event_id", eventID, "error", mirrorErr)
		}
	}

	return marks, nil
}

func (a *CampusSourceAdapter) FetchStrategyConfig(ctx context.Context, eventID string) (*attendance.StrategyConfig, error) {
	dto, err := a.client.GetStrategyConfig(ctx, eventID)
	if err != nil {
		if errors.Is(err, campus.ErrStrategyNotConfigured) {
			// A definitive "not configured" answer from upstream is not an
			// outage: do not fall back to a possibly stale mirrored config.
			return nil, shared.ErrStrategyConfigMissing
		}
		return a.configFromMirror(ctx, eventID, err)
	}

	cfg, err := a.client.Mapper().StrategyConfigFromDTO(*dto)
	if err != nil {
		return a.configFromMirror(ctx, eventID, err)
	}

	if a.configs != nil {
		if mirrorErr := a.configs.Upsert(ctx, cfg); mirrorErr != nil {
			a.logger.Error("failed to mirror strategy config", "event_id", eventID, "error", mirrorErr)
		}
	}

	return cfg, nil
}

func (a *CampusSourceAdapter) FetchRegistrations(ctx context.Context, eventID string) ([]string, error) {
	dtos, err := a.client.GetAllRegistrations(ctx, eventID)
	if err != nil {
		return a.rosterFromCache(ctx, eventID, err)
	}

	ids := a.client.Mapper().RegistrationIDsFromDTOs(dtos)

	if a.cache != nil {
		if cacheErr := a.cache.Set(ctx, redis.RosterKey(eventID), ids, rosterTTL); cacheErr != nil {
			a.logger.Error("failed to cache roster", "event_id", eventID, "error", cacheErr)
		}
	}

	return ids, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// command.RegistrationDirectory
// ─────────────────────────────────────────────────────────────────────────────

// Exists reports whether a registration belongs to the event's roster.
// The cached roster is consulted first; a cache miss triggers a roster
// fetch, which repopulates the cache as a side effect.
func (a *CampusSourceAdapter) Exists(ctx context.Context, eventID, registrationID string) (bool, error) {
	if a.cache != nil {
		var ids []string
		err := a.cache.Get(ctx, redis.RosterKey(eventID), &ids)
		if err == nil {
			return containsID(ids, registrationID), nil
		}
		if !errors.Is(err, redis.ErrCacheMiss) {
			a.logger.Warn("roster cache read failed", "event_id", eventID, "error", err)
		}
	}

	ids, err := a.FetchRegistrations(ctx, eventID)
	if err != nil {
		return false, err
	}

	return containsID(ids, registrationID), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Mirror fallbacks
// ─────────────────────────────────────────────────────────────────────────────

func (a *CampusSourceAdapter) sessionsFromMirror(ctx context.Context, eventID string, cause error) ([]*session.Session, error) {
	if a.sessions == nil {
		return nil, cause
	}

	sessions, err := a.sessions.GetByEvent(ctx, eventID)
	if err != nil || len(sessions) == 0 {
		return nil, cause
	}

	a.logger.Warn("serving sessions from mirror", "event_id", eventID, "count", len(sessions), "cause", cause)
	return sessions, nil
}

func (a *CampusSourceAdapter) marksFromMirror(ctx context.Context, eventID string, cause error) ([]*attendance.AttendanceMark, error) {
	if a.marks == nil {
		return nil, cause
	}

	marks, err := a.marks.GetEventMarks(ctx, eventID)
	if err != nil {
		return nil, cause
	}

	// An empty mirrored ledger is a valid state (the event may not have
	// started yet) and cannot be told apart from "never mirrored", so an
	// empty result is served as-is.
	a.logger.Warn("serving marks from mirror", "event_id", eventID, "count", len(marks), "cause", cause)
	return marks, nil
}

func (a *CampusSourceAdapter) configFromMirror(ctx context.Context, eventID string, cause error) (*attendance.StrategyConfig, error) {
	if a.configs == nil {
		return nil, cause
	}

	cfg, err := a.configs.GetByEvent(ctx, eventID)
	if err != nil {
		return nil, cause
	}

	a.logger.Warn("serving strategy config from mirror", "event_id", eventID, "cause", cause)
	return cfg, nil
}

func (a *CampusSourceAdapter) rosterFromCache(ctx context.Context, eventID string, cause error) ([]string, error) {
	if a.cache == nil {
		return nil, cause
	}

	var ids []string
	if err := a.cache.Get(ctx, redis.RosterKey(eventID), &ids); err != nil {
		return nil, cause
	}

	a.logger.Warn("serving roster from cache", "event_id", eventID, "count", len(ids), "cause", cause)
	return ids, nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
