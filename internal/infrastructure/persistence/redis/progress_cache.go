// Package redis implements the Redis view cache of the campus attendance hub.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/application/refresh"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS CACHE ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNoSnapshot is returned when no view has been published for the event.
	ErrNoSnapshot = errors.New("progress_cache: no snapshot published for event")
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHED ENTRY STRUCTURES
// ══════════════════════════════════════════════════════════════════════════════

// StudentProgressEntry is one student's cached progress summary.
type StudentProgressEntry struct {
	// RegistrationID identifies the student within the event.
	RegistrationID string `json:"registration_id"`

	// StrategyKind is the strategy the summary was computed under.
	StrategyKind string `json:"strategy_kind"`

	// AttendedCount is the number of attended accounting units.
	AttendedCount int `json:"attended_count"`

	// RequiredUnitCount is the total number of accounting units.
	RequiredUnitCount int `json:"required_unit_count"`

	// Percentage is the integer attendance percentage (0-100).
	Percentage int `json:"percentage"`

	// IsEligible reports whether the strategy's credit condition is met.
	IsEligible bool `json:"is_eligible"`

	// IsOnTrack reports whether the student clears the threshold.
	IsOnTrack bool `json:"is_on_track"`

	// EvaluatedAt is the moment the summary was computed for.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Generation is the refresh generation that produced the entry.
	Generation uint64 `json:"generation"`
}

// SessionCoverageEntry is the cached per-session coverage readout.
type SessionCoverageEntry struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Attended  int    `json:"attended"`
	Total     int    `json:"total"`
}

// EventRollupEntry is the cached event-wide view, coverage per session
// included. One key per event: invalidating the rollup drops the whole
// event-level view at once.
type EventRollupEntry struct {
	EventID                string                 `json:"event_id"`
	TotalSessions          int                    `json:"total_sessions"`
	SessionsWithAttendance int                    `json:"sessions_with_attendance"`
	OverallPercentage      int                    `json:"overall_percentage"`
	IsOnTrack              bool                   `json:"is_on_track"`
	Sessions               []SessionCoverageEntry `json:"sessions"`
	Generation             uint64                 `json:"generation"`
	RefreshedAt            time.Time              `json:"refreshed_at"`
}

// SnapshotMeta marks the last successfully published view of an event. It
// outlives the data entries, so a restarted worker can tell a cold cache
// from an expired one.
type SnapshotMeta struct {
	EventID           string    `json:"event_id"`
	Generation        uint64    `json:"generation"`
	RefreshedAt       time.Time `json:"refreshed_at"`
	StrategyKind      string    `json:"strategy_kind"`
	MinimumPercentage int       `json:"minimum_percentage"`
	StudentCount      int       `json:"student_count"`
	SessionCount      int       `json:"session_count"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ProgressCache publishes recomputed attendance aggregates to Redis.
//
// Architecture:
//   - String "progress:{event}:{registration}" holds one student's summary
//   - String "rollup:{event}" holds the event view with per-session coverage
//   - String "meta:{event}" holds snapshot metadata (long TTL)
//   - Set "index:{event}" tracks which student keys were published
//
// The refresh coordinator stores whole snapshots here after every successful
// cycle; event handlers invalidate entries between cycles when marks land.
type ProgressCache struct {
	cache *Cache
}

// NewProgressCache creates a new ProgressCache instance.
func NewProgressCache(cache *Cache) *ProgressCache {
	return &ProgressCache{cache: cache}
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// StoreSnapshot publishes every aggregate of a snapshot in one pipeline:
// per-student entries, the event rollup, the metadata marker and the index
// of published student keys.
func (p *ProgressCache) StoreSnapshot(ctx context.Context, snapshot *refresh.Snapshot) error {
	if snapshot == nil {
		return ErrCacheNilValue
	}

	indexKey := EventIndexKey(snapshot.EventID)
	pipe := p.cache.Client().Pipeline()

	for registrationID, summary := range snapshot.Students {
		entry := StudentProgressEntry{
			RegistrationID:    registrationID,
			StrategyKind:      string(summary.Kind),
			AttendedCount:     summary.AttendedCount,
			RequiredUnitCount: summary.RequiredUnitCount,
			Percentage:        summary.Percentage,
			IsEligible:        summary.IsEligible,
			IsOnTrack:         summary.IsOnTrack,
			EvaluatedAt:       summary.EvaluatedAt,
			Generation:        snapshot.Generation,
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
		}

		pipe.Set(ctx, StudentProgressKey(snapshot.EventID, registrationID), data, TTLStudentProgress)
		pipe.SAdd(ctx, indexKey, registrationID)
	}

	rollup := EventRollupEntry{
		EventID:                snapshot.EventID,
		TotalSessions:          snapshot.Rollup.TotalSessions,
		SessionsWithAttendance: snapshot.Rollup.SessionsWithAttendance,
		OverallPercentage:      snapshot.Rollup.OverallPercentage,
		IsOnTrack:              snapshot.Rollup.IsOnTrack,
		Sessions:               coverageEntries(snapshot.Sessions),
		Generation:             snapshot.Generation,
		RefreshedAt:            snapshot.RefreshedAt,
	}

	rollupData, err := json.Marshal(rollup)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	meta := SnapshotMeta{
		EventID:           snapshot.EventID,
		Generation:        snapshot.Generation,
		RefreshedAt:       snapshot.RefreshedAt,
		StrategyKind:      string(snapshot.StrategyKind),
		MinimumPercentage: snapshot.MinimumPercentage,
		StudentCount:      snapshot.StudentCount(),
		SessionCount:      snapshot.Rollup.TotalSessions,
	}

	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	pipe.Set(ctx, EventRollupKey(snapshot.EventID), rollupData, TTLEventRollup)
	pipe.Set(ctx, SnapshotMetaKey(snapshot.EventID), metaData, TTLSnapshotMeta)
	pipe.Expire(ctx, indexKey, TTLStudentProgress)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// READ OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentProgress returns one student's cached summary.
// Returns ErrCacheMiss when the entry is absent or expired.
func (p *ProgressCache) GetStudentProgress(ctx context.Context, eventID, registrationID string) (*StudentProgressEntry, error) {
	var entry StudentProgressEntry
	if err := p.cache.Get(ctx, StudentProgressKey(eventID, registrationID), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetEventRollup returns the cached event view.
// Returns ErrCacheMiss when the entry is absent or expired.
func (p *ProgressCache) GetEventRollup(ctx context.Context, eventID string) (*EventRollupEntry, error) {
	var entry EventRollupEntry
	if err := p.cache.Get(ctx, EventRollupKey(eventID), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetSnapshotMeta returns the last published snapshot marker of an event.
// Returns ErrNoSnapshot when no view was ever published (or the marker aged
// out).
func (p *ProgressCache) GetSnapshotMeta(ctx context.Context, eventID string) (*SnapshotMeta, error) {
	var meta SnapshotMeta
	err := p.cache.Get(ctx, SnapshotMetaKey(eventID), &meta)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	return &meta, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// INVALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// InvalidateStudent drops one student's cached summary. Called when a new
// mark lands between refresh cycles: a miss is better than a stale count.
func (p *ProgressCache) InvalidateStudent(ctx context.Context, eventID, registrationID string) error {
	if err := p.cache.Delete(ctx, StudentProgressKey(eventID, registrationID)); err != nil {
		return fmt.Errorf("failed to invalidate student progress: %w", err)
	}

	if err := p.cache.SRem(ctx, EventIndexKey(eventID), registrationID); err != nil {
		return fmt.Errorf("failed to update event index: %w", err)
	}

	return nil
}

// InvalidateEvent drops the whole published view of an event: the rollup,
// the metadata marker and every indexed student entry. The next refresh
// cycle republishes everything.
func (p *ProgressCache) InvalidateEvent(ctx context.Context, eventID string) error {
	indexKey := EventIndexKey(eventID)

	registrationIDs, err := p.cache.SMembers(ctx, indexKey)
	if err != nil {
		return fmt.Errorf("failed to read event index: %w", err)
	}

	keys := make([]string, 0, len(registrationIDs)+3)
	for _, registrationID := range registrationIDs {
		keys = append(keys, StudentProgressKey(eventID, registrationID))
	}
	keys = append(keys, EventRollupKey(eventID), SnapshotMetaKey(eventID), indexKey)

	if err := p.cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to invalidate event view: %w", err)
	}

	return nil
}

// Purge removes everything the cache holds for an event, student entries the
// index lost track of included. Used when the progress cache feature is
// switched off, so external consumers never read a frozen view.
func (p *ProgressCache) Purge(ctx context.Context, eventID string) error {
	if err := p.cache.DeleteByPattern(ctx, PrefixProgress+eventID+":*"); err != nil {
		return fmt.Errorf("failed to purge student progress keys: %w", err)
	}

	err := p.cache.Delete(ctx,
		EventRollupKey(eventID),
		SnapshotMetaKey(eventID),
		EventIndexKey(eventID),
	)
	if err != nil {
		return fmt.Errorf("failed to purge event view: %w", err)
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func coverageEntries(coverages []refresh.SessionCoverage) []SessionCoverageEntry {
	entries := make([]SessionCoverageEntry, 0, len(coverages))
	for _, c := range coverages {
		entries = append(entries, SessionCoverageEntry{
			SessionID: c.SessionID,
			Name:      c.Name,
			Attended:  c.Attended,
			Total:     c.Total,
		})
	}
	return entries
}
