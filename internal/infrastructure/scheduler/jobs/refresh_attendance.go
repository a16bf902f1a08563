// Package jobs contains the scheduled jobs of the attendance worker.
// Each job connects application services to the scheduler engine: requesting
// refresh cycles, reclassifying session statuses, flagging students who fall
// behind and purging expired check-in codes.
package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH ATTENDANCE JOB
// ══════════════════════════════════════════════════════════════════════════════

// RefreshAttendanceJob requests a refresh cycle on every tracked event.
//
// Coordinators normally refresh themselves on their own interval; this job
// is the backstop and the multi-replica path. It keeps views alive when
// auto refresh is switched off, and when several worker replicas share a
// deployment the Redis lock elects which replica refreshes each event.
type RefreshAttendanceJob struct {
	// Dependencies
	coordinators []EventCoordinator
	locks        RefreshLocker
	logger       *slog.Logger

	// Configuration
	config RefreshAttendanceConfig

	// State
	lastRunStats atomic.Value // *RefreshStats
}

// EventCoordinator is the slice of the refresh coordinator this job needs.
type EventCoordinator interface {
	// EventID returns the event the coordinator tracks.
	EventID() string

	// Refresh runs one refresh cycle. It reports false when a cycle is
	// already in flight and the request was coalesced into it.
	Refresh(ctx context.Context) bool
}

// RefreshLocker serializes refresh work across worker replicas.
// Implemented by the Redis refresh lock; nil means single-replica mode and
// every event is refreshed locally.
type RefreshLocker interface {
	// AcquireRefreshLock reports whether this replica may refresh the
	// event. Release is by TTL expiry, not by the caller.
	AcquireRefreshLock(ctx context.Context, eventID string) (bool, error)
}

// RefreshAttendanceConfig contains configuration for the refresh job.
type RefreshAttendanceConfig struct {
	// Timeout bounds one full pass over all coordinators.
	Timeout time.Duration
}

// DefaultRefreshAttendanceConfig returns sensible defaults.
func DefaultRefreshAttendanceConfig() RefreshAttendanceConfig {
	return RefreshAttendanceConfig{
		Timeout: 2 * time.Minute,
	}
}

// RefreshStats contains statistics from one refresh pass.
type RefreshStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Events      int
	Requested   int // cycles this replica ran
	Coalesced   int // coordinators already mid-cycle
	LockSkipped int // events another replica owns
	LockErrors  int
}

// NewRefreshAttendanceJob creates a new refresh job.
func NewRefreshAttendanceJob(
	coordinators []EventCoordinator,
	locks RefreshLocker,
	logger *slog.Logger,
	config RefreshAttendanceConfig,
) *RefreshAttendanceJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &RefreshAttendanceJob{
		coordinators: coordinators,
		locks:        locks,
		logger:       logger,
		config:       config,
	}
}

// Name returns the job name.
func (j *RefreshAttendanceJob) Name() string {
	return "refresh_attendance"
}

// Description returns a human-readable description.
func (j *RefreshAttendanceJob) Description() string {
	return "Requests attendance view refresh cycles for all tracked events"
}

// Run executes one refresh pass.
func (j *RefreshAttendanceJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &RefreshStats{
		StartedAt: startedAt,
		Events:    len(j.coordinators),
	}

	j.logger.Info("starting refresh_attendance job", "events", stats.Events)

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	for _, coordinator := range j.coordinators {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !j.acquire(ctx, coordinator.EventID(), stats) {
			continue
		}

		if coordinator.Refresh(ctx) {
			stats.Requested++
		} else {
			stats.Coalesced++
		}
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("refresh_attendance job completed",
		"duration", stats.Duration.String(),
		"requested", stats.Requested,
		"coalesced", stats.Coalesced,
		"lock_skipped", stats.LockSkipped,
	)

	return nil
}

// acquire decides whether this replica refreshes the event.
func (j *RefreshAttendanceJob) acquire(ctx context.Context, eventID string, stats *RefreshStats) bool {
	if j.locks == nil {
		return true
	}

	acquired, err := j.locks.AcquireRefreshLock(ctx, eventID)
	if err != nil {
		// A broken lock backend must not stop refreshes.
		stats.LockErrors++
		j.logger.Warn("refresh lock unavailable, refreshing anyway",
			"event_id", eventID,
			"error", err,
		)
		return true
	}

	if !acquired {
		stats.LockSkipped++
		return false
	}

	return true
}

// LastRunStats returns statistics from the last pass.
func (j *RefreshAttendanceJob) LastRunStats() *RefreshStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*RefreshStats)
}
