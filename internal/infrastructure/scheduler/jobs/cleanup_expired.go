// Package jobs contains the scheduled jobs of the attendance worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/campus-hub/campus-attendance-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLEANUP EXPIRED JOB
// ══════════════════════════════════════════════════════════════════════════════

// CleanupExpiredJob purges rows whose usefulness has ended: check-in codes
// past their expiry. It runs on a cron schedule so the purge lands in the
// quiet hours instead of drifting across the day.
type CleanupExpiredJob struct {
	// Dependencies
	codes  ExpiredCodeStore
	logger *slog.Logger

	// Configuration
	config  CleanupExpiredConfig
	now     func() time.Time
	retrier *retry.Retrier

	// State
	lastRunStats atomic.Value // *CleanupStats
}

// ExpiredCodeStore is the slice of the check-in code repository this job
// needs.
type ExpiredCodeStore interface {
	// DeleteExpired removes codes that expired at or before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// CleanupExpiredConfig contains configuration for the cleanup job.
type CleanupExpiredConfig struct {
	// Timeout bounds one cleanup pass.
	Timeout time.Duration

	// Clock is the time source (default time.Now UTC). Tests override it.
	Clock func() time.Time
}

// DefaultCleanupExpiredConfig returns sensible defaults.
func DefaultCleanupExpiredConfig() CleanupExpiredConfig {
	return CleanupExpiredConfig{
		Timeout: time.Minute,
	}
}

// CleanupStats contains statistics from one cleanup pass.
type CleanupStats struct {
	StartedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
	CodesDeleted int
}

// NewCleanupExpiredJob creates a new cleanup job.
func NewCleanupExpiredJob(codes ExpiredCodeStore, logger *slog.Logger, config CleanupExpiredConfig) *CleanupExpiredJob {
	if logger == nil {
		logger = slog.Default()
	}
	now := config.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &CleanupExpiredJob{
		codes:  codes,
		logger: logger,
		config: config,
		now:    now,
		// A failed purge just leaves rows for the next run, so a couple
		// of quick retries on pool hiccups is all the robustness needed.
		retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(50*time.Millisecond),
			retry.WithMaxDelay(time.Second),
			retry.WithRetryIf(func(err error) bool {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}),
		),
	}
}

// Name returns the job name.
func (j *CleanupExpiredJob) Name() string {
	return "cleanup_expired"
}

// Description returns a human-readable description.
func (j *CleanupExpiredJob) Description() string {
	return "Purges expired check-in codes"
}

// Run executes one cleanup pass.
func (j *CleanupExpiredJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &CleanupStats{StartedAt: startedAt}

	j.logger.Info("starting cleanup_expired job")

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	var deleted int
	err := j.retrier.Do(ctx, func(ctx context.Context) error {
		var runErr error
		deleted, runErr = j.codes.DeleteExpired(ctx, j.now())
		return runErr
	})
	if err != nil {
		return fmt.Errorf("failed to delete expired check-in codes: %w", err)
	}
	stats.CodesDeleted = deleted

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("cleanup_expired job completed",
		"duration", stats.Duration.String(),
		"codes_deleted", deleted,
	)

	return nil
}

// LastRunStats returns statistics from the last pass.
func (j *CleanupExpiredJob) LastRunStats() *CleanupStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*CleanupStats)
}
