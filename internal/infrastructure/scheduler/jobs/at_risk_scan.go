// Package jobs contains the scheduled jobs of the attendance worker.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/application/refresh"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AT RISK SCAN JOB
// ══════════════════════════════════════════════════════════════════════════════

// AtRiskScanJob flags students whose attendance sits below the strategy
// threshold. It reads the last published snapshots, never the database, and
// emits one StudentAtRisk event per flagged student. A cooldown keeps a
// student hovering at the threshold from being re-flagged on every scan.
//
// Only threshold strategies are scanned. For single-mark and milestone
// strategies "not on track" just means "not finished yet", which is not a
// risk signal.
type AtRiskScanJob struct {
	// Dependencies
	views     []ProgressView
	publisher shared.EventPublisher
	logger    *slog.Logger

	// Configuration
	config AtRiskScanConfig
	now    func() time.Time

	// State
	mu           sync.Mutex
	lastFlagged  map[string]time.Time
	lastRunStats atomic.Value // *AtRiskStats
}

// ProgressView is the read side of a refresh coordinator.
type ProgressView interface {
	// EventID returns the event the view tracks.
	EventID() string

	// View returns the last published snapshot, or nil before the first
	// successful refresh.
	View() *refresh.Snapshot
}

// AtRiskScanConfig contains configuration for the at-risk scan.
type AtRiskScanConfig struct {
	// Cooldown is the minimum time between two alerts for the same
	// student on the same event.
	Cooldown time.Duration

	// MaxAlertsPerRun caps the events emitted by one scan.
	MaxAlertsPerRun int

	// Timeout bounds one full scan.
	Timeout time.Duration

	// Clock is the time source (default time.Now UTC). Tests override it.
	Clock func() time.Time
}

// DefaultAtRiskScanConfig returns sensible defaults.
func DefaultAtRiskScanConfig() AtRiskScanConfig {
	return AtRiskScanConfig{
		Cooldown:        24 * time.Hour,
		MaxAlertsPerRun: 500,
		Timeout:         time.Minute,
	}
}

// AtRiskStats contains statistics from one scan.
type AtRiskStats struct {
	StartedAt       time.Time
	CompletedAt     time.Time
	Duration        time.Duration
	EventsScanned   int
	StudentsChecked int
	AtRiskFound     int
	AlertsSent      int
	SkippedCooldown int
	SkippedCapped   int
}

// NewAtRiskScanJob creates a new at-risk scan job.
func NewAtRiskScanJob(
	views []ProgressView,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	config AtRiskScanConfig,
) *AtRiskScanJob {
	if logger == nil {
		logger = slog.Default()
	}
	now := config.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &AtRiskScanJob{
		views:       views,
		publisher:   publisher,
		logger:      logger,
		config:      config,
		now:         now,
		lastFlagged: make(map[string]time.Time),
	}
}

// Name returns the job name.
func (j *AtRiskScanJob) Name() string {
	return "at_risk_scan"
}

// Description returns a human-readable description.
func (j *AtRiskScanJob) Description() string {
	return "Flags students whose attendance is below their strategy threshold"
}

// Run executes one scan over all published views.
func (j *AtRiskScanJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &AtRiskStats{StartedAt: startedAt}

	j.logger.Info("starting at_risk_scan job", "views", len(j.views))

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	now := j.now()
	j.expireCooldowns(now)

	for _, view := range j.views {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		j.scanView(view, now, stats)
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("at_risk_scan job completed",
		"duration", stats.Duration.String(),
		"students_checked", stats.StudentsChecked,
		"at_risk_found", stats.AtRiskFound,
		"alerts_sent", stats.AlertsSent,
		"skipped_cooldown", stats.SkippedCooldown,
	)

	return nil
}

// scanView flags the at-risk students of one event.
func (j *AtRiskScanJob) scanView(view ProgressView, now time.Time, stats *AtRiskStats) {
	snapshot := view.View()
	if snapshot == nil {
		j.logger.Debug("no snapshot published yet", "event_id", view.EventID())
		return
	}
	if !snapshot.StrategyKind.RequiresThreshold() {
		return
	}

	stats.EventsScanned++
	stats.StudentsChecked += snapshot.StudentCount()

	for _, registrationID := range snapshot.AtRiskRegistrations() {
		summary, ok := snapshot.Student(registrationID)
		if !ok {
			continue
		}
		// An event with no scheduled units cannot put anyone behind.
		if summary.RequiredUnitCount == 0 {
			continue
		}

		stats.AtRiskFound++

		if j.config.MaxAlertsPerRun > 0 && stats.AlertsSent >= j.config.MaxAlertsPerRun {
			stats.SkippedCapped++
			continue
		}
		if !j.shouldAlert(snapshot.EventID, registrationID, now) {
			stats.SkippedCooldown++
			continue
		}

		event := shared.NewStudentAtRiskEvent(
			snapshot.EventID,
			registrationID,
			summary.Kind.String(),
			summary.Percentage,
			snapshot.MinimumPercentage,
			summary.AttendedCount,
			summary.RequiredUnitCount,
		)
		if err := j.publisher.Publish(event); err != nil {
			j.logger.Warn("failed to publish student at risk event",
				"event_id", snapshot.EventID,
				"registration_id", registrationID,
				"error", err,
			)
			continue
		}

		j.markFlagged(snapshot.EventID, registrationID, now)
		stats.AlertsSent++
	}
}

// shouldAlert reports whether the cooldown for this student has passed.
func (j *AtRiskScanJob) shouldAlert(eventID, registrationID string, now time.Time) bool {
	if j.config.Cooldown <= 0 {
		return true
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	last, ok := j.lastFlagged[flagKey(eventID, registrationID)]
	return !ok || now.Sub(last) >= j.config.Cooldown
}

// markFlagged records the alert instant for cooldown tracking.
func (j *AtRiskScanJob) markFlagged(eventID, registrationID string, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastFlagged[flagKey(eventID, registrationID)] = now
}

// expireCooldowns drops entries old enough to alert again, so the map stays
// bounded by the currently at-risk population.
func (j *AtRiskScanJob) expireCooldowns(now time.Time) {
	if j.config.Cooldown <= 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for key, flaggedAt := range j.lastFlagged {
		if now.Sub(flaggedAt) >= j.config.Cooldown {
			delete(j.lastFlagged, key)
		}
	}
}

func flagKey(eventID, registrationID string) string {
	return eventID + "|" + registrationID
}

// LastRunStats returns statistics from the last scan.
func (j *AtRiskScanJob) LastRunStats() *AtRiskStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*AtRiskStats)
}
