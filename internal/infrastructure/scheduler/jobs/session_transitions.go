// Package jobs contains the scheduled jobs of the attendance worker.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/session"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION TRANSITIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// SessionTransitionsJob moves stored sessions through their lifecycle.
//
// A session's status is derived from the clock: pending before the start,
// active inside the half-open window, completed from the end time on. The
// job persists the derived status and publishes SessionStarted and
// SessionCompleted events, which downstream handlers turn into check-in
// codes and coverage notices.
type SessionTransitionsJob struct {
	// Dependencies
	sessionRepo session.Repository
	publisher   shared.EventPublisher
	logger      *slog.Logger

	// Configuration
	config SessionTransitionsConfig
	now    func() time.Time

	// State
	lastRunStats atomic.Value // *TransitionStats
}

// SessionTransitionsConfig contains configuration for the transitions job.
type SessionTransitionsConfig struct {
	// EventIDs are the events whose schedules this worker maintains.
	EventIDs []string

	// Timeout bounds one full pass.
	Timeout time.Duration

	// Clock is the time source (default time.Now UTC). Tests override it.
	Clock func() time.Time
}

// DefaultSessionTransitionsConfig returns sensible defaults for the given
// events.
func DefaultSessionTransitionsConfig(eventIDs []string) SessionTransitionsConfig {
	return SessionTransitionsConfig{
		EventIDs: eventIDs,
		Timeout:  time.Minute,
	}
}

// TransitionStats contains statistics from one transition pass.
type TransitionStats struct {
	StartedAt       time.Time
	CompletedAt     time.Time
	Duration        time.Duration
	EventsChecked   int
	SessionsChecked int
	Started         int
	Completed       int
	Errors          []error
}

// NewSessionTransitionsJob creates a new transitions job.
func NewSessionTransitionsJob(
	sessionRepo session.Repository,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	config SessionTransitionsConfig,
) *SessionTransitionsJob {
	if logger == nil {
		logger = slog.Default()
	}
	now := config.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &SessionTransitionsJob{
		sessionRepo: sessionRepo,
		publisher:   publisher,
		logger:      logger,
		config:      config,
		now:         now,
	}
}

// Name returns the job name.
func (j *SessionTransitionsJob) Name() string {
	return "session_transitions"
}

// Description returns a human-readable description.
func (j *SessionTransitionsJob) Description() string {
	return "Reclassifies session statuses and publishes lifecycle events"
}

// Run executes one transition pass.
func (j *SessionTransitionsJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &TransitionStats{
		StartedAt: startedAt,
		Errors:    make([]error, 0),
	}

	j.logger.Info("starting session_transitions job", "events", len(j.config.EventIDs))

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	now := j.now()

	for _, eventID := range j.config.EventIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := j.transitionEvent(ctx, eventID, now, stats); err != nil {
			stats.Errors = append(stats.Errors, err)
			j.logger.Error("failed to transition event sessions",
				"event_id", eventID,
				"error", err,
			)
		}
		stats.EventsChecked++
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("session_transitions job completed",
		"duration", stats.Duration.String(),
		"sessions_checked", stats.SessionsChecked,
		"started", stats.Started,
		"completed", stats.Completed,
	)

	return nil
}

// transitionEvent reclassifies one event's sessions against the clock.
func (j *SessionTransitionsJob) transitionEvent(ctx context.Context, eventID string, now time.Time, stats *TransitionStats) error {
	sessions, err := j.sessionRepo.GetByEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	stats.SessionsChecked += len(sessions)

	registry := session.NewRegistry(eventID, sessions)
	for _, transition := range registry.ReclassifyAll(now) {
		if err := j.sessionRepo.UpdateStatus(ctx, transition.Session.ID, transition.To); err != nil {
			stats.Errors = append(stats.Errors, err)
			j.logger.Error("failed to persist session status",
				"session_id", transition.Session.ID,
				"from", string(transition.From),
				"to", string(transition.To),
				"error", err,
			)
			continue
		}

		j.publishTransition(transition, stats)
	}

	return nil
}

// publishTransition emits the lifecycle event for one observed change.
// A session that skipped straight from pending to completed between two
// passes gets only the completed event: its start is no longer actionable.
func (j *SessionTransitionsJob) publishTransition(transition session.Transition, stats *TransitionStats) {
	s := transition.Session

	switch transition.To {
	case session.StatusActive:
		stats.Started++
		event := shared.NewSessionStartedEvent(s.EventID, s.ID, s.Name, s.StartTime, s.EndTime, s.IsMandatory)
		if err := j.publisher.Publish(event); err != nil {
			j.logger.Warn("failed to publish session started event",
				"session_id", s.ID,
				"error", err,
			)
		}

	case session.StatusCompleted:
		stats.Completed++
		event := shared.NewSessionCompletedEvent(s.EventID, s.ID, s.Name, s.EndTime)
		if err := j.publisher.Publish(event); err != nil {
			j.logger.Warn("failed to publish session completed event",
				"session_id", s.ID,
				"error", err,
			)
		}
	}
}

// LastRunStats returns statistics from the last pass.
func (j *SessionTransitionsJob) LastRunStats() *TransitionStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*TransitionStats)
}
