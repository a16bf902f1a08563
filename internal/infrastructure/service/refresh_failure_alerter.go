package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/external/webhook"
)

// RefreshFailureAlerter forwards failed refresh cycles to the alert
// webhook. The coordinator keeps serving last-known-good regardless,
// so this is purely an operator signal; it is off by default because
// campus API maintenance windows make it noisy.
type RefreshFailureAlerter struct {
	sender  AlertSender
	logger  *slog.Logger
	timeout time.Duration
}

func NewRefreshFailureAlerter(sender AlertSender, logger *slog.Logger) *RefreshFailureAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshFailureAlerter{
		sender:  sender,
		logger:  logger.With("handler", "refresh_failure_alerter"),
		timeout: 10 * time.Second,
	}
}

// Handle processes a progress.refresh_failed event.
func (a *RefreshFailureAlerter) Handle(event shared.Event) error {
	failure, ok := event.(shared.RefreshFailedEvent)
	if !ok {
		a.logger.Warn("unexpected event type", "event_type", event.EventType())
		return nil
	}

	if a.sender == nil {
		a.logger.Warn("refresh cycle failed (webhook not configured)",
			"event_id", failure.AggregateID(),
			"generation", failure.Generation,
			"reason", failure.Reason,
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	alert := webhook.Alert{
		Kind:    "refresh_failed",
		Title:   "Attendance refresh failed",
		Text:    fmt.Sprintf("refresh generation %d for event %s failed: %s", failure.Generation, failure.AggregateID(), failure.Reason),
		EventID: failure.AggregateID(),
		Fields: map[string]string{
			"generation": fmt.Sprintf("%d", failure.Generation),
			"reason":     failure.Reason,
		},
		OccurredAt: failure.OccurredAt(),
	}

	return a.sender.SendAlert(ctx, alert)
}

// EventType returns the event type this handler processes.
func (a *RefreshFailureAlerter) EventType() shared.EventType {
	return shared.EventRefreshFailed
}
