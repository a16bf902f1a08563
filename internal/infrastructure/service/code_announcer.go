package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/external/webhook"
)

// WebhookCodeAnnouncer posts freshly issued check-in codes to the staff
// webhook so the code reaches the room without anyone querying the worker.
//
// The code travels in the alert body in plaintext. That is intentional:
// the webhook endpoint is the staff channel, and a code nobody can read
// marks nobody present.
type WebhookCodeAnnouncer struct {
	sender AlertSender
	logger *slog.Logger
}

// NewWebhookCodeAnnouncer creates a new announcer.
func NewWebhookCodeAnnouncer(sender AlertSender, logger *slog.Logger) *WebhookCodeAnnouncer {
	if logger == nil {
		logger = slog.Default()
	}

	return &WebhookCodeAnnouncer{
		sender: sender,
		logger: logger.With("service", "code_announcer"),
	}
}

// AnnounceCode implements eventhandler.CodeAnnouncer.
func (a *WebhookCodeAnnouncer) AnnounceCode(ctx context.Context, eventID, sessionID, sessionName, code string) error {
	if a.sender == nil {
		a.logger.Warn("no alert sender configured, check-in code not announced",
			"session_id", sessionID,
		)
		return nil
	}

	alert := webhook.Alert{
		Kind:    "checkin_code_issued",
		Title:   fmt.Sprintf("Check-in code for %s", sessionName),
		Text:    fmt.Sprintf("Session %q is open for self check-in with code %s.", sessionName, code),
		EventID: eventID,
		Fields: map[string]string{
			"session_id": sessionID,
			"code":       code,
		},
		OccurredAt: time.Now().UTC(),
	}

	if err := a.sender.SendAlert(ctx, alert); err != nil {
		return fmt.Errorf("announce check-in code for session %s: %w", sessionID, err)
	}

	a.logger.Info("check-in code announced",
		"event_id", eventID,
		"session_id", sessionID,
	)
	return nil
}
