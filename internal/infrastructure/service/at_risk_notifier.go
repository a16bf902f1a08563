package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/campus-hub/campus-attendance-hub/internal/application/eventhandler"
	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/external/webhook"
	"github.com/campus-hub/campus-attendance-hub/pkg/timeutil"
)

// AlertSender is the outbound side of at-risk notification. Implemented
// by the webhook client.
type AlertSender interface {
	SendAlert(ctx context.Context, alert webhook.Alert) error
}

// WebhookAtRiskNotifier delivers at-risk notices to the configured
// webhook. With a nil sender (webhook not configured) it degrades to a
// structured log line, so the handler chain stays wired either way.
type WebhookAtRiskNotifier struct {
	sender AlertSender
	logger *slog.Logger
}

func NewWebhookAtRiskNotifier(sender AlertSender, logger *slog.Logger) *WebhookAtRiskNotifier {
	return &WebhookAtRiskNotifier{sender: sender, logger: logger}
}

func (n *WebhookAtRiskNotifier) NotifyAtRisk(ctx context.Context, notice eventhandler.AtRiskNotice) error {
	if n.sender == nil {
		n.logger.Warn("student at risk (webhook not configured)",
			"event_id", notice.EventID,
			"registration_id", notice.RegistrationID,
			"percentage", notice.Percentage,
			"minimum", notice.MinimumPercentage,
		)
		return nil
	}

	alert := webhook.Alert{
		Kind:    "student_at_risk",
		Title:   "Attendance drop",
		Text:    fmt.Sprintf("registration %s is at %d%% (minimum %d%%)", notice.RegistrationID, notice.Percentage, notice.MinimumPercentage),
		EventID: notice.EventID,
		Fields: map[string]string{
			"registration_id": notice.RegistrationID,
			"strategy":        notice.StrategyKind,
			"attended":        fmt.Sprintf("%d/%d", notice.AttendedCount, notice.RequiredUnitCount),
			"detected_at":     notice.DetectedAt.Format(timeutil.FormatDateTimeSeconds),
		},
		OccurredAt: notice.DetectedAt,
	}

	return n.sender.SendAlert(ctx, alert)
}
