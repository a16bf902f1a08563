// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON STUDENT AT RISK HANDLER
// Обрабатывает событие "прогресс студента ниже порога стратегии".
//
// Событие порождается плановым сканом прогресса, поэтому один и тот же
// студент будет всплывать на каждом цикле, пока не выправит посещаемость.
// Обработчик отправляет уведомление через настроенный канал доставки и
// гасит повторные срабатывания в пределах окна подавления.
// ═══════════════════════════════════════════════════════════════════════════

// AtRiskNotice описывает содержимое уведомления о риске.
type AtRiskNotice struct {
	EventID           string
	RegistrationID    string
	StrategyKind      string
	Percentage        int
	MinimumPercentage int
	AttendedCount     int
	RequiredUnitCount int
	DetectedAt        time.Time
}

// AtRiskNotifier доставляет уведомления о студентах в зоне риска.
// Реализуется инфраструктурным слоем.
type AtRiskNotifier interface {
	NotifyAtRisk(ctx context.Context, notice AtRiskNotice) error
}

// OnStudentAtRiskHandler обрабатывает события падения прогресса ниже порога.
type OnStudentAtRiskHandler struct {
	// Notification sender
	notifier AtRiskNotifier

	// Logger
	logger *slog.Logger

	// Configuration
	config StudentAtRiskConfig

	// Подавление повторных уведомлений
	mu           sync.Mutex
	lastNotified map[string]time.Time

	// Источник времени (подменяется в тестах)
	now func() time.Time
}

// StudentAtRiskConfig содержит конфигурацию обработчика.
type StudentAtRiskConfig struct {
	// NotifyCooldown — минимальный интервал между уведомлениями по одному
	// и тому же студенту. Ноль отключает подавление.
	NotifyCooldown time.Duration
}

// DefaultStudentAtRiskConfig возвращает конфигурацию по умолчанию.
func DefaultStudentAtRiskConfig() StudentAtRiskConfig {
	return StudentAtRiskConfig{
		NotifyCooldown: 6 * time.Hour,
	}
}

// NewOnStudentAtRiskHandler создаёт новый обработчик событий риска.
func NewOnStudentAtRiskHandler(
	notifier AtRiskNotifier,
	logger *slog.Logger,
	config StudentAtRiskConfig,
) *OnStudentAtRiskHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &OnStudentAtRiskHandler{
		notifier:     notifier,
		logger:       logger.With("handler", "on_student_at_risk"),
		config:       config,
		lastNotified: make(map[string]time.Time),
		now:          time.Now,
	}
}

// WithClock подменяет источник времени. Используется в тестах.
func (h *OnStudentAtRiskHandler) WithClock(now func() time.Time) *OnStudentAtRiskHandler {
	if now != nil {
		h.now = now
	}
	return h
}

// Handle обрабатывает событие риска.
// Реализует интерфейс shared.EventHandler.
func (h *OnStudentAtRiskHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	// Type assertion для получения конкретного типа события
	atRisk, ok := event.(shared.StudentAtRiskEvent)
	if !ok {
		h.logger.Warn("received non-StudentAtRiskEvent",
			"event_type", string(event.EventType()),
		)
		return nil
	}

	// 1. Гасим повторные срабатывания в пределах окна подавления
	if !h.shouldNotify(atRisk.AggregateId, atRisk.RegistrationID) {
		h.logger.Debug("at-risk notification suppressed by cooldown",
			"event_id", atRisk.AggregateId,
			"registration_id", atRisk.RegistrationID,
		)
		return nil
	}

	h.logger.Info("processing at-risk student",
		"event_id", atRisk.AggregateId,
		"registration_id", atRisk.RegistrationID,
		"strategy_kind", atRisk.StrategyKind,
		"percentage", atRisk.Percentage,
		"minimum_percentage", atRisk.MinimumPercentage,
	)

	// 2. Отправляем уведомление
	if h.notifier == nil {
		h.logger.Warn("no notifier configured, at-risk event dropped",
			"registration_id", atRisk.RegistrationID,
		)
		return nil
	}

	notice := AtRiskNotice{
		EventID:           atRisk.AggregateId,
		RegistrationID:    atRisk.RegistrationID,
		StrategyKind:      atRisk.StrategyKind,
		Percentage:        atRisk.Percentage,
		MinimumPercentage: atRisk.MinimumPercentage,
		AttendedCount:     atRisk.AttendedCount,
		RequiredUnitCount: atRisk.RequiredUnitCount,
		DetectedAt:        atRisk.Timestamp,
	}

	if err := h.notifier.NotifyAtRisk(ctx, notice); err != nil {
		h.logger.Error("failed to send at-risk notification",
			"registration_id", atRisk.RegistrationID,
			"error", err,
		)
		return fmt.Errorf("notify at risk: %w", err)
	}

	// 3. Запоминаем время успешной отправки
	h.markNotified(atRisk.AggregateId, atRisk.RegistrationID)

	h.logger.Info("at-risk notification sent",
		"event_id", atRisk.AggregateId,
		"registration_id", atRisk.RegistrationID,
	)

	return nil
}

// shouldNotify проверяет, истекло ли окно подавления для студента.
func (h *OnStudentAtRiskHandler) shouldNotify(eventID, registrationID string) bool {
	if h.config.NotifyCooldown <= 0 {
		return true
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	last, ok := h.lastNotified[suppressionKey(eventID, registrationID)]
	if !ok {
		return true
	}
	return h.now().Sub(last) >= h.config.NotifyCooldown
}

// markNotified фиксирует время успешной отправки.
func (h *OnStudentAtRiskHandler) markNotified(eventID, registrationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastNotified[suppressionKey(eventID, registrationID)] = h.now()
}

// suppressionKey строит ключ окна подавления.
func suppressionKey(eventID, registrationID string) string {
	return eventID + "/" + registrationID
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnStudentAtRiskHandler) EventType() shared.EventType {
	return shared.EventStudentAtRisk
}
