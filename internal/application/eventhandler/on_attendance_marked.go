// Package eventhandler содержит обработчики доменных событий.
// Обработчики реализуют event-driven архитектуру: связывают факты домена
// (отметка записана, сессия завершена, студент ниже порога) с побочными
// эффектами вроде инвалидации кэшей, пересчёта прогресса и уведомлений.
package eventhandler

import (
	"context"
	"log/slog"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ATTENDANCE MARKED HANDLER
// Обрабатывает событие "отметка посещаемости записана".
//
// Каждая новая отметка делает закэшированный прогресс студента устаревшим.
// Обработчик инвалидирует персональный кэш студента и, при необходимости,
// сводки события, а также может запросить внеплановый пересчёт снапшота.
// ═══════════════════════════════════════════════════════════════════════════

// ProgressCache инвалидирует закэшированные представления прогресса.
// Реализуется инфраструктурным слоем (Redis).
type ProgressCache interface {
	// InvalidateStudent удаляет закэшированный прогресс студента по событию.
	InvalidateStudent(ctx context.Context, eventID, registrationID string) error

	// InvalidateEvent удаляет закэшированные сводки события.
	InvalidateEvent(ctx context.Context, eventID string) error
}

// RefreshRequester запрашивает внеплановый цикл пересчёта прогресса.
// Возвращает false, если пересчёт уже выполняется.
type RefreshRequester interface {
	Refresh(ctx context.Context) bool
}

// OnAttendanceMarkedHandler обрабатывает записанные отметки посещаемости.
type OnAttendanceMarkedHandler struct {
	// Cache invalidation
	cache ProgressCache

	// Optional snapshot refresh
	refresher RefreshRequester

	// Logger
	logger *slog.Logger

	// Configuration
	config AttendanceMarkedConfig
}

// AttendanceMarkedConfig содержит конфигурацию обработчика.
type AttendanceMarkedConfig struct {
	// InvalidateEventView — инвалидировать ли сводки всего события.
	// Персональный кэш студента инвалидируется всегда.
	InvalidateEventView bool

	// RequestRefresh — запрашивать ли внеплановый пересчёт снапшота после
	// каждой новой отметки. На плотных потоках отметок лучше полагаться
	// на периодический цикл координатора.
	RequestRefresh bool

	// SkipAlreadyMarked — пропускать ли повторные идемпотентные отметки.
	// Подтверждение уже существующей отметки прогресс не меняет.
	SkipAlreadyMarked bool
}

// DefaultAttendanceMarkedConfig возвращает конфигурацию по умолчанию.
func DefaultAttendanceMarkedConfig() AttendanceMarkedConfig {
	return AttendanceMarkedConfig{
		InvalidateEventView: true,
		RequestRefresh:      false,
		SkipAlreadyMarked:   true,
	}
}

// NewOnAttendanceMarkedHandler создаёт новый обработчик отметок.
func NewOnAttendanceMarkedHandler(
	cache ProgressCache,
	refresher RefreshRequester,
	logger *slog.Logger,
	config AttendanceMarkedConfig,
) *OnAttendanceMarkedHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &OnAttendanceMarkedHandler{
		cache:     cache,
		refresher: refresher,
		logger:    logger.With("handler", "on_attendance_marked"),
		config:    config,
	}
}

// Handle обрабатывает событие отметки.
// Реализует интерфейс shared.EventHandler.
func (h *OnAttendanceMarkedHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	// Type assertion для получения конкретного типа события
	marked, ok := event.(shared.AttendanceMarkedEvent)
	if !ok {
		h.logger.Warn("received non-AttendanceMarkedEvent",
			"event_type", string(event.EventType()),
		)
		return nil
	}

	// 1. Подтверждение существующей отметки состояние не меняет
	if marked.AlreadyMarked && h.config.SkipAlreadyMarked {
		h.logger.Debug("duplicate mark confirmed, cache untouched",
			"event_id", marked.AggregateId,
			"session_id", marked.SessionID,
			"registration_id", marked.RegistrationID,
		)
		return nil
	}

	h.logger.Info("processing attendance mark",
		"event_id", marked.AggregateId,
		"session_id", marked.SessionID,
		"registration_id", marked.RegistrationID,
		"method", marked.VerificationMethod,
	)

	if h.cache != nil {
		// 2. Инвалидируем персональный кэш студента
		if err := h.cache.InvalidateStudent(ctx, marked.AggregateId, marked.RegistrationID); err != nil {
			h.logger.Error("failed to invalidate student progress cache",
				"registration_id", marked.RegistrationID,
				"error", err,
			)
			// Продолжаем — запись истечёт по TTL
		}

		// 3. Инвалидируем сводки события
		if h.config.InvalidateEventView {
			if err := h.cache.InvalidateEvent(ctx, marked.AggregateId); err != nil {
				h.logger.Error("failed to invalidate event view cache",
					"event_id", marked.AggregateId,
					"error", err,
				)
			}
		}
	}

	// 4. При необходимости запрашиваем внеплановый пересчёт
	if h.config.RequestRefresh && h.refresher != nil {
		if started := h.refresher.Refresh(ctx); !started {
			h.logger.Debug("refresh already in progress, skipping manual trigger",
				"event_id", marked.AggregateId,
			)
		}
	}

	return nil
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnAttendanceMarkedHandler) EventType() shared.EventType {
	return shared.EventAttendanceMarked
}
