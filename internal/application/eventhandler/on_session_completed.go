// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"log/slog"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON SESSION COMPLETED HANDLER
// Обрабатывает переход сессии active -> completed.
//
// Завершение сессии меняет её статус во всех сводках и обычно означает,
// что покрытие сессии достигло финального значения. Обработчик логирует
// итоговое покрытие, инвалидирует сводки события и запрашивает пересчёт
// снапшота, чтобы опубликованное представление отразило переход сразу,
// а не на следующем плановом цикле.
// ═══════════════════════════════════════════════════════════════════════════

// OnSessionCompletedHandler обрабатывает события завершения сессий.
type OnSessionCompletedHandler struct {
	// Mark ledger for the final coverage readout
	markRepo attendance.Repository

	// Cache invalidation
	cache ProgressCache

	// Optional snapshot refresh
	refresher RefreshRequester

	// Logger
	logger *slog.Logger

	// Configuration
	config SessionCompletedConfig
}

// SessionCompletedConfig содержит конфигурацию обработчика.
type SessionCompletedConfig struct {
	// RequestRefresh — запрашивать ли пересчёт снапшота после завершения.
	RequestRefresh bool

	// LogCoverage — читать ли итоговое число отметок сессии для лога.
	LogCoverage bool
}

// DefaultSessionCompletedConfig возвращает конфигурацию по умолчанию.
func DefaultSessionCompletedConfig() SessionCompletedConfig {
	return SessionCompletedConfig{
		RequestRefresh: true,
		LogCoverage:    true,
	}
}

// NewOnSessionCompletedHandler создаёт новый обработчик завершения сессий.
func NewOnSessionCompletedHandler(
	markRepo attendance.Repository,
	cache ProgressCache,
	refresher RefreshRequester,
	logger *slog.Logger,
	config SessionCompletedConfig,
) *OnSessionCompletedHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &OnSessionCompletedHandler{
		markRepo:  markRepo,
		cache:     cache,
		refresher: refresher,
		logger:    logger.With("handler", "on_session_completed"),
		config:    config,
	}
}

// Handle обрабатывает событие завершения сессии.
// Реализует интерфейс shared.EventHandler.
func (h *OnSessionCompletedHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	// Type assertion для получения конкретного типа события
	completed, ok := event.(shared.SessionCompletedEvent)
	if !ok {
		h.logger.Warn("received non-SessionCompletedEvent",
			"event_type", string(event.EventType()),
		)
		return nil
	}

	h.logger.Info("processing session completion",
		"event_id", completed.EventID,
		"session_id", completed.AggregateId,
		"session_name", completed.SessionName,
	)

	// 1. Читаем итоговое покрытие сессии для лога
	if h.config.LogCoverage && h.markRepo != nil {
		count, err := h.markRepo.CountBySession(ctx, completed.AggregateId)
		if err != nil {
			h.logger.Error("failed to count session marks",
				"session_id", completed.AggregateId,
				"error", err,
			)
			// Продолжаем — покрытие попадёт в следующий снапшот
		} else {
			h.logger.Info("session closed",
				"session_id", completed.AggregateId,
				"session_name", completed.SessionName,
				"attended_count", count,
			)
		}
	}

	// 2. Инвалидируем сводки события: статус сессии в них устарел
	if h.cache != nil {
		if err := h.cache.InvalidateEvent(ctx, completed.EventID); err != nil {
			h.logger.Error("failed to invalidate event view cache",
				"event_id", completed.EventID,
				"error", err,
			)
		}
	}

	// 3. Запрашиваем пересчёт, чтобы снапшот отразил переход
	if h.config.RequestRefresh && h.refresher != nil {
		if started := h.refresher.Refresh(ctx); !started {
			h.logger.Debug("refresh already in progress, transition will be picked up later",
				"event_id", completed.EventID,
			)
		}
	}

	return nil
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnSessionCompletedHandler) EventType() shared.EventType {
	return shared.EventSessionCompleted
}
