package eventhandler

import (
	"context"
	"log/slog"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON SESSION STARTED HANDLER
// Обрабатывает событие "сессия перешла в состояние active".
//
// Начало сессии — момент выдачи кода самоотметки: код должен существовать
// до того, как первый студент попытается отметиться. Плановая выдача здесь,
// а не по расписанию, гарантирует, что код появляется ровно при переходе
// pending -> active, каким бы путём этот переход ни случился.
// ═══════════════════════════════════════════════════════════════════════════

// CodeIssuer выдаёт код самоотметки для сессии. Открытый текст кода
// существует только в возвращаемом значении; хранится лишь хэш.
type CodeIssuer interface {
	IssueCode(ctx context.Context, eventID, sessionID string) (string, error)
}

// CodeAnnouncer доводит выданный код до аудитории сессии (проектор,
// стаффский канал). Отсутствие анонсера — валидная конфигурация: код
// тогда выдаётся только по запросу стаффа.
type CodeAnnouncer interface {
	AnnounceCode(ctx context.Context, eventID, sessionID, sessionName, code string) error
}

// OnSessionStartedHandler обрабатывает начало сессии.
type OnSessionStartedHandler struct {
	issuer    CodeIssuer
	announcer CodeAnnouncer
	logger    *slog.Logger
	config    SessionStartedConfig
}

// SessionStartedConfig содержит конфигурацию обработчика.
type SessionStartedConfig struct {
	// IssueCheckinCode — выдавать ли код самоотметки при старте сессии.
	IssueCheckinCode bool

	// MandatoryOnly — выдавать коды только для обязательных сессий.
	MandatoryOnly bool
}

// DefaultSessionStartedConfig возвращает конфигурацию по умолчанию.
func DefaultSessionStartedConfig() SessionStartedConfig {
	return SessionStartedConfig{
		IssueCheckinCode: true,
		MandatoryOnly:    false,
	}
}

// NewOnSessionStartedHandler создаёт новый обработчик начала сессии.
func NewOnSessionStartedHandler(
	issuer CodeIssuer,
	announcer CodeAnnouncer,
	logger *slog.Logger,
	config SessionStartedConfig,
) *OnSessionStartedHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &OnSessionStartedHandler{
		issuer:    issuer,
		announcer: announcer,
		logger:    logger.With("handler", "on_session_started"),
		config:    config,
	}
}

// Handle обрабатывает событие начала сессии.
// Реализует интерфейс shared.EventHandler.
func (h *OnSessionStartedHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	started, ok := event.(shared.SessionStartedEvent)
	if !ok {
		h.logger.Warn("received non-SessionStartedEvent",
			"event_type", string(event.EventType()),
		)
		return nil
	}

	h.logger.Info("session started",
		"event_id", started.EventID,
		"session_id", started.AggregateId,
		"session_name", started.SessionName,
		"is_mandatory", started.IsMandatory,
	)

	if !h.config.IssueCheckinCode || h.issuer == nil {
		return nil
	}

	if h.config.MandatoryOnly && !started.IsMandatory {
		h.logger.Debug("optional session, no check-in code issued",
			"session_id", started.AggregateId,
		)
		return nil
	}

	// Выдаём код. Ошибка выдачи не должна ломать остальную обработку
	// события: стафф может выдать код вручную.
	code, err := h.issuer.IssueCode(ctx, started.EventID, started.AggregateId)
	if err != nil {
		h.logger.Error("failed to issue check-in code",
			"event_id", started.EventID,
			"session_id", started.AggregateId,
			"error", err,
		)
		return nil
	}

	h.logger.Info("check-in code issued for session",
		"event_id", started.EventID,
		"session_id", started.AggregateId,
	)

	if h.announcer != nil {
		if err := h.announcer.AnnounceCode(ctx, started.EventID, started.AggregateId, started.SessionName, code); err != nil {
			h.logger.Error("failed to announce check-in code",
				"session_id", started.AggregateId,
				"error", err,
			)
		}
	}

	return nil
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnSessionStartedHandler) EventType() shared.EventType {
	return shared.EventSessionStarted
}
