// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/session"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET EVENT PROGRESS QUERY
// Прогресс всех студентов события разом - основа для таблицы организатора
// и для подсчёта группы риска. Сбой по одному студенту даёт ему нулевую
// сводку и не портит остальных.
// ══════════════════════════════════════════════════════════════════════════════

// GetEventProgressQuery содержит параметры запроса прогресса по событию.
type GetEventProgressQuery struct {
	// EventID - событие, по которому строится таблица.
	EventID string

	// OnlyAtRisk - вернуть только студентов, не укладывающихся в темп.
	OnlyAtRisk bool
}

// Validate проверяет корректность параметров запроса.
func (q *GetEventProgressQuery) Validate() error {
	if q.EventID == "" {
		return errors.New("event_id is required")
	}
	return nil
}

// GetEventProgressResult содержит результат запроса прогресса по событию.
type GetEventProgressResult struct {
	// EventID - событие.
	EventID string `json:"event_id"`

	// Students - прогресс каждого студента, отсортирован по регистрации.
	Students []StudentProgressDTO `json:"students"`

	// EligibleCount - сколько студентов уже выполнили условие зачёта.
	EligibleCount int `json:"eligible_count"`

	// AtRiskCount - сколько студентов не укладываются в темп.
	AtRiskCount int `json:"at_risk_count"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetEventProgressHandler обрабатывает запросы прогресса по событию.
type GetEventProgressHandler struct {
	configRepo  attendance.ConfigRepository
	sessionRepo session.Repository
	markRepo    attendance.Repository
	now         func() time.Time
}

// NewGetEventProgressHandler создаёт новый обработчик.
func NewGetEventProgressHandler(
	configRepo attendance.ConfigRepository,
	sessionRepo session.Repository,
	markRepo attendance.Repository,
) *GetEventProgressHandler {
	return &GetEventProgressHandler{
		configRepo:  configRepo,
		sessionRepo: sessionRepo,
		markRepo:    markRepo,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock подменяет источник времени. Используется в тестах.
func (h *GetEventProgressHandler) WithClock(now func() time.Time) *GetEventProgressHandler {
	h.now = now
	return h
}

// Handle выполняет запрос прогресса по событию.
func (h *GetEventProgressHandler) Handle(ctx context.Context, query GetEventProgressQuery) (*GetEventProgressResult, error) {
	// Валидация
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetEventProgress", shared.ErrValidation, err.Error(), err)
	}

	// Конфигурация стратегии
	cfg, err := h.configRepo.GetByEvent(ctx, query.EventID)
	if err != nil {
		if shared.IsConfigMissing(err) || shared.IsNotFound(err) {
			return nil, shared.WrapError("query", "GetEventProgress", shared.ErrConfigMissing,
				"attendance strategy is not configured for event "+query.EventID, err)
		}
		return nil, shared.WrapError("query", "GetEventProgress", shared.ErrTransientIO,
			"failed to load strategy config", err)
	}

	// Расписание события
	sessions, err := h.sessionRepo.GetByEvent(ctx, query.EventID)
	if err != nil {
		return nil, shared.WrapError("query", "GetEventProgress", shared.ErrTransientIO,
			"failed to load event sessions", err)
	}
	infos := sessionInfos(sessions)

	// Студенты с отметками. Студенты без единой отметки в зеркале не видны;
	// их нулевые сводки достраивает вызывающая сторона по своему реестру.
	registrations, err := h.markRepo.GetRegistrationIDs(ctx, query.EventID)
	if err != nil {
		return nil, shared.WrapError("query", "GetEventProgress", shared.ErrTransientIO,
			"failed to load marked registrations", err)
	}
	sort.Strings(registrations)

	evaluatedAt := h.now()
	result := &GetEventProgressResult{
		EventID:     query.EventID,
		Students:    make([]StudentProgressDTO, 0, len(registrations)),
		GeneratedAt: evaluatedAt,
	}

	for _, registrationID := range registrations {
		dto := h.evaluateOne(ctx, query.EventID, registrationID, cfg, infos, evaluatedAt)

		if dto.IsEligible {
			result.EligibleCount++
		}
		if !dto.IsOnTrack {
			result.AtRiskCount++
		}
		if query.OnlyAtRisk && dto.IsOnTrack {
			continue
		}
		result.Students = append(result.Students, dto)
	}

	return result, nil
}

// evaluateOne считает сводку одного студента. Любой сбой чтения или
// вычисления превращается в нулевую сводку, остальная таблица не страдает.
func (h *GetEventProgressHandler) evaluateOne(
	ctx context.Context,
	eventID, registrationID string,
	cfg *attendance.StrategyConfig,
	infos []attendance.SessionInfo,
	evaluatedAt time.Time,
) StudentProgressDTO {
	zero := StudentProgressDTO{
		RegistrationID:    registrationID,
		EventID:           eventID,
		StrategyKind:      cfg.Kind.String(),
		MinimumPercentage: cfg.MinimumPercentage,
		EvaluatedAt:       evaluatedAt,
	}

	markedIDs, err := h.markRepo.GetMarkedSessionIDs(ctx, eventID, registrationID)
	if err != nil {
		return zero
	}

	marked := attendance.NewMarkSet(markedIDs...)
	summary, err := attendance.Evaluate(cfg, infos, marked, evaluatedAt)
	if err != nil {
		return zero
	}

	dto := buildProgressDTO(eventID, registrationID, cfg, summary)
	dto.MarkedSessionIDs = marked.SessionIDs()
	return dto
}
