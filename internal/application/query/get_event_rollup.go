// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/session"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET EVENT ROLLUP QUERY
// Сводка по всему событию: сколько сессий прошло хоть с одной отметкой.
// Сессия "покрыта", если на ней отмечен хотя бы один студент - сколько
// именно, на сводку не влияет. Это взгляд организатора на событие целиком.
// ══════════════════════════════════════════════════════════════════════════════

// GetEventRollupQuery содержит параметры запроса сводки события.
type GetEventRollupQuery struct {
	// EventID - событие, по которому строится сводка.
	EventID string
}

// Validate проверяет корректность параметров запроса.
func (q *GetEventRollupQuery) Validate() error {
	if q.EventID == "" {
		return errors.New("event_id is required")
	}
	return nil
}

// EventRollupDTO - DTO со сводкой события.
type EventRollupDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Событие
	// ─────────────────────────────────────────────────────────────────────────

	// EventID - идентификатор события.
	EventID string `json:"event_id"`

	// StrategyKind - вид стратегии зачёта события.
	StrategyKind string `json:"strategy_kind"`

	// MinimumPercentage - порог зачёта для процентных стратегий.
	MinimumPercentage int `json:"minimum_percentage"`

	// ─────────────────────────────────────────────────────────────────────────
	// Покрытие сессий
	// ─────────────────────────────────────────────────────────────────────────

	// TotalSessions - всего сессий в расписании.
	TotalSessions int `json:"total_sessions"`

	// SessionsWithAttendance - сессии хотя бы с одной отметкой.
	SessionsWithAttendance int `json:"sessions_with_attendance"`

	// OverallPercentage - доля покрытых сессий (0-100, округлено).
	OverallPercentage int `json:"overall_percentage"`

	// IsOnTrack - идёт ли событие в темпе своей стратегии: для процентных
	// стратегий покрытие не ниже порога, для single_mark хотя бы одна
	// покрытая сессия, для milestone_based покрыта каждая обязательная.
	IsOnTrack bool `json:"is_on_track"`

	// ─────────────────────────────────────────────────────────────────────────
	// Активность
	// ─────────────────────────────────────────────────────────────────────────

	// DistinctStudents - сколько разных студентов имеют отметки.
	DistinctStudents int `json:"distinct_students"`
}

// GetEventRollupResult содержит результат запроса сводки.
type GetEventRollupResult struct {
	// Rollup - сводка события.
	Rollup EventRollupDTO `json:"rollup"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetEventRollupHandler обрабатывает запросы сводки события.
type GetEventRollupHandler struct {
	configRepo  attendance.ConfigRepository
	sessionRepo session.Repository
	markRepo    attendance.Repository
	now         func() time.Time
}

// NewGetEventRollupHandler создаёт новый обработчик.
func NewGetEventRollupHandler(
	configRepo attendance.ConfigRepository,
	sessionRepo session.Repository,
	markRepo attendance.Repository,
) *GetEventRollupHandler {
	return &GetEventRollupHandler{
		configRepo:  configRepo,
		sessionRepo: sessionRepo,
		markRepo:    markRepo,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock подменяет источник времени. Используется в тестах.
func (h *GetEventRollupHandler) WithClock(now func() time.Time) *GetEventRollupHandler {
	h.now = now
	return h
}

// Handle выполняет запрос сводки события.
func (h *GetEventRollupHandler) Handle(ctx context.Context, query GetEventRollupQuery) (*GetEventRollupResult, error) {
	// Валидация
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetEventRollup", shared.ErrValidation, err.Error(), err)
	}

	// Конфигурация стратегии: без неё вердикт IsOnTrack не имеет смысла.
	cfg, err := h.configRepo.GetByEvent(ctx, query.EventID)
	if err != nil {
		if shared.IsConfigMissing(err) || shared.IsNotFound(err) {
			return nil, shared.WrapError("query", "GetEventRollup", shared.ErrConfigMissing,
				"attendance strategy is not configured for event "+query.EventID, err)
		}
		return nil, shared.WrapError("query", "GetEventRollup", shared.ErrTransientIO,
			"failed to load strategy config", err)
	}

	// Расписание события
	sessions, err := h.sessionRepo.GetByEvent(ctx, query.EventID)
	if err != nil {
		return nil, shared.WrapError("query", "GetEventRollup", shared.ErrTransientIO,
			"failed to load event sessions", err)
	}

	// Число отметок по сессиям. Сессии без отметок в карте отсутствуют.
	counts, err := h.markRepo.GetSessionMarkCounts(ctx, query.EventID)
	if err != nil {
		return nil, shared.WrapError("query", "GetEventRollup", shared.ErrTransientIO,
			"failed to load session mark counts", err)
	}

	// Студенты с отметками
	registrations, err := h.markRepo.GetRegistrationIDs(ctx, query.EventID)
	if err != nil {
		return nil, shared.WrapError("query", "GetEventRollup", shared.ErrTransientIO,
			"failed to load marked registrations", err)
	}

	// Покрытие считается по расписанию, а не по карте отметок: отметки на
	// сессиях, выпавших из расписания, покрытие не увеличивают.
	covered := 0
	for _, s := range sessions {
		if s == nil {
			continue
		}
		if counts[s.ID] > 0 {
			covered++
		}
	}

	dto := EventRollupDTO{
		EventID:                query.EventID,
		StrategyKind:           cfg.Kind.String(),
		MinimumPercentage:      cfg.MinimumPercentage,
		TotalSessions:          len(sessions),
		SessionsWithAttendance: covered,
		OverallPercentage:      coveragePercent(covered, len(sessions)),
		DistinctStudents:       len(registrations),
	}
	dto.IsOnTrack = rollupOnTrack(cfg, dto.OverallPercentage, covered, counts)

	return &GetEventRollupResult{
		Rollup:      dto,
		GeneratedAt: h.now(),
	}, nil
}

// rollupOnTrack выносит вердикт по событию в терминах его стратегии.
func rollupOnTrack(cfg *attendance.StrategyConfig, overallPercentage, covered int, counts map[string]int) bool {
	switch cfg.Kind {
	case attendance.KindSingleMark:
		return covered >= 1
	case attendance.KindMilestoneBased:
		for _, id := range cfg.MandatorySessionIDs {
			if counts[id] == 0 {
				return false
			}
		}
		return len(cfg.MandatorySessionIDs) > 0
	default:
		return overallPercentage >= cfg.MinimumPercentage
	}
}
