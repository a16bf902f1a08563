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
// GET STUDENT PROGRESS QUERY
// Вычисляет прогресс посещаемости одного студента по событию: расписание и
// отметки читаются из зеркала, зачёт считает доменный вычислитель. Это
// ключевой запрос для карточки студента - показывает "идёт ли он к зачёту".
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentProgressQuery содержит параметры запроса прогресса студента.
type GetStudentProgressQuery struct {
	// EventID - событие, по которому считается прогресс.
	EventID string

	// RegistrationID - регистрация студента на событии.
	RegistrationID string
}

// Validate проверяет корректность параметров запроса.
func (q *GetStudentProgressQuery) Validate() error {
	if q.EventID == "" {
		return errors.New("event_id is required")
	}
	if !shared.RegistrationID(q.RegistrationID).IsValid() {
		return errors.New("registration_id is missing or malformed")
	}
	return nil
}

// StudentProgressDTO - DTO с прогрессом студента по стратегии зачёта.
type StudentProgressDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Идентификация
	// ─────────────────────────────────────────────────────────────────────────

	// RegistrationID - регистрация студента.
	RegistrationID string `json:"registration_id"`

	// EventID - событие.
	EventID string `json:"event_id"`

	// ─────────────────────────────────────────────────────────────────────────
	// Стратегия
	// ─────────────────────────────────────────────────────────────────────────

	// StrategyKind - вид стратегии зачёта.
	StrategyKind string `json:"strategy_kind"`

	// MinimumPercentage - порог зачёта для процентных стратегий.
	MinimumPercentage int `json:"minimum_percentage"`

	// ─────────────────────────────────────────────────────────────────────────
	// Счётчики
	// ─────────────────────────────────────────────────────────────────────────

	// AttendedCount - сколько единиц учёта студент посетил.
	AttendedCount int `json:"attended_count"`

	// RequiredUnitCount - сколько единиц учёта требуется всего.
	RequiredUnitCount int `json:"required_unit_count"`

	// Percentage - процент посещаемости (0-100, округлено).
	Percentage int `json:"percentage"`

	// ─────────────────────────────────────────────────────────────────────────
	// Вердикты
	// ─────────────────────────────────────────────────────────────────────────

	// IsEligible - выполнено ли условие зачёта прямо сейчас.
	IsEligible bool `json:"is_eligible"`

	// IsOnTrack - укладывается ли студент в требуемый темп.
	IsOnTrack bool `json:"is_on_track"`

	// ─────────────────────────────────────────────────────────────────────────
	// Детали
	// ─────────────────────────────────────────────────────────────────────────

	// MarkedSessionIDs - сессии, на которых студент отмечен (отсортированы).
	MarkedSessionIDs []string `json:"marked_session_ids,omitempty"`

	// EvaluatedAt - момент вычисления.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// GetStudentProgressResult содержит результат запроса прогресса.
type GetStudentProgressResult struct {
	// Progress - вычисленный прогресс студента.
	Progress StudentProgressDTO `json:"progress"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetStudentProgressHandler обрабатывает запросы прогресса студента.
type GetStudentProgressHandler struct {
	configRepo  attendance.ConfigRepository
	sessionRepo session.Repository
	markRepo    attendance.Repository
	now         func() time.Time
}

// NewGetStudentProgressHandler создаёт новый обработчик.
func NewGetStudentProgressHandler(
	configRepo attendance.ConfigRepository,
	sessionRepo session.Repository,
	markRepo attendance.Repository,
) *GetStudentProgressHandler {
	return &GetStudentProgressHandler{
		configRepo:  configRepo,
		sessionRepo: sessionRepo,
		markRepo:    markRepo,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock подменяет источник времени. Используется в тестах.
func (h *GetStudentProgressHandler) WithClock(now func() time.Time) *GetStudentProgressHandler {
	h.now = now
	return h
}

// Handle выполняет запрос прогресса студента.
func (h *GetStudentProgressHandler) Handle(ctx context.Context, query GetStudentProgressQuery) (*GetStudentProgressResult, error) {
	// Валидация
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetStudentProgress", shared.ErrValidation, err.Error(), err)
	}

	// Конфигурация стратегии. Её отсутствие - отдельное состояние "событие
	// не настроено", а не повод подставить стратегию по умолчанию.
	cfg, err := h.configRepo.GetByEvent(ctx, query.EventID)
	if err != nil {
		if shared.IsConfigMissing(err) || shared.IsNotFound(err) {
			return nil, shared.WrapError("query", "GetStudentProgress", shared.ErrConfigMissing,
				"attendance strategy is not configured for event "+query.EventID, err)
		}
		return nil, shared.WrapError("query", "GetStudentProgress", shared.ErrTransientIO,
			"failed to load strategy config", err)
	}

	// Расписание события
	sessions, err := h.sessionRepo.GetByEvent(ctx, query.EventID)
	if err != nil {
		return nil, shared.WrapError("query", "GetStudentProgress", shared.ErrTransientIO,
			"failed to load event sessions", err)
	}

	// Отметки студента
	markedIDs, err := h.markRepo.GetMarkedSessionIDs(ctx, query.EventID, query.RegistrationID)
	if err != nil {
		return nil, shared.WrapError("query", "GetStudentProgress", shared.ErrTransientIO,
			"failed to load attendance marks", err)
	}

	// Вычисление в чистом домене
	summary, err := attendance.Evaluate(cfg, sessionInfos(sessions), attendance.NewMarkSet(markedIDs...), h.now())
	if err != nil {
		return nil, shared.WrapError("query", "GetStudentProgress", shared.ErrInvalidInput,
			"progress evaluation failed", err)
	}

	dto := buildProgressDTO(query.EventID, query.RegistrationID, cfg, summary)
	dto.MarkedSessionIDs = attendance.NewMarkSet(markedIDs...).SessionIDs()

	return &GetStudentProgressResult{
		Progress:    dto,
		GeneratedAt: h.now(),
	}, nil
}

// buildProgressDTO формирует DTO из доменной сводки.
func buildProgressDTO(eventID, registrationID string, cfg *attendance.StrategyConfig, summary attendance.ProgressSummary) StudentProgressDTO {
	return StudentProgressDTO{
		RegistrationID:    registrationID,
		EventID:           eventID,
		StrategyKind:      summary.Kind.String(),
		MinimumPercentage: cfg.MinimumPercentage,
		AttendedCount:     summary.AttendedCount,
		RequiredUnitCount: summary.RequiredUnitCount,
		Percentage:        summary.Percentage,
		IsEligible:        summary.IsEligible,
		IsOnTrack:         summary.IsOnTrack,
		EvaluatedAt:       summary.EvaluatedAt,
	}
}

// sessionInfos проецирует сущности расписания в плоский вид для вычислителя.
func sessionInfos(sessions []*session.Session) []attendance.SessionInfo {
	infos := make([]attendance.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		if s == nil {
			continue
		}
		infos = append(infos, attendance.SessionInfo{
			ID:       s.ID,
			StartsAt: s.StartTime,
		})
	}
	return infos
}
