// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/session"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SESSION COVERAGE QUERY
// Считает охват одной сессии: сколько студентов отмечено против размера
// зарегистрированной аудитории. Аудиторию зеркало не хранит - её размер
// передаёт вызывающая сторона (внешний реестр регистраций).
// ══════════════════════════════════════════════════════════════════════════════

// GetSessionCoverageQuery содержит параметры запроса охвата сессии.
type GetSessionCoverageQuery struct {
	// EventID - событие, которому должна принадлежать сессия.
	EventID string

	// SessionID - сессия, чей охват считается.
	SessionID string

	// TotalRegistered - размер зарегистрированной аудитории события.
	// Ноль допустим: событие без регистраций даёт нулевой охват.
	TotalRegistered int
}

// Validate проверяет корректность параметров запроса.
func (q *GetSessionCoverageQuery) Validate() error {
	if q.EventID == "" {
		return errors.New("event_id is required")
	}
	if q.SessionID == "" {
		return errors.New("session_id is required")
	}
	if q.TotalRegistered < 0 {
		return errors.New("total_registered cannot be negative")
	}
	return nil
}

// SessionCoverageDTO - DTO с охватом сессии.
type SessionCoverageDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Сессия
	// ─────────────────────────────────────────────────────────────────────────

	// SessionID - идентификатор сессии.
	SessionID string `json:"session_id"`

	// Name - название сессии.
	Name string `json:"name"`

	// Status - статус жизненного цикла на момент запроса.
	Status string `json:"status"`

	// StartTime - начало сессии.
	StartTime time.Time `json:"start_time"`

	// EndTime - конец сессии.
	EndTime time.Time `json:"end_time"`

	// IsMandatory - обязательна ли сессия для milestone-стратегии.
	IsMandatory bool `json:"is_mandatory"`

	// ─────────────────────────────────────────────────────────────────────────
	// Охват
	// ─────────────────────────────────────────────────────────────────────────

	// AttendedCount - сколько студентов отмечено на сессии.
	AttendedCount int `json:"attended_count"`

	// TotalRegistered - размер аудитории, переданный вызывающей стороной.
	TotalRegistered int `json:"total_registered"`

	// CoveragePercent - охват в процентах (0-100, округлено).
	CoveragePercent int `json:"coverage_percent"`
}

// GetSessionCoverageResult содержит результат запроса охвата.
type GetSessionCoverageResult struct {
	// Coverage - охват сессии.
	Coverage SessionCoverageDTO `json:"coverage"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetSessionCoverageHandler обрабатывает запросы охвата сессии.
type GetSessionCoverageHandler struct {
	sessionRepo session.Repository
	markRepo    attendance.Repository
	now         func() time.Time
}

// NewGetSessionCoverageHandler создаёт новый обработчик.
func NewGetSessionCoverageHandler(
	sessionRepo session.Repository,
	markRepo attendance.Repository,
) *GetSessionCoverageHandler {
	return &GetSessionCoverageHandler{
		sessionRepo: sessionRepo,
		markRepo:    markRepo,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock подменяет источник времени. Используется в тестах.
func (h *GetSessionCoverageHandler) WithClock(now func() time.Time) *GetSessionCoverageHandler {
	h.now = now
	return h
}

// Handle выполняет запрос охвата сессии.
func (h *GetSessionCoverageHandler) Handle(ctx context.Context, query GetSessionCoverageQuery) (*GetSessionCoverageResult, error) {
	// Валидация
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetSessionCoverage", shared.ErrValidation, err.Error(), err)
	}

	// Сессия должна существовать и принадлежать запрошенному событию.
	sess, err := h.sessionRepo.GetByID(ctx, query.SessionID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.WrapError("query", "GetSessionCoverage", shared.ErrInvalidSession,
				"session "+query.SessionID+" not found", err)
		}
		return nil, shared.WrapError("query", "GetSessionCoverage", shared.ErrTransientIO,
			"failed to load session", err)
	}
	if sess.EventID != query.EventID {
		return nil, shared.WrapError("query", "GetSessionCoverage", shared.ErrInvalidSession,
			"session "+query.SessionID+" does not belong to event "+query.EventID, shared.ErrMarkInvalidSession)
	}

	// Число отмеченных
	attended, err := h.markRepo.CountBySession(ctx, query.SessionID)
	if err != nil {
		return nil, shared.WrapError("query", "GetSessionCoverage", shared.ErrTransientIO,
			"failed to count session marks", err)
	}

	dto := SessionCoverageDTO{
		SessionID:       sess.ID,
		Name:            sess.Name,
		Status:          string(sess.StatusAt(h.now())),
		StartTime:       sess.StartTime,
		EndTime:         sess.EndTime,
		IsMandatory:     sess.IsMandatory,
		AttendedCount:   attended,
		TotalRegistered: query.TotalRegistered,
		CoveragePercent: coveragePercent(attended, query.TotalRegistered),
	}

	return &GetSessionCoverageResult{
		Coverage:    dto,
		GeneratedAt: h.now(),
	}, nil
}

// coveragePercent считает долю охвата с округлением до целого процента.
// Нулевая база даёт ноль, а не ошибку деления.
func coveragePercent(attended, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(attended) / float64(total) * 100))
}
