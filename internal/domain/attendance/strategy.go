package attendance

import (
	"errors"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// STRATEGY KIND
// ══════════════════════════════════════════════════════════════════════════════

// Kind определяет вид стратегии зачёта посещаемости события.
type Kind string

const (
	// KindSingleMark - достаточно одной отметки за всё событие.
	KindSingleMark Kind = "single_mark"

	// KindSessionBased - зачёт по проценту посещённых сессий.
	KindSessionBased Kind = "session_based"

	// KindDayBased - зачёт по проценту посещённых календарных дней.
	KindDayBased Kind = "day_based"

	// KindMilestoneBased - зачёт только при посещении всех обязательных сессий.
	KindMilestoneBased Kind = "milestone_based"

	// KindContinuous - непрерывная посещаемость; вычисляется как session_based,
	// различие живёт в гранулярности данных верхнего уровня.
	KindContinuous Kind = "continuous"
)

// IsValid проверяет, что вид стратегии известен.
func (k Kind) IsValid() bool {
	switch k {
	case KindSingleMark, KindSessionBased, KindDayBased, KindMilestoneBased, KindContinuous:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление вида стратегии.
func (k Kind) String() string {
	return string(k)
}

// RequiresThreshold возвращает true, если стратегии нужен минимальный процент.
// Для таких стратегий isOnTrack сравнивает процент с порогом; для остальных
// isOnTrack совпадает с isEligible.
func (k Kind) RequiresThreshold() bool {
	switch k {
	case KindSessionBased, KindDayBased, KindContinuous:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEmptyEventID - не указано событие.
	ErrEmptyEventID = errors.New("attendance: event id is required")

	// ErrEmptySessionID - не указана сессия.
	ErrEmptySessionID = errors.New("attendance: session id is required")

	// ErrEmptyRegistrationID - не указана регистрация студента.
	ErrEmptyRegistrationID = errors.New("attendance: registration id is required")

	// ErrEmptyMarkID - отметка без суррогатного идентификатора.
	ErrEmptyMarkID = errors.New("attendance: mark id is required")

	// ErrUnknownStrategy - неизвестный вид стратегии.
	ErrUnknownStrategy = errors.New("attendance: unknown strategy kind")

	// ErrInvalidMinimumPercentage - порог вне диапазона 0-100.
	ErrInvalidMinimumPercentage = errors.New("attendance: minimum percentage must be between 0 and 100")

	// ErrNoMandatorySessions - milestone-стратегия без обязательных сессий.
	ErrNoMandatorySessions = errors.New("attendance: milestone strategy requires mandatory session ids")

	// ErrNilConfig - вычисление без конфигурации стратегии.
	ErrNilConfig = errors.New("attendance: strategy config is nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// STRATEGY CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// StrategyConfig описывает правило зачёта посещаемости для одного события.
// На событие приходится ровно одна конфигурация; на время действия события
// она неизменяема, поэтому сеттеров у типа нет.
type StrategyConfig struct {
	// EventID - событие, к которому относится конфигурация.
	EventID string

	// Kind - вид стратегии зачёта.
	Kind Kind

	// MinimumPercentage - минимальный процент посещаемости (0-100).
	// Используется только стратегиями с порогом; иначе игнорируется.
	MinimumPercentage int

	// MandatorySessionIDs - обязательные сессии для milestone_based,
	// без дубликатов, в порядке объявления.
	MandatorySessionIDs []string

	// CreatedAt - время создания записи.
	CreatedAt time.Time
}

// NewStrategyConfig создаёт конфигурацию стратегии с валидацией всех полей.
func NewStrategyConfig(eventID string, kind Kind, minimumPercentage int, mandatorySessionIDs []string) (*StrategyConfig, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, ErrEmptyEventID
	}
	if !kind.IsValid() {
		return nil, ErrUnknownStrategy
	}
	if kind.RequiresThreshold() && (minimumPercentage < 0 || minimumPercentage > 100) {
		return nil, ErrInvalidMinimumPercentage
	}

	mandatory := dedupeIDs(mandatorySessionIDs)
	if kind == KindMilestoneBased && len(mandatory) == 0 {
		return nil, ErrNoMandatorySessions
	}

	return &StrategyConfig{
		EventID:             eventID,
		Kind:                kind,
		MinimumPercentage:   minimumPercentage,
		MandatorySessionIDs: mandatory,
		CreatedAt:           time.Now().UTC(),
	}, nil
}

// Validate перепроверяет конфигурацию. Нужна для записей, восстановленных
// из хранилища или из ответа внешнего API в обход конструктора.
func (c *StrategyConfig) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if strings.TrimSpace(c.EventID) == "" {
		return ErrEmptyEventID
	}
	if !c.Kind.IsValid() {
		return ErrUnknownStrategy
	}
	if c.Kind.RequiresThreshold() && (c.MinimumPercentage < 0 || c.MinimumPercentage > 100) {
		return ErrInvalidMinimumPercentage
	}
	if c.Kind == KindMilestoneBased && len(c.MandatorySessionIDs) == 0 {
		return ErrNoMandatorySessions
	}
	return nil
}

// MandatorySet возвращает обязательные сессии в виде множества.
func (c *StrategyConfig) MandatorySet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.MandatorySessionIDs))
	for _, id := range c.MandatorySessionIDs {
		set[id] = struct{}{}
	}
	return set
}

// dedupeIDs убирает пустые строки и дубликаты, сохраняя порядок.
func dedupeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
