package attendance

import (
	"sort"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE MARK
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceMark - отметка о присутствии студента на сессии.
// Логическая идентичность отметки - пара (SessionID, RegistrationID):
// на одну пару существует не более одной отметки, и повторная попытка
// отметиться не является ошибкой. Запись не обновляется после создания.
type AttendanceMark struct {
	// ID - суррогатный идентификатор записи (UUID). Нужен только хранилищу,
	// на логическую идентичность не влияет.
	ID string

	// EventID - событие, в рамках которого сделана отметка.
	EventID string

	// SessionID - сессия, на которой отмечен студент.
	SessionID string

	// RegistrationID - регистрация студента на событии.
	RegistrationID string

	// MarkedAt - момент отметки. Может быть поздним административным
	// вводом, поэтому календарные дни считаются по сессии, а не по нему.
	MarkedAt time.Time

	// Method - способ верификации отметки (physical, code, bulk, manual).
	Method string

	// Notes - произвольный комментарий организатора.
	Notes string

	// CreatedAt - время создания записи в локальном хранилище.
	CreatedAt time.Time
}

// NewMarkParams содержит параметры для создания новой отметки.
type NewMarkParams struct {
	ID             string
	EventID        string
	SessionID      string
	RegistrationID string
	MarkedAt       time.Time
	Method         string
	Notes          string
}

// NewMark создаёт отметку посещаемости с валидацией всех полей.
func NewMark(params NewMarkParams) (*AttendanceMark, error) {
	if strings.TrimSpace(params.ID) == "" {
		return nil, ErrEmptyMarkID
	}
	if strings.TrimSpace(params.EventID) == "" {
		return nil, ErrEmptyEventID
	}
	if strings.TrimSpace(params.SessionID) == "" {
		return nil, ErrEmptySessionID
	}
	if strings.TrimSpace(params.RegistrationID) == "" {
		return nil, ErrEmptyRegistrationID
	}

	markedAt := params.MarkedAt
	if markedAt.IsZero() {
		markedAt = time.Now().UTC()
	}

	return &AttendanceMark{
		ID:             params.ID,
		EventID:        params.EventID,
		SessionID:      params.SessionID,
		RegistrationID: params.RegistrationID,
		MarkedAt:       markedAt,
		Method:         strings.TrimSpace(params.Method),
		Notes:          strings.TrimSpace(params.Notes),
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// SameIdentity проверяет, относятся ли две отметки к одной логической паре.
func (m *AttendanceMark) SameIdentity(other *AttendanceMark) bool {
	if other == nil {
		return false
	}
	return m.SessionID == other.SessionID && m.RegistrationID == other.RegistrationID
}

// ══════════════════════════════════════════════════════════════════════════════
// MARK SET
// ══════════════════════════════════════════════════════════════════════════════

// MarkSet - множество сессий, на которых отмечен один студент.
// Это вход вычислителя прогресса: прогресс зависит только от того,
// на каких сессиях есть отметка, а не от деталей самих отметок.
type MarkSet map[string]struct{}

// NewMarkSet собирает множество из идентификаторов сессий.
func NewMarkSet(sessionIDs ...string) MarkSet {
	set := make(MarkSet, len(sessionIDs))
	for _, id := range sessionIDs {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// MarkSetFromMarks собирает множество из отметок студента.
func MarkSetFromMarks(marks []*AttendanceMark) MarkSet {
	set := make(MarkSet, len(marks))
	for _, m := range marks {
		if m == nil || m.SessionID == "" {
			continue
		}
		set[m.SessionID] = struct{}{}
	}
	return set
}

// Contains проверяет наличие сессии в множестве.
func (s MarkSet) Contains(sessionID string) bool {
	_, ok := s[sessionID]
	return ok
}

// Add добавляет сессию в множество.
func (s MarkSet) Add(sessionID string) {
	if sessionID != "" {
		s[sessionID] = struct{}{}
	}
}

// Len возвращает размер множества.
func (s MarkSet) Len() int {
	return len(s)
}

// SessionIDs возвращает отсортированный список сессий множества.
func (s MarkSet) SessionIDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ══════════════════════════════════════════════════════════════════════════════
// BULK FAILURE REASONS
// ══════════════════════════════════════════════════════════════════════════════

// FailReason - причина отказа по одному студенту при массовой отметке.
// Закрытый перечень: потребители ветвятся по значению, поэтому новые
// причины добавляются только вместе с обработкой во всех потребителях.
type FailReason string

const (
	// FailInvalidSession - сессия не принадлежит событию.
	FailInvalidSession FailReason = "invalid_session"

	// FailUnknownRegistration - регистрация не найдена в событии.
	FailUnknownRegistration FailReason = "unknown_registration"

	// FailDuplicateInBatch - идентификатор повторяется внутри одной пачки.
	FailDuplicateInBatch FailReason = "duplicate_in_batch"

	// FailIO - отметка не записана из-за ошибки ввода-вывода.
	FailIO FailReason = "io_error"
)

// IsValid проверяет, что причина отказа известна.
func (r FailReason) IsValid() bool {
	switch r {
	case FailInvalidSession, FailUnknownRegistration, FailDuplicateInBatch, FailIO:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление причины.
func (r FailReason) String() string {
	return string(r)
}

// BulkFailure - отказ по одному студенту внутри массовой отметки.
type BulkFailure struct {
	// RegistrationID - регистрация, по которой отметка не удалась.
	RegistrationID string

	// Reason - причина отказа из закрытого перечня.
	Reason FailReason
}
