package attendance

import (
	"context"
)

// Repository определяет интерфейс хранилища отметок посещаемости.
// Реализуется слоем infrastructure; домен не знает о механизме хранения.
type Repository interface {
	// InsertMark идемпотентно записывает отметку. Возвращает false, если
	// отметка для пары (сессия, регистрация) уже существовала; повторная
	// запись не является ошибкой.
	InsertMark(ctx context.Context, mark *AttendanceMark) (created bool, err error)

	// GetMarkedSessionIDs возвращает сессии события, на которых отмечен
	// студент. Это marksFor: основной вход вычислителя прогресса.
	GetMarkedSessionIDs(ctx context.Context, eventID, registrationID string) ([]string, error)

	// GetMarksForStudent возвращает полные отметки студента по событию.
	GetMarksForStudent(ctx context.Context, eventID, registrationID string) ([]*AttendanceMark, error)

	// CountBySession возвращает число отмеченных студентов на сессии.
	CountBySession(ctx context.Context, sessionID string) (int, error)

	// GetSessionMarkCounts возвращает число отметок по каждой сессии
	// события. Сессии без отметок в карту не попадают.
	GetSessionMarkCounts(ctx context.Context, eventID string) (map[string]int, error)

	// GetRegistrationIDs возвращает всех студентов, имеющих хотя бы одну
	// отметку по событию. Используется при полном пересчёте прогресса.
	GetRegistrationIDs(ctx context.Context, eventID string) ([]string, error)

	// SyncEventMarks приводит локальное зеркало отметок события к состоянию
	// внешнего источника. Существующие отметки сохраняют суррогатный ID.
	SyncEventMarks(ctx context.Context, eventID string, marks []*AttendanceMark) error
}

// ConfigRepository определяет интерфейс зеркала конфигураций стратегий.
type ConfigRepository interface {
	// Upsert сохраняет конфигурацию события. Конфигурация неизменяема для
	// события, но зеркало должно отражать внешний источник как есть.
	Upsert(ctx context.Context, cfg *StrategyConfig) error

	// GetByEvent возвращает конфигурацию события. Отсутствие конфигурации -
	// отдельное состояние "не настроено", а не пустое значение по умолчанию.
	GetByEvent(ctx context.Context, eventID string) (*StrategyConfig, error)
}
