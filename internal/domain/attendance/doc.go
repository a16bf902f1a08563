// Package attendance содержит доменную модель посещаемости Campus Hub.
//
// Это ядро бизнес-логики системы "Campus Attendance Hub". Пакет определяет:
//
//   - Сущности (Entities): AttendanceMark, StrategyConfig
//   - Value Objects: Kind, MarkSet, FailReason, SessionInfo
//   - Чистый вычислитель прогресса: Evaluate и таблица стратегий
//   - Интерфейсы репозиториев: Repository, ConfigRepository
//
// # Архитектурные принципы
//
// Пакет следует принципам Clean Architecture и DDD:
//
//  1. Нулевые внешние зависимости - только стандартная библиотека Go
//  2. Dependency Inversion - определяет интерфейсы, которые реализуются в infrastructure
//  3. Детерминизм - вычисление прогресса не читает часы и не делает I/O
//
// # Стратегии зачёта
//
// Событие настраивается ровно одной стратегией. Поддерживаются пять видов:
//
//   - single_mark: достаточно одной отметки за всё событие
//   - session_based: процент посещённых сессий не ниже порога
//   - day_based: процент посещённых календарных дней не ниже порога
//   - milestone_based: посещены все обязательные сессии, без частичного зачёта
//   - continuous: считается как session_based, различие только в данных выше
//
// # Вычисление прогресса
//
// Evaluate - чистая функция: одинаковые входы всегда дают одинаковый
// ProgressSummary. Момент времени передаётся параметром:
//
//	cfg, err := NewStrategyConfig("event-1", KindSessionBased, 75, nil)
//	if err != nil {
//	    return err
//	}
//
//	summary, err := Evaluate(cfg, sessions, marked, time.Now())
//	if summary.IsEligible {
//	    // студент прошёл порог посещаемости
//	}
//
// # Отметки посещаемости
//
// AttendanceMark идемпотентна: повторная отметка той же пары
// (сессия, студент) не создаёт дубликата и не считается ошибкой.
// Логическая идентичность отметки - пара (SessionID, RegistrationID),
// суррогатный UUID нужен только хранилищу.
//
//	mark, err := NewMark(NewMarkParams{
//	    ID:             uuid.New().String(),
//	    EventID:        "event-1",
//	    SessionID:      "session-42",
//	    RegistrationID: "reg-7",
//	    MarkedAt:       time.Now(),
//	    Method:         "physical",
//	})
//
// # Репозитории
//
// Пакет определяет интерфейсы репозиториев (реализации в infrastructure):
//
//   - Repository: идемпотентная запись и выборки отметок
//   - ConfigRepository: зеркало конфигураций стратегий
package attendance
