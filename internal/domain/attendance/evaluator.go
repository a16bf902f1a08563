package attendance

import (
	"math"
	"time"

	"github.com/campus-hub/campus-attendance-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION INPUT / OUTPUT
// ══════════════════════════════════════════════════════════════════════════════

// SessionInfo - минимальный срез данных сессии, необходимый для вычисления
// прогресса: идентификатор и момент начала. Слой приложения строит его из
// полной сущности сессии, чтобы домены не зависели друг от друга.
type SessionInfo struct {
	// ID - идентификатор сессии.
	ID string

	// StartsAt - момент начала сессии. Календарный день сессии - это день
	// StartsAt в его собственной временной зоне.
	StartsAt time.Time
}

// ProgressSummary - вычисленный прогресс одного студента по событию.
// Производная величина: никогда не хранится как источник истины,
// пересчитывается из расписания и отметок.
type ProgressSummary struct {
	// Kind - вид стратегии, по которой считался прогресс.
	Kind Kind

	// AttendedCount - сколько единиц учёта посещено.
	AttendedCount int

	// RequiredUnitCount - сколько единиц учёта требуется всего.
	RequiredUnitCount int

	// Percentage - процент посещаемости, целое число 0-100,
	// округление математическое (половина от нуля).
	Percentage int

	// IsEligible - выполнено ли условие зачёта стратегии.
	IsEligible bool

	// IsOnTrack - укладывается ли студент в порог. Для стратегий с порогом
	// это сравнение процента с MinimumPercentage, для остальных совпадает
	// с IsEligible.
	IsOnTrack bool

	// EvaluatedAt - момент, на который считался прогресс (инжектированное
	// время вызова, не чтение часов внутри вычислителя).
	EvaluatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// STRATEGY DISPATCH TABLE
// ══════════════════════════════════════════════════════════════════════════════

// evaluateFunc считает пару (посещено, требуется) для одного вида стратегии.
type evaluateFunc func(cfg *StrategyConfig, sessions []SessionInfo, marked MarkSet) (attended, required int)

// evaluators - таблица диспетчеризации по виду стратегии. Добавление нового
// вида - это новая строка здесь плюс константа Kind, ничего больше.
var evaluators = map[Kind]evaluateFunc{
	KindSingleMark:     evaluateSingleMark,
	KindSessionBased:   evaluateSessionShare,
	KindContinuous:     evaluateSessionShare,
	KindDayBased:       evaluateDayShare,
	KindMilestoneBased: evaluateMilestones,
}

// Evaluate вычисляет прогресс студента по событию. Чистая функция:
// одинаковые входы всегда дают одинаковый результат, часы и I/O не
// используются. Пустое расписание валидно и даёт нулевой прогресс.
func Evaluate(cfg *StrategyConfig, sessions []SessionInfo, marked MarkSet, now time.Time) (ProgressSummary, error) {
	if cfg == nil {
		return ProgressSummary{}, ErrNilConfig
	}

	fn, ok := evaluators[cfg.Kind]
	if !ok {
		return ProgressSummary{}, ErrUnknownStrategy
	}

	attended, required := fn(cfg, sessions, marked)
	percentage := roundPercentage(attended, required)

	summary := ProgressSummary{
		Kind:              cfg.Kind,
		AttendedCount:     attended,
		RequiredUnitCount: required,
		Percentage:        percentage,
		EvaluatedAt:       now,
	}

	// Нулевое требование: зачёта нет, но и ошибки деления нет.
	if required == 0 {
		return summary, nil
	}

	switch cfg.Kind {
	case KindSingleMark:
		summary.IsEligible = attended >= 1
	case KindMilestoneBased:
		// Все обязательные сессии, частичный зачёт не предусмотрен.
		summary.IsEligible = attended == required
	default:
		summary.IsEligible = percentage >= cfg.MinimumPercentage
	}

	if cfg.Kind.RequiresThreshold() {
		summary.IsOnTrack = percentage >= cfg.MinimumPercentage
	} else {
		summary.IsOnTrack = summary.IsEligible
	}

	return summary, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PER-KIND EVALUATORS
// ══════════════════════════════════════════════════════════════════════════════

// evaluateSingleMark: единица учёта - всё событие целиком. Достаточно любой
// отметки по событию, даже если её сессия уже выбыла из расписания.
func evaluateSingleMark(_ *StrategyConfig, _ []SessionInfo, marked MarkSet) (int, int) {
	if marked.Len() > 0 {
		return 1, 1
	}
	return 0, 1
}

// evaluateSessionShare: единица учёта - сессия. Засчитываются только отметки
// на сессиях текущего расписания; отметки на выбывших сессиях игнорируются.
func evaluateSessionShare(_ *StrategyConfig, sessions []SessionInfo, marked MarkSet) (int, int) {
	attended := 0
	for _, s := range sessions {
		if marked.Contains(s.ID) {
			attended++
		}
	}
	return attended, len(sessions)
}

// evaluateDayShare: единица учёта - календарный день. День сессии - день её
// начала в собственной зоне; посещённые дни выводятся из отмеченных сессий,
// а не из момента отметки, поэтому посещённые дни всегда подмножество
// требуемых.
func evaluateDayShare(_ *StrategyConfig, sessions []SessionInfo, marked MarkSet) (int, int) {
	requiredDays := make(map[string]struct{}, len(sessions))
	attendedDays := make(map[string]struct{})

	for _, s := range sessions {
		day := timeutil.DayKey(s.StartsAt)
		requiredDays[day] = struct{}{}
		if marked.Contains(s.ID) {
			attendedDays[day] = struct{}{}
		}
	}

	return len(attendedDays), len(requiredDays)
}

// evaluateMilestones: единица учёта - обязательная сессия из конфигурации.
func evaluateMilestones(cfg *StrategyConfig, _ []SessionInfo, marked MarkSet) (int, int) {
	attended := 0
	for _, id := range cfg.MandatorySessionIDs {
		if marked.Contains(id) {
			attended++
		}
	}
	return attended, len(cfg.MandatorySessionIDs)
}

// roundPercentage возвращает целый процент с математическим округлением.
func roundPercentage(attended, required int) int {
	if required == 0 {
		return 0
	}
	return int(math.Round(100 * float64(attended) / float64(required)))
}
