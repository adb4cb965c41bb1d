package tracking

import (
	"time"

	"github.com/pacewise/course-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY CYCLE (Дневной цикл)
// ══════════════════════════════════════════════════════════════════════════════

// DayPhase - отношение текущего момента к дневному счётчику.
type DayPhase string

const (
	// PhaseWithinDay - дата не менялась, счётчик продолжает расти.
	PhaseWithinDay DayPhase = "WITHIN_DAY"

	// PhaseDayRolledOver - наступил новый день, счётчик обнулён.
	PhaseDayRolledOver DayPhase = "DAY_ROLLED_OVER"
)

// DefaultNotificationThrottle - минимальный интервал между уведомлениями
// при отсутствии новой активности.
const DefaultNotificationThrottle = 150 * time.Minute

// CycleManager управляет сменой дня и дросселированием уведомлений.
//
// Менеджер меняет состояние только в памяти: обнуление счётчика и новая
// дата сброса попадают на диск одной записью вместе с остальными
// изменениями запуска. Частично применённой смены дня не бывает.
type CycleManager struct {
	throttle time.Duration
}

// NewCycleManager создаёт менеджер дневного цикла. Неположительный интервал
// заменяется значением по умолчанию.
func NewCycleManager(throttle time.Duration) *CycleManager {
	if throttle <= 0 {
		throttle = DefaultNotificationThrottle
	}
	return &CycleManager{throttle: throttle}
}

// Throttle возвращает действующий интервал дросселирования.
func (m *CycleManager) Throttle() time.Duration {
	return m.throttle
}

// RollDay сверяет дату с датой последнего сброса. При смене дня обнуляет
// дневной счётчик и запоминает новую дату сброса, возвращая
// PhaseDayRolledOver. Нулевая дата сброса (свежее состояние) тоже считается
// сменой дня.
func (m *CycleManager) RollDay(st *State, now time.Time) DayPhase {
	if !st.LastDailyResetDate.IsZero() && timeutil.IsSameDay(st.LastDailyResetDate, now) {
		return PhaseWithinDay
	}
	st.DailyLessonsCompleted = 0
	st.LastDailyResetDate = timeutil.StartOfDay(now)
	return PhaseDayRolledOver
}

// ShouldNotify решает, можно ли отправить уведомление, и при положительном
// решении сразу ставит отметку времени в состоянии.
//
// Новая активность уведомляется всегда. Без неё уведомление проходит,
// только когда с прошлого прошло больше интервала дросселирования.
// Нулевая отметка (потерянная или испорченная) значит "ещё не уведомляли"
// и уведомление разрешается.
func (m *CycleManager) ShouldNotify(st *State, newActivity bool, now time.Time) bool {
	if newActivity {
		st.MarkNotified(now)
		return true
	}
	if st.LastNotificationTimestamp.IsZero() {
		st.MarkNotified(now)
		return true
	}
	if now.Sub(st.LastNotificationTimestamp) > m.throttle {
		st.MarkNotified(now)
		return true
	}
	return false
}
