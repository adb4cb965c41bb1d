// Package tracking содержит сохраняемое состояние трекера и логику дневного
// цикла. Состояние - единственные данные, которые переживают запуск: всё
// остальное пересчитывается из ленты активности заново.
package tracking

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

const (
	// SchemaVersion - текущая версия схемы состояния.
	SchemaVersion = "1.1"

	// SchemaVersionLegacy - версия, приписываемая файлам без поля версии.
	SchemaVersionLegacy = "1.0"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE (Состояние трекера)
// ══════════════════════════════════════════════════════════════════════════════

// State представляет сохраняемое состояние трекера между запусками.
type State struct {
	// SchemaVersion - версия схемы этого документа.
	SchemaVersion string

	// TrackingStartDate - дата начала отслеживания цели.
	TrackingStartDate time.Time

	// CompletedUnitNames - имена завершённых юнитов на момент последнего
	// запуска. Пересчитываются каждый запуск, хранятся для отчёта.
	CompletedUnitNames []string

	// DailyLessonsCompleted - уроков выполнено сегодня. Обнуляется при
	// смене даты.
	DailyLessonsCompleted int

	// LastDailyResetDate - дата последнего обнуления дневного счётчика.
	LastDailyResetDate time.Time

	// LastNotificationTimestamp - время последнего отправленного
	// уведомления. Нулевое время означает "ещё не уведомляли".
	LastNotificationTimestamp time.Time

	// TotalLifetimeLessons - уроков за всё время наблюдения.
	TotalLifetimeLessons int

	// CreatedAt - когда состояние было создано впервые.
	CreatedAt time.Time

	// MigrationHistory - применённые миграции схемы, по порядку.
	MigrationHistory []string

	// RecoveredFromDefault - состояние создано заново из-за отсутствия
	// или неисправимой порчи файла. Не сохраняется.
	RecoveredFromDefault bool `json:"-"`

	// RecoveredFromBackup - состояние восстановлено из резервной копии.
	// Не сохраняется.
	RecoveredFromBackup bool `json:"-"`
}

// NewDefaultState возвращает свежее состояние для новой установки.
func NewDefaultState(trackingStart, now time.Time) *State {
	return &State{
		SchemaVersion:     SchemaVersion,
		TrackingStartDate: trackingStart,
		CreatedAt:         now,
	}
}

// Validate возвращает список нарушений инвариантов. Пустой список означает
// корректное состояние. Валидация не бросает ошибок: решение, что делать с
// нарушениями, принимает вызывающий код.
func (s *State) Validate() []string {
	var violations []string

	if s.SchemaVersion == "" {
		violations = append(violations, "schema_version is empty")
	} else if s.SchemaVersion != SchemaVersion && s.SchemaVersion != SchemaVersionLegacy {
		violations = append(violations, fmt.Sprintf("unsupported schema_version %q", s.SchemaVersion))
	}
	if s.TrackingStartDate.IsZero() {
		violations = append(violations, "tracking_start_date is not set")
	}
	if s.DailyLessonsCompleted < 0 {
		violations = append(violations, fmt.Sprintf("daily_lessons_completed is negative (%d)", s.DailyLessonsCompleted))
	}
	if s.TotalLifetimeLessons < 0 {
		violations = append(violations, fmt.Sprintf("total_lifetime_lessons is negative (%d)", s.TotalLifetimeLessons))
	}
	for _, name := range s.CompletedUnitNames {
		if name == "" {
			violations = append(violations, "completed_unit_names contains an empty name")
			break
		}
	}
	return violations
}

// IsValid сообщает, что нарушений нет.
func (s *State) IsValid() bool {
	return len(s.Validate()) == 0
}

// Clone возвращает глубокую копию состояния.
func (s *State) Clone() *State {
	c := *s
	if s.CompletedUnitNames != nil {
		c.CompletedUnitNames = append([]string(nil), s.CompletedUnitNames...)
	}
	if s.MigrationHistory != nil {
		c.MigrationHistory = append([]string(nil), s.MigrationHistory...)
	}
	return &c
}

// AddLessons учитывает свежие уроки в дневном и пожизненном счётчиках.
// Отрицательные значения игнорируются.
func (s *State) AddLessons(n int) {
	if n <= 0 {
		return
	}
	s.DailyLessonsCompleted += n
	s.TotalLifetimeLessons += n
}

// MarkNotified запоминает время отправленного уведомления.
func (s *State) MarkNotified(now time.Time) {
	s.LastNotificationTimestamp = now
}
