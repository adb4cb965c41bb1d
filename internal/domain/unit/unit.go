// Package unit содержит доменную модель юнита курса и классификатор границ.
// Юнит - это отрезок ленты активности между двумя сменами темы курса.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package unit

import (
	"time"

	"github.com/pacewise/course-tracker/internal/domain/session"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEGMENTATION MODE (Режим сегментации)
// ══════════════════════════════════════════════════════════════════════════════

// SegmentationMode определяет, каким правилом была получена граница юнита.
// Режим выбирается ровно в одном месте (ModeFor) и записывается в каждый
// юнит, чтобы вызывающий код не смешивал несовместимые режимы при усреднении.
type SegmentationMode string

const (
	// ModeLegacy - границы по первым упоминаниям имени юнита в ленте.
	ModeLegacy SegmentationMode = "legacy"

	// ModeFixedRatio - границы по фиксированному числу уроков на юнит.
	// Используется после того, как лента перестала надёжно помечать юниты.
	ModeFixedRatio SegmentationMode = "fixed_ratio"
)

// IsValid проверяет корректность режима.
func (m SegmentationMode) IsValid() bool {
	return m == ModeLegacy || m == ModeFixedRatio
}

// String возвращает строковое представление режима.
func (m SegmentationMode) String() string {
	return string(m)
}

// ModeFor возвращает режим сегментации, действующий для сессии с данным
// временем. Чистая функция: единственное место, где принимается решение о
// режиме. Нулевое время перехода означает, что действует только legacy-режим.
func ModeFor(t time.Time, transition time.Time) SegmentationMode {
	if transition.IsZero() || t.Before(transition) {
		return ModeLegacy
	}
	return ModeFixedRatio
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT (Юнит курса)
// ══════════════════════════════════════════════════════════════════════════════

// UnassignedUnitName - имя синтетического юнита для сессий, у которых не
// нашлось ни одного упоминания темы.
const UnassignedUnitName = "Unassigned"

// Unit представляет один юнит курса: именованную группу подряд идущих сессий.
type Unit struct {
	// Name - имя юнита из ленты или синтетическое ("Unit 17") в
	// fixed-ratio режиме.
	Name string

	// StartTimestamp - время первой сессии юнита.
	StartTimestamp time.Time

	// EndTimestamp - время первой сессии СЛЕДУЮЩЕГО юнита (исключающая
	// граница). Нулевое, пока юнит открыт.
	EndTimestamp time.Time

	// LessonCount - число уроков в юните. Каждая сессия считается уроком.
	LessonCount int

	// IsOpen - юнит ещё идёт: его закрывающая граница не наблюдалась.
	// Последний юнит последовательности всегда открыт.
	IsOpen bool

	// Mode - режим сегментации, породивший этот юнит.
	Mode SegmentationMode

	// ReliableBoundary - обе границы юнита настоящие. False, когда начало
	// восстановлено по немаркированным сессиям или юнит закрыт сменой
	// режима, а не сменой темы.
	ReliableBoundary bool

	// Excluded - имя юнита входит в список исключений плана курса
	// (рекламные и служебные "юниты" ленты).
	Excluded bool

	// EligibleForAverage - юнит участвует в усреднении уроков на юнит.
	// Открытые юниты, юниты до даты отсечки и юниты с ненадёжными
	// границами исключаются, но остаются в списке для отображения.
	EligibleForAverage bool

	// Sessions - сессии юнита в хронологическом порядке.
	Sessions []session.Session
}

// Duration возвращает длительность закрытого юнита. Для открытого юнита
// возвращает время от начала до последней сессии.
func (u Unit) Duration() time.Duration {
	if u.IsOpen {
		if len(u.Sessions) == 0 {
			return 0
		}
		return u.Sessions[len(u.Sessions)-1].Timestamp.Sub(u.StartTimestamp)
	}
	return u.EndTimestamp.Sub(u.StartTimestamp)
}

// Contains проверяет, попадает ли время в границы юнита.
func (u Unit) Contains(t time.Time) bool {
	if t.Before(u.StartTimestamp) {
		return false
	}
	if u.IsOpen {
		return true
	}
	return t.Before(u.EndTimestamp)
}
