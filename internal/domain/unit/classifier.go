package unit

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pacewise/course-tracker/internal/domain/session"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFIER CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// Config настраивает классификатор границ юнитов.
type Config struct {
	// FoldThreshold - минимальный размер юнита. Юниты меньше порога
	// сворачиваются в соседей (шум ленты: повторения, реклама).
	FoldThreshold int

	// FixedLessonsPerUnit - размер юнита в fixed-ratio режиме.
	FixedLessonsPerUnit int

	// ModeTransition - момент смены режима сегментации. Нулевое время
	// означает, что fixed-ratio режим не наступает никогда.
	ModeTransition time.Time

	// AveragingCutoff - юниты, начавшиеся раньше, не участвуют в
	// усреднении (данные до этой даты считаются неполными).
	AveragingCutoff time.Time

	// ExcludedNames - имена юнитов, исключённые планом курса.
	// Ключи в нижнем регистре.
	ExcludedNames map[string]struct{}
}

// DefaultConfig возвращает конфигурацию классификатора по умолчанию.
func DefaultConfig() Config {
	return Config{
		FoldThreshold:       8,
		FixedLessonsPerUnit: 31,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFIER
// ══════════════════════════════════════════════════════════════════════════════

// Classifier разбивает последовательность сессий на юниты.
//
// Правило legacy-режима: первая сессия с ещё не встречавшимся именем юнита
// открывает новый юнит; все последующие сессии (включая немаркированные)
// принадлежат ему до следующего первого упоминания. Повторное упоминание
// уже известного имени границей не является.
//
// Инвариант разбиения: конкатенация юнитов восстанавливает исходную
// последовательность сессий - каждая сессия попадает ровно в один юнит.
type Classifier struct {
	cfg Config
}

// NewClassifier создаёт классификатор, нормализуя конфигурацию.
func NewClassifier(cfg Config) *Classifier {
	def := DefaultConfig()
	if cfg.FoldThreshold < 1 {
		cfg.FoldThreshold = def.FoldThreshold
	}
	if cfg.FixedLessonsPerUnit < 1 {
		cfg.FixedLessonsPerUnit = def.FixedLessonsPerUnit
	}
	return &Classifier{cfg: cfg}
}

// Result - итог классификации одной последовательности сессий.
type Result struct {
	// Units - юниты в хронологическом порядке.
	Units []Unit

	// Folded - сколько мелких юнитов было свёрнуто в соседей.
	Folded int

	// AmbiguousFolds - имена свёрнутых юнитов, упомянутых в ленте ровно
	// один раз. Такое сворачивание неоднозначно и заслуживает записи в лог.
	AmbiguousFolds []string
}

// Classify разбивает сессии на юниты. Пустой вход даёт пустой результат,
// ошибок не бывает: плохие данные отсеяны нормализацией раньше.
func (c *Classifier) Classify(sessions []session.Session) Result {
	if len(sessions) == 0 {
		return Result{}
	}

	// Хронологический порядок; стабильная сортировка сохраняет порядок
	// входа для одновременных сессий.
	ordered := make([]session.Session, len(sessions))
	copy(ordered, sessions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	// Режим выбирается один раз для каждой сессии, по её времени.
	split := len(ordered)
	for i, s := range ordered {
		if ModeFor(s.Timestamp, c.cfg.ModeTransition) == ModeFixedRatio {
			split = i
			break
		}
	}
	legacy, fixed := ordered[:split], ordered[split:]

	units, hintCount := c.segmentLegacy(legacy)

	// Смена режима закрывает текущий legacy-юнит. Его размер усечён
	// переходом, поэтому граница считается ненадёжной.
	if len(fixed) > 0 && len(units) > 0 {
		last := &units[len(units)-1]
		last.IsOpen = false
		last.EndTimestamp = c.cfg.ModeTransition
		last.ReliableBoundary = false
	}

	units, folded, ambiguous := c.fold(units, hintCount)
	units = append(units, c.segmentFixed(fixed, len(units))...)

	c.markEligibility(units)

	return Result{Units: units, Folded: folded, AmbiguousFolds: ambiguous}
}

// segmentLegacy выполняет сегментацию по первым упоминаниям. Возвращает
// юниты и счётчик упоминаний каждого имени (для флага неоднозначности).
func (c *Classifier) segmentLegacy(sessions []session.Session) ([]Unit, map[string]int) {
	hintCount := make(map[string]int)
	if len(sessions) == 0 {
		return nil, hintCount
	}

	var (
		units   []Unit
		current *Unit
		pending []session.Session
		seen    = make(map[string]bool)
	)

	for _, s := range sessions {
		key := strings.ToLower(s.UnitHint)
		if s.HasUnitHint() {
			hintCount[key]++
		}

		if s.HasUnitHint() && !seen[key] {
			// Первое упоминание открывает новый юнит.
			seen[key] = true
			if current != nil {
				current.EndTimestamp = s.Timestamp
				current.IsOpen = false
			}
			units = append(units, Unit{
				Name:             s.UnitHint,
				StartTimestamp:   s.Timestamp,
				Mode:             ModeLegacy,
				ReliableBoundary: true,
				Excluded:         c.isExcluded(key),
			})
			current = &units[len(units)-1]

			// Немаркированные сессии до первого упоминания относятся к
			// первому юниту, но делают его начало ненадёжным.
			if len(pending) > 0 {
				current.StartTimestamp = pending[0].Timestamp
				current.ReliableBoundary = false
				current.Sessions = append(current.Sessions, pending...)
				current.LessonCount = len(pending)
				pending = nil
			}
			current.Sessions = append(current.Sessions, s)
			current.LessonCount++
			continue
		}

		if current == nil {
			pending = append(pending, s)
			continue
		}

		// Немаркированная сессия или повторное упоминание: сессия
		// принадлежит текущему юниту.
		current.Sessions = append(current.Sessions, s)
		current.LessonCount++
	}

	if current != nil {
		current.IsOpen = true
		return units, hintCount
	}

	// Ни одного упоминания во всей последовательности.
	return []Unit{{
		Name:           UnassignedUnitName,
		StartTimestamp: pending[0].Timestamp,
		LessonCount:    len(pending),
		IsOpen:         true,
		Mode:           ModeLegacy,
		Sessions:       pending,
	}}, hintCount
}

// fold сворачивает юниты меньше порога в непосредственного предшественника,
// пока таких не останется или не останется один юнит. Первый юнит, которому
// сворачиваться назад некуда, сворачивается вперёд в преемника. Открытый
// юнит не сворачивается: он ещё растёт.
func (c *Classifier) fold(units []Unit, hintCount map[string]int) ([]Unit, int, []string) {
	folded := 0
	var ambiguous []string

	for len(units) > 1 {
		idx := -1
		for i := range units {
			if units[i].IsOpen || units[i].LessonCount >= c.cfg.FoldThreshold {
				continue
			}
			idx = i
			break
		}
		if idx == -1 {
			break
		}

		victim := units[idx]
		if hintCount[strings.ToLower(victim.Name)] == 1 {
			ambiguous = append(ambiguous, victim.Name)
		}

		if idx == 0 {
			units[1] = mergeForward(victim, units[1])
			units = units[1:]
		} else {
			units[idx-1] = mergeBack(units[idx-1], victim)
			units = append(units[:idx], units[idx+1:]...)
		}
		folded++
	}
	return units, folded, ambiguous
}

// mergeBack присоединяет юнит к предшественнику. Предшественник сохраняет
// имя и начало, перенимает конец жертвы.
func mergeBack(prev, victim Unit) Unit {
	prev.Sessions = append(prev.Sessions, victim.Sessions...)
	prev.LessonCount += victim.LessonCount
	prev.EndTimestamp = victim.EndTimestamp
	prev.IsOpen = victim.IsOpen
	prev.ReliableBoundary = prev.ReliableBoundary && victim.ReliableBoundary
	return prev
}

// mergeForward присоединяет юнит к преемнику. Преемник сохраняет имя и
// конец, перенимает начало жертвы.
func mergeForward(victim, next Unit) Unit {
	next.Sessions = append(append([]session.Session(nil), victim.Sessions...), next.Sessions...)
	next.LessonCount += victim.LessonCount
	next.StartTimestamp = victim.StartTimestamp
	next.ReliableBoundary = next.ReliableBoundary && victim.ReliableBoundary
	return next
}

// segmentFixed нарезает сессии fixed-ratio режима на юниты фиксированного
// размера. Последний юнит всегда открыт, даже полный: его завершение
// признаётся только с приходом первого урока следующего юнита.
func (c *Classifier) segmentFixed(sessions []session.Session, offset int) []Unit {
	if len(sessions) == 0 {
		return nil
	}

	ratio := c.cfg.FixedLessonsPerUnit
	var units []Unit
	for start := 0; start < len(sessions); start += ratio {
		end := min(start+ratio, len(sessions))
		chunk := append([]session.Session(nil), sessions[start:end]...)

		u := Unit{
			Name:             fmt.Sprintf("Unit %d", offset+len(units)+1),
			StartTimestamp:   chunk[0].Timestamp,
			LessonCount:      len(chunk),
			Mode:             ModeFixedRatio,
			ReliableBoundary: true,
			Sessions:         chunk,
		}
		if end < len(sessions) {
			u.EndTimestamp = sessions[end].Timestamp
		} else {
			u.IsOpen = true
		}
		units = append(units, u)
	}
	return units
}

// markEligibility проставляет участие в усреднении. Открытые юниты, юниты
// с ненадёжными границами, исключённые планом и юниты до даты отсечки в
// усреднение не входят, но остаются в списке для отображения.
func (c *Classifier) markEligibility(units []Unit) {
	for i := range units {
		u := &units[i]
		u.EligibleForAverage = !u.IsOpen &&
			u.ReliableBoundary &&
			!u.Excluded &&
			(c.cfg.AveragingCutoff.IsZero() || !u.StartTimestamp.Before(c.cfg.AveragingCutoff))
	}
}

func (c *Classifier) isExcluded(key string) bool {
	_, ok := c.cfg.ExcludedNames[key]
	return ok
}
