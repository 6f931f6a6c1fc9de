// Package gamification — achievements.go проверяет условия достижений.
//
// Условие достижения хранится как данные (тип + порог) в YAML-каталоге
// и в JSON-состоянии пользователя.
// Вычисление идёт через центральную таблицу evaluators.
package gamification

import (
	"fmt"

	"cloud.google.com/go/civil"
)

// PredicateKind — тип условия достижения.
type PredicateKind string

const (
	KindStreakAtLeast      PredicateKind = "streak_at_least"      // Серия любой привычки >= N
	KindLevelAtLeast       PredicateKind = "level_at_least"       // Уровень >= N
	KindHabitCountAtLeast  PredicateKind = "habit_count_at_least" // Привычек создано >= N
	KindXPAtLeast          PredicateKind = "xp_at_least"          // Опыт >= N
	KindCompletionsAtLeast PredicateKind = "completions_at_least" // Всего выполнений >= N
)

// Predicate — условие открытия достижения.
type Predicate struct {
	Kind      PredicateKind `json:"kind" yaml:"kind" validate:"required"`
	Threshold int64         `json:"threshold" yaml:"threshold" validate:"gte=1"`
}

// StreakAtLeast — серия хотя бы одной привычки не меньше n дней.
func StreakAtLeast(n int64) Predicate { return Predicate{Kind: KindStreakAtLeast, Threshold: n} }

// LevelAtLeast — уровень не меньше n.
func LevelAtLeast(n int64) Predicate { return Predicate{Kind: KindLevelAtLeast, Threshold: n} }

// HabitCountAtLeast — у пользователя не меньше n привычек.
func HabitCountAtLeast(n int64) Predicate { return Predicate{Kind: KindHabitCountAtLeast, Threshold: n} }

// XPAtLeast — накоплено не меньше n опыта.
func XPAtLeast(n int64) Predicate { return Predicate{Kind: KindXPAtLeast, Threshold: n} }

// CompletionsAtLeast — всего отмечено не меньше n выполнений.
func CompletionsAtLeast(n int64) Predicate {
	return Predicate{Kind: KindCompletionsAtLeast, Threshold: n}
}

// Achievement — достижение и его состояние у пользователя.
type Achievement struct {
	ID          string      `json:"id" yaml:"id" validate:"required,max=64"`
	Name        string      `json:"name" yaml:"name" validate:"required"`
	Description string      `json:"description" yaml:"description"`
	Icon        string      `json:"icon,omitempty" yaml:"icon"`
	Predicate   Predicate   `json:"predicate" yaml:"predicate"`
	Unlocked    bool        `json:"unlocked" yaml:"-"`             // Открывается один раз и навсегда
	UnlockedOn  *civil.Date `json:"unlockedOn,omitempty" yaml:"-"` // Дата, когда открытие было замечено
}

// Snapshot — всё, что нужно условиям, на момент проверки.
type Snapshot struct {
	Streaks          []int // Текущие серии по каждой привычке
	HabitCount       int
	Level            int
	XP               int64
	TotalCompletions int
	Today            civil.Date
}

// MaxStreak возвращает наибольшую текущую серию.
func (s Snapshot) MaxStreak() int {
	best := 0
	for _, v := range s.Streaks {
		if v > best {
			best = v
		}
	}
	return best
}

// Evaluation — результат проверки достижений.
type Evaluation struct {
	Achievements []Achievement // Если ничего не открылось — исходный срез без копирования
	Unlocked     []string      // ID открытых в этой проверке
	Changed      bool
	Errors       []error // *PredicateError, не фатальны
}

type evaluator func(threshold int64, s Snapshot) bool

var evaluators = map[PredicateKind]evaluator{
	KindStreakAtLeast: func(n int64, s Snapshot) bool {
		for _, v := range s.Streaks {
			if int64(v) >= n {
				return true
			}
		}
		return false
	},
	KindLevelAtLeast:       func(n int64, s Snapshot) bool { return int64(s.Level) >= n },
	KindHabitCountAtLeast:  func(n int64, s Snapshot) bool { return int64(s.HabitCount) >= n },
	KindXPAtLeast:          func(n int64, s Snapshot) bool { return s.XP >= n },
	KindCompletionsAtLeast: func(n int64, s Snapshot) bool { return int64(s.TotalCompletions) >= n },
}

// KnownKind сообщает, умеет ли диспетчер считать такой тип условия.
func KnownKind(kind PredicateKind) bool {
	_, ok := evaluators[kind]
	return ok
}

// Evaluate проверяет условие на снимке состояния.
func (p Predicate) Evaluate(s Snapshot) (ok bool, err error) {
	eval, found := evaluators[p.Kind]
	if !found {
		return false, fmt.Errorf("%w: %q", ErrUnknownPredicate, p.Kind)
	}
	if p.Threshold < 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidPredicate, p.Threshold)
	}

	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("паника в условии: %v", r)
		}
	}()
	return eval(p.Threshold, s), nil
}

// EvaluateAchievements проверяет все закрытые достижения.
//
// Открытые не перепроверяются и никогда не закрываются обратно.
// Порядок не влияет на результат. Сбой одного условия не мешает остальным:
// оно попадает в Errors, а достижение остаётся закрытым.
func EvaluateAchievements(achs []Achievement, snap Snapshot) Evaluation {
	var (
		out    []Achievement
		result Evaluation
	)

	for i, a := range achs {
		if a.Unlocked {
			continue
		}

		ok, err := a.Predicate.Evaluate(snap)
		if err != nil {
			result.Errors = append(result.Errors, &PredicateError{
				AchievementID: a.ID,
				Kind:          a.Predicate.Kind,
				Err:           err,
			})
			continue
		}
		if !ok {
			continue
		}

		// Копируем срез только при первом изменении
		if out == nil {
			out = make([]Achievement, len(achs))
			copy(out, achs)
		}
		on := snap.Today
		out[i].Unlocked = true
		out[i].UnlockedOn = &on
		result.Unlocked = append(result.Unlocked, a.ID)
	}

	if out == nil {
		result.Achievements = achs
		return result
	}
	result.Achievements = out
	result.Changed = true
	return result
}

// UnlockedIDs возвращает ID всех открытых достижений.
func UnlockedIDs(achs []Achievement) []string {
	var ids []string
	for _, a := range achs {
		if a.Unlocked {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
