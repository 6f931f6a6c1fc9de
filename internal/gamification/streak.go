// Package gamification — чистое ядро геймификации: серии, уровни и достижения.
// Здесь нет ввода-вывода и обращений к часам: «сегодня» всегда передаёт вызывающий.
//
// streak.go считает серии (стрики) по множеству дат выполнения привычки.
package gamification

import (
	"sort"

	"cloud.google.com/go/civil"
)

// NormalizeDates приводит множество дат к каноническому виду:
// по возрастанию, без повторов и без невалидных дат. Исходный срез не меняется.
func NormalizeDates(dates []civil.Date) []civil.Date {
	out := make([]civil.Date, 0, len(dates))
	for _, d := range dates {
		if d.IsValid() && d.Year >= 1 {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })

	// Схлопываем дубликаты на месте
	uniq := out[:0]
	for i, d := range out {
		if i > 0 && d == out[i-1] {
			continue
		}
		uniq = append(uniq, d)
	}
	return uniq
}

// CurrentStreak возвращает текущую серию на дату ref.
//
// Алгоритм:
//  1. Берём самую позднюю дату выполнения.
//  2. Если это ref — считаем от ref, если ref-1 — от ref-1 (сегодня ещё не отмечено).
//  3. Иначе серия прервана: 0. Сюда же попадает дата позже ref.
//  4. Идём назад по дням, пока даты идут подряд.
func CurrentStreak(dates []civil.Date, ref civil.Date) int {
	sorted := NormalizeDates(dates)
	if len(sorted) == 0 {
		return 0
	}

	var anchor civil.Date
	switch latest := sorted[len(sorted)-1]; latest {
	case ref:
		anchor = ref
	case ref.AddDays(-1):
		anchor = ref.AddDays(-1)
	default:
		return 0
	}

	streak := 0
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i] != anchor.AddDays(-streak) {
			break
		}
		streak++
	}
	return streak
}

// LongestStreak возвращает самую длинную серию подряд идущих дней за всю историю.
func LongestStreak(dates []civil.Date) int {
	sorted := NormalizeDates(dates)
	best, run := 0, 0
	for i, d := range sorted {
		if i > 0 && d == sorted[i-1].AddDays(1) {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}

// ToggleDate убирает дату из множества, если она там есть, и добавляет, если нет.
// Результат всегда канонический, поэтому двойной toggle возвращает исходное множество.
func ToggleDate(dates []civil.Date, d civil.Date) []civil.Date {
	sorted := NormalizeDates(dates)
	if i, ok := findDate(sorted, d); ok {
		return append(sorted[:i:i], sorted[i+1:]...)
	}
	return NormalizeDates(append(sorted, d))
}

// AddDate добавляет дату в множество. Повторное добавление ничего не меняет.
func AddDate(dates []civil.Date, d civil.Date) []civil.Date {
	sorted := NormalizeDates(dates)
	if _, ok := findDate(sorted, d); ok {
		return sorted
	}
	return NormalizeDates(append(sorted, d))
}

// ContainsDate сообщает, есть ли дата в множестве.
func ContainsDate(dates []civil.Date, d civil.Date) bool {
	for _, x := range dates {
		if x == d {
			return true
		}
	}
	return false
}

// LastDate возвращает самую позднюю дату множества.
func LastDate(dates []civil.Date) (civil.Date, bool) {
	sorted := NormalizeDates(dates)
	if len(sorted) == 0 {
		return civil.Date{}, false
	}
	return sorted[len(sorted)-1], true
}

// findDate ищет дату в отсортированном срезе бинарным поиском.
func findDate(sorted []civil.Date, d civil.Date) (int, bool) {
	i := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Before(d) })
	return i, i < len(sorted) && sorted[i] == d
}
