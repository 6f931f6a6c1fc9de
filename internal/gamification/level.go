// Package gamification — level.go переводит накопленный опыт (XP) в уровень.
package gamification

import (
	"fmt"
	"sort"
)

// DefaultXPPerCompletion — сколько опыта даёт одно новое выполнение привычки.
const DefaultXPPerCompletion int64 = 15

// DefaultThresholds — минимальный опыт для уровней 1..9.
var DefaultThresholds = []int64{0, 100, 250, 500, 1000, 1750, 2500, 5000, 10000}

// LevelTable — проверенная таблица порогов.
// thresholds[k] — минимальный опыт, чтобы быть на уровне k+1.
type LevelTable struct {
	thresholds []int64
}

// Progress — уровень и прогресс до следующего.
type Progress struct {
	Level          int    `json:"level"`
	XP             int64  `json:"xp"`
	XPIntoLevel    int64  `json:"xpIntoLevel"`    // Сколько набрано внутри текущего уровня
	XPForNextLevel *int64 `json:"xpForNextLevel"` // Ширина текущего уровня; nil на максимальном
	MaxLevel       bool   `json:"maxLevel"`
}

// NewLevelTable проверяет пороги и создаёт таблицу.
// Таблица должна быть непустой, начинаться с 0 и строго возрастать.
func NewLevelTable(thresholds []int64) (*LevelTable, error) {
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("%w: пустая таблица", ErrInvalidThresholdTable)
	}
	if thresholds[0] != 0 {
		return nil, fmt.Errorf("%w: первый порог %d, ожидается 0", ErrInvalidThresholdTable, thresholds[0])
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return nil, fmt.Errorf("%w: порог %d (%d) не больше предыдущего (%d)",
				ErrInvalidThresholdTable, i, thresholds[i], thresholds[i-1])
		}
	}

	cp := make([]int64, len(thresholds))
	copy(cp, thresholds)
	return &LevelTable{thresholds: cp}, nil
}

// MustLevelTable — как NewLevelTable, но паникует. Только для заранее известных таблиц.
func MustLevelTable(thresholds []int64) *LevelTable {
	t, err := NewLevelTable(thresholds)
	if err != nil {
		panic(err)
	}
	return t
}

// MaxLevel возвращает последний уровень таблицы.
func (t *LevelTable) MaxLevel() int { return len(t.thresholds) }

// Thresholds возвращает копию порогов.
func (t *LevelTable) Thresholds() []int64 {
	cp := make([]int64, len(t.thresholds))
	copy(cp, t.thresholds)
	return cp
}

// Unreachable возвращает id достижений, которые требуют уровень выше последнего.
func (t *LevelTable) Unreachable(catalog []Achievement) []string {
	var ids []string
	for _, a := range catalog {
		if a.Predicate.Kind == KindLevelAtLeast && a.Predicate.Threshold > int64(t.MaxLevel()) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// Level возвращает наибольший L, для которого xp >= thresholds[L-1].
// Выше последнего порога уровень не растёт.
func (t *LevelTable) Level(xp int64) int {
	// Первый порог, который строго больше xp
	idx := sort.Search(len(t.thresholds), func(i int) bool { return t.thresholds[i] > xp })
	if idx == 0 {
		return 1
	}
	return idx
}

// LevelFor считает уровень и прогресс для опыта xp.
func (t *LevelTable) LevelFor(xp int64) (Progress, error) {
	if xp < 0 {
		return Progress{}, fmt.Errorf("%w: %d", ErrNegativeXP, xp)
	}

	level := t.Level(xp)
	p := Progress{
		Level:       level,
		XP:          xp,
		XPIntoLevel: xp - t.thresholds[level-1],
	}
	if level == t.MaxLevel() {
		p.MaxLevel = true
		return p, nil
	}

	width := t.thresholds[level] - t.thresholds[level-1]
	p.XPForNextLevel = &width
	return p, nil
}

// LevelFor — разовый расчёт без заранее созданной таблицы.
func LevelFor(xp int64, thresholds []int64) (Progress, error) {
	t, err := NewLevelTable(thresholds)
	if err != nil {
		return Progress{}, err
	}
	return t.LevelFor(xp)
}
