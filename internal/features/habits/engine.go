// Package habits — engine.go содержит чистые переходы состояния.
//
// Каждая операция работает на копии состояния и проходит один и тот же путь:
// изменение → пересчёт серий и начисление опыта → уровень из опыта →
// проверка достижений. Движок не ходит в базу и не смотрит на часы:
// «сегодня» передаёт сервис.
package habits

import (
	"reflect"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"serotonyl.ru/habit-tracker/internal/common"
	"serotonyl.ru/habit-tracker/internal/gamification"
)

// Engine применяет операции к состоянию пользователя.
type Engine struct {
	levels          *gamification.LevelTable
	catalog         []gamification.Achievement
	xpPerCompletion int64
	newID           func() string
}

// NewEngine создаёт движок с таблицей уровней, каталогом достижений и наградой за выполнение.
func NewEngine(levels *gamification.LevelTable, catalog []gamification.Achievement, xpPerCompletion int64) *Engine {
	return &Engine{
		levels:          levels,
		catalog:         catalog,
		xpPerCompletion: xpPerCompletion,
		newID:           uuid.NewString,
	}
}

// Levels возвращает таблицу уровней.
func (e *Engine) Levels() *gamification.LevelTable { return e.levels }

// NewState возвращает начальное состояние нового пользователя.
func (e *Engine) NewState(today civil.Date) State {
	s := State{
		Version:      StateVersion,
		Habits:       []Habit{},
		Level:        1,
		Theme:        ThemeDark,
		PrimaryColor: DefaultPrimaryColor,
	}
	s, _ = e.finalize(s, s, today, nil)
	return s
}

// Refresh пересчитывает производные поля на дату today.
// Нужен при чтении и в ежедневной задаче: серии ломаются без действий пользователя.
func (e *Engine) Refresh(s State, today civil.Date) (State, Outcome) {
	return e.finalize(s, s.Clone(), today, nil)
}

// AddHabit добавляет новую привычку.
func (e *Engine) AddHabit(s State, in HabitInput, today civil.Date, now time.Time) (State, Habit, Outcome, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateInput(in); err != nil {
		return s, Habit{}, Outcome{}, err
	}

	h := Habit{
		ID:             e.newID(),
		Name:           in.Name,
		Icon:           in.Icon,
		Description:    in.Description,
		Color:          in.Color,
		CompletedDates: []civil.Date{},
		CreatedAt:      now.UTC(),
	}
	next := s.Clone()
	next.Habits = append(next.Habits, h)

	next, out := e.finalize(s, next, today, nil)
	return next, next.Habits[len(next.Habits)-1], out, nil
}

// EditHabit меняет название, значок, описание или цвет.
// Серии и даты выполнения здесь не трогаются.
func (e *Engine) EditHabit(s State, id string, patch HabitPatch, today civil.Date) (State, Outcome, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	if err := validateInput(patch); err != nil {
		return s, Outcome{}, err
	}

	next := s.Clone()
	i := next.findHabit(id)
	if i < 0 {
		return s, Outcome{}, common.ErrHabitNotFound
	}

	h := &next.Habits[i]
	if patch.Name != nil {
		h.Name = *patch.Name
	}
	if patch.Icon != nil {
		h.Icon = *patch.Icon
	}
	if patch.Description != nil {
		h.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Color != nil {
		h.Color = *patch.Color
	}

	next, out := e.finalize(s, next, today, nil)
	return next, out, nil
}

// DeleteHabit удаляет привычку. Опыт и открытые достижения остаются.
func (e *Engine) DeleteHabit(s State, id string, today civil.Date) (State, Outcome, error) {
	next := s.Clone()
	i := next.findHabit(id)
	if i < 0 {
		return s, Outcome{}, common.ErrHabitNotFound
	}
	next.Habits = append(next.Habits[:i], next.Habits[i+1:]...)

	next, out := e.finalize(s, next, today, nil)
	return next, out, nil
}

// SetArchived архивирует или возвращает привычку из архива.
func (e *Engine) SetArchived(s State, id string, archived bool, today civil.Date) (State, Outcome, error) {
	next := s.Clone()
	i := next.findHabit(id)
	if i < 0 {
		return s, Outcome{}, common.ErrHabitNotFound
	}
	next.Habits[i].IsArchived = archived

	next, out := e.finalize(s, next, today, nil)
	return next, out, nil
}

// CompleteToday отмечает привычку выполненной сегодня.
// Повторная отметка в тот же день ничего не меняет.
func (e *Engine) CompleteToday(s State, id string, today civil.Date) (State, Outcome, error) {
	next := s.Clone()
	i := next.findHabit(id)
	if i < 0 {
		return s, Outcome{}, common.ErrHabitNotFound
	}

	h := &next.Habits[i]
	h.CompletedDates = gamification.AddDate(h.CompletedDates, today)
	awards := e.award(&next, h, today)

	next, out := e.finalize(s, next, today, awards)
	return next, out, nil
}

// ToggleCompletion добавляет или убирает дату выполнения.
//
// Дата позже today отклоняется с ErrFutureDate, состояние не меняется.
// Снятие отметки не отнимает опыт, а повторная отметка той же даты
// опыт второй раз не начисляет.
func (e *Engine) ToggleCompletion(s State, id string, date, today civil.Date) (State, Outcome, error) {
	if !date.IsValid() {
		return s, Outcome{}, common.ErrInvalidDate
	}
	if date.After(today) {
		return s, Outcome{}, common.ErrFutureDate
	}

	next := s.Clone()
	i := next.findHabit(id)
	if i < 0 {
		return s, Outcome{}, common.ErrHabitNotFound
	}

	h := &next.Habits[i]
	h.CompletedDates = gamification.ToggleDate(h.CompletedDates, date)

	var awards []Award
	if gamification.ContainsDate(h.CompletedDates, date) {
		awards = e.award(&next, h, date)
	}

	next, out := e.finalize(s, next, today, awards)
	return next, out, nil
}

// UpdateSettings меняет тему, основной цвет и аватар.
// Собственный основной цвет включает тему custom.
func (e *Engine) UpdateSettings(s State, in Settings, today civil.Date) (State, Outcome, error) {
	if err := validateInput(in); err != nil {
		return s, Outcome{}, err
	}

	next := s.Clone()
	if in.Theme != nil {
		next.Theme = *in.Theme
	}
	if in.PrimaryColor != nil {
		next.PrimaryColor = *in.PrimaryColor
		next.Theme = ThemeCustom
	}
	if in.AvatarURL != nil {
		next.AvatarURL = *in.AvatarURL
	}

	next, out := e.finalize(s, next, today, nil)
	return next, out, nil
}

// award начисляет опыт за дату, если за неё ещё не начисляли.
func (e *Engine) award(s *State, h *Habit, date civil.Date) []Award {
	if gamification.ContainsDate(h.AwardedDates, date) {
		return nil
	}
	h.AwardedDates = gamification.AddDate(h.AwardedDates, date)
	s.XP += e.xpPerCompletion
	return []Award{{HabitID: h.ID, Date: date, Amount: e.xpPerCompletion}}
}

// finalize пересчитывает все производные поля и собирает Outcome.
func (e *Engine) finalize(before, next State, today civil.Date, awards []Award) (State, Outcome) {
	next.Version = StateVersion
	if next.Habits == nil {
		next.Habits = []Habit{}
	}

	// 1. Серии
	streaks := make([]int, len(next.Habits))
	completions := 0
	for i := range next.Habits {
		h := &next.Habits[i]
		h.CompletedDates = gamification.NormalizeDates(h.CompletedDates)
		h.Streak = gamification.CurrentStreak(h.CompletedDates, today)
		h.BestStreak = gamification.LongestStreak(h.CompletedDates)
		h.LastCompleted = nil
		if last, ok := gamification.LastDate(h.CompletedDates); ok {
			h.LastCompleted = &last
		}
		streaks[i] = h.Streak
		completions += len(h.CompletedDates)
	}

	// 2. Уровень
	levelBefore := e.levels.Level(before.XP)
	next.Level = e.levels.Level(next.XP)

	// 3. Достижения
	achs := gamification.MergeCatalog(e.catalog, next.Achievements)
	eval := gamification.EvaluateAchievements(achs, gamification.Snapshot{
		Streaks:          streaks,
		HabitCount:       len(next.Habits),
		Level:            next.Level,
		XP:               next.XP,
		TotalCompletions: completions,
		Today:            today,
	})
	next.Achievements = eval.Achievements

	on := today
	next.RefreshedOn = &on

	out := Outcome{
		Awards:      awards,
		LevelBefore: levelBefore,
		LevelAfter:  next.Level,
		LeveledUp:   next.Level > levelBefore,
		Unlocked:    eval.Unlocked,
		Errors:      eval.Errors,
	}
	for _, a := range awards {
		out.XPAwarded += a.Amount
	}
	out.Changed = !reflect.DeepEqual(before, next)
	return next, out
}
