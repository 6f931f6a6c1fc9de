// Package habits управляет привычками пользователя и его игровым состоянием.
// models.go описывает состояние пользователя, привычки и входные данные операций.
package habits

import (
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"

	"serotonyl.ru/habit-tracker/internal/common"
	"serotonyl.ru/habit-tracker/internal/gamification"
)

// StateVersion — текущая версия формата JSON-состояния.
// Версия 0 — старый формат без completedDates (только streak + lastCompleted).
const StateVersion = 1

// Icon — значок привычки.
type Icon string

const (
	IconBook     Icon = "book"
	IconDumbbell Icon = "dumbbell"
	IconWater    Icon = "water"
	IconCode     Icon = "code"
	IconMeditate Icon = "meditate"
	IconRun      Icon = "run"
)

// Theme — тема оформления.
type Theme string

const (
	ThemeDark   Theme = "dark"
	ThemeLight  Theme = "light"
	ThemeBlue   Theme = "blue"
	ThemeCustom Theme = "custom"
)

// DefaultPrimaryColor — основной цвет для новой учётной записи.
const DefaultPrimaryColor = "#4F46E5"

// Habit — одна привычка.
// Streak, BestStreak и LastCompleted — кэш, их всегда пересчитывает Engine.
type Habit struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Icon           Icon         `json:"icon"`
	Description    string       `json:"description,omitempty"`
	Color          string       `json:"color,omitempty"`
	CompletedDates []civil.Date `json:"completedDates"`         // Канонично: по возрастанию, без повторов
	AwardedDates   []civil.Date `json:"awardedDates,omitempty"` // За эти даты опыт уже начислен
	Streak         int          `json:"streak"`
	BestStreak     int          `json:"bestStreak"`
	LastCompleted  *civil.Date  `json:"lastCompleted"`
	IsArchived     bool         `json:"isArchived"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// State — всё игровое состояние пользователя. Хранится одним JSON-документом.
type State struct {
	Version      int                        `json:"version"`
	Habits       []Habit                    `json:"habits"`
	XP           int64                      `json:"xp"`
	Level        int                        `json:"level"` // Всегда выводится из XP
	Achievements []gamification.Achievement `json:"achievements"`
	Theme        Theme                      `json:"theme"`
	PrimaryColor string                     `json:"primaryColor"`
	AvatarURL    string                     `json:"avatarUrl,omitempty"`
	RefreshedOn  *civil.Date                `json:"refreshedOn,omitempty"` // На какую дату посчитаны серии
}

// Clone возвращает глубокую копию состояния.
func (s State) Clone() State {
	out := s
	out.Habits = slices.Clone(s.Habits)
	for i := range out.Habits {
		out.Habits[i] = out.Habits[i].clone()
	}
	out.Achievements = slices.Clone(s.Achievements)
	if s.RefreshedOn != nil {
		d := *s.RefreshedOn
		out.RefreshedOn = &d
	}
	return out
}

func (h Habit) clone() Habit {
	out := h
	out.CompletedDates = slices.Clone(h.CompletedDates)
	out.AwardedDates = slices.Clone(h.AwardedDates)
	if h.LastCompleted != nil {
		d := *h.LastCompleted
		out.LastCompleted = &d
	}
	return out
}

// findHabit возвращает индекс привычки или -1.
func (s *State) findHabit(id string) int {
	for i := range s.Habits {
		if s.Habits[i].ID == id {
			return i
		}
	}
	return -1
}

// Award — начисление опыта за одно новое выполнение.
type Award struct {
	HabitID string     `json:"habitId"`
	Date    civil.Date `json:"date"`
	Amount  int64      `json:"amount"`
}

// Outcome — что изменилось после операции.
type Outcome struct {
	Changed     bool     `json:"-"` // Нужно ли сохранять состояние
	XPAwarded   int64    `json:"xpAwarded"`
	Awards      []Award  `json:"-"`
	LevelBefore int      `json:"levelBefore"`
	LevelAfter  int      `json:"levelAfter"`
	LeveledUp   bool     `json:"leveledUp"`
	Unlocked    []string `json:"unlocked"`
	Errors      []error  `json:"-"` // Сбои условий достижений
}

// View — состояние для клиента: само состояние, прогресс уровня и «сегодня».
type View struct {
	State    State                 `json:"state"`
	Progress gamification.Progress `json:"progress"`
	Today    civil.Date            `json:"today"`
}

// --- Входные данные ---

var validate = validator.New()

// HabitInput — создание привычки.
type HabitInput struct {
	Name        string `json:"name" validate:"required,max=64"`
	Icon        Icon   `json:"icon" validate:"required,oneof=book dumbbell water code meditate run"`
	Description string `json:"description" validate:"max=280"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
}

// HabitPatch — редактирование привычки. nil — поле не меняется.
type HabitPatch struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=64"`
	Icon        *Icon   `json:"icon" validate:"omitempty,oneof=book dumbbell water code meditate run"`
	Description *string `json:"description" validate:"omitempty,max=280"`
	Color       *string `json:"color" validate:"omitempty,hexcolor|len=0"` // "" убирает цвет
}

// Settings — настройки оформления. nil — поле не меняется.
type Settings struct {
	Theme        *Theme  `json:"theme" validate:"omitempty,oneof=dark light blue custom"`
	PrimaryColor *string `json:"primaryColor" validate:"omitempty,hexcolor"`
	AvatarURL    *string `json:"avatarUrl" validate:"omitempty,url|len=0,max=512"`
}

// validateInput прогоняет структуру через validator и заворачивает ошибку в ErrValidation.
func validateInput(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return nil
}
