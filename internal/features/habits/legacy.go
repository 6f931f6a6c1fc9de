// Package habits — legacy.go читает JSON-состояние любых версий.
//
// Старые клиенты хранили у привычки только streak и lastCompleted,
// даты писали как ISO-строки со временем. Такие документы приводятся
// к текущему формату при чтении.
package habits

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/habit-tracker/internal/gamification"
)

// errEmptyState — документа нет или он пустой; вызывающий создаёт начальное состояние.
var errEmptyState = errors.New("пустое состояние")

type rawHabit struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Icon           Icon     `json:"icon"`
	Description    string   `json:"description"`
	Color          string   `json:"color"`
	CompletedDates []string `json:"completedDates"`
	AwardedDates   []string `json:"awardedDates"`
	Streak         int      `json:"streak"`
	LastCompleted  *string  `json:"lastCompleted"`
	IsArchived     bool     `json:"isArchived"`
	CreatedAt      string   `json:"createdAt"`
}

type rawState struct {
	Version      int              `json:"version"`
	Habits       []rawHabit       `json:"habits"`
	XP           *int64           `json:"xp"`
	Experience   *int64           `json:"experience"` // старое имя поля
	Achievements []rawAchievement `json:"achievements"`
	Theme        Theme            `json:"theme"`
	PrimaryColor string           `json:"primaryColor"`
	AvatarURL    *string          `json:"avatarUrl"`
	RefreshedOn  *string          `json:"refreshedOn"`
}

type rawAchievement struct {
	ID         string  `json:"id"`
	Unlocked   bool    `json:"unlocked"`
	UnlockedOn *string `json:"unlockedOn"`
}

// DecodeState разбирает сохранённый документ.
// Возвращает migrated=true, если документ был в старом формате
// и его стоит пересохранить.
func DecodeState(raw []byte) (st State, migrated bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return State{}, false, errEmptyState
	}

	var r rawState
	if err := json.Unmarshal(raw, &r); err != nil {
		return State{}, false, fmt.Errorf("ошибка разбора состояния: %w", err)
	}

	st = State{
		Version:      r.Version,
		Habits:       make([]Habit, 0, len(r.Habits)),
		Theme:        r.Theme,
		PrimaryColor: r.PrimaryColor,
	}
	switch {
	case r.XP != nil:
		st.XP = *r.XP
	case r.Experience != nil:
		st.XP = *r.Experience
		migrated = true
	}
	if st.XP < 0 {
		return State{}, false, fmt.Errorf("ошибка разбора состояния: %w", gamification.ErrNegativeXP)
	}
	if r.AvatarURL != nil {
		st.AvatarURL = *r.AvatarURL
	}
	if st.Theme == "" {
		st.Theme = ThemeDark
		migrated = true
	}
	if st.PrimaryColor == "" {
		st.PrimaryColor = DefaultPrimaryColor
		migrated = true
	}
	if r.RefreshedOn != nil {
		if d, ok := parseLooseDate(*r.RefreshedOn); ok {
			st.RefreshedOn = &d
		}
	}

	for _, rh := range r.Habits {
		h, habitMigrated := decodeHabit(rh, r.Version)
		migrated = migrated || habitMigrated
		st.Habits = append(st.Habits, h)
	}

	for _, ra := range r.Achievements {
		a := gamification.Achievement{ID: ra.ID, Unlocked: ra.Unlocked}
		if ra.UnlockedOn != nil {
			if d, ok := parseLooseDate(*ra.UnlockedOn); ok {
				a.UnlockedOn = &d
			}
		}
		st.Achievements = append(st.Achievements, a)
	}

	if st.Version < StateVersion {
		st.Version = StateVersion
		migrated = true
	}
	return st, migrated, nil
}

func decodeHabit(rh rawHabit, version int) (Habit, bool) {
	h := Habit{
		ID:          rh.ID,
		Name:        rh.Name,
		Icon:        rh.Icon,
		Description: rh.Description,
		Color:       rh.Color,
		IsArchived:  rh.IsArchived,
	}
	if t, err := time.Parse(time.RFC3339Nano, rh.CreatedAt); err == nil {
		h.CreatedAt = t.UTC()
	}

	h.CompletedDates = parseDates(rh.CompletedDates)
	h.AwardedDates = parseDates(rh.AwardedDates)

	// Старый формат: восстанавливаем серию как streak дней подряд до lastCompleted.
	// За восстановленные даты опыт уже был начислен старым клиентом.
	if version < StateVersion && len(rh.CompletedDates) == 0 && rh.LastCompleted != nil && rh.Streak > 0 {
		if last, ok := parseLooseDate(*rh.LastCompleted); ok {
			dates := legacyStreakDates(rh.ID, rh.Streak, last, h.CreatedAt)
			h.CompletedDates = dates
			h.AwardedDates = append([]civil.Date(nil), dates...)
			return h, true
		}
	}

	// В версии 0 даты из completedDates тоже считаются оплаченными
	if version < StateVersion && len(h.AwardedDates) == 0 && len(h.CompletedDates) > 0 {
		h.AwardedDates = append([]civil.Date(nil), h.CompletedDates...)
		return h, true
	}
	return h, false
}

// legacyEpoch — раньше этой даты отметок у старых клиентов быть не могло.
var legacyEpoch = civil.Date{Year: 2000, Month: time.January, Day: 1}

// maxLegacyStreak — верхняя граница восстановленной серии в днях.
const maxLegacyStreak = 100 * 366

// legacyStreakDates восстанавливает streak дней подряд, заканчивая last.
// Серия не начинается раньше legacyEpoch и дня создания привычки
// и не длиннее maxLegacyStreak; завышенный streak обрезается.
func legacyStreakDates(habitID string, streak int, last civil.Date, createdAt time.Time) []civil.Date {
	first := legacyEpoch
	if !createdAt.IsZero() {
		// Запас в день: createdAt хранится в UTC, а даты в поясе приложения
		if d := civil.DateOf(createdAt).AddDays(-1); d.After(first) {
			first = d
		}
	}
	if last.Before(first) {
		log.WithFields(log.Fields{
			"habit_id":       habitID,
			"last_completed": last.String(),
		}).Warn("Старая серия раньше допустимой даты, пропускаем")
		return nil
	}
	limit := last.DaysSince(first) + 1
	if limit > maxLegacyStreak {
		limit = maxLegacyStreak
	}
	if streak > limit {
		log.WithFields(log.Fields{
			"habit_id": habitID,
			"streak":   streak,
			"limit":    limit,
		}).Warn("Старая серия длиннее возможной, обрезаем")
		streak = limit
	}

	dates := make([]civil.Date, 0, streak)
	for i := streak - 1; i >= 0; i-- {
		dates = append(dates, last.AddDays(-i))
	}
	return dates
}

func parseDates(in []string) []civil.Date {
	out := make([]civil.Date, 0, len(in))
	for _, s := range in {
		if d, ok := parseLooseDate(s); ok {
			out = append(out, d)
		}
	}
	return gamification.NormalizeDates(out)
}

// parseLooseDate принимает "2006-01-02" и ISO-строки со временем.
func parseLooseDate(s string) (civil.Date, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	d, err := civil.ParseDate(s)
	if err != nil || !d.IsValid() {
		return civil.Date{}, false
	}
	return d, true
}

// EncodeState сериализует состояние в JSON.
func EncodeState(s State) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации состояния: %w", err)
	}
	return data, nil
}
