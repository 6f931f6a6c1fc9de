// Package reminders напоминает в Telegram о сериях, которые сгорят,
// если привычку не отметить сегодня.
package reminders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/habit-tracker/internal/common"
	"serotonyl.ru/habit-tracker/internal/features/habits"
	"serotonyl.ru/habit-tracker/internal/features/users"
	"serotonyl.ru/habit-tracker/internal/metrics"
)

// Notifier доставляет текст в чат. Реализуется notify.Telegram.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// HabitSource находит привычки под угрозой. Реализуется habits.Service.
type HabitSource interface {
	AtRiskHabits(ctx context.Context, userID uuid.UUID, minStreak int) ([]habits.Habit, error)
}

// UserSource отдаёт получателей и помечает отправку. Реализуется users.Service.
type UserSource interface {
	ReminderCandidates(ctx context.Context, day civil.Date) ([]*users.User, error)
	MarkReminded(ctx context.Context, id uuid.UUID, day civil.Date) error
}

// Options — настройки напоминаний.
type Options struct {
	Threshold int // минимальная серия, о которой напоминаем
	Hour      int // раньше этого часа напоминания не отправляются
}

// Service рассылает напоминания.
type Service struct {
	habits   HabitSource
	users    UserSource
	notifier Notifier
	clock    common.Clock
	loc      *time.Location
	opts     Options
	metrics  *metrics.Metrics
}

// NewService создаёт сервис напоминаний.
func NewService(h HabitSource, u UserSource, n Notifier, clock common.Clock, loc *time.Location, opts Options, m *metrics.Metrics) *Service {
	if opts.Threshold <= 0 {
		opts.Threshold = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		habits:   h,
		users:    u,
		notifier: n,
		clock:    clock,
		loc:      loc,
		opts:     opts,
		metrics:  m,
	}
}

// SendReminders отправляет напоминания всем, у кого сегодня под угрозой серия.
// Запускается кроном каждый час. Возвращает число отправленных сообщений.
func (s *Service) SendReminders(ctx context.Context) (int, error) {
	now := s.clock.Now().In(s.loc)
	if now.Hour() < s.opts.Hour {
		return 0, nil
	}
	today := civil.DateOf(now)

	candidates, err := s.users.ReminderCandidates(ctx, today)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, u := range candidates {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if u.TelegramChatID == nil {
			continue
		}

		logger := log.WithFields(log.Fields{
			"user_id": u.ID,
			"chat_id": *u.TelegramChatID,
		})

		atRisk, err := s.habits.AtRiskHabits(ctx, u.ID, s.opts.Threshold)
		if err != nil {
			logger.WithError(err).Warn("Не удалось проверить привычки для напоминания")
			continue
		}
		if len(atRisk) == 0 {
			continue
		}

		if err := s.notifier.Send(ctx, *u.TelegramChatID, Message(atRisk)); err != nil {
			logger.WithError(err).Warn("Не удалось отправить напоминание")
			s.metrics.Reminder(false)
			continue
		}
		s.metrics.Reminder(true)
		sent++

		if err := s.users.MarkReminded(ctx, u.ID, today); err != nil {
			logger.WithError(err).Error("Не удалось отметить отправку напоминания")
		}
	}

	if sent > 0 {
		log.WithFields(log.Fields{
			"sent": sent,
			"day":  common.FormatDate(today),
		}).Info("Напоминания отправлены")
	}
	return sent, nil
}

// Message формирует текст напоминания.
func Message(atRisk []habits.Habit) string {
	if len(atRisk) == 1 {
		h := atRisk[0]
		return fmt.Sprintf("⚠️ У тебя огонек %d %s в привычке «%s»! Отметь её сегодня, чтобы не потерять прогресс!",
			h.Streak, common.PluralizeDays(h.Streak), h.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ Сегодня могут погаснуть огоньки у %d %s:\n", len(atRisk), habitsGenitive(len(atRisk)))
	for _, h := range atRisk {
		fmt.Fprintf(&b, "🔥 «%s»: %d %s\n", h.Name, h.Streak, common.PluralizeDays(h.Streak))
	}
	b.WriteString("Не забудь отметить их, чтобы не потерять прогресс!")
	return b.String()
}

// habitsGenitive — «у 2 привычек», «у 21 привычки».
func habitsGenitive(n int) string {
	return common.Pluralize(int64(n), "привычки", "привычек", "привычек")
}
