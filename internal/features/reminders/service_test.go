package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/habit-tracker/internal/common"
	"serotonyl.ru/habit-tracker/internal/features/habits"
	"serotonyl.ru/habit-tracker/internal/features/users"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	sent []sentMessage
	fail map[int64]bool
}

func (f *fakeNotifier) Send(_ context.Context, chatID int64, text string) error {
	if f.fail[chatID] {
		return errors.New("telegram недоступен")
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

type fakeHabits map[uuid.UUID][]habits.Habit

func (f fakeHabits) AtRiskHabits(_ context.Context, userID uuid.UUID, minStreak int) ([]habits.Habit, error) {
	var out []habits.Habit
	for _, h := range f[userID] {
		if h.Streak >= minStreak {
			out = append(out, h)
		}
	}
	return out, nil
}

type fakeUsers struct {
	list     []*users.User
	reminded map[uuid.UUID]civil.Date
}

func (f *fakeUsers) ReminderCandidates(_ context.Context, day civil.Date) ([]*users.User, error) {
	var out []*users.User
	for _, u := range f.list {
		if d, ok := f.reminded[u.ID]; ok && d == day {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) MarkReminded(_ context.Context, id uuid.UUID, day civil.Date) error {
	f.reminded[id] = day
	return nil
}

func chat(id int64) *int64 { return &id }

func TestSendReminders(t *testing.T) {
	alice := &users.User{ID: uuid.New(), Username: "alice", TelegramChatID: chat(100)}
	bob := &users.User{ID: uuid.New(), Username: "bob", TelegramChatID: chat(200)}
	carol := &users.User{ID: uuid.New(), Username: "carol"}
	dave := &users.User{ID: uuid.New(), Username: "dave", TelegramChatID: chat(400)}

	source := fakeHabits{
		alice.ID: {{Name: "Бег", Streak: 8}},
		bob.ID:   {{Name: "Чтение", Streak: 3}},
		carol.ID: {{Name: "Йога", Streak: 30}},
		dave.ID:  {{Name: "Сон", Streak: 12}},
	}
	userSrc := &fakeUsers{list: []*users.User{alice, bob, carol, dave}, reminded: map[uuid.UUID]civil.Date{}}
	notifier := &fakeNotifier{fail: map[int64]bool{400: true}}

	evening := common.FixedClock{T: time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC)}
	svc := NewService(source, userSrc, notifier, evening, time.UTC, Options{Threshold: 7, Hour: 18}, nil)

	sent, err := svc.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, int64(100), notifier.sent[0].chatID)
	assert.Contains(t, notifier.sent[0].text, "огонек 8 дней")
	assert.Contains(t, notifier.sent[0].text, "«Бег»")

	assert.Equal(t, civil.Date{Year: 2024, Month: 3, Day: 1}, userSrc.reminded[alice.ID])
	assert.NotContains(t, userSrc.reminded, dave.ID, "неудачная отправка не помечается")

	sent, err = svc.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent, "повторно в тот же день не напоминаем")
}

func TestSendReminders_BeforeHour(t *testing.T) {
	alice := &users.User{ID: uuid.New(), TelegramChatID: chat(100)}
	notifier := &fakeNotifier{}
	morning := common.FixedClock{T: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewService(
		fakeHabits{alice.ID: {{Name: "Бег", Streak: 10}}},
		&fakeUsers{list: []*users.User{alice}, reminded: map[uuid.UUID]civil.Date{}},
		notifier, morning, time.UTC, Options{Threshold: 7, Hour: 18}, nil,
	)

	sent, err := svc.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, notifier.sent)
}

func TestMessage(t *testing.T) {
	one := Message([]habits.Habit{{Name: "Бег", Streak: 21}})
	assert.Contains(t, one, "огонек 21 день")

	many := Message([]habits.Habit{{Name: "Бег", Streak: 7}, {Name: "Сон", Streak: 2}})
	assert.Contains(t, many, "у 2 привычек")
	assert.Contains(t, many, "«Бег»: 7 дней")
	assert.Contains(t, many, "«Сон»: 2 дня")
}
