// Package users — memory.go хранит пользователей и сессии в памяти процесса.
// Используется в тестах и при STORAGE_DRIVER=memory.
package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"serotonyl.ru/habit-tracker/internal/common"
)

// MemoryRepository — реализация Store в памяти.
type MemoryRepository struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*User
	byName   map[string]uuid.UUID // ключ — имя в нижнем регистре
	sessions map[string]*Session
	attempts []LoginAttempt
	now      func() time.Time
}

// NewMemoryRepository создаёт пустое хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[uuid.UUID]*User),
		byName:   make(map[string]uuid.UUID),
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(u.Username)
	if _, ok := r.byName[key]; ok {
		return common.ErrUsernameTaken
	}
	u.CreatedAt = r.now().UTC()
	cp := *u
	r.users[u.ID] = &cp
	r.byName[key] = u.ID
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (r *MemoryRepository) GetByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[strings.ToLower(username)]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	return copyUser(r.users[id]), nil
}

func (r *MemoryRepository) List(context.Context) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Experience != out[j].Experience {
			return out[i].Experience > out[j].Experience
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

// SetProgress подходит как habits.ProgressSink.
func (r *MemoryRepository) SetProgress(_ context.Context, id uuid.UUID, level int, xp int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		// Состояние без учётной записи (тесты) — пропускаем
		return nil
	}
	u.Level = level
	u.Experience = xp
	return nil
}

func (r *MemoryRepository) SetTelegramChat(_ context.Context, id uuid.UUID, chatID *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return common.ErrUserNotFound
	}
	if chatID == nil {
		u.TelegramChatID = nil
		return nil
	}
	v := *chatID
	u.TelegramChatID = &v
	return nil
}

func (r *MemoryRepository) MarkReminded(_ context.Context, id uuid.UUID, day civil.Date) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.LastReminderOn = &day
	}
	return nil
}

func (r *MemoryRepository) ReminderCandidates(_ context.Context, day civil.Date) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*User
	for _, u := range r.users {
		if u.TelegramChatID == nil {
			continue
		}
		if u.LastReminderOn != nil && !u.LastReminderOn.Before(day) {
			continue
		}
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) CreateSession(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	cp.LastActivity = s.CreatedAt
	r.sessions[s.Token] = &cp
	return nil
}

func (r *MemoryRepository) GetSession(_ context.Context, token string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[token]
	if !ok {
		return nil, common.ErrUnauthorized
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) TouchSession(_ context.Context, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[token]; ok {
		s.LastActivity = at
	}
	return nil
}

func (r *MemoryRepository) DeleteSession(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
	return nil
}

func (r *MemoryRepository) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for token, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, token)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) LogAttempt(_ context.Context, a LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.Username = strings.ToLower(a.Username)
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *MemoryRepository) RecentFailedAttempts(_ context.Context, username string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	username = strings.ToLower(username)
	n := 0
	for _, a := range r.attempts {
		if a.Username == username && !a.Success && !a.AttemptTime.Before(since) {
			n++
		}
	}
	return n, nil
}

func copyUser(u *User) *User {
	cp := *u
	if u.TelegramChatID != nil {
		v := *u.TelegramChatID
		cp.TelegramChatID = &v
	}
	if u.LastReminderOn != nil {
		d := *u.LastReminderOn
		cp.LastReminderOn = &d
	}
	return &cp
}
