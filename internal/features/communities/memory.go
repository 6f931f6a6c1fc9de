// Package communities — memory.go хранит сообщества в памяти процесса.
// Используется в тестах и при STORAGE_DRIVER=memory.
package communities

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/habit-tracker/internal/common"
	"serotonyl.ru/habit-tracker/internal/features/users"
)

// UserLookup отдаёт пользователя для списка участников.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
}

type membership struct {
	userID   uuid.UUID
	joinedAt time.Time
}

// MemoryRepository — реализация Store в памяти.
type MemoryRepository struct {
	mu          sync.RWMutex
	communities map[int64]*Community
	members     map[int64][]membership
	nextID      int64
	users       UserLookup
	now         func() time.Time
}

// NewMemoryRepository создаёт хранилище. users нужен для списка участников.
func NewMemoryRepository(users UserLookup) *MemoryRepository {
	return &MemoryRepository{
		communities: make(map[int64]*Community),
		members:     make(map[int64][]membership),
		users:       users,
		now:         time.Now,
	}
}

func (r *MemoryRepository) List(context.Context) ([]*Community, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Community, 0, len(r.communities))
	for _, c := range r.communities {
		out = append(out, r.withCount(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, id int64) (*Community, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.communities[id]
	if !ok {
		return nil, common.ErrCommunityNotFound
	}
	return r.withCount(c), nil
}

func (r *MemoryRepository) Create(_ context.Context, c *Community) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	c.CreatedAt = r.now().UTC()
	cp := *c
	r.communities[c.ID] = &cp
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.communities, id)
	delete(r.members, id)
	return nil
}

func (r *MemoryRepository) Join(_ context.Context, id int64, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.communities[id]; !ok {
		return common.ErrCommunityNotFound
	}
	for _, m := range r.members[id] {
		if m.userID == userID {
			return nil
		}
	}
	r.members[id] = append(r.members[id], membership{userID: userID, joinedAt: r.now().UTC()})
	return nil
}

func (r *MemoryRepository) Leave(_ context.Context, id int64, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.members[id]
	for i, m := range list {
		if m.userID == userID {
			r.members[id] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryRepository) Members(ctx context.Context, id int64) ([]*Member, error) {
	r.mu.RLock()
	list := append([]membership(nil), r.members[id]...)
	r.mu.RUnlock()

	out := make([]*Member, 0, len(list))
	for _, m := range list {
		u, err := r.users.GetByID(ctx, m.userID)
		if err != nil {
			// Удалённые пользователи в список не попадают, как при JOIN
			continue
		}
		out = append(out, &Member{
			UserID:     u.ID,
			Username:   u.Username,
			Level:      u.Level,
			Experience: u.Experience,
			JoinedAt:   m.joinedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Experience > out[j].Experience })
	return out, nil
}

func (r *MemoryRepository) ForUser(_ context.Context, userID uuid.UUID) ([]*Community, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type joined struct {
		c  *Community
		at time.Time
	}
	var found []joined
	for id, list := range r.members {
		for _, m := range list {
			if m.userID == userID {
				found = append(found, joined{c: r.withCount(r.communities[id]), at: m.joinedAt})
			}
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if !found[i].at.Equal(found[j].at) {
			return found[i].at.After(found[j].at)
		}
		return found[i].c.ID > found[j].c.ID
	})

	out := make([]*Community, 0, len(found))
	for _, f := range found {
		out = append(out, f.c)
	}
	return out, nil
}

// withCount копирует сообщество и считает участников. Вызывать под блокировкой.
func (r *MemoryRepository) withCount(c *Community) *Community {
	cp := *c
	cp.MembersCount = len(r.members[c.ID])
	return &cp
}
