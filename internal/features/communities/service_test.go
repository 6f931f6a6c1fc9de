package communities

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/habit-tracker/internal/common"
	"serotonyl.ru/habit-tracker/internal/features/users"
)

type communitiesFixture struct {
	svc   *Service
	repo  *MemoryRepository
	users *users.MemoryRepository
	tick  time.Time
}

func newCommunitiesFixture() *communitiesFixture {
	f := &communitiesFixture{
		users: users.NewMemoryRepository(),
		tick:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.repo = NewMemoryRepository(f.users)
	// Часы сдвигаются на секунду при каждом вызове
	f.repo.now = func() time.Time {
		f.tick = f.tick.Add(time.Second)
		return f.tick
	}
	f.svc = NewService(f.repo)
	return f
}

func (f *communitiesFixture) addUser(t *testing.T, name string, xp int64, level int) uuid.UUID {
	t.Helper()
	u := &users.User{ID: uuid.New(), Username: name}
	require.NoError(t, f.users.Create(context.Background(), u))
	require.NoError(t, f.users.SetProgress(context.Background(), u.ID, level, xp))
	return u.ID
}

func TestService_CreateValidation(t *testing.T) {
	f := newCommunitiesFixture()
	ctx := context.Background()
	owner := f.addUser(t, "owner", 0, 1)

	tests := []struct {
		name string
		in   Input
	}{
		{"без имени", Input{Category: "спорт"}},
		{"без категории", Input{Name: "Бег"}},
		{"только пробелы", Input{Name: "   ", Category: "  "}},
		{"длинное имя", Input{Name: strings.Repeat("я", 65), Category: "спорт"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, owner, tt.in)
			assert.True(t, errors.Is(err, common.ErrValidation), "err=%v", err)
		})
	}

	c, err := f.svc.Create(ctx, owner, Input{Name: "  Бег  ", Description: "утром", Category: "спорт"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.ID)
	assert.Equal(t, "Бег", c.Name)
	assert.Equal(t, owner, c.CreatorID)
	assert.False(t, c.CreatedAt.IsZero())
}

func TestService_JoinLeaveIdempotent(t *testing.T) {
	f := newCommunitiesFixture()
	ctx := context.Background()
	owner := f.addUser(t, "owner", 0, 1)
	alice := f.addUser(t, "alice", 30, 2)

	c, err := f.svc.Create(ctx, owner, Input{Name: "Чтение", Category: "книги"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Join(ctx, alice, c.ID))
	require.NoError(t, f.svc.Join(ctx, alice, c.ID))

	got, err := f.repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MembersCount)

	require.NoError(t, f.svc.Leave(ctx, alice, c.ID))
	require.NoError(t, f.svc.Leave(ctx, alice, c.ID))

	got, err = f.repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.MembersCount)

	assert.ErrorIs(t, f.svc.Join(ctx, alice, 999), common.ErrCommunityNotFound)
	assert.ErrorIs(t, f.svc.Leave(ctx, alice, 999), common.ErrCommunityNotFound)
}

func TestService_DeleteOnlyCreator(t *testing.T) {
	f := newCommunitiesFixture()
	ctx := context.Background()
	owner := f.addUser(t, "owner", 0, 1)
	other := f.addUser(t, "other", 0, 1)

	c, err := f.svc.Create(ctx, owner, Input{Name: "Йога", Category: "спорт"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, other, c.ID), common.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, owner, c.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, owner, c.ID), common.ErrCommunityNotFound)

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_MembersOrderedByExperience(t *testing.T) {
	f := newCommunitiesFixture()
	ctx := context.Background()
	owner := f.addUser(t, "owner", 0, 1)
	low := f.addUser(t, "low", 15, 1)
	high := f.addUser(t, "high", 300, 4)
	mid := f.addUser(t, "mid", 120, 3)

	c, err := f.svc.Create(ctx, owner, Input{Name: "Сон", Category: "здоровье"})
	require.NoError(t, err)
	for _, id := range []uuid.UUID{low, high, mid} {
		require.NoError(t, f.svc.Join(ctx, id, c.ID))
	}

	members, err := f.svc.Members(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "high", members[0].Username)
	assert.Equal(t, 4, members[0].Level)
	assert.Equal(t, "mid", members[1].Username)
	assert.Equal(t, "low", members[2].Username)

	_, err = f.svc.Members(ctx, 42)
	assert.ErrorIs(t, err, common.ErrCommunityNotFound)
}

func TestService_ListAndForUser(t *testing.T) {
	f := newCommunitiesFixture()
	ctx := context.Background()
	owner := f.addUser(t, "owner", 0, 1)
	alice := f.addUser(t, "alice", 0, 1)

	first, err := f.svc.Create(ctx, owner, Input{Name: "A", Category: "x"})
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, owner, Input{Name: "B", Category: "x"})
	require.NoError(t, err)

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "новые первыми")

	require.NoError(t, f.svc.Join(ctx, alice, first.ID))
	require.NoError(t, f.svc.Join(ctx, alice, second.ID))

	mine, err := f.svc.ForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, 1, mine[0].MembersCount)

	none, err := f.svc.ForUser(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, none)
}
