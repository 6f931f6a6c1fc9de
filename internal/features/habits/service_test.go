package habits

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/habit-tracker/internal/common"
)

type progressRecord struct {
	level int
	xp    int64
}

type sinkRecorder struct {
	mu   sync.Mutex
	last map[uuid.UUID]progressRecord
}

func (r *sinkRecorder) sink(_ context.Context, userID uuid.UUID, level int, xp int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last[userID] = progressRecord{level: level, xp: xp}
	return nil
}

type serviceFixture struct {
	svc   *Service
	repo  *MemoryRepository
	clock *common.SimulatedClock
	sink  *sinkRecorder
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	rec := &sinkRecorder{last: make(map[uuid.UUID]progressRecord)}
	repo := NewMemoryRepository(rec.sink)
	base := common.FixedClock{T: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
	clock := common.NewSimulatedClock(base, time.UTC)
	svc := NewService(repo, testEngine(), clock, time.UTC, nil)
	return &serviceFixture{svc: svc, repo: repo, clock: clock, sink: rec}
}

func (f *serviceFixture) addHabit(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	res, err := f.svc.AddHabit(context.Background(), userID, HabitInput{Name: "Читать", Icon: IconBook})
	require.NoError(t, err)
	require.NotNil(t, res.Habit)
	return res.Habit.ID
}

func TestService_InitAndView(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, f.svc.Init(ctx, userID))
	// повторный Init безопасен
	require.NoError(t, f.svc.Init(ctx, userID))

	view, err := f.svc.View(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, day1, view.Today)
	assert.Equal(t, 1, view.Progress.Level)
	require.NotNil(t, view.Progress.XPForNextLevel)
	assert.Equal(t, int64(100), *view.Progress.XPForNextLevel)
	assert.Empty(t, view.State.Habits)
}

func TestService_ViewCreatesMissingState(t *testing.T) {
	f := newServiceFixture(t)
	userID := uuid.New()

	view, err := f.svc.View(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.State.Level)

	_, err = f.repo.Get(context.Background(), userID)
	assert.NoError(t, err)
}

func TestService_CompleteWritesLedgerAndProgress(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	habitID := f.addHabit(t, userID)

	res, err := f.svc.Complete(ctx, userID, habitID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), res.Outcome.XPAwarded)
	assert.Equal(t, []string{"FIRST_STEP"}, res.Outcome.Unlocked)
	assert.Equal(t, int64(15), res.View.Progress.XP)

	// повторное выполнение ничего не пишет
	res, err = f.svc.Complete(ctx, userID, habitID)
	require.NoError(t, err)
	assert.Zero(t, res.Outcome.XPAwarded)

	history, err := f.svc.XPHistory(ctx, userID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, habitID, history[0].HabitID)
	assert.Equal(t, day1, history[0].CompletedOn)
	assert.Equal(t, int64(15), history[0].Amount)
	assert.Equal(t, XPReasonCompletion, history[0].Reason)

	assert.Equal(t, progressRecord{level: 1, xp: 15}, f.sink.last[userID])
}

func TestService_ToggleFutureDate(t *testing.T) {
	f := newServiceFixture(t)
	userID := uuid.New()
	habitID := f.addHabit(t, userID)

	tomorrow := day1.AddDays(1)
	_, err := f.svc.Toggle(context.Background(), userID, habitID, &tomorrow)
	assert.ErrorIs(t, err, common.ErrFutureDate)
}

func TestService_ToggleDefaultsToToday(t *testing.T) {
	f := newServiceFixture(t)
	userID := uuid.New()
	habitID := f.addHabit(t, userID)

	res, err := f.svc.Toggle(context.Background(), userID, habitID, nil)
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{day1}, res.View.State.Habits[0].CompletedDates)
}

func TestService_OverrideDateMovesToday(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	habitID := f.addHabit(t, userID)

	for i := 0; i < 3; i++ {
		f.clock.SetOverride(day1.AddDays(i))
		_, err := f.svc.Complete(ctx, userID, habitID)
		require.NoError(t, err)
	}

	view, err := f.svc.View(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, day1.AddDays(2), view.Today)
	assert.Equal(t, 3, view.State.Habits[0].Streak)

	f.clock.ClearOverride()
	view, err = f.svc.View(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, day1, view.Today)
}

func TestService_AtRiskHabits(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	habitID := f.addHabit(t, userID)
	_, err := f.svc.Complete(ctx, userID, habitID)
	require.NoError(t, err)

	// в тот же день привычка уже отмечена
	risky, err := f.svc.AtRiskHabits(ctx, userID, 1)
	require.NoError(t, err)
	assert.Empty(t, risky)

	f.clock.SetOverride(day1.AddDays(1))
	risky, err = f.svc.AtRiskHabits(ctx, userID, 1)
	require.NoError(t, err)
	require.Len(t, risky, 1)
	assert.Equal(t, habitID, risky[0].ID)

	risky, err = f.svc.AtRiskHabits(ctx, userID, 2)
	require.NoError(t, err)
	assert.Empty(t, risky)

	// через два дня серия уже сгорела
	f.clock.SetOverride(day1.AddDays(2))
	risky, err = f.svc.AtRiskHabits(ctx, userID, 1)
	require.NoError(t, err)
	assert.Empty(t, risky)
}

func TestService_DailyRefresh(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	active := uuid.New()
	habitID := f.addHabit(t, active)
	_, err := f.svc.Complete(ctx, active, habitID)
	require.NoError(t, err)

	idle := uuid.New()
	require.NoError(t, f.svc.Init(ctx, idle))

	f.clock.SetOverride(day1.AddDays(3))
	changed, err := f.svc.DailyRefresh(ctx)
	require.NoError(t, err)
	// у обоих сдвинулась дата пересчёта, у active ещё и сгорела серия
	assert.Equal(t, 2, changed)

	raw, err := f.repo.Get(ctx, active)
	require.NoError(t, err)
	st, _, err := DecodeState(raw)
	require.NoError(t, err)
	assert.Zero(t, st.Habits[0].Streak)
	assert.Equal(t, 1, st.Habits[0].BestStreak)

	// второй прогон в тот же день ничего не меняет
	changed, err = f.svc.DailyRefresh(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestService_MigratesLegacyState(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	legacy := `{"experience": 30, "habits": [{"id": "old", "name": "Бег", "icon": "run", "streak": 2, "lastCompleted": "2024-02-29"}]}`
	require.NoError(t, f.repo.Create(ctx, userID, []byte(legacy)))

	view, err := f.svc.View(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), view.State.XP)
	// последнее выполнение вчера, серия жива
	assert.Equal(t, 2, view.State.Habits[0].Streak)

	raw, err := f.repo.Get(ctx, userID)
	require.NoError(t, err)
	_, migrated, err := DecodeState(raw)
	require.NoError(t, err)
	assert.False(t, migrated)

	// восстановленную дату повторно не оплачиваем
	yesterday := day1.AddDays(-1)
	res, err := f.svc.Toggle(ctx, userID, "old", &yesterday)
	require.NoError(t, err)
	assert.Zero(t, res.Outcome.XPAwarded)
	res, err = f.svc.Toggle(ctx, userID, "old", &yesterday)
	require.NoError(t, err)
	assert.Zero(t, res.Outcome.XPAwarded)
}

func TestService_XPHistoryLimit(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	habitID := f.addHabit(t, userID)

	for i := 0; i < 3; i++ {
		d := day1.AddDays(-i)
		_, err := f.svc.Toggle(ctx, userID, habitID, &d)
		require.NoError(t, err)
	}

	history, err := f.svc.XPHistory(ctx, userID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	// новые первыми
	assert.Equal(t, day1.AddDays(-2), history[0].CompletedOn)
}
