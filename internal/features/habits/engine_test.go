package habits

import (
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/habit-tracker/internal/common"
	"serotonyl.ru/habit-tracker/internal/gamification"
)

var day1 = civil.Date{Year: 2024, Month: time.March, Day: 1}

var createdAt = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

func testEngine() *Engine {
	e := NewEngine(
		gamification.MustLevelTable(gamification.DefaultThresholds),
		gamification.DefaultCatalog(),
		gamification.DefaultXPPerCompletion,
	)
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("h%d", n)
	}
	return e
}

// stateWithHabit — новое состояние с одной привычкой "h1".
func stateWithHabit(t *testing.T, e *Engine) State {
	t.Helper()
	st := e.NewState(day1)
	st, h, _, err := e.AddHabit(st, HabitInput{Name: "Читать", Icon: IconBook}, day1, createdAt)
	require.NoError(t, err)
	require.Equal(t, "h1", h.ID)
	return st
}

func TestEngine_NewState(t *testing.T) {
	e := testEngine()
	st := e.NewState(day1)

	assert.Equal(t, StateVersion, st.Version)
	assert.Equal(t, 1, st.Level)
	assert.Zero(t, st.XP)
	assert.NotNil(t, st.Habits)
	assert.Equal(t, ThemeDark, st.Theme)
	assert.Equal(t, DefaultPrimaryColor, st.PrimaryColor)
	assert.Len(t, st.Achievements, 9)
	assert.Empty(t, gamification.UnlockedIDs(st.Achievements))
	require.NotNil(t, st.RefreshedOn)
	assert.Equal(t, day1, *st.RefreshedOn)
}

func TestEngine_AddHabit(t *testing.T) {
	e := testEngine()
	st := e.NewState(day1)

	next, h, out, err := e.AddHabit(st, HabitInput{Name: "  Вода  ", Icon: IconWater, Color: "#00ff00"}, day1, createdAt)
	require.NoError(t, err)

	assert.True(t, out.Changed)
	assert.Equal(t, "Вода", h.Name)
	assert.Equal(t, "#00ff00", h.Color)
	assert.NotNil(t, h.CompletedDates)
	assert.Zero(t, h.Streak)
	assert.Nil(t, h.LastCompleted)
	assert.Len(t, next.Habits, 1)
	// исходное состояние не тронуто
	assert.Empty(t, st.Habits)
}

func TestEngine_AddHabit_Validation(t *testing.T) {
	e := testEngine()
	st := e.NewState(day1)

	tests := []struct {
		name string
		in   HabitInput
	}{
		{"empty name", HabitInput{Name: "   ", Icon: IconBook}},
		{"unknown icon", HabitInput{Name: "Бег", Icon: "rocket"}},
		{"bad color", HabitInput{Name: "Бег", Icon: IconRun, Color: "red"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := e.AddHabit(st, tt.in, day1, createdAt)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestEngine_FirstCompletionUnlocksFirstStep(t *testing.T) {
	e := testEngine()
	st := stateWithHabit(t, e)

	next, out, err := e.CompleteToday(st, "h1", day1)
	require.NoError(t, err)

	assert.True(t, out.Changed)
	assert.Equal(t, int64(15), out.XPAwarded)
	assert.Equal(t, []Award{{HabitID: "h1", Date: day1, Amount: 15}}, out.Awards)
	assert.Equal(t, []string{"FIRST_STEP"}, out.Unlocked)
	assert.False(t, out.LeveledUp)

	h := next.Habits[0]
	assert.Equal(t, 1, h.Streak)
	assert.Equal(t, 1, h.BestStreak)
	require.NotNil(t, h.LastCompleted)
	assert.Equal(t, day1, *h.LastCompleted)
	assert.Equal(t, int64(15), next.XP)
	assert.Equal(t, 1, next.Level)
}

func TestEngine_CompleteToday_Idempotent(t *testing.T) {
	e := testEngine()
	st := stateWithHabit(t, e)

	st, _, err := e.CompleteToday(st, "h1", day1)
	require.NoError(t, err)

	again, out, err := e.CompleteToday(st, "h1", day1)
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Zero(t, out.XPAwarded)
	assert.Empty(t, out.Unlocked)
	assert.Equal(t, int64(15), again.XP)
}

func TestEngine_StreakOfThreeAndGap(t *testing.T) {
	e := testEngine()
	st := stateWithHabit(t, e)

	var out Outcome
	var err error
	for i := 0; i < 3; i++ {
		st, out, err = e.CompleteToday(st, "h1", day1.AddDays(i))
		require.NoError(t, err)
	}
	day3 := day1.AddDays(2)

	assert.Equal(t, []string{"STREAK_3"}, out.Unlocked)
	assert.Equal(t, 3, st.Habits[0].Streak)
	assert.Equal(t, int64(45), st.XP)
	assert.ElementsMatch(t, []string{"FIRST_STEP", "STREAK_3"}, gamification.UnlockedIDs(st.Achievements))
	for _, a := range st.Achievements {
		if a.ID == "STREAK_3" {
			require.NotNil(t, a.UnlockedOn)
			assert.Equal(t, day3, *a.UnlockedOn)
		}
	}

	// пропуск дня 4: на день 5 серия сгорела, достижения остались
	day5 := day1.AddDays(4)
	st, out = e.Refresh(st, day5)
	assert.True(t, out.Changed)
	assert.Zero(t, st.Habits[0].Streak)
	assert.Equal(t, 3, st.Habits[0].BestStreak)
	assert.ElementsMatch(t, []string{"FIRST_STEP", "STREAK_3"}, gamification.UnlockedIDs(st.Achievements))
	assert.Equal(t, int64(45), st.XP)

	st, _, err = e.CompleteToday(st, "h1", day5)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Habits[0].Streak)
	assert.Equal(t, 3, st.Habits[0].BestStreak)
}

func TestEngine_StreakSurvivesUntilEndOfNextDay(t *testing.T) {
	e := testEngine()
	st := stateWithHabit(t, e)

	st, _, err := e.CompleteToday(st, "h1", day1)
	require.NoError(t, err)

	// на следующий день, пока не отмечено, серия ещё жива
	st, _ = e.Refresh(st, day1.AddDays(1))
	assert.Equal(t, 1, st.Habits[0].Streak)
}

func TestEngine_Refresh_NoChanges(t *testing.T) {
	e := testEngine()
	st := stateWithHabit(t, e)

	_, out := e.Refresh(st, day1)
	assert.False(t, out.Changed)
}

func TestEngine_ToggleCompletion(t *testing.T) {
	e := testEngine()
	st := stateWithHabit(t, e)
	today := day1.AddDays(2)

	t.Run("future date rejected", func(t *testing.T) {
		next, _, err := e.ToggleCompletion(st, "h1", today.AddDays(1), today)
		assert.ErrorIs(t, err, common.ErrFutureDate)
		assert.Equal(t, st, next)
	})

	t.Run("invalid date rejected", func(t *testing.T) {
		_, _, err := e.ToggleCompletion(st, "h1", civil.Date{Year: 2024, Month: time.February, Day: 30}, today)
		assert.ErrorIs(t, err, common.ErrInvalidDate)
	})

	t.Run("unknown habit", func(t *testing.T) {
		_, _, err := e.ToggleCompletion(st, "nope", today, today)
		assert.ErrorIs(t, err, common.ErrHabitNotFound)
	})

	t.Run("backfill past date", func(t *testing.T) {
		next, out, err := e.ToggleCompletion(st, "h1", day1.AddDays(1), today)
		require.NoError(t, err)
		assert.Equal(t, int64(15), out.XPAwarded)
		// вчера отмечено, сегодня ещё нет: серия 1
		assert.Equal(t, 1, next.Habits[0].Streak)
	})

	t.Run("symmetric", func(t *testing.T) {
		once, _, err := e.ToggleCompletion(st, "h1", day1, today)
		require.NoError(t, err)
		twice, _, err := e.ToggleCompletion(once, "h1", day1, today)
		require.NoError(t, err)
		assert.Equal(t, st.Habits[0].CompletedDates, twice.Habits[0].CompletedDates)
	})
}

func TestEngine_ToggleCompletion_NoDoubleXP(t *testing.T) {
	e := testEngine()
	st := stateWithHabit(t, e)

	st, out, err := e.ToggleCompletion(st, "h1", day1, day1)
	require.NoError(t, err)
	assert.Equal(t, int64(15), out.XPAwarded)

	// снятие отметки опыт не отнимает
	st, out, err = e.ToggleCompletion(st, "h1", day1, day1)
	require.NoError(t, err)
	assert.Zero(t, out.XPAwarded)
	assert.Empty(t, st.Habits[0].CompletedDates)
	assert.Equal(t, int64(15), st.XP)
	assert.Zero(t, st.Habits[0].Streak)

	// повторная отметка опыт не начисляет
	st, out, err = e.ToggleCompletion(st, "h1", day1, day1)
	require.NoError(t, err)
	assert.Zero(t, out.XPAwarded)
	assert.Empty(t, out.Awards)
	assert.Equal(t, int64(15), st.XP)
	assert.Equal(t, 1, st.Habits[0].Streak)
}

func TestEngine_LevelUp(t *testing.T) {
	e := testEngine()
	st := stateWithHabit(t, e)
	st.XP = 90

	next, out, err := e.CompleteToday(st, "h1", day1)
	require.NoError(t, err)

	assert.Equal(t, int64(105), next.XP)
	assert.Equal(t, 2, next.Level)
	assert.Equal(t, 1, out.LevelBefore)
	assert.Equal(t, 2, out.LevelAfter)
	assert.True(t, out.LeveledUp)
}

func TestEngine_FiveHabitsCountsArchived(t *testing.T) {
	e := testEngine()
	st := e.NewState(day1)

	var out Outcome
	var err error
	for i := 0; i < 4; i++ {
		st, _, out, err = e.AddHabit(st, HabitInput{Name: fmt.Sprintf("Привычка %d", i), Icon: IconCode}, day1, createdAt)
		require.NoError(t, err)
		assert.Empty(t, out.Unlocked)
	}

	st, out, err = e.SetArchived(st, "h1", true, day1)
	require.NoError(t, err)
	assert.True(t, st.Habits[0].IsArchived)

	st, _, out, err = e.AddHabit(st, HabitInput{Name: "Пятая", Icon: IconRun}, day1, createdAt)
	require.NoError(t, err)
	assert.Equal(t, []string{"FIVE_HABITS"}, out.Unlocked)
	assert.Len(t, st.Habits, 5)
}

func TestEngine_EditHabit(t *testing.T) {
	e := testEngine()
	st := stateWithHabit(t, e)
	st, _, err := e.CompleteToday(st, "h1", day1)
	require.NoError(t, err)

	name := "Читать книги"
	color := ""
	next, out, err := e.EditHabit(st, "h1", HabitPatch{Name: &name, Color: &color}, day1)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, "Читать книги", next.Habits[0].Name)
	assert.Empty(t, next.Habits[0].Color)
	// серия не тронута
	assert.Equal(t, 1, next.Habits[0].Streak)

	bad := "зелёный"
	_, _, err = e.EditHabit(st, "h1", HabitPatch{Color: &bad}, day1)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, _, err = e.EditHabit(st, "nope", HabitPatch{Name: &name}, day1)
	assert.ErrorIs(t, err, common.ErrHabitNotFound)
}

func TestEngine_DeleteHabit_KeepsProgress(t *testing.T) {
	e := testEngine()
	st := stateWithHabit(t, e)
	st, _, err := e.CompleteToday(st, "h1", day1)
	require.NoError(t, err)

	next, _, err := e.DeleteHabit(st, "h1", day1)
	require.NoError(t, err)
	assert.Empty(t, next.Habits)
	assert.Equal(t, int64(15), next.XP)
	assert.Contains(t, gamification.UnlockedIDs(next.Achievements), "FIRST_STEP")

	_, _, err = e.DeleteHabit(next, "h1", day1)
	assert.ErrorIs(t, err, common.ErrHabitNotFound)
}

func TestEngine_UpdateSettings(t *testing.T) {
	e := testEngine()
	st := e.NewState(day1)

	light := ThemeLight
	next, _, err := e.UpdateSettings(st, Settings{Theme: &light}, day1)
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, next.Theme)

	color := "#ff8800"
	next, _, err = e.UpdateSettings(next, Settings{PrimaryColor: &color}, day1)
	require.NoError(t, err)
	assert.Equal(t, ThemeCustom, next.Theme)
	assert.Equal(t, "#ff8800", next.PrimaryColor)

	empty := ""
	next, _, err = e.UpdateSettings(next, Settings{AvatarURL: &empty}, day1)
	require.NoError(t, err)
	assert.Empty(t, next.AvatarURL)

	bad := "not a url"
	_, _, err = e.UpdateSettings(next, Settings{AvatarURL: &bad}, day1)
	assert.ErrorIs(t, err, common.ErrValidation)
}
