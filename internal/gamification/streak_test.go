package gamification

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
)

var today = civil.Date{Year: 2024, Month: time.March, Day: 10}

func days(offsets ...int) []civil.Date {
	out := make([]civil.Date, 0, len(offsets))
	for _, o := range offsets {
		out = append(out, today.AddDays(o))
	}
	return out
}

func TestCurrentStreak(t *testing.T) {
	tests := []struct {
		name  string
		dates []civil.Date
		want  int
	}{
		{"empty", nil, 0},
		{"only today", days(0), 1},
		{"three in a row ending today", days(0, -1, -2), 3},
		{"ending yesterday", days(-1, -2), 2},
		{"gap of two days breaks", days(-2), 0},
		{"gap inside run", days(0, -1, -3, -4), 2},
		{"duplicates collapse", days(0, 0, -1, -1), 2},
		{"unsorted input", days(-2, 0, -1), 3},
		{"future date breaks", days(1, 0, -1), 0},
		{"old run is broken", []civil.Date{
			{Year: 2024, Month: time.February, Day: 28},
			{Year: 2024, Month: time.February, Day: 29},
			{Year: 2024, Month: time.March, Day: 1},
		}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentStreak(tt.dates, today))
		})
	}
}

func TestCurrentStreak_LeapDayRun(t *testing.T) {
	ref := civil.Date{Year: 2024, Month: time.March, Day: 1}
	dates := []civil.Date{
		{Year: 2024, Month: time.February, Day: 28},
		{Year: 2024, Month: time.February, Day: 29},
		ref,
	}
	assert.Equal(t, 3, CurrentStreak(dates, ref))
}

func TestCurrentStreak_NonIncreasingAsReferenceAdvances(t *testing.T) {
	dates := days(-4, -3, -2, -1, 0)
	prev := CurrentStreak(dates, today)
	for i := 1; i <= 5; i++ {
		cur := CurrentStreak(dates, today.AddDays(i))
		assert.LessOrEqual(t, cur, prev, "day +%d", i)
		prev = cur
	}
	assert.Equal(t, 0, prev)
}

func TestToggleDate_Symmetric(t *testing.T) {
	sets := [][]civil.Date{
		nil,
		days(0),
		days(-3, -1, 0),
		days(-10, -5, -4),
	}
	probes := days(-5, -1, 0, 2)

	for _, s := range sets {
		canonical := NormalizeDates(s)
		for _, d := range probes {
			twice := ToggleDate(ToggleDate(canonical, d), d)
			assert.Equal(t, canonical, twice, "set=%v date=%v", canonical, d)
		}
	}
}

func TestToggleDate_AddsAndRemoves(t *testing.T) {
	s := days(-2, 0)

	added := ToggleDate(s, today.AddDays(-1))
	assert.Equal(t, days(-2, -1, 0), added)

	removed := ToggleDate(added, today)
	assert.Equal(t, days(-2, -1), removed)

	// исходный срез не меняется
	assert.Equal(t, days(-2, 0), s)
}

func TestAddDate_Idempotent(t *testing.T) {
	s := AddDate(nil, today)
	s = AddDate(s, today)
	assert.Equal(t, days(0), s)
}

func TestLongestStreak(t *testing.T) {
	assert.Equal(t, 0, LongestStreak(nil))
	assert.Equal(t, 1, LongestStreak(days(0)))
	assert.Equal(t, 3, LongestStreak(days(-10, -9, -8, -2, -1)))
	assert.Equal(t, 2, LongestStreak(days(-1, 0, 0)))
}

func TestNormalizeDates_DropsInvalid(t *testing.T) {
	got := NormalizeDates([]civil.Date{{}, today, {Year: 2024, Month: time.February, Day: 30}})
	assert.Equal(t, []civil.Date{today}, got)

	got = NormalizeDates([]civil.Date{{Year: -5, Month: time.June, Day: 1}, {Year: 0, Month: time.March, Day: 1}, today})
	assert.Equal(t, []civil.Date{today}, got)
}

func TestLastDate(t *testing.T) {
	_, ok := LastDate(nil)
	assert.False(t, ok)

	d, ok := LastDate(days(-3, 0, -1))
	assert.True(t, ok)
	assert.Equal(t, today, d)
}
