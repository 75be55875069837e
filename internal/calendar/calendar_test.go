package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saoPaulo(t *testing.T) Calendar {
	t.Helper()
	cal, err := Load("America/Sao_Paulo")
	require.NoError(t, err)
	return cal
}

func TestDayIsLocalMidnightInUTC(t *testing.T) {
	cal := saoPaulo(t)

	// 01:30 UTC on the 3rd is still the evening of the 2nd in Sao Paulo (UTC-3).
	instant := time.Date(2025, 3, 3, 1, 30, 0, 0, time.UTC)
	day := cal.Day(instant)

	assert.Equal(t, time.Date(2025, 3, 2, 3, 0, 0, 0, time.UTC), day)
	assert.Equal(t, "2025-03-02", cal.Format(day))
	assert.Equal(t, day, cal.Day(day), "Day must be idempotent")
}

func TestParseDayFormats(t *testing.T) {
	cal := saoPaulo(t)
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

	empty, err := cal.ParseDay("", now)
	require.NoError(t, err)
	assert.Equal(t, cal.Day(now), empty)

	plain, err := cal.ParseDay("2025-03-12", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 12, 3, 0, 0, 0, time.UTC), plain)

	stamp, err := cal.ParseDay("2025-03-12T23:30:00-03:00", now)
	require.NoError(t, err)
	assert.Equal(t, plain, stamp)

	_, err = cal.ParseDay("12/03/2025", now)
	assert.ErrorIs(t, err, ErrInvalidDay)
}

func TestMonthUsesLocalCalendar(t *testing.T) {
	cal := saoPaulo(t)
	day, err := cal.ParseDay("2025-04-01", time.Now())
	require.NoError(t, err)

	assert.Equal(t, "2025-04", cal.Month(day))
	assert.Equal(t, "2025-04", New(time.UTC).Month(day), "local midnight at 03:00 UTC stays in April")

	tokyo, err := Load("Asia/Tokyo")
	require.NoError(t, err)
	tday, err := tokyo.ParseDay("2025-04-01", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "2025-04", tokyo.Month(tday))
	assert.Equal(t, "2025-03", New(time.UTC).Month(tday), "the UTC instant belongs to March")
}

func TestAtAndMinuteOfDay(t *testing.T) {
	cal := saoPaulo(t)
	day, err := cal.ParseDay("2025-05-20", time.Now())
	require.NoError(t, err)

	start := cal.At(day, 18*60)
	assert.Equal(t, time.Date(2025, 5, 20, 21, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 18*60, cal.MinuteOfDay(start))
}

func TestDaysBetweenAndWeeks(t *testing.T) {
	cal := saoPaulo(t)
	from, _ := cal.ParseDay("2025-01-01", time.Now())
	to, _ := cal.ParseDay("2025-04-06", time.Now())
	assert.Equal(t, 95, cal.DaysBetween(from, to))

	wed, _ := cal.ParseDay("2025-05-21", time.Now())
	mon := cal.StartOfWeek(wed)
	assert.Equal(t, "2025-05-19", cal.Format(mon))
	assert.Equal(t, time.Monday, cal.Weekday(mon))
	assert.Equal(t, "2025-05-25", cal.Format(cal.AddDays(mon, 6)))
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("18:30")
	require.NoError(t, err)
	assert.Equal(t, 18*60+30, m)
	assert.Equal(t, "07:05", FormatClock(7*60+5))

	for _, bad := range []string{"", "1830", "24:00", "12:60", "ab:cd"} {
		_, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrInvalidClock, bad)
	}
}

func TestIntervalOverlaps(t *testing.T) {
	first, err := ParseInterval("18:00", "19:00")
	require.NoError(t, err)
	overlapping, _ := ParseInterval("18:30", "19:30")
	adjacent, _ := ParseInterval("19:00", "20:00")
	inside, _ := ParseInterval("18:15", "18:45")

	assert.True(t, first.Overlaps(overlapping))
	assert.True(t, overlapping.Overlaps(first))
	assert.True(t, first.Overlaps(inside))
	assert.False(t, first.Overlaps(adjacent))
	assert.False(t, adjacent.Overlaps(first))

	_, err = ParseInterval("19:00", "18:00")
	assert.ErrorIs(t, err, ErrInvalidClock)
}
