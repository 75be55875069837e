// Package calendar centralizes calendar-day handling for the schedule.
//
// Every "day" value that leaves this package is the tenant's local midnight
// expressed in UTC. Session lookup, booking lookup and attendance matching all
// go through a Calendar so that the same class on the same local date always
// maps to the same instant, whatever the server's zone is.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // tenants may use zones missing from the host
)

// DayLayout is the wire format for calendar days ("2006-01-02").
const DayLayout = "2006-01-02"

// MonthLayout is the key format of attendance buckets ("2006-01").
const MonthLayout = "2006-01"

// ErrInvalidDay is returned when a raw date cannot be parsed.
var ErrInvalidDay = errors.New("invalid date")

// ErrInvalidClock is returned for malformed "HH:MM" values.
var ErrInvalidClock = errors.New("invalid time of day")

// Calendar interprets instants in one tenant's local time zone.
type Calendar struct {
	loc *time.Location
}

// New returns a Calendar for loc. A nil location means UTC.
func New(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// Load resolves an IANA zone name into a Calendar.
func Load(name string) (Calendar, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return New(time.UTC), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Calendar{}, fmt.Errorf("load location %q: %w", name, err)
	}
	return New(loc), nil
}

// Location returns the zone the calendar works in.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Day returns the local calendar day containing t, as local midnight in UTC.
func (c Calendar) Day(t time.Time) time.Time {
	lt := t.In(c.Location())
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.Location()).UTC()
}

// ParseDay normalizes a client supplied date. An empty string means the
// local day of now; "2006-01-02" is read as a local date; RFC 3339 timestamps
// are reduced to the local day they fall on.
func (c Calendar) ParseDay(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return c.Day(now), nil
	}
	if d, err := time.ParseInLocation(DayLayout, raw, c.Location()); err == nil {
		return d.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return c.Day(t), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDay, raw)
}

// Month returns the "YYYY-MM" bucket key for the local month of t.
func (c Calendar) Month(t time.Time) string {
	return t.In(c.Location()).Format(MonthLayout)
}

// Format renders day as a local "YYYY-MM-DD" string.
func (c Calendar) Format(day time.Time) string {
	return day.In(c.Location()).Format(DayLayout)
}

// Weekday returns the local weekday of t.
func (c Calendar) Weekday(t time.Time) time.Weekday {
	return t.In(c.Location()).Weekday()
}

// At returns the instant minute minutes after local midnight of day.
func (c Calendar) At(day time.Time, minute int) time.Time {
	lt := day.In(c.Location())
	return time.Date(lt.Year(), lt.Month(), lt.Day(), minute/60, minute%60, 0, 0, c.Location()).UTC()
}

// MinuteOfDay returns minutes elapsed since local midnight for t.
func (c Calendar) MinuteOfDay(t time.Time) int {
	lt := t.In(c.Location())
	return lt.Hour()*60 + lt.Minute()
}

// StartOfWeek returns the Monday of the local week containing t.
func (c Calendar) StartOfWeek(t time.Time) time.Time {
	lt := t.In(c.Location())
	offset := (int(lt.Weekday()) + 6) % 7
	return c.Day(time.Date(lt.Year(), lt.Month(), lt.Day()-offset, 12, 0, 0, 0, c.Location()))
}

// AddDays moves day by n local calendar days.
func (c Calendar) AddDays(day time.Time, n int) time.Time {
	lt := day.In(c.Location())
	return time.Date(lt.Year(), lt.Month(), lt.Day()+n, 0, 0, 0, 0, c.Location()).UTC()
}

// DaysBetween counts whole local calendar days from from to to. Zone
// transitions do not shift the count.
func (c Calendar) DaysBetween(from, to time.Time) int {
	f := from.In(c.Location())
	t := to.In(c.Location())
	fu := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	tu := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(tu.Sub(fu).Hours() / 24)
}

// ParseClock converts "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes after midnight as "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// Interval is a half-open [Start, End) range of minutes within one day.
type Interval struct {
	Start int
	End   int
}

// ParseInterval builds an Interval from two "HH:MM" strings.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Interval{}, err
	}
	if e <= s {
		return Interval{}, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidClock, end, start)
	}
	return Interval{Start: s, End: e}, nil
}

// Overlaps reports whether two half-open intervals intersect. Back-to-back
// classes (18:00-19:00 and 19:00-20:00) do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// String renders the interval as "HH:MM-HH:MM".
func (i Interval) String() string {
	return FormatClock(i.Start) + "-" + FormatClock(i.End)
}
