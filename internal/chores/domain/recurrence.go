// Package domain contains the chore scheduling domain model.
package domain

import (
	"errors"
	"sort"
	"time"
)

// Common errors for recurrence patterns.
var (
	ErrInvalidInterval    = errors.New("recurrence interval must be positive")
	ErrInvalidKind        = errors.New("invalid recurrence kind")
	ErrInvalidDayOfWeek   = errors.New("day of week must be 0..6")
	ErrInvalidDayOfMonth  = errors.New("day of month must be 1..31")
	ErrInvalidWeekOfMonth = errors.New("week of month must be 1..4 or last")
	ErrMissingWeekday     = errors.New("week-of-month pattern requires a weekday")
)

// RecurrenceKind represents the base cadence of a pattern.
type RecurrenceKind string

const (
	RecurrenceDaily   RecurrenceKind = "daily"
	RecurrenceWeekly  RecurrenceKind = "weekly"
	RecurrenceMonthly RecurrenceKind = "monthly"
	RecurrenceCustom  RecurrenceKind = "custom"
)

// IsValid checks if the kind is valid.
func (k RecurrenceKind) IsValid() bool {
	switch k {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceCustom:
		return true
	default:
		return false
	}
}

// LastWeekOfMonth selects the final occurrence of a weekday in the month.
const LastWeekOfMonth = -1

// RecurrencePattern describes how a scheduled task repeats. Patterns are
// immutable once attached to a task; replacing one invalidates future
// (not past) generated instances.
type RecurrencePattern struct {
	Kind     RecurrenceKind
	Interval int

	// DaysOfWeek constrains weekly patterns; for monthly week-of-month
	// patterns the first entry is the target weekday.
	DaysOfWeek []time.Weekday

	// DayOfMonth anchors monthly patterns to a calendar day, clamped to
	// the target month's length.
	DayOfMonth int

	// WeekOfMonth anchors monthly patterns to the Nth (1..4) or last
	// occurrence of a weekday.
	WeekOfMonth int

	EndDate        *time.Time
	MaxOccurrences int
	SkipHolidays   bool
}

// Validate rejects malformed patterns. Validation happens at task
// creation; dispatch-time code may assume a valid pattern.
func (p RecurrencePattern) Validate() error {
	if !p.Kind.IsValid() {
		return ErrInvalidKind
	}
	if p.Interval < 1 {
		return ErrInvalidInterval
	}
	for _, d := range p.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			return ErrInvalidDayOfWeek
		}
	}
	if p.DayOfMonth != 0 && (p.DayOfMonth < 1 || p.DayOfMonth > 31) {
		return ErrInvalidDayOfMonth
	}
	if p.WeekOfMonth != 0 {
		if p.WeekOfMonth != LastWeekOfMonth && (p.WeekOfMonth < 1 || p.WeekOfMonth > 4) {
			return ErrInvalidWeekOfMonth
		}
		if len(p.DaysOfWeek) == 0 {
			return ErrMissingWeekday
		}
	}
	return nil
}

// Ended reports whether the pattern has run out at the given candidate
// date, either past its end date or past its occurrence budget.
func (p RecurrencePattern) Ended(candidate time.Time, occurrences int) bool {
	if p.EndDate != nil && candidate.After(*p.EndDate) {
		return true
	}
	if p.MaxOccurrences > 0 && occurrences >= p.MaxOccurrences {
		return true
	}
	return false
}

// NextDueDate computes the next occurrence strictly after from, using the
// default holiday calendar. Pure and deterministic; never mutates p.
func NextDueDate(p RecurrencePattern, from time.Time) (time.Time, error) {
	return NextDueDateIn(p, from, DefaultHolidays)
}

// NextDueDateIn is NextDueDate with an explicit holiday calendar.
func NextDueDateIn(p RecurrencePattern, from time.Time, holidays *HolidayCalendar) (time.Time, error) {
	if err := p.Validate(); err != nil {
		return time.Time{}, err
	}

	var next time.Time
	switch p.Kind {
	case RecurrenceDaily:
		next = from.AddDate(0, 0, p.Interval)
	case RecurrenceWeekly:
		next = nextWeekly(p, from)
	case RecurrenceMonthly:
		next = nextMonthly(p, from)
	case RecurrenceCustom:
		// Custom treats the interval as raw days.
		next = from.AddDate(0, 0, p.Interval)
	}

	if p.SkipHolidays && holidays != nil {
		for holidays.IsHoliday(next) {
			next = next.AddDate(0, 0, 1)
		}
	}

	return next, nil
}

func nextWeekly(p RecurrencePattern, from time.Time) time.Time {
	if len(p.DaysOfWeek) == 0 {
		return from.AddDate(0, 0, 7*p.Interval)
	}

	days := append([]time.Weekday(nil), p.DaysOfWeek...)
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	// Smallest weekday in the set strictly after from's weekday, wrapping
	// to the smallest weekday next week when none remains.
	cur := from.Weekday()
	delta := 0
	for _, d := range days {
		if d > cur {
			delta = int(d - cur)
			break
		}
	}
	if delta == 0 {
		delta = 7 - int(cur) + int(days[0])
	}

	return from.AddDate(0, 0, delta+(p.Interval-1)*7)
}

func nextMonthly(p RecurrencePattern, from time.Time) time.Time {
	year, month := from.Year(), int(from.Month())+p.Interval

	if p.WeekOfMonth != 0 {
		return nthWeekdayOfMonth(year, month, p.DaysOfWeek[0], p.WeekOfMonth, from)
	}

	dayOfMonth := p.DayOfMonth
	if dayOfMonth == 0 {
		dayOfMonth = from.Day()
	}
	// Clamp so Jan 31 + 1 month lands on Feb 28/29, not Mar 2/3.
	if last := daysInMonth(year, month); dayOfMonth > last {
		dayOfMonth = last
	}

	return time.Date(year, time.Month(month), dayOfMonth,
		from.Hour(), from.Minute(), from.Second(), 0, from.Location())
}

// nthWeekdayOfMonth locates the Nth occurrence of a weekday in the given
// month, or the final occurrence when n is LastWeekOfMonth. The clock
// time is carried over from ref.
func nthWeekdayOfMonth(year, month int, weekday time.Weekday, n int, ref time.Time) time.Time {
	clock := func(day int) time.Time {
		return time.Date(year, time.Month(month), day,
			ref.Hour(), ref.Minute(), ref.Second(), 0, ref.Location())
	}

	if n == LastWeekOfMonth {
		day := daysInMonth(year, month)
		for clock(day).Weekday() != weekday {
			day--
		}
		return clock(day)
	}

	day := 1
	for clock(day).Weekday() != weekday {
		day++
	}
	return clock(day + (n-1)*7)
}

func daysInMonth(year, month int) int {
	// Day zero of the following month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
