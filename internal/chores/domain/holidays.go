package domain

import "time"

// HolidayCalendar is a set of fixed month-day holidays. Patterns with
// SkipHolidays advance past any date the calendar contains.
type HolidayCalendar struct {
	days map[string]struct{}
}

// NewHolidayCalendar builds a calendar from "MM-DD" entries.
func NewHolidayCalendar(monthDays ...string) *HolidayCalendar {
	cal := &HolidayCalendar{days: make(map[string]struct{}, len(monthDays))}
	for _, d := range monthDays {
		cal.days[d] = struct{}{}
	}
	return cal
}

// Add marks another "MM-DD" as a holiday, e.g. household-specific days.
func (c *HolidayCalendar) Add(monthDay string) {
	c.days[monthDay] = struct{}{}
}

// IsHoliday reports whether t falls on a holiday.
func (c *HolidayCalendar) IsHoliday(t time.Time) bool {
	_, ok := c.days[t.Format("01-02")]
	return ok
}

// DefaultHolidays is the fixed holiday set chores are never scheduled on.
var DefaultHolidays = NewHolidayCalendar(
	"01-01", // New Year's Day
	"07-04", // Independence Day
	"12-24", // Christmas Eve
	"12-25", // Christmas Day
	"12-31", // New Year's Eve
)
