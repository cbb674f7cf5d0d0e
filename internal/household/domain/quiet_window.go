package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidClock reports a malformed "HH:MM" value.
var ErrInvalidClock = errors.New("invalid clock value, want HH:MM")

// QuietWindow is a daily time window during which non-urgent deliveries
// are deferred. The window may span midnight (e.g. 22:00-07:00).
type QuietWindow struct {
	start int // minutes from midnight
	end   int
}

// NewQuietWindow builds a window from "HH:MM" boundaries.
func NewQuietWindow(start, end string) (QuietWindow, error) {
	s, err := parseClock(start)
	if err != nil {
		return QuietWindow{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return QuietWindow{}, err
	}
	return QuietWindow{start: s, end: e}, nil
}

// Contains reports whether t falls inside the window.
func (w QuietWindow) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.start == w.end {
		return false
	}
	if w.start < w.end {
		return m >= w.start && m < w.end
	}
	// Window wraps past midnight.
	return m >= w.start || m < w.end
}

// NextEnd returns the first instant at or after t when the window closes.
// Calling it with a t outside the window returns t unchanged.
func (w QuietWindow) NextEnd(t time.Time) time.Time {
	if !w.Contains(t) {
		return t
	}

	end := time.Date(t.Year(), t.Month(), t.Day(), w.end/60, w.end%60, 0, 0, t.Location())
	if !end.After(t) {
		// The window wraps past midnight and t is before it; the
		// window closes tomorrow morning.
		end = end.AddDate(0, 0, 1)
	}
	return end
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, ErrInvalidClock
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, ErrInvalidClock
	}
	return h*60 + m, nil
}
