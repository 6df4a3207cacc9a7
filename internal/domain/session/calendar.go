package session

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Domain errors
var (
	ErrEmptyStartDate   = errors.New("term start date cannot be zero")
	ErrInvalidTotal     = errors.New("total sessions must be at least 1")
	ErrHolidayOutOfTerm = errors.New("holiday session is outside the term")
	ErrClosingOutOfTerm = errors.New("closing session is outside the term")
)

// Calendar maps wall-clock dates to 1-based weekly session numbers.
// Sessions are held every 7 days from StartDate; holiday sessions keep their
// slot in the numbering but do not meet.
type Calendar struct {
	StartDate      time.Time
	TotalSessions  int
	Holidays       []int
	ClosingSession int       // 0 when the term has no labelled closing session
	ClosingDate    time.Time // optional date override for ClosingSession
	Location       *time.Location
}

// Option is one entry of the session dropdown.
type Option struct {
	Number  int       `json:"number"`
	Label   string    `json:"label"`
	Date    time.Time `json:"date"`
	Holiday bool      `json:"holiday"`
	Default bool      `json:"default"`
}

// Validate checks if the Calendar has valid data.
// PRE: Calendar struct is populated
// POST: Returns nil if valid, error otherwise
func (c Calendar) Validate() error {
	if c.StartDate.IsZero() {
		return ErrEmptyStartDate
	}
	if c.TotalSessions < 1 {
		return ErrInvalidTotal
	}
	for _, h := range c.Holidays {
		if h < 1 || h > c.TotalSessions {
			return fmt.Errorf("%w: %d", ErrHolidayOutOfTerm, h)
		}
	}
	if c.ClosingSession < 0 || c.ClosingSession > c.TotalSessions {
		return ErrClosingOutOfTerm
	}
	return nil
}

// IsHoliday reports whether session n is a holiday.
func (c Calendar) IsHoliday(n int) bool {
	return slices.Contains(c.Holidays, n)
}

// InRange reports whether n is a valid session number.
func (c Calendar) InRange(n int) bool {
	return n >= 1 && n <= c.TotalSessions
}

func (c Calendar) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.Local
}

// civilDay returns the number of whole days between the Unix epoch and t's
// calendar date in loc. DST shifts never change the result.
func civilDay(t time.Time, loc *time.Location) int {
	y, m, d := t.In(loc).Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// SessionForDate returns the session active on now's calendar date.
// Each elapsed week consumes one non-holiday session, so holidays push the
// active session forward by their count.
// PRE: Calendar is valid
// POST: Returns a value in [1, TotalSessions]; non-decreasing in now
func (c Calendar) SessionForDate(now time.Time) int {
	loc := c.location()
	days := civilDay(now, loc) - civilDay(c.StartDate, loc)
	if days < 0 {
		return 1
	}
	remaining := days/7 + 1
	for n := 1; n <= c.TotalSessions; n++ {
		if c.IsHoliday(n) {
			continue
		}
		remaining--
		if remaining == 0 {
			return n
		}
	}
	return max(c.TotalSessions, 1)
}

// DefaultSession returns this week's session: now is advanced to the coming
// Sunday (or kept when it already is Sunday) before numbering.
// PRE: Calendar is valid
// POST: Returns a value in [1, TotalSessions]
func (c Calendar) DefaultSession(now time.Time) int {
	local := now.In(c.location())
	ahead := (7 - int(local.Weekday())) % 7
	return c.SessionForDate(local.AddDate(0, 0, ahead))
}

// DateOf returns the meeting date of session n.
func (c Calendar) DateOf(n int) time.Time {
	if n == c.ClosingSession && !c.ClosingDate.IsZero() {
		return c.ClosingDate
	}
	start := c.StartDate.In(c.location())
	return start.AddDate(0, 0, (n-1)*7)
}

// holidaysBefore counts holiday sessions numbered below n.
func (c Calendar) holidaysBefore(n int) int {
	count := 0
	for _, h := range c.Holidays {
		if h < n {
			count++
		}
	}
	return count
}

// Label renders the dropdown text for session n.
func (c Calendar) Label(n int) string {
	date := c.DateOf(n)
	md := fmt.Sprintf("%d/%d", int(date.Month()), date.Day())
	if c.IsHoliday(n) {
		return fmt.Sprintf("Holiday (%s)", md)
	}
	label := fmt.Sprintf("%d회차 (%s)", n-c.holidaysBefore(n), md)
	if n == c.ClosingSession {
		label += " - 종강"
	}
	return label
}

// Options lists every session with its label, marking the default selection for now.
func (c Calendar) Options(now time.Time) []Option {
	def := c.DefaultSession(now)
	opts := make([]Option, 0, c.TotalSessions)
	for n := 1; n <= c.TotalSessions; n++ {
		opts = append(opts, Option{
			Number:  n,
			Label:   c.Label(n),
			Date:    c.DateOf(n),
			Holiday: c.IsHoliday(n),
			Default: n == def,
		})
	}
	return opts
}
