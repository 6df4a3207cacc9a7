package session

import (
	"errors"
	"testing"
	"time"
)

var kst = time.FixedZone("KST", 9*60*60)

func termCalendar() Calendar {
	return Calendar{
		StartDate:      time.Date(2025, 9, 7, 0, 0, 0, 0, kst),
		TotalSessions:  12,
		Holidays:       []int{5},
		ClosingSession: 12,
		ClosingDate:    time.Date(2025, 11, 30, 0, 0, 0, 0, kst),
		Location:       kst,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 19, 30, 0, 0, kst)
}

func TestValidate(t *testing.T) {
	if err := termCalendar().Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	tests := []struct {
		name string
		mod  func(*Calendar)
		want error
	}{
		{"zero start", func(c *Calendar) { c.StartDate = time.Time{} }, ErrEmptyStartDate},
		{"no sessions", func(c *Calendar) { c.TotalSessions = 0 }, ErrInvalidTotal},
		{"holiday past end", func(c *Calendar) { c.Holidays = []int{13} }, ErrHolidayOutOfTerm},
		{"closing past end", func(c *Calendar) { c.ClosingSession = 14 }, ErrClosingOutOfTerm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := termCalendar()
			tt.mod(&c)
			if err := c.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSessionForDate(t *testing.T) {
	c := termCalendar()
	tests := []struct {
		now  time.Time
		want int
	}{
		{day(2025, 9, 1), 1},  // before the term
		{day(2025, 9, 7), 1},  // first Sunday
		{day(2025, 9, 13), 1}, // Saturday of week one
		{day(2025, 9, 14), 2},
		{day(2025, 9, 28), 4},
		{day(2025, 10, 5), 6}, // holiday 5 is skipped
		{day(2025, 11, 23), 12},
		{day(2026, 3, 1), 12}, // after the term
	}
	for _, tt := range tests {
		if got := c.SessionForDate(tt.now); got != tt.want {
			t.Errorf("SessionForDate(%s) = %d, want %d", tt.now.Format("2006-01-02"), got, tt.want)
		}
	}
}

func TestSessionForDate_UsesCalendarZone(t *testing.T) {
	c := termCalendar()
	// 2025-09-13 16:00 UTC is already Sunday 09-14 in Seoul.
	now := time.Date(2025, 9, 13, 16, 0, 0, 0, time.UTC)
	if got := c.SessionForDate(now); got != 2 {
		t.Errorf("SessionForDate = %d, want 2", got)
	}
}

func TestSessionForDate_Monotonic(t *testing.T) {
	c := termCalendar()
	prev := 0
	for now := day(2025, 8, 1); now.Before(day(2026, 1, 31)); now = now.Add(7 * time.Hour) {
		got := c.SessionForDate(now)
		if got < prev {
			t.Fatalf("session went backwards at %s: %d after %d", now, got, prev)
		}
		if !c.InRange(got) {
			t.Fatalf("session %d out of range at %s", got, now)
		}
		prev = got
	}
}

func TestDefaultSession_AdvancesToSunday(t *testing.T) {
	c := termCalendar()
	tests := []struct {
		now  time.Time
		want int
	}{
		{day(2025, 9, 6), 1},  // Saturday before the first session
		{day(2025, 9, 7), 1},  // Sunday stays
		{day(2025, 9, 8), 2},  // Monday looks ahead to the next Sunday
		{day(2025, 10, 1), 6}, // Wednesday before the first post-holiday session
		{day(2025, 10, 5), 6},
	}
	for _, tt := range tests {
		if got := c.DefaultSession(tt.now); got != tt.want {
			t.Errorf("DefaultSession(%s) = %d, want %d", tt.now.Format("Mon 2006-01-02"), got, tt.want)
		}
	}
}

func TestLabel(t *testing.T) {
	c := termCalendar()
	tests := map[int]string{
		1:  "1회차 (9/7)",
		4:  "4회차 (9/28)",
		5:  "Holiday (10/5)",
		6:  "5회차 (10/12)",
		12: "11회차 (11/30) - 종강",
	}
	for n, want := range tests {
		if got := c.Label(n); got != want {
			t.Errorf("Label(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestOptions(t *testing.T) {
	c := termCalendar()
	opts := c.Options(day(2025, 10, 1))
	if len(opts) != c.TotalSessions {
		t.Fatalf("got %d options, want %d", len(opts), c.TotalSessions)
	}
	defaults := 0
	for _, o := range opts {
		if o.Default {
			defaults++
			if o.Number != 6 {
				t.Errorf("default option = %d, want 6", o.Number)
			}
		}
		if o.Holiday != (o.Number == 5) {
			t.Errorf("option %d holiday = %v", o.Number, o.Holiday)
		}
	}
	if defaults != 1 {
		t.Errorf("got %d default options, want 1", defaults)
	}
}
