package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"chamber/internal/domain/session"
)

// TermFile is the on-disk shape of a term calendar.
//
//	start_date      = 2025-09-07
//	total_sessions  = 12
//	holidays        = [5]
//	closing_session = 12
//	closing_date    = 2025-11-30
//	timezone        = "Asia/Seoul"
type TermFile struct {
	StartDate      toml.LocalDate  `toml:"start_date"`
	TotalSessions  int             `toml:"total_sessions"`
	Holidays       []int           `toml:"holidays"`
	ClosingSession int             `toml:"closing_session"`
	ClosingDate    *toml.LocalDate `toml:"closing_date"`
	Timezone       string          `toml:"timezone"`
}

// DefaultTimezone is used when a term file names none.
const DefaultTimezone = "Asia/Seoul"

// DefaultCalendar is the autumn 2025 term: twelve Sunday sessions from
// 2025-09-07, session 5 cancelled, session 12 closing on 2025-11-30.
func DefaultCalendar() session.Calendar {
	loc := loadLocation(DefaultTimezone)
	return session.Calendar{
		StartDate:      time.Date(2025, 9, 7, 0, 0, 0, 0, loc),
		TotalSessions:  12,
		Holidays:       []int{5},
		ClosingSession: 12,
		ClosingDate:    time.Date(2025, 11, 30, 0, 0, 0, 0, loc),
		Location:       loc,
	}
}

// LoadCalendar reads a TOML term file. An empty path returns DefaultCalendar.
// PRE: none
// POST: Returns a validated calendar or an error
func LoadCalendar(path string) (session.Calendar, error) {
	if path == "" {
		return DefaultCalendar(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return session.Calendar{}, fmt.Errorf("read calendar: %w", err)
	}
	return ParseCalendar(data)
}

// ParseCalendar decodes and validates a TOML term definition. Unknown keys are rejected.
func ParseCalendar(data []byte) (session.Calendar, error) {
	var tf TermFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tf); err != nil {
		return session.Calendar{}, fmt.Errorf("decode calendar: %w", err)
	}

	tz := tf.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return session.Calendar{}, fmt.Errorf("calendar timezone: %w", err)
	}

	cal := session.Calendar{
		TotalSessions:  tf.TotalSessions,
		Holidays:       tf.Holidays,
		ClosingSession: tf.ClosingSession,
		Location:       loc,
	}
	if tf.StartDate != (toml.LocalDate{}) {
		cal.StartDate = tf.StartDate.AsTime(loc)
	}
	if tf.ClosingDate != nil {
		cal.ClosingDate = tf.ClosingDate.AsTime(loc)
	}
	if err := cal.Validate(); err != nil {
		return session.Calendar{}, err
	}
	return cal, nil
}

// loadLocation falls back to a fixed +09:00 zone when tzdata is unavailable.
func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}
