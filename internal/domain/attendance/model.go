package attendance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

// Status is the attendance state of one member in one session.
type Status string

// Status constants
const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusPending Status = "pending"
	StatusHoliday Status = "holiday"
)

// Domain errors
var (
	ErrInvalidStatus  = errors.New("status must be present, absent or pending")
	ErrHolidaySession = errors.New("attendance cannot be recorded for a holiday session")
	ErrInvalidSession = errors.New("session number out of range")
)

// ParseStatus parses a user-selectable status. HOLIDAY is synthesized, never chosen.
// PRE: none
// POST: Returns one of present/absent/pending or ErrInvalidStatus
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPresent:
		return StatusPresent, nil
	case StatusAbsent:
		return StatusAbsent, nil
	case StatusPending:
		return StatusPending, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Record is a stored attendance value. Timestamp is nil for values that
// arrived in the legacy bare-string shape.
type Record struct {
	Status    Status
	Timestamp *time.Time
}

type recordJSON struct {
	Status    Status     `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// MarshalJSON always writes the object form.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{Status: r.Status, Timestamp: r.Timestamp})
}

// UnmarshalJSON accepts both the legacy bare string and the object form.
func (r *Record) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Record{Status: Status(s)}
		return nil
	}
	var v recordJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Record{Status: v.Status, Timestamp: v.Timestamp}
	return nil
}

// Equal compares status and timestamp instant.
func (r Record) Equal(other Record) bool {
	if r.Status != other.Status {
		return false
	}
	switch {
	case r.Timestamp == nil && other.Timestamp == nil:
		return true
	case r.Timestamp == nil || other.Timestamp == nil:
		return false
	}
	return r.Timestamp.Equal(*other.Timestamp)
}

// NormalizeRemote converts a remote status column into a Record. Legacy rows
// stored the whole {status, timestamp} object as text; newer rows store the bare
// status and carry the time in updated_at.
// PRE: raw is the remote status column
// POST: Returns a Record with a recognised status, or an error
func NormalizeRemote(raw string, updatedAt time.Time) (Record, error) {
	raw = strings.TrimSpace(raw)
	var rec Record
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return Record{}, fmt.Errorf("decode legacy attendance value: %w", err)
		}
	} else {
		rec.Status = Status(strings.ToLower(raw))
	}
	if _, err := ParseStatus(string(rec.Status)); err != nil {
		return Record{}, err
	}
	if rec.Timestamp == nil && !updatedAt.IsZero() {
		ts := updatedAt.UTC()
		rec.Timestamp = &ts
	}
	return rec, nil
}

// Sheet maps session -> member number -> record.
type Sheet map[int]map[int]Record

// Get returns the stored record, if any.
func (s Sheet) Get(session, memberNo int) (Record, bool) {
	rec, ok := s[session][memberNo]
	return rec, ok
}

// Set stores a record, creating the session row on demand.
// PRE: s is non-nil
func (s Sheet) Set(session, memberNo int, rec Record) {
	row, ok := s[session]
	if !ok {
		row = make(map[int]Record)
		s[session] = row
	}
	row[memberNo] = rec
}

// DeleteMember removes every entry keyed by memberNo across all sessions and
// drops session rows left empty. Returns the number of entries removed.
func (s Sheet) DeleteMember(memberNo int) int {
	removed := 0
	for session, row := range s {
		if _, ok := row[memberNo]; ok {
			delete(row, memberNo)
			removed++
		}
		if len(row) == 0 {
			delete(s, session)
		}
	}
	return removed
}

// Clone returns a deep copy.
func (s Sheet) Clone() Sheet {
	out := make(Sheet, len(s))
	for session, row := range s {
		out[session] = maps.Clone(row)
	}
	return out
}

// Equal reports whether both sheets hold the same records. Empty session rows
// are ignored.
func (s Sheet) Equal(other Sheet) bool {
	if s.count() != other.count() {
		return false
	}
	for session, row := range s {
		for no, rec := range row {
			o, ok := other[session][no]
			if !ok || !rec.Equal(o) {
				return false
			}
		}
	}
	return true
}

func (s Sheet) count() int {
	n := 0
	for _, row := range s {
		n += len(row)
	}
	return n
}

// Summary counts members per status.
type Summary struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Pending int `json:"pending"`
	Holiday int `json:"holiday"`
	Total   int `json:"total"`
}

// Add counts one member with the given status.
func (s *Summary) Add(status Status) {
	switch status {
	case StatusPresent:
		s.Present++
	case StatusAbsent:
		s.Absent++
	case StatusHoliday:
		s.Holiday++
	default:
		s.Pending++
	}
	s.Total++
}
