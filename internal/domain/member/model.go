package member

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Max length constants for user-editable fields.
const (
	MaxNameLength = 100
)

// Instrument constants, in roster display order.
const (
	InstrumentViolin   = "violin"
	InstrumentCello    = "cello"
	InstrumentFlute    = "flute"
	InstrumentClarinet = "clarinet"
	InstrumentPiano    = "piano"
)

// Instruments lists every supported instrument in summary order.
var Instruments = []string{
	InstrumentViolin,
	InstrumentCello,
	InstrumentFlute,
	InstrumentClarinet,
	InstrumentPiano,
}

// Domain errors
var (
	ErrInvalidNo         = errors.New("member number must be positive")
	ErrEmptyName         = errors.New("member name cannot be empty")
	ErrNameTooLong       = errors.New("member name cannot exceed 100 characters")
	ErrInvalidInstrument = errors.New("instrument must be one of violin, cello, flute, clarinet, piano")
	ErrDuplicateNo       = errors.New("member number is already taken")
	ErrNotFound          = errors.New("member not found")
)

// Member is one roster entry. No is the stable domain key; remote surrogate
// ids never appear here.
type Member struct {
	No         int    `json:"no"`
	Name       string `json:"name"`
	Instrument string `json:"instrument"`
}

// Validate checks if the Member has valid data.
// PRE: Member struct is initialized
// POST: Returns error if validation fails, nil otherwise
func (m *Member) Validate() error {
	if m.No <= 0 {
		return ErrInvalidNo
	}
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyName
	}
	if len(m.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	if !IsInstrument(m.Instrument) {
		return ErrInvalidInstrument
	}
	return nil
}

// IsInstrument reports whether s is a supported instrument.
func IsInstrument(s string) bool {
	return slices.Contains(Instruments, s)
}

// ParseInstrument normalizes free-form input (case, Korean names) to an instrument constant.
func ParseInstrument(s string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "바이올린":
		v = InstrumentViolin
	case "첼로":
		v = InstrumentCello
	case "플룻", "플루트":
		v = InstrumentFlute
	case "클라리넷":
		v = InstrumentClarinet
	case "피아노":
		v = InstrumentPiano
	}
	if !IsInstrument(v) {
		return "", fmt.Errorf("%w: %q", ErrInvalidInstrument, s)
	}
	return v, nil
}

// Roster is the ordered member list.
type Roster []Member

// Find returns the member with the given number.
func (r Roster) Find(no int) (Member, bool) {
	for _, m := range r {
		if m.No == no {
			return m, true
		}
	}
	return Member{}, false
}

// Upsert replaces the member with the same number or appends it, keeping
// the roster sorted by number.
// POST: exactly one entry has m.No
func (r Roster) Upsert(m Member) Roster {
	out := slices.Clone(r)
	for i := range out {
		if out[i].No == m.No {
			out[i] = m
			return out
		}
	}
	out = append(out, m)
	slices.SortFunc(out, func(a, b Member) int { return a.No - b.No })
	return out
}

// Remove returns the roster without member no.
func (r Roster) Remove(no int) Roster {
	return slices.DeleteFunc(slices.Clone(r), func(m Member) bool { return m.No == no })
}

// Clone returns an independent copy.
func (r Roster) Clone() Roster {
	return slices.Clone(r)
}

// Equal reports whether both rosters hold the same members in the same order.
func (r Roster) Equal(other Roster) bool {
	return slices.Equal(r, other)
}
