package practicesong

import (
	"errors"
	"maps"
	"slices"
	"strings"
)

// Domain errors
var (
	ErrEmptyID    = errors.New("practice song id is required")
	ErrEmptyTitle = errors.New("practice song title cannot be empty")
	ErrNotFound   = errors.New("practice song not found")
)

// Song is a piece scheduled for rehearsal.
type Song struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Composer    string `json:"composer"`
	Description string `json:"description"`
	Difficulty  string `json:"difficulty"`
}

// Validate checks if the Song has valid data.
// PRE: Song struct is initialized
// POST: Returns error if validation fails, nil otherwise
func (s *Song) Validate() error {
	if s.ID == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(s.Title) == "" {
		return ErrEmptyTitle
	}
	return nil
}

// Songs is the practice-song list ordered by id.
type Songs []Song

// Find returns the song with the given id.
func (l Songs) Find(id string) (Song, bool) {
	for _, s := range l {
		if s.ID == id {
			return s, true
		}
	}
	return Song{}, false
}

// Upsert replaces the song with the same id or inserts it in id order.
func (l Songs) Upsert(s Song) Songs {
	out := slices.Clone(l)
	i, found := slices.BinarySearchFunc(out, s.ID, func(e Song, id string) int {
		return strings.Compare(e.ID, id)
	})
	if found {
		out[i] = s
		return out
	}
	return slices.Insert(out, i, s)
}

// Remove returns the list without song id.
func (l Songs) Remove(id string) Songs {
	return slices.DeleteFunc(slices.Clone(l), func(s Song) bool { return s.ID == id })
}

// Clone returns an independent copy.
func (l Songs) Clone() Songs {
	return slices.Clone(l)
}

// Equal reports whether both lists hold the same songs in the same order.
func (l Songs) Equal(other Songs) bool {
	return slices.Equal(l, other)
}

// Assignments maps a session number to the ids of songs practised in it.
// Each id list is sorted and free of duplicates.
type Assignments map[int][]string

// Add assigns songID to session. Returns false when it was already assigned.
// PRE: a is non-nil
func (a Assignments) Add(session int, songID string) bool {
	ids := a[session]
	i, found := slices.BinarySearch(ids, songID)
	if found {
		return false
	}
	a[session] = slices.Insert(slices.Clone(ids), i, songID)
	return true
}

// Remove unassigns songID from session. Returns false when it was not assigned.
func (a Assignments) Remove(session int, songID string) bool {
	ids := a[session]
	i, found := slices.BinarySearch(ids, songID)
	if !found {
		return false
	}
	ids = slices.Delete(slices.Clone(ids), i, i+1)
	if len(ids) == 0 {
		delete(a, session)
	} else {
		a[session] = ids
	}
	return true
}

// RemoveSong drops songID from every session.
func (a Assignments) RemoveSong(songID string) {
	for session := range a {
		a.Remove(session, songID)
	}
}

// Has reports whether songID is assigned to session.
func (a Assignments) Has(session int, songID string) bool {
	_, found := slices.BinarySearch(a[session], songID)
	return found
}

// Clone returns a deep copy.
func (a Assignments) Clone() Assignments {
	out := make(Assignments, len(a))
	for session, ids := range a {
		out[session] = slices.Clone(ids)
	}
	return out
}

// Equal compares both maps ignoring empty sessions.
func (a Assignments) Equal(other Assignments) bool {
	return maps.EqualFunc(a.compact(), other.compact(), func(x, y []string) bool {
		return slices.Equal(x, y)
	})
}

func (a Assignments) compact() Assignments {
	out := make(Assignments, len(a))
	for session, ids := range a {
		if len(ids) > 0 {
			out[session] = ids
		}
	}
	return out
}
