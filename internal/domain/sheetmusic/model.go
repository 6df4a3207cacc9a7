package sheetmusic

import (
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Max length constants for user-editable fields.
const (
	MaxTitleLength = 200
	MaxFileSize    = 20 << 20
)

// Difficulty constants
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Domain errors
var (
	ErrEmptyID          = errors.New("sheet music id is required")
	ErrEmptyTitle       = errors.New("sheet music title cannot be empty")
	ErrTitleTooLong     = errors.New("sheet music title cannot exceed 200 characters")
	ErrInvalidDiff      = errors.New("difficulty must be easy, medium, hard or empty")
	ErrNotFound         = errors.New("sheet music not found")
	ErrFileNotFound     = errors.New("attachment not found")
	ErrFileTooLarge     = errors.New("attachment exceeds 20MB")
	ErrEmptyFileName    = errors.New("attachment name cannot be empty")
	ErrNoAttachmentData = errors.New("attachment has neither a storage path nor inline data")
	ErrBadEscape        = errors.New("malformed escaped storage name")
)

// Attachment is a file attached to a sheet. Exactly one of StoragePath
// (remote blob) or InlineBase64 (offline copy) is set.
type Attachment struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	Type         string `json:"type"`
	StoragePath  string `json:"storagePath,omitempty"`
	InlineBase64 string `json:"inlineBase64,omitempty"`
}

// IsInline reports whether the bytes live in the document itself.
func (a Attachment) IsInline() bool {
	return a.StoragePath == "" && a.InlineBase64 != ""
}

// InlineBytes decodes the inline copy.
func (a Attachment) InlineBytes() ([]byte, error) {
	if a.InlineBase64 == "" {
		return nil, ErrNoAttachmentData
	}
	return base64.StdEncoding.DecodeString(a.InlineBase64)
}

// SheetMusic is one catalog entry.
type SheetMusic struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Composer   string       `json:"composer"`
	Arranger   string       `json:"arranger"`
	Genre      string       `json:"genre"`
	Difficulty string       `json:"difficulty"`
	Notes      string       `json:"notes"`
	Files      []Attachment `json:"files"`
}

// Validate checks if the SheetMusic has valid data.
// PRE: SheetMusic struct is initialized
// POST: Returns error if validation fails, nil otherwise
func (s *SheetMusic) Validate() error {
	if s.ID == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(s.Title) == "" {
		return ErrEmptyTitle
	}
	if len(s.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if !ValidDifficulty(s.Difficulty) {
		return ErrInvalidDiff
	}
	for _, f := range s.Files {
		if f.StoragePath == "" && f.InlineBase64 == "" {
			return fmt.Errorf("%s: %w", f.Name, ErrNoAttachmentData)
		}
	}
	return nil
}

// ValidDifficulty accepts the three levels or an empty value.
func ValidDifficulty(d string) bool {
	return d == "" || d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// File returns the attachment with the given id.
func (s SheetMusic) File(id string) (Attachment, bool) {
	for _, f := range s.Files {
		if f.ID == id {
			return f, true
		}
	}
	return Attachment{}, false
}

// Equal compares all fields including attachments.
func (s SheetMusic) Equal(other SheetMusic) bool {
	return s.ID == other.ID &&
		s.Title == other.Title &&
		s.Composer == other.Composer &&
		s.Arranger == other.Arranger &&
		s.Genre == other.Genre &&
		s.Difficulty == other.Difficulty &&
		s.Notes == other.Notes &&
		slices.Equal(s.Files, other.Files)
}

// Catalog is the sheet-music list ordered by id. Ids are time-ordered, so
// this is also creation order.
type Catalog []SheetMusic

// Find returns the sheet with the given id.
func (c Catalog) Find(id string) (SheetMusic, bool) {
	for _, s := range c {
		if s.ID == id {
			return s, true
		}
	}
	return SheetMusic{}, false
}

// Upsert replaces the sheet with the same id or inserts it in id order.
func (c Catalog) Upsert(s SheetMusic) Catalog {
	out := c.Clone()
	i, found := slices.BinarySearchFunc(out, s.ID, func(e SheetMusic, id string) int {
		return strings.Compare(e.ID, id)
	})
	if found {
		out[i] = s
		return out
	}
	return slices.Insert(out, i, s)
}

// Remove returns the catalog without sheet id.
func (c Catalog) Remove(id string) Catalog {
	return slices.DeleteFunc(c.Clone(), func(s SheetMusic) bool { return s.ID == id })
}

// Clone returns a deep copy, attachments included.
func (c Catalog) Clone() Catalog {
	if c == nil {
		return nil
	}
	out := make(Catalog, len(c))
	for i, s := range c {
		s.Files = slices.Clone(s.Files)
		out[i] = s
	}
	return out
}

// Equal reports whether both catalogs hold equal sheets in the same order.
func (c Catalog) Equal(other Catalog) bool {
	return slices.EqualFunc(c, other, SheetMusic.Equal)
}

// StoragePath builds the blob key {resourceId}/{fileId}_{sanitizedName}.
func StoragePath(resourceID, fileID, name string) string {
	return resourceID + "/" + fileID + "_" + SanitizeName(name)
}

// isSafe reports whether b may appear unescaped in a storage key.
func isSafe(b byte) bool {
	return b >= 'a' && b <= 'z' ||
		b >= 'A' && b <= 'Z' ||
		b >= '0' && b <= '9' ||
		b == '.' || b == '-' || b == '_'
}

// SanitizeName escapes every byte outside [A-Za-z0-9._-] as ~XX so that
// non-ASCII names become valid storage keys. UnsanitizeName reverses it.
func SanitizeName(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isSafe(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "~%02X", c)
	}
	return b.String()
}

// UnsanitizeName restores a name escaped by SanitizeName.
func UnsanitizeName(escaped string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(escaped); i++ {
		c := escaped[i]
		if c != '~' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(escaped) {
			return "", ErrBadEscape
		}
		v, err := strconv.ParseUint(escaped[i+1:i+3], 16, 8)
		if err != nil {
			return "", ErrBadEscape
		}
		b.WriteByte(byte(v))
		i += 2
	}
	return b.String(), nil
}
