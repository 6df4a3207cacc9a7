// Package remote is the hosted backend mirror: relational tables for every
// synchronized resource plus a blob store for sheet-music attachments.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chamber/internal/domain/member"
	"chamber/internal/domain/practicesong"
	"chamber/internal/domain/sheetmusic"
)

// ErrNotFound is returned when a lookup matches no remote row.
var ErrNotFound = errors.New("remote row not found")

// RequestError wraps a failed remote round-trip.
type RequestError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying driver error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// MemberRow is a members row. ID is the backend surrogate key.
type MemberRow struct {
	ID         int64
	No         int
	Name       string
	Instrument string
}

// AttendanceRow is an attendance_records row; it references the member by surrogate id.
type AttendanceRow struct {
	MemberID      int64
	SessionNumber int
	Status        string
	UpdatedAt     time.Time
}

// SessionSongRow links a practice song to a session.
type SessionSongRow struct {
	SessionNumber  int
	PracticeSongID string
}

// Client is the relational side of the remote store.
type Client interface {
	Ping(ctx context.Context) error

	ListMembers(ctx context.Context) ([]MemberRow, error)
	FindMemberByNo(ctx context.Context, no int) (MemberRow, error)
	UpsertMember(ctx context.Context, m member.Member) (MemberRow, error)
	InsertMembers(ctx context.Context, ms []member.Member) error
	// DeleteMember removes the member and its attendance rows.
	DeleteMember(ctx context.Context, no int) error

	ListAttendance(ctx context.Context) ([]AttendanceRow, error)
	// UpsertAttendance writes one row keyed by (member_id, session_number).
	UpsertAttendance(ctx context.Context, row AttendanceRow) error

	ListSheetMusic(ctx context.Context) ([]sheetmusic.SheetMusic, error)
	UpsertSheetMusic(ctx context.Context, s sheetmusic.SheetMusic) error
	DeleteSheetMusic(ctx context.Context, id string) error

	ListPracticeSongs(ctx context.Context) ([]practicesong.Song, error)
	UpsertPracticeSong(ctx context.Context, s practicesong.Song) error
	// DeletePracticeSong removes the song and its session links.
	DeletePracticeSong(ctx context.Context, id string) error

	ListSessionSongs(ctx context.Context) ([]SessionSongRow, error)
	AddSessionSong(ctx context.Context, session int, songID string) error
	RemoveSessionSong(ctx context.Context, session int, songID string) error
}

// BlobStore holds attachment bytes keyed by storage path.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, data []byte) error
	GetObject(ctx context.Context, path string) ([]byte, string, error)
	DeleteObject(ctx context.Context, path string) error
}
