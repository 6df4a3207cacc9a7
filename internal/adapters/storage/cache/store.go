package cache

import (
	"context"
	"errors"
)

// Keys of the persisted local resources.
const (
	KeyAttendance    = "chamber_attendance_local"
	KeyMembers       = "chamber_members"
	KeySheetMusic    = "chamber_sheet_music"
	KeyPracticeSongs = "chamber_practice_songs"
	KeySessionSongs  = "chamber_session_songs"
)

// blobPrefix namespaces attachment bytes kept for offline download.
const blobPrefix = "chamber_blob/"

// BlobKey returns the cache key holding the bytes of a stored attachment.
func BlobKey(storagePath string) string {
	return blobPrefix + storagePath
}

// ErrNotFound is returned by Load when nothing is stored under the key.
var ErrNotFound = errors.New("cache key not found")

// Store persists string-keyed blobs: JSON documents and attachment bytes.
type Store interface {
	// Load returns the blob stored under key or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save replaces the blob stored under key.
	Save(ctx context.Context, key string, value []byte) error
	// Delete removes key; a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
