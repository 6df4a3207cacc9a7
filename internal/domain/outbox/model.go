package outbox

import (
	"errors"
	"time"
)

// Status constants for outbox entry lifecycle.
const (
	StatusPending   = "pending"
	StatusRetrying  = "retrying"
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// Resource constants name the synchronized resource an entry belongs to.
const (
	ResourceAttendance    = "attendance"
	ResourceMembers       = "members"
	ResourceSheetMusic    = "sheet_music"
	ResourcePracticeSongs = "practice_songs"
	ResourceSessionSongs  = "session_songs"
)

// Action type constants, one per remote mutation.
const (
	ActionAttendanceUpsert = "attendance_upsert"
	ActionMemberUpsert     = "member_upsert"
	ActionMemberDelete     = "member_delete"
	ActionSheetUpsert      = "sheet_music_upsert"
	ActionSheetDelete      = "sheet_music_delete"
	ActionBlobUpload       = "blob_upload"
	ActionBlobDelete       = "blob_delete"
	ActionSongUpsert       = "practice_song_upsert"
	ActionSongDelete       = "practice_song_delete"
	ActionSessionSongAdd   = "session_song_add"
	ActionSessionSongDel   = "session_song_remove"
)

// DefaultMaxAttempts bounds retries of a single remote push.
const DefaultMaxAttempts = 20

// Domain errors.
var (
	ErrEmptyActionType = errors.New("action type is required")
	ErrEmptyResource   = errors.New("resource is required")
	ErrEmptyPayload    = errors.New("payload is required")
	ErrTerminal        = errors.New("entry is in a terminal state")
)

// Entry is one remote mutation waiting to be mirrored to the remote store.
// Entries sharing a resource and key are replayed in CreatedAt order; an
// empty key orders the entry against the whole resource.
type Entry struct {
	ID              string
	Resource        string // e.g., "attendance", "members"
	Key             string // natural key of the record, e.g., "3:7" for session 3, member 7
	ActionType      string // e.g., "attendance_upsert"
	Payload         string // JSON payload for replay
	Status          string // pending, retrying, done, failed, abandoned
	Attempts        int
	MaxAttempts     int
	LastAttemptedAt time.Time
	CreatedAt       time.Time
	ErrorMessage    string // Last error message if failed
}

// Validate checks that the Entry has valid data.
// PRE: Entry struct is populated
// POST: Returns nil if valid, error otherwise; MaxAttempts defaulted
func (e *Entry) Validate() error {
	if e.Resource == "" {
		return ErrEmptyResource
	}
	if e.ActionType == "" {
		return ErrEmptyActionType
	}
	if e.Payload == "" {
		return ErrEmptyPayload
	}
	if e.CreatedAt.IsZero() {
		return errors.New("created_at must be set")
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = DefaultMaxAttempts
	}
	return nil
}

// IsPending returns true while the entry still has to reach the remote store.
func (e *Entry) IsPending() bool {
	return e.Status == StatusPending || e.Status == StatusRetrying
}

// CanRetry returns true if the entry can be retried.
// PRE: Status and Attempts fields are set
// POST: Returns true for pending/retrying/failed with attempts < max
func (e *Entry) CanRetry() bool {
	return (e.Status == StatusPending || e.Status == StatusRetrying || e.Status == StatusFailed) &&
		e.Attempts < e.MaxAttempts
}

// IsTerminal returns true if the entry has reached a terminal state.
// PRE: Status field is set
// POST: Returns true for done, failed (max retries), or abandoned
func (e *Entry) IsTerminal() bool {
	if e.Status == StatusDone || e.Status == StatusAbandoned {
		return true
	}
	return e.Status == StatusFailed && e.Attempts >= e.MaxAttempts
}

// MarkAttempt records a push attempt.
// PRE: Entry is in a retryable state
// POST: Attempts incremented, LastAttemptedAt updated, status set to retrying
func (e *Entry) MarkAttempt(now time.Time) {
	e.Attempts++
	e.LastAttemptedAt = now
	e.Status = StatusRetrying
}

// MarkSuccess marks the entry as mirrored.
func (e *Entry) MarkSuccess() {
	e.Status = StatusDone
	e.ErrorMessage = ""
}

// MarkFailed records the error; the entry turns failed once attempts are exhausted.
// PRE: Push failed
// POST: Status set to failed or remains retrying, ErrorMessage set
func (e *Entry) MarkFailed(err error) {
	e.ErrorMessage = err.Error()
	if e.Attempts >= e.MaxAttempts {
		e.Status = StatusFailed
	}
}

// MarkAbandoned marks the entry as abandoned by admin.
func (e *Entry) MarkAbandoned() {
	e.Status = StatusAbandoned
}

// NextRetryDelay calculates the delay before the next retry attempt.
// Uses exponential backoff: 2^attempts * baseDelay, capped at maxDelay.
func (e *Entry) NextRetryDelay(baseDelay time.Duration, maxDelay time.Duration) time.Duration {
	if e.Attempts >= 30 {
		return maxDelay
	}
	delay := baseDelay * (1 << e.Attempts)
	if delay > maxDelay || delay <= 0 {
		return maxDelay
	}
	return delay
}
