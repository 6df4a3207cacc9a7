package outbox

import (
	"errors"
	"testing"
	"time"
)

func newEntry() Entry {
	return Entry{
		ID:         "e1",
		Resource:   ResourceAttendance,
		ActionType: ActionAttendanceUpsert,
		Payload:    `{"session":3}`,
		Status:     StatusPending,
		CreatedAt:  time.Date(2025, 9, 21, 10, 0, 0, 0, time.UTC),
	}
}

func TestEntryValidation(t *testing.T) {
	e := newEntry()
	if err := e.Validate(); err != nil {
		t.Fatalf("valid entry rejected: %v", err)
	}
	if e.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want default %d", e.MaxAttempts, DefaultMaxAttempts)
	}

	tests := []struct {
		name   string
		mutate func(*Entry)
		want   error
	}{
		{"no resource", func(e *Entry) { e.Resource = "" }, ErrEmptyResource},
		{"no action", func(e *Entry) { e.ActionType = "" }, ErrEmptyActionType},
		{"no payload", func(e *Entry) { e.Payload = "" }, ErrEmptyPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEntry()
			tt.mutate(&e)
			if err := e.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}

	e = newEntry()
	e.CreatedAt = time.Time{}
	if err := e.Validate(); err == nil {
		t.Error("zero CreatedAt accepted")
	}
}

func TestEntry_FailsOnlyAfterMaxAttempts(t *testing.T) {
	e := newEntry()
	e.MaxAttempts = 2
	now := time.Date(2025, 9, 21, 10, 5, 0, 0, time.UTC)

	e.MarkAttempt(now)
	e.MarkFailed(errors.New("timeout"))
	if e.Status != StatusRetrying || !e.IsPending() || !e.CanRetry() {
		t.Fatalf("after one failure: status=%s", e.Status)
	}
	if !e.LastAttemptedAt.Equal(now) || e.ErrorMessage != "timeout" {
		t.Errorf("attempt not recorded: %+v", e)
	}

	e.MarkAttempt(now.Add(time.Minute))
	e.MarkFailed(errors.New("timeout again"))
	if e.Status != StatusFailed || !e.IsTerminal() || e.CanRetry() || e.IsPending() {
		t.Fatalf("after max attempts: status=%s attempts=%d", e.Status, e.Attempts)
	}
}

func TestEntry_TerminalStates(t *testing.T) {
	done := newEntry()
	done.MarkAttempt(time.Now())
	done.ErrorMessage = "old"
	done.MarkSuccess()
	if !done.IsTerminal() || done.ErrorMessage != "" {
		t.Errorf("done entry: %+v", done)
	}

	abandoned := newEntry()
	abandoned.MarkAbandoned()
	if !abandoned.IsTerminal() || abandoned.CanRetry() {
		t.Error("abandoned entry should be terminal")
	}

	// A failed entry whose limit was raised is retryable again.
	failed := newEntry()
	failed.Status = StatusFailed
	failed.Attempts = 3
	failed.MaxAttempts = 5
	if failed.IsTerminal() || !failed.CanRetry() {
		t.Error("failed entry below max attempts should be retryable")
	}
}

func TestNextRetryDelay(t *testing.T) {
	base, maxDelay := time.Second, time.Minute
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{5, 32 * time.Second},
		{6, time.Minute},
		{40, time.Minute},
	}
	for _, tt := range tests {
		e := Entry{Attempts: tt.attempts}
		if got := e.NextRetryDelay(base, maxDelay); got != tt.want {
			t.Errorf("attempts=%d: delay = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}
