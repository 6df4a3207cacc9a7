package web

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"chamber/internal/adapters/remote"
	outboxStore "chamber/internal/adapters/storage/outbox"
	"chamber/internal/application/reconciler"
	"chamber/internal/domain/attendance"
	"chamber/internal/domain/member"
	"chamber/internal/domain/outbox"
	"chamber/internal/domain/sheetmusic"
)

func TestDomainStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{member.ErrInvalidInstrument, http.StatusBadRequest},
		{fmt.Errorf("%w: 13", attendance.ErrInvalidSession), http.StatusBadRequest},
		{attendance.ErrHolidaySession, http.StatusBadRequest},
		{member.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("get outbox entry: %w", outboxStore.ErrNotFound), http.StatusNotFound},
		{sheetmusic.ErrFileNotFound, http.StatusNotFound},
		{member.ErrDuplicateNo, http.StatusConflict},
		{fmt.Errorf("entry x: %w", outbox.ErrTerminal), http.StatusConflict},
		{sheetmusic.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{reconciler.ErrRemoteUnavailable, http.StatusServiceUnavailable},
		{&remote.RequestError{Op: "upsert member", Err: errors.New("timeout")}, http.StatusBadGateway},
		{reconciler.ErrLocalPersistence, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := domainStatus(tt.err); got != tt.want {
			t.Errorf("domainStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRenderMarkdown(t *testing.T) {
	if got := renderMarkdown(""); got != "" {
		t.Errorf("empty input rendered %q", got)
	}
	got := renderMarkdown("line one\nline two")
	if got != "<p>line one<br>\nline two</p>\n" {
		t.Errorf("hard wraps not applied: %q", got)
	}
}
