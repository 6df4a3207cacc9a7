package projections

import (
	"context"
	"errors"
	"testing"

	"chamber/internal/domain/attendance"
	"chamber/internal/domain/member"
)

func TestQueryGetMemberHistory(t *testing.T) {
	deps := GetMemberHistoryDeps{Attendance: newMockReader()}

	result, err := QueryGetMemberHistory(context.Background(), GetMemberHistoryQuery{MemberNo: 1}, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Sessions) != 4 {
		t.Fatalf("got %d sessions, want 4", len(result.Sessions))
	}
	want := []attendance.Status{
		attendance.StatusPresent,
		attendance.StatusHoliday,
		attendance.StatusAbsent,
		attendance.StatusPresent,
	}
	for i, s := range result.Sessions {
		if s.Status != want[i] {
			t.Errorf("session %d status %q, want %q", s.Session, s.Status, want[i])
		}
	}
	// Session 4 lies in the future and session 2 is a holiday.
	if result.Held != 2 || result.Attended != 1 {
		t.Errorf("held=%d attended=%d, want 2/1", result.Held, result.Attended)
	}
	if result.Rate != 0.5 {
		t.Errorf("rate = %v, want 0.5", result.Rate)
	}
}

func TestQueryGetMemberHistory_UnknownMember(t *testing.T) {
	deps := GetMemberHistoryDeps{Attendance: newMockReader()}

	_, err := QueryGetMemberHistory(context.Background(), GetMemberHistoryQuery{MemberNo: 42}, deps)
	if !errors.Is(err, member.ErrNotFound) {
		t.Fatalf("got %v, want member.ErrNotFound", err)
	}
}

func TestQueryGetMemberHistory_BeforeTerm(t *testing.T) {
	reader := newMockReader()
	reader.now = reader.cal.StartDate.AddDate(0, 0, -14)

	result, err := QueryGetMemberHistory(context.Background(), GetMemberHistoryQuery{MemberNo: 2}, GetMemberHistoryDeps{Attendance: reader})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Before the term this week's session clamps to 1.
	if result.Held != 1 || result.Attended != 0 || result.Rate != 0 {
		t.Errorf("unexpected totals: held=%d attended=%d rate=%v", result.Held, result.Attended, result.Rate)
	}
}
