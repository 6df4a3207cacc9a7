package projections

import (
	"context"

	"chamber/internal/domain/attendance"
	"chamber/internal/domain/member"
)

// GetMemberHistoryQuery carries query parameters.
type GetMemberHistoryQuery struct {
	MemberNo int
}

// SessionEntry is one session of a member's history.
type SessionEntry struct {
	Session int               `json:"session"`
	Label   string            `json:"label"`
	Status  attendance.Status `json:"status"`
}

// GetMemberHistoryResult carries the query result.
type GetMemberHistoryResult struct {
	Member   member.Member  `json:"member"`
	Sessions []SessionEntry `json:"sessions"`
	Attended int            `json:"attended"`
	Held     int            `json:"held"`
	Rate     float64        `json:"rate"`
}

// GetMemberHistoryDeps holds dependencies for GetMemberHistory.
type GetMemberHistoryDeps struct {
	Attendance AttendanceReader
}

// QueryGetMemberHistory lists a member's status in every session of the term.
// Held counts non-holiday sessions up to and including this week's session;
// Rate is Attended/Held, 0 when nothing has been held yet.
// PRE: query.MemberNo names a roster member
// POST: Sessions has one entry per session in number order
func QueryGetMemberHistory(ctx context.Context, query GetMemberHistoryQuery, deps GetMemberHistoryDeps) (GetMemberHistoryResult, error) {
	if err := ctx.Err(); err != nil {
		return GetMemberHistoryResult{}, err
	}
	m, ok := deps.Attendance.Members().Find(query.MemberNo)
	if !ok {
		return GetMemberHistoryResult{}, member.ErrNotFound
	}

	cal := deps.Attendance.Calendar()
	current := cal.DefaultSession(deps.Attendance.Now())
	result := GetMemberHistoryResult{
		Member:   m,
		Sessions: make([]SessionEntry, 0, cal.TotalSessions),
	}
	for n := 1; n <= cal.TotalSessions; n++ {
		status := effectiveStatus(cal, n, deps.Attendance.SessionAttendance(n)[m.No])
		result.Sessions = append(result.Sessions, SessionEntry{Session: n, Label: cal.Label(n), Status: status})
		if n > current || status == attendance.StatusHoliday {
			continue
		}
		result.Held++
		if status == attendance.StatusPresent {
			result.Attended++
		}
	}
	if result.Held > 0 {
		result.Rate = float64(result.Attended) / float64(result.Held)
	}
	return result, nil
}
