package projections

import (
	"context"

	"chamber/internal/domain/attendance"
	"chamber/internal/domain/member"
	"chamber/internal/domain/session"
)

// GetSessionSummaryQuery carries query parameters.
type GetSessionSummaryQuery struct {
	Session int // Optional, defaults to this week's session
}

// MemberStatus is one roster row of the attendance board.
type MemberStatus struct {
	No         int               `json:"no"`
	Name       string            `json:"name"`
	Instrument string            `json:"instrument"`
	Status     attendance.Status `json:"status"`
}

// InstrumentSummary counts statuses within one instrument section.
type InstrumentSummary struct {
	Instrument string `json:"instrument"`
	attendance.Summary
}

// GetSessionSummaryResult carries the query result.
type GetSessionSummaryResult struct {
	Session      int                 `json:"session"`
	Label        string              `json:"label"`
	Holiday      bool                `json:"holiday"`
	Summary      attendance.Summary  `json:"summary"`
	ByInstrument []InstrumentSummary `json:"byInstrument"`
	Members      []MemberStatus      `json:"members"`
}

// GetSessionSummaryDeps holds dependencies for GetSessionSummary.
type GetSessionSummaryDeps struct {
	Attendance AttendanceReader
}

// QueryGetSessionSummary builds the attendance board for one session: every
// member's effective status, the overall counts and the counts per instrument.
// PRE: query.Session is 0 or in range
// POST: Summary.Total equals the roster size; on a holiday every member is HOLIDAY
// INVARIANT: ByInstrument follows member.Instruments order and omits empty sections
func QueryGetSessionSummary(ctx context.Context, query GetSessionSummaryQuery, deps GetSessionSummaryDeps) (GetSessionSummaryResult, error) {
	if err := ctx.Err(); err != nil {
		return GetSessionSummaryResult{}, err
	}
	cal := deps.Attendance.Calendar()
	n := query.Session
	if n == 0 {
		n = cal.DefaultSession(deps.Attendance.Now())
	}
	if !cal.InRange(n) {
		return GetSessionSummaryResult{}, attendance.ErrInvalidSession
	}

	statuses := deps.Attendance.SessionAttendance(n)
	roster := deps.Attendance.Members()

	result := GetSessionSummaryResult{
		Session: n,
		Label:   cal.Label(n),
		Holiday: cal.IsHoliday(n),
		Members: make([]MemberStatus, 0, len(roster)),
	}
	sections := make(map[string]*attendance.Summary, len(member.Instruments))
	for _, m := range roster {
		status := effectiveStatus(cal, n, statuses[m.No])
		result.Members = append(result.Members, MemberStatus{
			No:         m.No,
			Name:       m.Name,
			Instrument: m.Instrument,
			Status:     status,
		})
		result.Summary.Add(status)

		sec, ok := sections[m.Instrument]
		if !ok {
			sec = &attendance.Summary{}
			sections[m.Instrument] = sec
		}
		sec.Add(status)
	}

	for _, inst := range member.Instruments {
		if sec, ok := sections[inst]; ok {
			result.ByInstrument = append(result.ByInstrument, InstrumentSummary{Instrument: inst, Summary: *sec})
		}
	}
	return result, nil
}

// effectiveStatus applies the holiday override and the PENDING default.
func effectiveStatus(cal session.Calendar, n int, s attendance.Status) attendance.Status {
	if cal.IsHoliday(n) {
		return attendance.StatusHoliday
	}
	if s == "" {
		return attendance.StatusPending
	}
	return s
}
