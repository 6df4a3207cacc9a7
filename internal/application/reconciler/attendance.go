package reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"chamber/internal/adapters/realtime"
	"chamber/internal/domain/attendance"
	"chamber/internal/domain/member"
	domain "chamber/internal/domain/outbox"
)

// SetAttendance records status for a member in a session.
// PRE: session is in range and not a holiday; memberNo is on the roster
// POST: the local value is persisted and broadcast before the remote push is attempted
func (s *Service) SetAttendance(ctx context.Context, sessionNo, memberNo int, status attendance.Status) (WriteResult, error) {
	cal := s.cfg.Calendar
	if !cal.InRange(sessionNo) {
		return WriteResult{}, fmt.Errorf("%w: %d", attendance.ErrInvalidSession, sessionNo)
	}
	if cal.IsHoliday(sessionNo) {
		return WriteResult{}, attendance.ErrHolidaySession
	}
	if _, err := attendance.ParseStatus(string(status)); err != nil {
		return WriteResult{}, err
	}
	if _, ok := s.members.Get().Find(memberNo); !ok {
		return WriteResult{}, member.ErrNotFound
	}

	ts := s.stamp()
	_, result, err := write(ctx, s, s.attendance, func(sheet attendance.Sheet) (attendance.Sheet, []action, error) {
		sheet.Set(sessionNo, memberNo, attendance.Record{Status: status, Timestamp: &ts})
		return sheet, []action{{
			Resource: ResourceAttendance,
			Key:      attendanceKey(sessionNo, memberNo),
			Type:     domain.ActionAttendanceUpsert,
			Payload:  attendancePayload{Session: sessionNo, MemberNo: memberNo, Status: status, Timestamp: ts},
		}}, nil
	})
	if err != nil {
		return WriteResult{}, err
	}

	slog.Info("attendance_event",
		"event", "attendance_set",
		"session", sessionNo,
		"member_no", memberNo,
		"status", string(status),
		"remote", string(result.Remote),
	)
	if s.pub != nil {
		s.pub.Publish(realtime.ChannelAttendance, realtime.Message{
			Type:      realtime.TypeAttendanceChange,
			Session:   sessionNo,
			MemberNo:  memberNo,
			Status:    string(status),
			Timestamp: ts,
		})
	}
	return result, nil
}

// GetAttendance returns the effective status: HOLIDAY for holiday sessions
// whatever is stored, PENDING when nothing is recorded.
func (s *Service) GetAttendance(sessionNo, memberNo int) attendance.Status {
	if s.cfg.Calendar.IsHoliday(sessionNo) {
		return attendance.StatusHoliday
	}
	rec, ok := s.attendance.Get().Get(sessionNo, memberNo)
	if !ok {
		return attendance.StatusPending
	}
	return rec.Status
}

// Attendance returns a copy of the whole sheet.
func (s *Service) Attendance() attendance.Sheet {
	return s.attendance.Get()
}

// SessionAttendance returns the effective status of every roster member in a session.
func (s *Service) SessionAttendance(sessionNo int) map[int]attendance.Status {
	holiday := s.cfg.Calendar.IsHoliday(sessionNo)
	sheet := s.attendance.Get()
	out := make(map[int]attendance.Status)
	for _, m := range s.members.Get() {
		switch rec, ok := sheet.Get(sessionNo, m.No); {
		case holiday:
			out[m.No] = attendance.StatusHoliday
		case ok:
			out[m.No] = rec.Status
		default:
			out[m.No] = attendance.StatusPending
		}
	}
	return out
}
