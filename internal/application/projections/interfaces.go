package projections

import (
	"time"

	"chamber/internal/domain/attendance"
	"chamber/internal/domain/member"
	"chamber/internal/domain/session"
)

// AttendanceReader is the read side of the reconciler used by attendance queries.
type AttendanceReader interface {
	Calendar() session.Calendar
	Now() time.Time
	Members() member.Roster
	SessionAttendance(sessionNo int) map[int]attendance.Status
}
