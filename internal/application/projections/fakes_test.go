package projections

import (
	"time"

	"chamber/internal/domain/attendance"
	"chamber/internal/domain/member"
	"chamber/internal/domain/session"
)

// mockAttendanceReader implements AttendanceReader over an in-memory sheet.
type mockAttendanceReader struct {
	cal    session.Calendar
	now    time.Time
	roster member.Roster
	sheet  attendance.Sheet
}

// Calendar implements AttendanceReader.
func (m *mockAttendanceReader) Calendar() session.Calendar { return m.cal }

// Now implements AttendanceReader.
func (m *mockAttendanceReader) Now() time.Time { return m.now }

// Members implements AttendanceReader.
func (m *mockAttendanceReader) Members() member.Roster { return m.roster }

// SessionAttendance implements AttendanceReader.
// PRE: sessionNo is in range
// POST: returns stored statuses only; effective defaults are left to the caller
func (m *mockAttendanceReader) SessionAttendance(sessionNo int) map[int]attendance.Status {
	out := make(map[int]attendance.Status)
	for no, rec := range m.sheet[sessionNo] {
		out[no] = rec.Status
	}
	return out
}

// newMockReader builds a four-session term starting Sunday 2025-09-07 with
// session 2 as a holiday. Now is Wednesday 2025-09-10, so this week is session 3.
func newMockReader() *mockAttendanceReader {
	sheet := attendance.Sheet{}
	sheet.Set(1, 1, attendance.Record{Status: attendance.StatusPresent})
	sheet.Set(1, 2, attendance.Record{Status: attendance.StatusAbsent})
	sheet.Set(2, 1, attendance.Record{Status: attendance.StatusPresent})
	sheet.Set(3, 1, attendance.Record{Status: attendance.StatusAbsent})
	sheet.Set(4, 1, attendance.Record{Status: attendance.StatusPresent})
	return &mockAttendanceReader{
		cal: session.Calendar{
			StartDate:     time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC),
			TotalSessions: 4,
			Holidays:      []int{2},
			Location:      time.UTC,
		},
		now: time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC),
		roster: member.Roster{
			{No: 1, Name: "Alice", Instrument: member.InstrumentViolin},
			{No: 2, Name: "Bob", Instrument: member.InstrumentCello},
			{No: 3, Name: "Carol", Instrument: member.InstrumentViolin},
		},
		sheet: sheet,
	}
}
