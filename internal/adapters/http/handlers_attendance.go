package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"chamber/internal/application/orchestrators"
	"chamber/internal/application/projections"
	"chamber/internal/domain/attendance"
)

// attendanceRequest is the body of POST /api/attendance.
type attendanceRequest struct {
	Session  int    `json:"session" validate:"required,min=1"`
	MemberNo int    `json:"memberNo" validate:"required,min=1"`
	Status   string `json:"status" validate:"required,oneof=present absent pending"`
}

// sessionAttendance is the GET /api/attendance response.
type sessionAttendance struct {
	Session  int                          `json:"session"`
	Label    string                       `json:"label"`
	Holiday  bool                         `json:"holiday"`
	Statuses map[string]attendance.Status `json:"statuses"`
}

// handleAttendance reads or records attendance for one session.
// Routes: GET /api/attendance?session=N (defaults to this week's session),
// POST /api/attendance {session, memberNo, status}
func handleAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method == "GET" {
		cal := svc.Calendar()
		n := cal.DefaultSession(svc.Now())
		if r.URL.Query().Has("session") {
			var ok bool
			if n, ok = intParam(r, "session"); !ok || !cal.InRange(n) {
				http.Error(w, attendance.ErrInvalidSession.Error(), http.StatusBadRequest)
				return
			}
		}
		statuses := make(map[string]attendance.Status)
		for no, st := range svc.SessionAttendance(n) {
			statuses[strconv.Itoa(no)] = st
		}
		writeJSON(w, http.StatusOK, sessionAttendance{
			Session:  n,
			Label:    cal.Label(n),
			Holiday:  cal.IsHoliday(n),
			Statuses: statuses,
		})
		return
	}

	if r.Method == "POST" {
		var req attendanceRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		result, err := svc.SetAttendance(ctx, req.Session, req.MemberNo, attendance.Status(req.Status))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeOK(w, http.StatusOK, result, nil)
		return
	}

	w.WriteHeader(http.StatusMethodNotAllowed)
}

// handleAttendanceSummary returns the attendance board with per-instrument counts.
// Route: GET /api/attendance/summary?session=N
func handleAttendanceSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := projections.GetSessionSummaryQuery{}
	if r.URL.Query().Has("session") {
		n, ok := intParam(r, "session")
		if !ok {
			http.Error(w, attendance.ErrInvalidSession.Error(), http.StatusBadRequest)
			return
		}
		query.Session = n
	}
	result, err := projections.QueryGetSessionSummary(r.Context(), query, projections.GetSessionSummaryDeps{Attendance: svc})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAttendanceExport downloads the whole term as an xlsx workbook.
// Route: GET /api/attendance/export
func handleAttendanceExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var buf bytes.Buffer
	_, err := orchestrators.ExecuteExportAttendance(r.Context(),
		orchestrators.ExportAttendanceInput{Writer: &buf},
		orchestrators.ExportAttendanceDeps{Source: svc},
	)
	if err != nil {
		internalError(w, err)
		return
	}
	filename := fmt.Sprintf("attendance-%s.xlsx", svc.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}
