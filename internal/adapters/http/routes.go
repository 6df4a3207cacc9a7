package web

import "net/http"

func registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/csrf", handleCSRFToken)
	mux.HandleFunc("/api/sessions", handleSessions)

	mux.HandleFunc("/api/attendance", handleAttendance)
	mux.HandleFunc("/api/attendance/summary", handleAttendanceSummary)
	mux.HandleFunc("/api/attendance/export", handleAttendanceExport)

	mux.HandleFunc("/api/members", handleMembers)
	mux.HandleFunc("/api/members/list", handleMemberList)
	mux.HandleFunc("/api/members/history", handleMemberHistory)
	mux.HandleFunc("/api/members/import", handleMembersImport)

	mux.HandleFunc("/api/sheet-music", handleSheetMusic)
	mux.HandleFunc("/api/sheet-music/files", handleSheetMusicFiles)

	mux.HandleFunc("/api/practice-songs", handlePracticeSongs)
	mux.HandleFunc("/api/session-songs", handleSessionSongs)

	mux.HandleFunc("/api/sync/status", handleSyncStatus)
	mux.HandleFunc("/api/sync", handleSyncNow)
	mux.HandleFunc("/api/sync/pull", handleSyncPull)
	mux.HandleFunc("/api/sync/online", handleSyncOnline)

	mux.HandleFunc("/api/admin/outbox", handleAdminOutbox)
	mux.HandleFunc("/api/admin/perf", handleAdminPerf)

	mux.HandleFunc("/ws", handleWebsocket)
}
