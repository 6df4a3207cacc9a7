package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/csrf"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	outboxStore "chamber/internal/adapters/storage/outbox"
	"chamber/internal/application/reconciler"
	"chamber/internal/domain/attendance"
	"chamber/internal/domain/member"
	"chamber/internal/domain/outbox"
	"chamber/internal/domain/practicesong"
	"chamber/internal/domain/sheetmusic"
)

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in markdown input is escaped (WithUnsafe is NOT set), preventing XSS.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// renderMarkdown converts free-text notes to HTML. Render failures yield "".
func renderMarkdown(src string) string {
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		slog.Warn("markdown_render_failed", "error", err)
		return ""
	}
	return buf.String()
}

// validate checks request bodies against their `validate` struct tags.
var validate = validator.New(validator.WithRequiredStructEnabled())

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeRequest decodes and validates a JSON body, writing a 400 on failure.
// POST: returns false when a response has already been written
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := strictDecode(r, v); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(v); err != nil {
		validationError(w, err)
		return false
	}
	return true
}

// validationError reports which fields failed which rule.
func validationError(w http.ResponseWriter, err error) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"fields": fields,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response_encode_failed", "error", err)
	}
}

// writeResult is the body of every successful write: the remote outcome and
// optionally the stored value.
type writeResult struct {
	Remote reconciler.RemoteOutcome `json:"remote"`
	Data   any                      `json:"data,omitempty"`
}

func writeOK(w http.ResponseWriter, status int, result reconciler.WriteResult, data any) {
	writeJSON(w, status, writeResult{Remote: result.Remote, Data: data})
}

// domainStatus maps a domain or service error to its HTTP status.
// Unknown errors map to 500.
func domainStatus(err error) int {
	var reqErr *reconciler.RemoteRequestError
	switch {
	case errors.Is(err, member.ErrInvalidNo),
		errors.Is(err, member.ErrEmptyName),
		errors.Is(err, member.ErrNameTooLong),
		errors.Is(err, member.ErrInvalidInstrument),
		errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, attendance.ErrHolidaySession),
		errors.Is(err, attendance.ErrInvalidSession),
		errors.Is(err, sheetmusic.ErrEmptyID),
		errors.Is(err, sheetmusic.ErrEmptyTitle),
		errors.Is(err, sheetmusic.ErrTitleTooLong),
		errors.Is(err, sheetmusic.ErrInvalidDiff),
		errors.Is(err, sheetmusic.ErrEmptyFileName),
		errors.Is(err, practicesong.ErrEmptyID),
		errors.Is(err, practicesong.ErrEmptyTitle),
		errors.Is(err, reconciler.ErrUnknownResource):
		return http.StatusBadRequest
	case errors.Is(err, member.ErrNotFound),
		errors.Is(err, sheetmusic.ErrNotFound),
		errors.Is(err, sheetmusic.ErrFileNotFound),
		errors.Is(err, practicesong.ErrNotFound),
		errors.Is(err, outboxStore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, member.ErrDuplicateNo),
		errors.Is(err, outbox.ErrTerminal):
		return http.StatusConflict
	case errors.Is(err, sheetmusic.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, reconciler.ErrRemoteUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &reqErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeDomainError writes err with its mapped status. Server-side failures
// are logged and answered with a generic message.
func writeDomainError(w http.ResponseWriter, err error) {
	status := domainStatus(err)
	switch status {
	case http.StatusInternalServerError:
		internalError(w, err)
	case http.StatusBadGateway:
		slog.Warn("remote_request_failed", "error", err)
		http.Error(w, "remote store request failed", status)
	default:
		http.Error(w, err.Error(), status)
	}
}

// intParam parses a positive integer query parameter.
func intParam(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// handleCSRFToken returns the token multipart uploads send as X-CSRF-Token.
// Route: GET /api/csrf
func handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": csrf.Token(r)})
}

// sessionsResponse is the session dropdown.
type sessionsResponse struct {
	Default  int             `json:"default"`
	Sessions []sessionOption `json:"sessions"`
}

type sessionOption struct {
	Number  int    `json:"number"`
	Label   string `json:"label"`
	Date    string `json:"date"`
	Holiday bool   `json:"holiday"`
	Closing bool   `json:"closing"`
}

// handleSessions lists the term's sessions with the one to preselect.
// Route: GET /api/sessions
func handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cal := svc.Calendar()
	now := svc.Now()
	resp := sessionsResponse{Default: cal.DefaultSession(now)}
	for _, opt := range cal.Options(now) {
		resp.Sessions = append(resp.Sessions, sessionOption{
			Number:  opt.Number,
			Label:   opt.Label,
			Date:    opt.Date.Format("2006-01-02"),
			Holiday: opt.Holiday,
			Closing: opt.Number == cal.ClosingSession,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWebsocket streams broadcast notices.
// Route: GET /ws?channel=attendance_channel|attendance_sync
func handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if hub == nil {
		http.Error(w, "realtime disabled", http.StatusServiceUnavailable)
		return
	}
	hub.ServeWS(upgrader)(w, r)
}
