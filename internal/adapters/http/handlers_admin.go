package web

import (
	"net/http"
	"strconv"
	"time"

	"chamber/internal/domain/outbox"
)

// outboxEntryView is one failed push as shown to the operator.
type outboxEntryView struct {
	ID              string    `json:"id"`
	Resource        string    `json:"resource"`
	Key             string    `json:"key,omitempty"`
	ActionType      string    `json:"actionType"`
	Status          string    `json:"status"`
	Attempts        int       `json:"attempts"`
	MaxAttempts     int       `json:"maxAttempts"`
	LastAttemptedAt time.Time `json:"lastAttemptedAt,omitzero"`
	CreatedAt       time.Time `json:"createdAt"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
}

func newOutboxEntryView(e outbox.Entry) outboxEntryView {
	return outboxEntryView{
		ID:              e.ID,
		Resource:        e.Resource,
		Key:             e.Key,
		ActionType:      e.ActionType,
		Status:          e.Status,
		Attempts:        e.Attempts,
		MaxAttempts:     e.MaxAttempts,
		LastAttemptedAt: e.LastAttemptedAt,
		CreatedAt:       e.CreatedAt,
		ErrorMessage:    e.ErrorMessage,
	}
}

// handleAdminOutbox lists and resolves permanently failed remote pushes.
// Routes: GET /api/admin/outbox[?limit=], POST /api/admin/outbox?id=&action=retry|abandon
func handleAdminOutbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case "GET":
		limit := 50
		if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 100 {
			limit = n
		}
		entries, err := svc.FailedPushes(ctx, limit)
		if err != nil {
			internalError(w, err)
			return
		}
		views := make([]outboxEntryView, 0, len(entries))
		for _, e := range entries {
			views = append(views, newOutboxEntryView(e))
		}
		writeJSON(w, http.StatusOK, views)

	case "POST":
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id is required", http.StatusBadRequest)
			return
		}
		switch r.URL.Query().Get("action") {
		case "retry":
			if err := svc.RetryPush(ctx, id); err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "retried"})
		case "abandon":
			if err := svc.AbandonPush(ctx, id); err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "abandoned"})
		default:
			http.Error(w, "unknown action", http.StatusBadRequest)
		}

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleAdminPerf returns request, query and remote latency aggregates.
// Route: GET /api/admin/perf[?minutes=15&top=10]
func handleAdminPerf(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if perfCollector == nil {
		http.Error(w, "perf collection disabled", http.StatusServiceUnavailable)
		return
	}
	minutes := 15
	if n, err := strconv.Atoi(r.URL.Query().Get("minutes")); err == nil && n > 0 && n <= 24*60 {
		minutes = n
	}
	top := 10
	if n, err := strconv.Atoi(r.URL.Query().Get("top")); err == nil && n > 0 && n <= 50 {
		top = n
	}
	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	writeJSON(w, http.StatusOK, perfCollector.Snapshot(since, top))
}
