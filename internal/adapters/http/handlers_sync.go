package web

import (
	"net/http"

	"chamber/internal/application/reconciler"
)

// syncStatusResponse is the sync indicator payload.
type syncStatusResponse struct {
	Configured bool                    `json:"configured"`
	Online     bool                    `json:"online"`
	Resources  []reconciler.SyncStatus `json:"resources"`
}

// onlineRequest is the body of POST /api/sync/online.
type onlineRequest struct {
	Online *bool `json:"online" validate:"required"`
}

// handleSyncStatus reports per-resource sync state.
// Route: GET /api/sync/status
func handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, syncStatusResponse{
		Configured: svc.RemoteConfigured(),
		Online:     svc.Online(),
		Resources:  svc.SyncStatuses(),
	})
}

// handleSyncNow replays the outbox and pulls everything.
// Route: POST /api/sync
func handleSyncNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stats, err := svc.SyncNow(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"succeeded": stats.Succeeded,
		"failed":    stats.Failed,
		"skipped":   stats.Skipped,
	})
}

// handleSyncPull pulls one resource, or all of them when ?resource= is absent.
// Route: POST /api/sync/pull[?resource=]
func handleSyncPull(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var err error
	if name := r.URL.Query().Get("resource"); name != "" {
		err = svc.Pull(r.Context(), name)
	} else {
		err = svc.PullAll(r.Context())
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, svc.SyncStatuses())
}

// handleSyncOnline records a connectivity change reported by the client.
// Route: POST /api/sync/online {online}
func handleSyncOnline(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req onlineRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := svc.SetOnline(r.Context(), *req.Online); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"online": svc.Online()})
}
