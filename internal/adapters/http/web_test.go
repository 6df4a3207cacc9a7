package web

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"chamber/internal/adapters/perf"
	"chamber/internal/adapters/realtime"
	"chamber/internal/adapters/storage"
	"chamber/internal/adapters/storage/cache"
	outboxStore "chamber/internal/adapters/storage/outbox"
	"chamber/internal/application/reconciler"
	"chamber/internal/domain/member"
	"chamber/internal/domain/session"
)

var testCSRFKey = bytes.Repeat([]byte{0x42}, 32)

// testCalendar: weekly sessions from Sunday 2025-09-07, session 4 is a holiday.
func testCalendar() session.Calendar {
	return session.Calendar{
		StartDate:      time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC),
		TotalSessions:  12,
		Holidays:       []int{4},
		ClosingSession: 12,
		Location:       time.UTC,
	}
}

// newTestServer builds the full handler around a local-only service.
// The clock is fixed to Sunday 2025-09-21, session 3.
func newTestServer(t *testing.T) (http.Handler, *reconciler.Service) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.InitDB(db); err != nil {
		t.Fatalf("InitDB: %v", err)
	}

	h := realtime.NewHub()
	s, err := reconciler.New(reconciler.Config{
		Calendar: testCalendar(),
		Now:      func() time.Time { return time.Date(2025, 9, 21, 10, 0, 0, 0, time.UTC) },
	}, reconciler.Deps{
		Cache:     cache.NewSQLiteStore(db),
		Outbox:    outboxStore.NewSQLiteStore(db),
		Publisher: h,
	})
	if err != nil {
		t.Fatalf("reconciler.New: %v", err)
	}

	handler := NewMux("", Deps{
		Service:   s,
		Hub:       h,
		Collector: perf.NewCollector(100),
		CSRFKey:   testCSRFKey,
		RateLimit: 10000,
	})
	return handler, s
}

// doJSON sends a JSON request through the full middleware chain.
func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rr.Code, want, rr.Body.String())
	}
}

// multipartBody builds a form with one file part and plain fields.
func multipartBody(t *testing.T, fileField, fileName string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func seedMembers(t *testing.T, s *reconciler.Service, ms ...member.Member) {
	t.Helper()
	for _, m := range ms {
		if _, err := s.AddMember(t.Context(), m); err != nil {
			t.Fatalf("AddMember %d: %v", m.No, err)
		}
	}
}

func TestOriginHosts(t *testing.T) {
	got := originHosts([]string{"https://club.example", "http://localhost:8080", "plain-host:9000"})
	want := []string{"club.example", "localhost:8080", "plain-host:9000"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("originHosts[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSessions_DefaultAndLabels(t *testing.T) {
	h, _ := newTestServer(t)

	rr := doJSON(t, h, "GET", "/api/sessions", nil)
	expectStatus(t, rr, http.StatusOK)
	resp := decodeJSON[sessionsResponse](t, rr)

	if resp.Default != 3 {
		t.Errorf("default = %d, want 3", resp.Default)
	}
	if len(resp.Sessions) != 12 {
		t.Fatalf("got %d sessions, want 12", len(resp.Sessions))
	}
	if !resp.Sessions[3].Holiday {
		t.Error("session 4 should be a holiday")
	}
	if !resp.Sessions[11].Closing {
		t.Error("session 12 should be the closing session")
	}
	if resp.Sessions[0].Date != "2025-09-07" {
		t.Errorf("session 1 date = %q", resp.Sessions[0].Date)
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers missing")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestServer(t)
	for _, tc := range []struct{ method, path string }{
		{"POST", "/api/sessions"},
		{"PATCH", "/api/members"},
		{"GET", "/api/sync"},
		{"DELETE", "/api/attendance/export"},
		{"PUT", "/api/admin/outbox"},
	} {
		rr := doJSON(t, h, tc.method, tc.path, nil)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want 405", tc.method, tc.path, rr.Code)
		}
	}
}

func TestCSRFToken_EnablesMultipartUpload(t *testing.T) {
	h, s := newTestServer(t)
	sm, _, err := s.SaveSheetMusic(t.Context(), sheetFixture())
	if err != nil {
		t.Fatalf("SaveSheetMusic: %v", err)
	}

	// Without a token the upload is refused.
	body, ct := multipartBody(t, "file", "part.txt", []byte("cello part"), map[string]string{"sheetId": sm.ID})
	req := httptest.NewRequest("POST", "/api/sheet-music/files", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusForbidden)

	tokenResp := httptest.NewRecorder()
	h.ServeHTTP(tokenResp, httptest.NewRequest("GET", "/api/csrf", nil))
	expectStatus(t, tokenResp, http.StatusOK)
	token := decodeJSON[map[string]string](t, tokenResp)["token"]
	if token == "" {
		t.Fatal("empty csrf token")
	}

	body, ct = multipartBody(t, "file", "part.txt", []byte("cello part"), map[string]string{"sheetId": sm.ID})
	req = httptest.NewRequest("POST", "/api/sheet-music/files", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-CSRF-Token", token)
	for _, c := range tokenResp.Result().Cookies() {
		req.AddCookie(c)
	}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusCreated)
}
