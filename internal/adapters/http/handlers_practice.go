package web

import (
	"net/http"

	"chamber/internal/domain/attendance"
	"chamber/internal/domain/practicesong"
)

// songRequest is the body of POST and PUT /api/practice-songs.
type songRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title" validate:"required"`
	Composer    string `json:"composer"`
	Description string `json:"description"`
	Difficulty  string `json:"difficulty"`
}

// sessionSongRequest is the body of POST /api/session-songs.
type sessionSongRequest struct {
	Session int    `json:"session" validate:"required,min=1"`
	SongID  string `json:"songId" validate:"required"`
}

// handlePracticeSongs manages the practice-song list.
// Routes: GET, POST, PUT /api/practice-songs, DELETE /api/practice-songs?id=
func handlePracticeSongs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case "GET":
		songs := svc.Songs()
		if songs == nil {
			songs = practicesong.Songs{}
		}
		writeJSON(w, http.StatusOK, songs)

	case "POST", "PUT":
		var req songRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		if r.Method == "POST" {
			req.ID = ""
		} else if req.ID == "" {
			http.Error(w, practicesong.ErrEmptyID.Error(), http.StatusBadRequest)
			return
		}
		song, result, err := svc.SaveSong(ctx, practicesong.Song{
			ID:          req.ID,
			Title:       req.Title,
			Composer:    req.Composer,
			Description: req.Description,
			Difficulty:  req.Difficulty,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		status := http.StatusOK
		if r.Method == "POST" {
			status = http.StatusCreated
		}
		writeOK(w, status, result, song)

	case "DELETE":
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, practicesong.ErrEmptyID.Error(), http.StatusBadRequest)
			return
		}
		result, err := svc.DeleteSong(ctx, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeOK(w, http.StatusOK, result, nil)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleSessionSongs links practice songs to sessions.
// Routes: GET /api/session-songs?session=N, POST /api/session-songs {session, songId},
// DELETE /api/session-songs?session=N&songId=
func handleSessionSongs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case "GET":
		n, ok := intParam(r, "session")
		if !ok {
			writeJSON(w, http.StatusOK, svc.Assignments())
			return
		}
		songs := svc.SessionSongs(n)
		if songs == nil {
			songs = []practicesong.Song{}
		}
		writeJSON(w, http.StatusOK, songs)

	case "POST":
		var req sessionSongRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		result, err := svc.AssignSong(ctx, req.Session, req.SongID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeOK(w, http.StatusOK, result, nil)

	case "DELETE":
		n, ok := intParam(r, "session")
		if !ok {
			http.Error(w, attendance.ErrInvalidSession.Error(), http.StatusBadRequest)
			return
		}
		songID := r.URL.Query().Get("songId")
		if songID == "" {
			http.Error(w, practicesong.ErrEmptyID.Error(), http.StatusBadRequest)
			return
		}
		result, err := svc.UnassignSong(ctx, n, songID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeOK(w, http.StatusOK, result, nil)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
