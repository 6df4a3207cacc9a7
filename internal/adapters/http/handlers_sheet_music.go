package web

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"chamber/internal/domain/sheetmusic"
)

// sheetMusicRequest is the body of POST and PUT /api/sheet-music.
// Attachments are managed through /api/sheet-music/files.
type sheetMusicRequest struct {
	ID         string `json:"id"`
	Title      string `json:"title" validate:"required,max=200"`
	Composer   string `json:"composer"`
	Arranger   string `json:"arranger"`
	Genre      string `json:"genre"`
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Notes      string `json:"notes"`
}

// attachmentView omits inline bytes; clients download through the files endpoint.
type attachmentView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Type   string `json:"type"`
	Inline bool   `json:"inline"`
	URL    string `json:"url"`
}

type sheetMusicView struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Composer   string           `json:"composer"`
	Arranger   string           `json:"arranger"`
	Genre      string           `json:"genre"`
	Difficulty string           `json:"difficulty"`
	Notes      string           `json:"notes"`
	NotesHTML  string           `json:"notesHtml"`
	Files      []attachmentView `json:"files"`
}

func fileURL(sheetID, fileID string) string {
	q := url.Values{"sheetId": {sheetID}, "fileId": {fileID}}
	return "/api/sheet-music/files?" + q.Encode()
}

func newAttachmentView(sheetID string, a sheetmusic.Attachment) attachmentView {
	return attachmentView{
		ID:     a.ID,
		Name:   a.Name,
		Size:   a.Size,
		Type:   a.Type,
		Inline: a.IsInline(),
		URL:    fileURL(sheetID, a.ID),
	}
}

func newSheetMusicView(sm sheetmusic.SheetMusic) sheetMusicView {
	v := sheetMusicView{
		ID:         sm.ID,
		Title:      sm.Title,
		Composer:   sm.Composer,
		Arranger:   sm.Arranger,
		Genre:      sm.Genre,
		Difficulty: sm.Difficulty,
		Notes:      sm.Notes,
		NotesHTML:  renderMarkdown(sm.Notes),
		Files:      make([]attachmentView, 0, len(sm.Files)),
	}
	for _, f := range sm.Files {
		v.Files = append(v.Files, newAttachmentView(sm.ID, f))
	}
	return v
}

// handleSheetMusic manages the sheet-music catalog.
// Routes: GET /api/sheet-music[?id=], POST /api/sheet-music, PUT /api/sheet-music,
// DELETE /api/sheet-music?id=
func handleSheetMusic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case "GET":
		if id := r.URL.Query().Get("id"); id != "" {
			sm, err := svc.SheetMusic(id)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, newSheetMusicView(sm))
			return
		}
		catalog := svc.Catalog()
		views := make([]sheetMusicView, 0, len(catalog))
		for _, sm := range catalog {
			views = append(views, newSheetMusicView(sm))
		}
		writeJSON(w, http.StatusOK, views)

	case "POST", "PUT":
		var req sheetMusicRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		if r.Method == "POST" {
			req.ID = ""
		} else if req.ID == "" {
			http.Error(w, sheetmusic.ErrEmptyID.Error(), http.StatusBadRequest)
			return
		}
		saved, result, err := svc.SaveSheetMusic(ctx, sheetmusic.SheetMusic{
			ID:         req.ID,
			Title:      req.Title,
			Composer:   req.Composer,
			Arranger:   req.Arranger,
			Genre:      req.Genre,
			Difficulty: req.Difficulty,
			Notes:      req.Notes,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		status := http.StatusOK
		if r.Method == "POST" {
			status = http.StatusCreated
		}
		writeOK(w, status, result, newSheetMusicView(saved))

	case "DELETE":
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, sheetmusic.ErrEmptyID.Error(), http.StatusBadRequest)
			return
		}
		result, err := svc.DeleteSheetMusic(ctx, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeOK(w, http.StatusOK, result, nil)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleSheetMusicFiles uploads, downloads and removes attachments.
// Routes: POST /api/sheet-music/files (multipart: sheetId, file),
// GET|DELETE /api/sheet-music/files?sheetId=&fileId=
func handleSheetMusicFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	switch r.Method {
	case "POST":
		r.Body = http.MaxBytesReader(w, r.Body, sheetmusic.MaxFileSize+1<<20)
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			http.Error(w, "Invalid upload", http.StatusBadRequest)
			return
		}
		sheetID := r.FormValue("sheetId")
		if sheetID == "" {
			http.Error(w, sheetmusic.ErrEmptyID.Error(), http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file is required", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Size > sheetmusic.MaxFileSize {
			writeDomainError(w, sheetmusic.ErrFileTooLarge)
			return
		}
		data, err := io.ReadAll(io.LimitReader(file, sheetmusic.MaxFileSize+1))
		if err != nil {
			internalError(w, err)
			return
		}
		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		att, result, err := svc.AddAttachment(ctx, sheetID, header.Filename, contentType, data)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeOK(w, http.StatusCreated, result, newAttachmentView(sheetID, att))

	case "GET":
		att, data, err := svc.OpenAttachment(ctx, q.Get("sheetId"), q.Get("fileId"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		contentType := att.Type
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename*=UTF-8''%s", url.PathEscape(att.Name)))
		_, _ = w.Write(data)

	case "DELETE":
		result, err := svc.RemoveAttachment(ctx, q.Get("sheetId"), q.Get("fileId"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeOK(w, http.StatusOK, result, nil)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
