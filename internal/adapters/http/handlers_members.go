package web

import (
	"errors"
	"net/http"
	"strconv"

	"chamber/internal/application/listutil"
	"chamber/internal/application/orchestrators"
	"chamber/internal/application/projections"
	"chamber/internal/domain/member"
)

// memberRequest is the body of POST and PUT /api/members.
// Instrument accepts English or Korean names.
type memberRequest struct {
	No         int    `json:"no" validate:"required,min=1"`
	Name       string `json:"name" validate:"required,max=100"`
	Instrument string `json:"instrument" validate:"required"`
}

// maxImportSize bounds roster CSV uploads.
const maxImportSize = 1 << 20

// handleMembers manages the roster.
// Routes: GET /api/members, POST /api/members, PUT /api/members, DELETE /api/members?no=N
func handleMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case "GET":
		roster := svc.Members()
		if roster == nil {
			roster = member.Roster{}
		}
		writeJSON(w, http.StatusOK, roster)

	case "POST", "PUT":
		var req memberRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		instrument, err := member.ParseInstrument(req.Instrument)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		m := member.Member{No: req.No, Name: req.Name, Instrument: instrument}
		if r.Method == "POST" {
			result, err := svc.AddMember(ctx, m)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeOK(w, http.StatusCreated, result, m)
			return
		}
		result, err := svc.UpdateMember(ctx, m)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeOK(w, http.StatusOK, result, m)

	case "DELETE":
		no, ok := intParam(r, "no")
		if !ok {
			http.Error(w, member.ErrInvalidNo.Error(), http.StatusBadRequest)
			return
		}
		result, err := svc.DeleteMember(ctx, no)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeOK(w, http.StatusOK, result, nil)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleMemberHistory returns one member's attendance across the term.
// Route: GET /api/members/history?no=N
func handleMemberHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	no, ok := intParam(r, "no")
	if !ok {
		http.Error(w, member.ErrInvalidNo.Error(), http.StatusBadRequest)
		return
	}
	result, err := projections.QueryGetMemberHistory(r.Context(),
		projections.GetMemberHistoryQuery{MemberNo: no},
		projections.GetMemberHistoryDeps{Attendance: svc},
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleMemberList searches, sorts and pages the roster with attendance counts.
// Route: GET /api/members/list?q=&instrument=&sort=&dir=&page=&per_page=
func handleMemberList(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	params := listutil.ParseListParams(r.URL.Query(), projections.MemberListSortColumns, projections.MemberListFilterKeys)
	result, err := projections.QueryGetMemberList(r.Context(),
		projections.GetMemberListQuery{List: params},
		projections.GetMemberListDeps{Attendance: svc},
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if result.Members == nil {
		result.Members = []projections.MemberRow{}
	}
	writeJSON(w, http.StatusOK, result)
}

// handleMembersImport loads a roster CSV from a multipart upload.
// Route: POST /api/members/import (form fields: file, dry_run, update)
func handleMembersImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize+4096)
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		http.Error(w, "Invalid upload", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	dryRun, _ := strconv.ParseBool(r.FormValue("dry_run"))
	update, _ := strconv.ParseBool(r.FormValue("update"))

	result, err := orchestrators.ExecuteImportRoster(r.Context(), orchestrators.ImportRosterInput{
		Reader:     file,
		Source:     header.Filename,
		DryRun:     dryRun,
		UpdateMode: update,
	}, orchestrators.ImportRosterDeps{Roster: svc})
	if err != nil {
		var verr *orchestrators.ImportRosterValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Message, http.StatusBadRequest)
			return
		}
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
