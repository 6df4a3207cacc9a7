package orchestrators

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"chamber/internal/application/reconciler"
	domain "chamber/internal/domain/member"
)

// RosterWriter is the slice of the reconciler the roster import needs.
type RosterWriter interface {
	Members() domain.Roster
	AddMember(ctx context.Context, m domain.Member) (reconciler.WriteResult, error)
	UpdateMember(ctx context.Context, m domain.Member) (reconciler.WriteResult, error)
}

// ImportRosterInput carries the CSV stream and import options.
// PRE: Reader is a CSV stream with a header row
// POST: Returns aggregate counts and per-row errors; writes are skipped when DryRun=true
// INVARIANT: Existing members are never deleted; member numbers are never rewritten
type ImportRosterInput struct {
	Reader     io.Reader
	Source     string
	DryRun     bool
	UpdateMode bool
}

// ImportRosterResult holds aggregate counts and per-row errors from an import run.
type ImportRosterResult struct {
	Total   int                  `json:"total"`
	Created int                  `json:"created"`
	Updated int                  `json:"updated"`
	Skipped int                  `json:"skipped"`
	Errors  []ImportRosterRowErr `json:"errors"`
	DryRun  bool                 `json:"dryRun"`
	Unknown []string             `json:"unknownColumns"`
}

// ImportRosterRowErr describes a rejected CSV row.
type ImportRosterRowErr struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportRosterDeps holds external dependencies for the import orchestrator.
type ImportRosterDeps struct {
	Roster RosterWriter
}

var rosterColumns = []string{"NO", "NAME", "INSTRUMENT"}

// ExecuteImportRoster parses a roster CSV with NO, NAME and INSTRUMENT columns
// and adds or updates members. Instruments accept English or Korean names.
// PRE: Input.Reader has a header naming all three columns
// POST: Members are created/updated/skipped according to DryRun and UpdateMode;
//
//	a row whose number repeats an earlier row of the same file is rejected
//
// INVARIANT: When DryRun=true no writes occur
func ExecuteImportRoster(ctx context.Context, input ImportRosterInput, deps ImportRosterDeps) (ImportRosterResult, error) {
	cr := csv.NewReader(input.Reader)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ImportRosterResult{}, &ImportRosterValidationError{Message: "CSV is empty"}
		}
		return ImportRosterResult{}, err
	}

	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[headerName(h)] = i
	}
	for _, col := range rosterColumns {
		if _, ok := colIdx[col]; !ok {
			return ImportRosterResult{}, &ImportRosterValidationError{Message: "CSV missing required column: " + col}
		}
	}

	var unknownCols []string
	for _, h := range header {
		if !slices.Contains(rosterColumns, headerName(h)) {
			unknownCols = append(unknownCols, h)
		}
	}

	getCol := func(row []string, col string) string {
		i := colIdx[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	roster := deps.Roster.Members()
	seen := make(map[int]bool)
	result := ImportRosterResult{DryRun: input.DryRun, Unknown: unknownCols}
	rowNum := 1

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			result.Total++
			result.Errors = append(result.Errors, ImportRosterRowErr{Row: rowNum, Message: "malformed row: " + err.Error()})
			continue
		}
		if isBlankRow(row) {
			continue
		}
		result.Total++

		no, convErr := strconv.Atoi(getCol(row, "NO"))
		if convErr != nil || no <= 0 {
			result.Errors = append(result.Errors, ImportRosterRowErr{Row: rowNum, Message: "invalid member number: " + getCol(row, "NO")})
			continue
		}
		if seen[no] {
			result.Errors = append(result.Errors, ImportRosterRowErr{Row: rowNum, Message: "duplicate member number in file: " + strconv.Itoa(no)})
			continue
		}
		seen[no] = true

		instrument, instErr := domain.ParseInstrument(getCol(row, "INSTRUMENT"))
		if instErr != nil {
			result.Errors = append(result.Errors, ImportRosterRowErr{Row: rowNum, Message: instErr.Error()})
			continue
		}
		m := domain.Member{No: no, Name: getCol(row, "NAME"), Instrument: instrument}
		if err := m.Validate(); err != nil {
			result.Errors = append(result.Errors, ImportRosterRowErr{Row: rowNum, Message: err.Error()})
			continue
		}

		existing, exists := roster.Find(no)
		if exists && (!input.UpdateMode || existing == m) {
			result.Skipped++
			continue
		}

		if input.DryRun {
			if exists {
				result.Updated++
			} else {
				result.Created++
			}
			continue
		}

		if exists {
			_, err = deps.Roster.UpdateMember(ctx, m)
		} else {
			_, err = deps.Roster.AddMember(ctx, m)
		}
		if err != nil {
			slog.Error("roster_import_save_failed", "row", rowNum, "member_no", no, "err", err)
			result.Errors = append(result.Errors, ImportRosterRowErr{Row: rowNum, Message: "save failed (see server log)"})
			continue
		}
		if exists {
			result.Updated++
		} else {
			result.Created++
		}
	}

	slog.Info("roster_import",
		"source", input.Source,
		"dry_run", input.DryRun,
		"update_mode", input.UpdateMode,
		"total", result.Total,
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)

	return result, nil
}

// headerName upper-cases a header cell, dropping a UTF-8 byte order mark.
func headerName(h string) string {
	return strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

func isBlankRow(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ImportRosterValidationError is returned when the CSV structure is invalid.
type ImportRosterValidationError struct {
	Message string
}

// Error implements the error interface.
func (e *ImportRosterValidationError) Error() string {
	return e.Message
}
