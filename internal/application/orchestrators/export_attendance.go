package orchestrators

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"chamber/internal/domain/attendance"
	"chamber/internal/domain/member"
	"chamber/internal/domain/session"
)

// AttendanceSheetName is the worksheet written by ExecuteExportAttendance.
const AttendanceSheetName = "Attendance"

// AttendanceReader is the read side of the reconciler the export needs.
type AttendanceReader interface {
	Calendar() session.Calendar
	Members() member.Roster
	SessionAttendance(sessionNo int) map[int]attendance.Status
}

// ExportAttendanceInput selects the output stream.
type ExportAttendanceInput struct {
	Writer io.Writer
}

// ExportAttendanceResult reports what was written.
type ExportAttendanceResult struct {
	Members  int
	Sessions int
}

// ExportAttendanceDeps holds external dependencies for the export orchestrator.
type ExportAttendanceDeps struct {
	Source AttendanceReader
}

// statusLabels are the cell texts written for each status.
var statusLabels = map[attendance.Status]string{
	attendance.StatusPresent: "O",
	attendance.StatusAbsent:  "X",
	attendance.StatusPending: "",
	attendance.StatusHoliday: "-",
}

// ExecuteExportAttendance writes an xlsx workbook with one row per member and
// one column per session, followed by a present-count row.
// PRE: Input.Writer is non-nil
// POST: a complete workbook has been written to Input.Writer
// INVARIANT: holiday sessions show "-" for every member regardless of stored values
func ExecuteExportAttendance(ctx context.Context, input ExportAttendanceInput, deps ExportAttendanceDeps) (ExportAttendanceResult, error) {
	if err := ctx.Err(); err != nil {
		return ExportAttendanceResult{}, err
	}
	cal := deps.Source.Calendar()
	roster := deps.Source.Members()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", AttendanceSheetName); err != nil {
		return ExportAttendanceResult{}, fmt.Errorf("rename sheet: %w", err)
	}

	header := []any{"No", "Name", "Instrument"}
	for n := 1; n <= cal.TotalSessions; n++ {
		header = append(header, cal.Label(n))
	}
	if err := f.SetSheetRow(AttendanceSheetName, "A1", &header); err != nil {
		return ExportAttendanceResult{}, fmt.Errorf("write header: %w", err)
	}

	bySession := make([]map[int]attendance.Status, cal.TotalSessions+1)
	for n := 1; n <= cal.TotalSessions; n++ {
		bySession[n] = deps.Source.SessionAttendance(n)
	}

	present := make([]int, cal.TotalSessions+1)
	for i, m := range roster {
		row := []any{m.No, m.Name, m.Instrument}
		for n := 1; n <= cal.TotalSessions; n++ {
			status := bySession[n][m.No]
			if status == "" {
				status = attendance.StatusPending
			}
			if status == attendance.StatusPresent {
				present[n]++
			}
			row = append(row, statusLabels[status])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return ExportAttendanceResult{}, err
		}
		if err := f.SetSheetRow(AttendanceSheetName, cell, &row); err != nil {
			return ExportAttendanceResult{}, fmt.Errorf("write member %d: %w", m.No, err)
		}
	}

	totals := []any{"", "Present", ""}
	for n := 1; n <= cal.TotalSessions; n++ {
		if cal.IsHoliday(n) {
			totals = append(totals, "-")
			continue
		}
		totals = append(totals, present[n])
	}
	totalRow := len(roster) + 2
	cell, err := excelize.CoordinatesToCellName(1, totalRow)
	if err != nil {
		return ExportAttendanceResult{}, err
	}
	if err := f.SetSheetRow(AttendanceSheetName, cell, &totals); err != nil {
		return ExportAttendanceResult{}, fmt.Errorf("write totals: %w", err)
	}

	if err := styleAttendanceSheet(f, cal.TotalSessions+3, totalRow); err != nil {
		return ExportAttendanceResult{}, err
	}

	if err := f.Write(input.Writer); err != nil {
		return ExportAttendanceResult{}, fmt.Errorf("write workbook: %w", err)
	}

	slog.Info("attendance_export", "members", len(roster), "sessions", cal.TotalSessions)
	return ExportAttendanceResult{Members: len(roster), Sessions: cal.TotalSessions}, nil
}

func styleAttendanceSheet(f *excelize.File, lastCol, lastRow int) error {
	bold, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	centered, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("create cell style: %w", err)
	}

	lastHeader, err := excelize.CoordinatesToCellName(lastCol, 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(AttendanceSheetName, "A1", lastHeader, bold); err != nil {
		return err
	}
	if lastRow > 1 {
		lastCell, err := excelize.CoordinatesToCellName(lastCol, lastRow)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(AttendanceSheetName, "D2", lastCell, centered); err != nil {
			return err
		}
	}

	lastName, err := excelize.ColumnNumberToName(lastCol)
	if err != nil {
		return err
	}
	if err := f.SetColWidth(AttendanceSheetName, "B", "B", 16); err != nil {
		return err
	}
	if err := f.SetColWidth(AttendanceSheetName, "D", lastName, 14); err != nil {
		return err
	}
	return f.SetPanes(AttendanceSheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      3,
		YSplit:      1,
		TopLeftCell: "D2",
		ActivePane:  "bottomRight",
	})
}
