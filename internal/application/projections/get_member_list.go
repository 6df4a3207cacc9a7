package projections

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"

	"chamber/internal/application/listutil"
	"chamber/internal/domain/attendance"
	"chamber/internal/domain/member"
)

// MemberListSortColumns are the columns GetMemberList can order by.
var MemberListSortColumns = []string{"no", "name", "instrument", "attended"}

// MemberListFilterKeys are the exact-match filters GetMemberList accepts.
var MemberListFilterKeys = []string{"instrument"}

// GetMemberListQuery carries query parameters.
type GetMemberListQuery struct {
	List listutil.ListParams
}

// MemberRow is one roster member with their attendance so far.
type MemberRow struct {
	member.Member
	Attended int `json:"attended"`
	Held     int `json:"held"`
}

// GetMemberListResult carries the query result.
type GetMemberListResult struct {
	Members []MemberRow       `json:"members"`
	Page    listutil.PageInfo `json:"page"`
}

// GetMemberListDeps holds dependencies for GetMemberList.
type GetMemberListDeps struct {
	Attendance AttendanceReader
}

// QueryGetMemberList searches, sorts and pages the roster. Search matches a
// name substring (case-insensitive) or an exact member number.
// PRE: query.List comes from listutil.ParseListParams
// POST: Members holds at most PerPage rows; Page.Total counts every match
// INVARIANT: ties keep roster (member number) order
func QueryGetMemberList(ctx context.Context, query GetMemberListQuery, deps GetMemberListDeps) (GetMemberListResult, error) {
	if err := ctx.Err(); err != nil {
		return GetMemberListResult{}, err
	}
	params := query.List
	search := strings.ToLower(params.Search)
	instrument := params.Filters["instrument"]
	if instrument != "" {
		parsed, err := member.ParseInstrument(instrument)
		if err != nil {
			return GetMemberListResult{}, err
		}
		instrument = parsed
	}

	var rows []MemberRow
	for _, m := range deps.Attendance.Members() {
		if instrument != "" && m.Instrument != instrument {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(m.Name), search) && strconv.Itoa(m.No) != search {
			continue
		}
		rows = append(rows, MemberRow{Member: m})
	}
	countAttendance(deps.Attendance, rows)

	if cmpFn := memberRowOrder(params.Sort); cmpFn != nil {
		slices.SortStableFunc(rows, func(a, b MemberRow) int {
			if params.Dir == "desc" {
				return cmpFn(b, a)
			}
			return cmpFn(a, b)
		})
	} else if params.Dir == "desc" {
		slices.Reverse(rows)
	}

	page := listutil.NewPageInfo(params.Page, params.PerPage, len(rows))
	start, end := page.Window()
	out := make([]MemberRow, 0, end-start)
	out = append(out, rows[start:end]...)
	return GetMemberListResult{Members: out, Page: page}, nil
}

// countAttendance fills Attended and Held for sessions that have already
// started: the count stops at the session active on today's date.
func countAttendance(reader AttendanceReader, rows []MemberRow) {
	if len(rows) == 0 {
		return
	}
	cal := reader.Calendar()
	current := cal.SessionForDate(reader.Now())
	index := make(map[int]int, len(rows))
	for i, r := range rows {
		index[r.No] = i
	}
	for n := 1; n <= current; n++ {
		if cal.IsHoliday(n) {
			continue
		}
		statuses := reader.SessionAttendance(n)
		for i := range rows {
			rows[i].Held++
		}
		for no, status := range statuses {
			if i, ok := index[no]; ok && status == attendance.StatusPresent {
				rows[i].Attended++
			}
		}
	}
}

func memberRowOrder(column string) func(a, b MemberRow) int {
	switch column {
	case "no":
		return func(a, b MemberRow) int { return cmp.Compare(a.No, b.No) }
	case "name":
		return func(a, b MemberRow) int { return strings.Compare(a.Name, b.Name) }
	case "instrument":
		return func(a, b MemberRow) int {
			return cmp.Compare(slices.Index(member.Instruments, a.Instrument), slices.Index(member.Instruments, b.Instrument))
		}
	case "attended":
		return func(a, b MemberRow) int { return cmp.Compare(a.Attended, b.Attended) }
	}
	return nil
}
