package orchestrators

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chamber/internal/application/reconciler"
	domain "chamber/internal/domain/member"
)

// mockRosterWriter implements RosterWriter for testing.
type mockRosterWriter struct {
	roster  domain.Roster
	saveErr error
	adds    int
	updates int
}

// Members implements RosterWriter.
// PRE: none
// POST: returns the current roster
func (m *mockRosterWriter) Members() domain.Roster {
	return m.roster.Clone()
}

// AddMember implements RosterWriter.
// PRE: mem is valid
// POST: mem is appended unless saveErr is set
func (m *mockRosterWriter) AddMember(_ context.Context, mem domain.Member) (reconciler.WriteResult, error) {
	if m.saveErr != nil {
		return reconciler.WriteResult{}, m.saveErr
	}
	if _, ok := m.roster.Find(mem.No); ok {
		return reconciler.WriteResult{}, domain.ErrDuplicateNo
	}
	m.adds++
	m.roster = m.roster.Upsert(mem)
	return reconciler.WriteResult{Remote: reconciler.RemoteLocalOnly}, nil
}

// UpdateMember implements RosterWriter.
// PRE: mem is valid
// POST: mem replaces the entry with the same number
func (m *mockRosterWriter) UpdateMember(_ context.Context, mem domain.Member) (reconciler.WriteResult, error) {
	if m.saveErr != nil {
		return reconciler.WriteResult{}, m.saveErr
	}
	if _, ok := m.roster.Find(mem.No); !ok {
		return reconciler.WriteResult{}, domain.ErrNotFound
	}
	m.updates++
	m.roster = m.roster.Upsert(mem)
	return reconciler.WriteResult{Remote: reconciler.RemoteLocalOnly}, nil
}

func newMockRoster(members ...domain.Member) *mockRosterWriter {
	var r domain.Roster
	for _, m := range members {
		r = r.Upsert(m)
	}
	return &mockRosterWriter{roster: r}
}

func TestExecuteImportRoster_CreatesMembers(t *testing.T) {
	w := newMockRoster()
	csv := "NO,NAME,INSTRUMENT\n1,Alice,violin\n2,Bob,첼로\n3,Carol,Flute\n"

	result, err := ExecuteImportRoster(context.Background(), ImportRosterInput{Reader: strings.NewReader(csv)}, ImportRosterDeps{Roster: w})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 3 || result.Created != 3 {
		t.Fatalf("got total=%d created=%d, want 3/3", result.Total, result.Created)
	}
	if len(w.roster) != 3 {
		t.Fatalf("roster has %d members, want 3", len(w.roster))
	}
	bob, _ := w.roster.Find(2)
	if bob.Instrument != domain.InstrumentCello {
		t.Errorf("Korean instrument not normalized: %q", bob.Instrument)
	}
}

func TestExecuteImportRoster_DryRunWritesNothing(t *testing.T) {
	w := newMockRoster(domain.Member{No: 1, Name: "Alice", Instrument: domain.InstrumentViolin})
	csv := "no,name,instrument\n1,Alicia,violin\n2,Bob,cello\n"

	result, err := ExecuteImportRoster(context.Background(), ImportRosterInput{
		Reader:     strings.NewReader(csv),
		DryRun:     true,
		UpdateMode: true,
	}, ImportRosterDeps{Roster: w})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.DryRun || result.Created != 1 || result.Updated != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if w.adds != 0 || w.updates != 0 {
		t.Fatalf("dry run wrote %d adds, %d updates", w.adds, w.updates)
	}
}

func TestExecuteImportRoster_ExistingSkippedWithoutUpdateMode(t *testing.T) {
	w := newMockRoster(domain.Member{No: 1, Name: "Alice", Instrument: domain.InstrumentViolin})
	csv := "NO,NAME,INSTRUMENT\n1,Alicia,piano\n"

	result, err := ExecuteImportRoster(context.Background(), ImportRosterInput{Reader: strings.NewReader(csv)}, ImportRosterDeps{Roster: w})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped != 1 || w.updates != 0 {
		t.Fatalf("got skipped=%d updates=%d, want 1/0", result.Skipped, w.updates)
	}
	alice, _ := w.roster.Find(1)
	if alice.Name != "Alice" {
		t.Errorf("existing member changed to %q", alice.Name)
	}
}

func TestExecuteImportRoster_UpdateMode(t *testing.T) {
	w := newMockRoster(
		domain.Member{No: 1, Name: "Alice", Instrument: domain.InstrumentViolin},
		domain.Member{No: 2, Name: "Bob", Instrument: domain.InstrumentCello},
	)
	csv := "NO,NAME,INSTRUMENT\n1,Alicia,piano\n2,Bob,cello\n"

	result, err := ExecuteImportRoster(context.Background(), ImportRosterInput{
		Reader:     strings.NewReader(csv),
		UpdateMode: true,
	}, ImportRosterDeps{Roster: w})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Unchanged rows count as skipped.
	if result.Updated != 1 || result.Skipped != 1 {
		t.Fatalf("got updated=%d skipped=%d, want 1/1", result.Updated, result.Skipped)
	}
	alice, _ := w.roster.Find(1)
	if alice.Name != "Alicia" || alice.Instrument != domain.InstrumentPiano {
		t.Errorf("update not applied: %+v", alice)
	}
}

func TestExecuteImportRoster_RowErrors(t *testing.T) {
	w := newMockRoster()
	csv := strings.Join([]string{
		"NO,NAME,INSTRUMENT,PART",
		"x,Alice,violin,1st",
		"2,,cello,",
		"3,Carol,tuba,",
		"4,Dan,piano,",
		"4,Dan again,piano,",
		"",
	}, "\n")

	result, err := ExecuteImportRoster(context.Background(), ImportRosterInput{Reader: strings.NewReader(csv)}, ImportRosterDeps{Roster: w})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 5 || result.Created != 1 {
		t.Fatalf("got total=%d created=%d, want 5/1", result.Total, result.Created)
	}
	if len(result.Errors) != 4 {
		t.Fatalf("got %d row errors, want 4: %+v", len(result.Errors), result.Errors)
	}
	wantRows := []int{2, 3, 4, 6}
	for i, e := range result.Errors {
		if e.Row != wantRows[i] {
			t.Errorf("error %d on row %d, want %d", i, e.Row, wantRows[i])
		}
	}
	if len(result.Unknown) != 1 || result.Unknown[0] != "PART" {
		t.Errorf("unknown columns = %v, want [PART]", result.Unknown)
	}
}

func TestExecuteImportRoster_MissingColumn(t *testing.T) {
	_, err := ExecuteImportRoster(context.Background(), ImportRosterInput{
		Reader: strings.NewReader("NO,NAME\n1,Alice\n"),
	}, ImportRosterDeps{Roster: newMockRoster()})
	var verr *ImportRosterValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(verr.Message, "INSTRUMENT") {
		t.Errorf("message %q does not name the column", verr.Message)
	}
}

func TestExecuteImportRoster_EmptyInput(t *testing.T) {
	_, err := ExecuteImportRoster(context.Background(), ImportRosterInput{Reader: strings.NewReader("")}, ImportRosterDeps{Roster: newMockRoster()})
	var verr *ImportRosterValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExecuteImportRoster_ByteOrderMark(t *testing.T) {
	w := newMockRoster()
	csv := "\ufeffNO,NAME,INSTRUMENT\n1,Alice,violin\n"

	result, err := ExecuteImportRoster(context.Background(), ImportRosterInput{Reader: strings.NewReader(csv)}, ImportRosterDeps{Roster: w})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Created != 1 {
		t.Fatalf("created = %d, want 1", result.Created)
	}
}

func TestExecuteImportRoster_SaveFailure(t *testing.T) {
	w := newMockRoster()
	w.saveErr = errors.New("disk full")
	csv := "NO,NAME,INSTRUMENT\n1,Alice,violin\n"

	result, err := ExecuteImportRoster(context.Background(), ImportRosterInput{Reader: strings.NewReader(csv)}, ImportRosterDeps{Roster: w})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Created != 0 || len(result.Errors) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if strings.Contains(result.Errors[0].Message, "disk full") {
		t.Errorf("internal error leaked into row message: %q", result.Errors[0].Message)
	}
}
