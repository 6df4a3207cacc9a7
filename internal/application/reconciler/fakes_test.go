package reconciler

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"chamber/internal/adapters/realtime"
	"chamber/internal/adapters/remote"
	"chamber/internal/adapters/storage"
	"chamber/internal/adapters/storage/cache"
	outboxStore "chamber/internal/adapters/storage/outbox"
	"chamber/internal/domain/member"
	domain "chamber/internal/domain/outbox"
	"chamber/internal/domain/practicesong"
	"chamber/internal/domain/session"
	"chamber/internal/domain/sheetmusic"
)

var errRemoteDown = errors.New("connection refused")

// fakeRemote is an in-memory remote store.
// PRE: none
// POST: every method fails with errRemoteDown while down is set
type fakeRemote struct {
	mu       sync.Mutex
	down     bool
	nextID   int64
	members  map[int]remote.MemberRow
	att      map[[2]int64]remote.AttendanceRow // {memberID, session}
	sheets   map[string]sheetmusic.SheetMusic
	songs    map[string]practicesong.Song
	links    map[remote.SessionSongRow]bool
	objects  map[string][]byte
	calls    []string
	failOps  map[string]bool
	upserted []member.Member
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		nextID:  100,
		members: make(map[int]remote.MemberRow),
		att:     make(map[[2]int64]remote.AttendanceRow),
		sheets:  make(map[string]sheetmusic.SheetMusic),
		songs:   make(map[string]practicesong.Song),
		links:   make(map[remote.SessionSongRow]bool),
		objects: make(map[string][]byte),
		failOps: make(map[string]bool),
	}
}

func (f *fakeRemote) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeRemote) failOp(op string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOps[op] = fail
}

func (f *fakeRemote) enter(op string) error {
	f.calls = append(f.calls, op)
	if f.down || f.failOps[op] {
		return &remote.RequestError{Op: op, Err: errRemoteDown}
	}
	return nil
}

func (f *fakeRemote) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("ping")
}

func (f *fakeRemote) ListMembers(ctx context.Context) ([]remote.MemberRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("list_members"); err != nil {
		return nil, err
	}
	var rows []remote.MemberRow
	for _, r := range f.members {
		rows = append(rows, r)
	}
	slices.SortFunc(rows, func(a, b remote.MemberRow) int { return a.No - b.No })
	return rows, nil
}

func (f *fakeRemote) FindMemberByNo(ctx context.Context, no int) (remote.MemberRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("find_member"); err != nil {
		return remote.MemberRow{}, err
	}
	r, ok := f.members[no]
	if !ok {
		return remote.MemberRow{}, remote.ErrNotFound
	}
	return r, nil
}

func (f *fakeRemote) upsertLocked(m member.Member) remote.MemberRow {
	row, ok := f.members[m.No]
	if !ok {
		f.nextID++
		row.ID = f.nextID
	}
	row.No, row.Name, row.Instrument = m.No, m.Name, m.Instrument
	f.members[m.No] = row
	return row
}

func (f *fakeRemote) UpsertMember(ctx context.Context, m member.Member) (remote.MemberRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("upsert_member"); err != nil {
		return remote.MemberRow{}, err
	}
	f.upserted = append(f.upserted, m)
	return f.upsertLocked(m), nil
}

func (f *fakeRemote) InsertMembers(ctx context.Context, ms []member.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("insert_members"); err != nil {
		return err
	}
	for _, m := range ms {
		if _, ok := f.members[m.No]; !ok {
			f.upsertLocked(m)
		}
	}
	return nil
}

func (f *fakeRemote) DeleteMember(ctx context.Context, no int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete_member"); err != nil {
		return err
	}
	row, ok := f.members[no]
	if !ok {
		return nil
	}
	for k := range f.att {
		if k[0] == row.ID {
			delete(f.att, k)
		}
	}
	delete(f.members, no)
	return nil
}

func (f *fakeRemote) ListAttendance(ctx context.Context) ([]remote.AttendanceRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("list_attendance"); err != nil {
		return nil, err
	}
	var rows []remote.AttendanceRow
	for _, r := range f.att {
		rows = append(rows, r)
	}
	return rows, nil
}

func (f *fakeRemote) UpsertAttendance(ctx context.Context, row remote.AttendanceRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("upsert_attendance"); err != nil {
		return err
	}
	f.att[[2]int64{row.MemberID, int64(row.SessionNumber)}] = row
	return nil
}

// attendanceOf returns the stored status for member no in session.
func (f *fakeRemote) attendanceOf(no, session int) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[no]
	if !ok {
		return "", false
	}
	r, ok := f.att[[2]int64{m.ID, int64(session)}]
	return r.Status, ok
}

func (f *fakeRemote) ListSheetMusic(ctx context.Context) ([]sheetmusic.SheetMusic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("list_sheet_music"); err != nil {
		return nil, err
	}
	var out []sheetmusic.SheetMusic
	for _, s := range f.sheets {
		s.Files = slices.Clone(s.Files)
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b sheetmusic.SheetMusic) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (f *fakeRemote) UpsertSheetMusic(ctx context.Context, s sheetmusic.SheetMusic) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("upsert_sheet_music"); err != nil {
		return err
	}
	s.Files = slices.Clone(s.Files)
	f.sheets[s.ID] = s
	return nil
}

func (f *fakeRemote) DeleteSheetMusic(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete_sheet_music"); err != nil {
		return err
	}
	delete(f.sheets, id)
	return nil
}

func (f *fakeRemote) ListPracticeSongs(ctx context.Context) ([]practicesong.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("list_practice_songs"); err != nil {
		return nil, err
	}
	var out []practicesong.Song
	for _, s := range f.songs {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b practicesong.Song) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (f *fakeRemote) UpsertPracticeSong(ctx context.Context, s practicesong.Song) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("upsert_practice_song"); err != nil {
		return err
	}
	f.songs[s.ID] = s
	return nil
}

func (f *fakeRemote) DeletePracticeSong(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete_practice_song"); err != nil {
		return err
	}
	delete(f.songs, id)
	for k := range f.links {
		if k.PracticeSongID == id {
			delete(f.links, k)
		}
	}
	return nil
}

func (f *fakeRemote) ListSessionSongs(ctx context.Context) ([]remote.SessionSongRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("list_session_songs"); err != nil {
		return nil, err
	}
	var out []remote.SessionSongRow
	for r := range f.links {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRemote) AddSessionSong(ctx context.Context, session int, songID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("add_session_song"); err != nil {
		return err
	}
	f.links[remote.SessionSongRow{SessionNumber: session, PracticeSongID: songID}] = true
	return nil
}

func (f *fakeRemote) RemoveSessionSong(ctx context.Context, session int, songID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("remove_session_song"); err != nil {
		return err
	}
	delete(f.links, remote.SessionSongRow{SessionNumber: session, PracticeSongID: songID})
	return nil
}

func (f *fakeRemote) PutObject(ctx context.Context, path, contentType string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("put_object"); err != nil {
		return err
	}
	f.objects[path] = slices.Clone(data)
	return nil
}

func (f *fakeRemote) GetObject(ctx context.Context, path string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get_object"); err != nil {
		return nil, "", err
	}
	data, ok := f.objects[path]
	if !ok {
		return nil, "", remote.ErrNotFound
	}
	return slices.Clone(data), "application/octet-stream", nil
}

func (f *fakeRemote) DeleteObject(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete_object"); err != nil {
		return err
	}
	delete(f.objects, path)
	return nil
}

// recordingPublisher captures published messages.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []realtime.Message
}

func (p *recordingPublisher) Publish(channel string, msg realtime.Message) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return 1
}

func (p *recordingPublisher) count(msgType, resource string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.msgs {
		if m.Type == msgType && (resource == "" || m.Resource == resource) {
			n++
		}
	}
	return n
}

// failingCache rejects every Save.
type failingCache struct {
	cache.Store
}

func (failingCache) Save(ctx context.Context, key string, value []byte) error {
	return errors.New("disk full")
}

// failingKeyCache rejects Save for one key only.
type failingKeyCache struct {
	cache.Store
	key string
}

func (c failingKeyCache) Save(ctx context.Context, key string, value []byte) error {
	if key == c.key {
		return errors.New("disk full")
	}
	return c.Store.Save(ctx, key, value)
}

// failingOutbox rejects every Save.
type failingOutbox struct {
	outboxStore.Store
}

func (failingOutbox) Save(ctx context.Context, e domain.Entry) error {
	return errors.New("database is locked")
}

func openTestDB(t *testing.T) *sql.DB {
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
	return db
}

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

type harness struct {
	svc    *Service
	remote *fakeRemote
	pub    *recordingPublisher
	cache  cache.Store
	outbox outboxStore.Store
}

// newHarness builds a service over in-memory SQLite. withRemote wires the fake remote.
func newHarness(t *testing.T, withRemote bool) *harness {
	t.Helper()
	db := openTestDB(t)
	h := &harness{
		pub:    &recordingPublisher{},
		cache:  cache.NewSQLiteStore(db),
		outbox: outboxStore.NewSQLiteStore(db),
	}
	deps := Deps{Cache: h.cache, Outbox: h.outbox, Publisher: h.pub}
	if withRemote {
		h.remote = newFakeRemote()
		deps.Remote = h.remote
		deps.Blobs = h.remote
	}
	svc, err := New(Config{
		Calendar: testCalendar(),
		Now:      func() time.Time { return time.Date(2025, 9, 21, 10, 0, 0, 0, time.UTC) },
	}, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.svc = svc
	return h
}

func (h *harness) addMembers(t *testing.T, ms ...member.Member) {
	t.Helper()
	for _, m := range ms {
		if _, err := h.svc.AddMember(context.Background(), m); err != nil {
			t.Fatalf("AddMember %d: %v", m.No, err)
		}
	}
}

func (h *harness) pending(t *testing.T, resource string) int {
	t.Helper()
	n, err := h.outbox.CountPending(context.Background(), resource)
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	return n
}

var (
	alice = member.Member{No: 1, Name: "Alice", Instrument: member.InstrumentViolin}
	bob   = member.Member{No: 2, Name: "Bob", Instrument: member.InstrumentCello}
	carol = member.Member{No: 3, Name: "Carol", Instrument: member.InstrumentFlute}
)

func newOutboxFor(db *sql.DB) outboxStore.Store {
	return outboxStore.NewSQLiteStore(db)
}
