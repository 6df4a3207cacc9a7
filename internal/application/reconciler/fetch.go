package reconciler

import (
	"context"
	"log/slog"

	"chamber/internal/domain/attendance"
	"chamber/internal/domain/member"
	"chamber/internal/domain/practicesong"
	"chamber/internal/domain/sheetmusic"
)

// pullMembers fetches the remote roster and refreshes the id map. An empty
// remote roster is seeded from the local one once per process, then listed again.
func (s *Service) pullMembers(ctx context.Context) (bool, error) {
	gen := s.members.generation()
	rows, err := s.remote.ListMembers(ctx)
	if err != nil {
		return false, err
	}

	if len(rows) == 0 {
		seeded, err := s.bootstrapRoster(ctx)
		if err != nil {
			return false, err
		}
		if seeded {
			if rows, err = s.remote.ListMembers(ctx); err != nil {
				return false, err
			}
		}
	}

	s.ids.Replace(rows)
	snapshot := make(member.Roster, 0, len(rows))
	for _, r := range rows {
		snapshot = snapshot.Upsert(member.Member{No: r.No, Name: r.Name, Instrument: r.Instrument})
	}
	return s.members.adopt(ctx, s.cache, snapshot, gen, s.pendingFor(ctx, ResourceMembers))
}

// bootstrapRoster creates the local roster remotely. It succeeds at most
// once per process.
func (s *Service) bootstrapRoster(ctx context.Context) (bool, error) {
	s.bootstrapMu.Lock()
	defer s.bootstrapMu.Unlock()
	local := s.members.Get()
	if s.bootstrapped || len(local) == 0 {
		return false, nil
	}
	slog.Info("remote_roster_bootstrap", "members", len(local))
	if err := s.remote.InsertMembers(ctx, local); err != nil {
		return false, err
	}
	s.bootstrapped = true
	return true, nil
}

// pullAttendance rebuilds the sheet from remote rows, translating remote
// member ids back to member numbers. Rows that cannot be mapped are skipped.
func (s *Service) pullAttendance(ctx context.Context) (bool, error) {
	gen := s.attendance.generation()
	members, err := s.remote.ListMembers(ctx)
	if err != nil {
		return false, err
	}
	s.ids.Replace(members)

	rows, err := s.remote.ListAttendance(ctx)
	if err != nil {
		return false, err
	}

	snapshot := attendance.Sheet{}
	for _, row := range rows {
		no, ok := s.ids.ReverseResolve(row.MemberID)
		if !ok {
			slog.Warn("sync_attendance_row_unmapped", "member_id", row.MemberID, "session", row.SessionNumber)
			continue
		}
		rec, err := attendance.NormalizeRemote(row.Status, row.UpdatedAt)
		if err != nil {
			slog.Warn("sync_attendance_row_invalid", "member_id", row.MemberID, "session", row.SessionNumber, "error", err)
			continue
		}
		snapshot.Set(row.SessionNumber, no, rec)
	}
	return s.attendance.adopt(ctx, s.cache, snapshot, gen, s.pendingFor(ctx, ResourceAttendance, ResourceMembers))
}

func (s *Service) pullSheetMusic(ctx context.Context) (bool, error) {
	gen := s.sheets.generation()
	list, err := s.remote.ListSheetMusic(ctx)
	if err != nil {
		return false, err
	}
	snapshot := sheetmusic.Catalog{}
	for _, sm := range list {
		if sm.Files == nil {
			sm.Files = []sheetmusic.Attachment{}
		}
		snapshot = snapshot.Upsert(sm)
	}
	return s.sheets.adopt(ctx, s.cache, snapshot, gen, s.pendingFor(ctx, ResourceSheetMusic))
}

func (s *Service) pullPracticeSongs(ctx context.Context) (bool, error) {
	gen := s.songs.generation()
	list, err := s.remote.ListPracticeSongs(ctx)
	if err != nil {
		return false, err
	}
	snapshot := practicesong.Songs{}
	for _, song := range list {
		snapshot = snapshot.Upsert(song)
	}
	return s.songs.adopt(ctx, s.cache, snapshot, gen, s.pendingFor(ctx, ResourcePracticeSongs))
}

func (s *Service) pullSessionSongs(ctx context.Context) (bool, error) {
	gen := s.assignments.generation()
	rows, err := s.remote.ListSessionSongs(ctx)
	if err != nil {
		return false, err
	}
	snapshot := practicesong.Assignments{}
	for _, row := range rows {
		snapshot.Add(row.SessionNumber, row.PracticeSongID)
	}
	return s.assignments.adopt(ctx, s.cache, snapshot, gen,
		s.pendingFor(ctx, ResourceSessionSongs, ResourcePracticeSongs))
}
