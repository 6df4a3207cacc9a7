package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chamber/internal/adapters/remote"
	"chamber/internal/adapters/storage/cache"
	"chamber/internal/domain/attendance"
	"chamber/internal/domain/member"
	domain "chamber/internal/domain/outbox"
	"chamber/internal/domain/practicesong"
	"chamber/internal/domain/sheetmusic"
)

type attendancePayload struct {
	Session   int               `json:"session"`
	MemberNo  int               `json:"memberNo"`
	Status    attendance.Status `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
}

type memberKeyPayload struct {
	No int `json:"no"`
}

type idPayload struct {
	ID string `json:"id"`
}

type blobPayload struct {
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
}

type sessionSongPayload struct {
	Session int    `json:"session"`
	SongID  string `json:"songId"`
}

// decodeExecutor unmarshals the payload into P before calling fn.
func decodeExecutor[P any](fn func(ctx context.Context, p P) error) ActionExecutor {
	return ExecutorFunc(func(ctx context.Context, payload string) error {
		var p P
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return fn(ctx, p)
	})
}

func (s *Service) executors() map[string]ActionExecutor {
	return map[string]ActionExecutor{
		domain.ActionAttendanceUpsert: decodeExecutor(s.pushAttendance),
		domain.ActionMemberUpsert:     decodeExecutor(s.pushMember),
		domain.ActionMemberDelete:     decodeExecutor(s.pushMemberDelete),
		domain.ActionSheetUpsert: decodeExecutor(func(ctx context.Context, p sheetmusic.SheetMusic) error {
			return s.remote.UpsertSheetMusic(ctx, p)
		}),
		domain.ActionSheetDelete: decodeExecutor(func(ctx context.Context, p idPayload) error {
			return s.remote.DeleteSheetMusic(ctx, p.ID)
		}),
		domain.ActionBlobUpload: decodeExecutor(s.pushBlob),
		domain.ActionBlobDelete: decodeExecutor(s.pushBlobDelete),
		domain.ActionSongUpsert: decodeExecutor(func(ctx context.Context, p practicesong.Song) error {
			return s.remote.UpsertPracticeSong(ctx, p)
		}),
		domain.ActionSongDelete: decodeExecutor(func(ctx context.Context, p idPayload) error {
			return s.remote.DeletePracticeSong(ctx, p.ID)
		}),
		domain.ActionSessionSongAdd: decodeExecutor(func(ctx context.Context, p sessionSongPayload) error {
			return s.remote.AddSessionSong(ctx, p.Session, p.SongID)
		}),
		domain.ActionSessionSongDel: decodeExecutor(func(ctx context.Context, p sessionSongPayload) error {
			return s.remote.RemoveSessionSong(ctx, p.Session, p.SongID)
		}),
	}
}

func (s *Service) pushAttendance(ctx context.Context, p attendancePayload) error {
	id, err := s.resolveMemberID(ctx, p.MemberNo)
	if err != nil {
		return err
	}
	return s.remote.UpsertAttendance(ctx, remote.AttendanceRow{
		MemberID:      id,
		SessionNumber: p.Session,
		Status:        string(p.Status),
		UpdatedAt:     p.Timestamp,
	})
}

func (s *Service) pushMember(ctx context.Context, m member.Member) error {
	row, err := s.remote.UpsertMember(ctx, m)
	if err != nil {
		return err
	}
	s.ids.Put(row.No, row.ID)
	return nil
}

func (s *Service) pushMemberDelete(ctx context.Context, p memberKeyPayload) error {
	if err := s.remote.DeleteMember(ctx, p.No); err != nil {
		return err
	}
	s.ids.Forget(p.No)
	return nil
}

// pushBlob uploads the locally kept bytes. Bytes already dropped locally
// mean the attachment was removed before it was ever uploaded.
func (s *Service) pushBlob(ctx context.Context, p blobPayload) error {
	if s.blobs == nil {
		return ErrRemoteUnavailable
	}
	data, err := s.cache.Load(ctx, cache.BlobKey(p.Path))
	if errors.Is(err, cache.ErrNotFound) {
		slog.Info("blob_upload_skipped", "path", p.Path, "reason", "local copy removed")
		return nil
	}
	if err != nil {
		return err
	}
	return s.blobs.PutObject(ctx, p.Path, p.ContentType, data)
}

func (s *Service) pushBlobDelete(ctx context.Context, p blobPayload) error {
	if s.blobs == nil {
		return ErrRemoteUnavailable
	}
	err := s.blobs.DeleteObject(ctx, p.Path)
	if errors.Is(err, remote.ErrNotFound) {
		return nil
	}
	return err
}

// resolveMemberID maps a member number to its remote id: id map, then a
// remote lookup, then an upsert from the local roster and exactly one more lookup.
// POST: returns the id or an error wrapping ErrIdentifierUnresolved
func (s *Service) resolveMemberID(ctx context.Context, no int) (int64, error) {
	if id, ok := s.ids.Resolve(no); ok {
		return id, nil
	}

	row, err := s.remote.FindMemberByNo(ctx, no)
	if err == nil {
		s.ids.Put(row.No, row.ID)
		return row.ID, nil
	}
	if !errors.Is(err, remote.ErrNotFound) {
		return 0, err
	}

	m, ok := s.members.Get().Find(no)
	if !ok {
		return 0, fmt.Errorf("%w: member %d is not in the roster", ErrIdentifierUnresolved, no)
	}
	slog.Info("remote_member_created_on_demand", "member_no", no)
	if _, err := s.remote.UpsertMember(ctx, m); err != nil {
		return 0, err
	}

	row, err = s.remote.FindMemberByNo(ctx, no)
	if errors.Is(err, remote.ErrNotFound) {
		return 0, fmt.Errorf("%w: member %d", ErrIdentifierUnresolved, no)
	}
	if err != nil {
		return 0, err
	}
	s.ids.Put(row.No, row.ID)
	return row.ID, nil
}
