package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"chamber/internal/domain/attendance"
	domain "chamber/internal/domain/outbox"
	"chamber/internal/domain/practicesong"
)

// Songs returns a copy of the practice-song list.
func (s *Service) Songs() practicesong.Songs {
	return s.songs.Get()
}

// Assignments returns a copy of the session to song mapping.
func (s *Service) Assignments() practicesong.Assignments {
	return s.assignments.Get()
}

// SessionSongs returns the songs assigned to a session, in id order.
// Links to songs no longer in the list are skipped.
func (s *Service) SessionSongs(sessionNo int) []practicesong.Song {
	songs := s.songs.Get()
	var out []practicesong.Song
	for _, id := range s.assignments.Get()[sessionNo] {
		if song, ok := songs.Find(id); ok {
			out = append(out, song)
		}
	}
	return out
}

// SaveSong creates a song when song.ID is empty and updates it otherwise.
func (s *Service) SaveSong(ctx context.Context, song practicesong.Song) (practicesong.Song, WriteResult, error) {
	create := song.ID == ""
	if create {
		song.ID = newID()
	}
	song.Title = strings.TrimSpace(song.Title)
	if err := song.Validate(); err != nil {
		return practicesong.Song{}, WriteResult{}, err
	}

	_, result, err := write(ctx, s, s.songs, func(l practicesong.Songs) (practicesong.Songs, []action, error) {
		if _, ok := l.Find(song.ID); !ok && !create {
			return nil, nil, practicesong.ErrNotFound
		}
		return l.Upsert(song), []action{{Resource: ResourcePracticeSongs, Key: song.ID, Type: domain.ActionSongUpsert, Payload: song}}, nil
	})
	if err != nil {
		return practicesong.Song{}, WriteResult{}, err
	}
	slog.Info("practice_song_event", "event", "practice_song_saved", "id", song.ID, "created", create, "remote", string(result.Remote))
	return song, result, nil
}

// DeleteSong removes a song and unassigns it from every session.
func (s *Service) DeleteSong(ctx context.Context, id string) (WriteResult, error) {
	_, result, err := write(ctx, s, s.songs, func(l practicesong.Songs) (practicesong.Songs, []action, error) {
		if _, ok := l.Find(id); !ok {
			return nil, nil, practicesong.ErrNotFound
		}
		return l.Remove(id), []action{{Resource: ResourcePracticeSongs, Key: id, Type: domain.ActionSongDelete, Payload: idPayload{ID: id}}}, nil
	})
	if err != nil {
		return WriteResult{}, err
	}

	unassigned := 0
	_, _, err = write(ctx, s, s.assignments, func(a practicesong.Assignments) (practicesong.Assignments, []action, error) {
		var acts []action
		for sessionNo := range a {
			if a.Has(sessionNo, id) {
				acts = append(acts, sessionSongAction(domain.ActionSessionSongDel, sessionNo, id))
			}
		}
		unassigned = len(acts)
		a.RemoveSong(id)
		return a, acts, nil
	})
	if err != nil {
		return result, err
	}
	slog.Info("practice_song_event", "event", "practice_song_deleted", "id", id, "sessions", unassigned, "remote", string(result.Remote))
	return result, nil
}

func sessionSongAction(actionType string, sessionNo int, songID string) action {
	return action{
		Resource: ResourceSessionSongs,
		Key:      assignmentKey(sessionNo, songID),
		Type:     actionType,
		Payload:  sessionSongPayload{Session: sessionNo, SongID: songID},
	}
}

// AssignSong schedules a song for a session. Assigning twice is a no-op.
func (s *Service) AssignSong(ctx context.Context, sessionNo int, songID string) (WriteResult, error) {
	if !s.cfg.Calendar.InRange(sessionNo) {
		return WriteResult{}, fmt.Errorf("%w: %d", attendance.ErrInvalidSession, sessionNo)
	}
	if _, ok := s.songs.Get().Find(songID); !ok {
		return WriteResult{}, practicesong.ErrNotFound
	}
	_, result, err := write(ctx, s, s.assignments, func(a practicesong.Assignments) (practicesong.Assignments, []action, error) {
		if !a.Add(sessionNo, songID) {
			return a, nil, nil
		}
		return a, []action{sessionSongAction(domain.ActionSessionSongAdd, sessionNo, songID)}, nil
	})
	if err != nil {
		return WriteResult{}, err
	}
	slog.Info("practice_song_event", "event", "song_assigned", "session", sessionNo, "id", songID, "remote", string(result.Remote))
	return result, nil
}

// UnassignSong removes a song from a session. Removing a missing link is a no-op.
func (s *Service) UnassignSong(ctx context.Context, sessionNo int, songID string) (WriteResult, error) {
	_, result, err := write(ctx, s, s.assignments, func(a practicesong.Assignments) (practicesong.Assignments, []action, error) {
		if !a.Remove(sessionNo, songID) {
			return a, nil, nil
		}
		return a, []action{sessionSongAction(domain.ActionSessionSongDel, sessionNo, songID)}, nil
	})
	if err != nil {
		return WriteResult{}, err
	}
	slog.Info("practice_song_event", "event", "song_unassigned", "session", sessionNo, "id", songID, "remote", string(result.Remote))
	return result, nil
}
