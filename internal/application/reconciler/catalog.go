package reconciler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"chamber/internal/adapters/remote"
	"chamber/internal/adapters/storage/cache"
	domain "chamber/internal/domain/outbox"
	"chamber/internal/domain/sheetmusic"
)

// Catalog returns a copy of the sheet-music catalog.
func (s *Service) Catalog() sheetmusic.Catalog {
	return s.sheets.Get()
}

// SheetMusic returns one catalog entry.
func (s *Service) SheetMusic(id string) (sheetmusic.SheetMusic, error) {
	sm, ok := s.sheets.Get().Find(id)
	if !ok {
		return sheetmusic.SheetMusic{}, sheetmusic.ErrNotFound
	}
	return sm, nil
}

// newID returns a time-ordered id so catalogs sort in creation order.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SaveSheetMusic creates an entry when sm.ID is empty and updates it
// otherwise. Attachments are managed separately and are kept as they are.
// POST: returns the stored entry
func (s *Service) SaveSheetMusic(ctx context.Context, sm sheetmusic.SheetMusic) (sheetmusic.SheetMusic, WriteResult, error) {
	create := sm.ID == ""
	if create {
		sm.ID = newID()
	}
	sm.Title = strings.TrimSpace(sm.Title)

	var saved sheetmusic.SheetMusic
	_, result, err := write(ctx, s, s.sheets, func(c sheetmusic.Catalog) (sheetmusic.Catalog, []action, error) {
		existing, ok := c.Find(sm.ID)
		switch {
		case create:
			sm.Files = []sheetmusic.Attachment{}
		case !ok:
			return nil, nil, sheetmusic.ErrNotFound
		default:
			sm.Files = existing.Files
		}
		if err := sm.Validate(); err != nil {
			return nil, nil, err
		}
		saved = sm
		return c.Upsert(sm), []action{sheetUpsert(sm)}, nil
	})
	if err != nil {
		return sheetmusic.SheetMusic{}, WriteResult{}, err
	}
	slog.Info("sheet_music_event", "event", "sheet_music_saved", "id", saved.ID, "created", create, "remote", string(result.Remote))
	return saved, result, nil
}

func sheetUpsert(sm sheetmusic.SheetMusic) action {
	return action{Resource: ResourceSheetMusic, Key: sm.ID, Type: domain.ActionSheetUpsert, Payload: sm}
}

// blobDelete is keyed by the owning entry so it runs after that entry's pushes.
func blobDelete(sheetID, path string) action {
	return action{Resource: ResourceSheetMusic, Key: sheetID, Type: domain.ActionBlobDelete, Payload: blobPayload{Path: path}}
}

// DeleteSheetMusic removes an entry and its stored attachments.
func (s *Service) DeleteSheetMusic(ctx context.Context, id string) (WriteResult, error) {
	var paths []string
	_, result, err := write(ctx, s, s.sheets, func(c sheetmusic.Catalog) (sheetmusic.Catalog, []action, error) {
		sm, ok := c.Find(id)
		if !ok {
			return nil, nil, sheetmusic.ErrNotFound
		}
		acts := []action{{Resource: ResourceSheetMusic, Key: id, Type: domain.ActionSheetDelete, Payload: idPayload{ID: id}}}
		for _, f := range sm.Files {
			if f.StoragePath != "" {
				paths = append(paths, f.StoragePath)
				acts = append(acts, blobDelete(id, f.StoragePath))
			}
		}
		return c.Remove(id), acts, nil
	})
	if err != nil {
		return WriteResult{}, err
	}
	s.dropLocalBlobs(ctx, paths)
	slog.Info("sheet_music_event", "event", "sheet_music_deleted", "id", id, "files", len(paths), "remote", string(result.Remote))
	return result, nil
}

// AddAttachment attaches a file to an entry. With a remote store the bytes
// are kept under a storage path and uploaded through the outbox; without
// one they are inlined into the entry.
// PRE: len(data) <= sheetmusic.MaxFileSize
func (s *Service) AddAttachment(ctx context.Context, sheetID, name, contentType string, data []byte) (sheetmusic.Attachment, WriteResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return sheetmusic.Attachment{}, WriteResult{}, sheetmusic.ErrEmptyFileName
	}
	if len(data) > sheetmusic.MaxFileSize {
		return sheetmusic.Attachment{}, WriteResult{}, sheetmusic.ErrFileTooLarge
	}
	if _, ok := s.sheets.Get().Find(sheetID); !ok {
		return sheetmusic.Attachment{}, WriteResult{}, sheetmusic.ErrNotFound
	}

	att := sheetmusic.Attachment{ID: newID(), Name: name, Size: int64(len(data)), Type: contentType}
	if s.remote != nil {
		att.StoragePath = sheetmusic.StoragePath(sheetID, att.ID, name)
		if err := s.cache.Save(ctx, cache.BlobKey(att.StoragePath), data); err != nil {
			return sheetmusic.Attachment{}, WriteResult{}, fmt.Errorf("%w: keep attachment: %v", ErrLocalPersistence, err)
		}
	} else {
		att.InlineBase64 = base64.StdEncoding.EncodeToString(data)
	}

	_, result, err := write(ctx, s, s.sheets, func(c sheetmusic.Catalog) (sheetmusic.Catalog, []action, error) {
		sm, ok := c.Find(sheetID)
		if !ok {
			return nil, nil, sheetmusic.ErrNotFound
		}
		sm.Files = append(sm.Files, att)
		var acts []action
		if att.StoragePath != "" {
			acts = append(acts, action{
				Resource: ResourceSheetMusic,
				Key:      sheetID,
				Type:     domain.ActionBlobUpload,
				Payload:  blobPayload{Path: att.StoragePath, ContentType: contentType},
			})
		}
		acts = append(acts, sheetUpsert(sm))
		return c.Upsert(sm), acts, nil
	})
	if err != nil {
		if att.StoragePath != "" {
			s.dropLocalBlobs(ctx, []string{att.StoragePath})
		}
		return sheetmusic.Attachment{}, WriteResult{}, err
	}
	slog.Info("sheet_music_event", "event", "attachment_added", "id", sheetID, "file_id", att.ID, "size", att.Size, "remote", string(result.Remote))
	return att, result, nil
}

// RemoveAttachment detaches a file and deletes its stored bytes.
func (s *Service) RemoveAttachment(ctx context.Context, sheetID, fileID string) (WriteResult, error) {
	var path string
	_, result, err := write(ctx, s, s.sheets, func(c sheetmusic.Catalog) (sheetmusic.Catalog, []action, error) {
		sm, ok := c.Find(sheetID)
		if !ok {
			return nil, nil, sheetmusic.ErrNotFound
		}
		f, ok := sm.File(fileID)
		if !ok {
			return nil, nil, sheetmusic.ErrFileNotFound
		}
		files := make([]sheetmusic.Attachment, 0, len(sm.Files)-1)
		for _, other := range sm.Files {
			if other.ID != fileID {
				files = append(files, other)
			}
		}
		sm.Files = files
		acts := []action{sheetUpsert(sm)}
		if f.StoragePath != "" {
			path = f.StoragePath
			acts = append(acts, blobDelete(sheetID, path))
		}
		return c.Upsert(sm), acts, nil
	})
	if err != nil {
		return WriteResult{}, err
	}
	if path != "" {
		s.dropLocalBlobs(ctx, []string{path})
	}
	slog.Info("sheet_music_event", "event", "attachment_removed", "id", sheetID, "file_id", fileID, "remote", string(result.Remote))
	return result, nil
}

// OpenAttachment returns the attachment metadata and bytes. Stored bytes
// come from the local copy when present, otherwise from the remote store.
func (s *Service) OpenAttachment(ctx context.Context, sheetID, fileID string) (sheetmusic.Attachment, []byte, error) {
	sm, ok := s.sheets.Get().Find(sheetID)
	if !ok {
		return sheetmusic.Attachment{}, nil, sheetmusic.ErrNotFound
	}
	f, ok := sm.File(fileID)
	if !ok {
		return sheetmusic.Attachment{}, nil, sheetmusic.ErrFileNotFound
	}
	if f.StoragePath == "" {
		data, err := f.InlineBytes()
		return f, data, err
	}

	data, err := s.cache.Load(ctx, cache.BlobKey(f.StoragePath))
	if err == nil {
		return f, data, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return f, nil, fmt.Errorf("%w: %v", ErrLocalPersistence, err)
	}

	if s.blobs == nil || !s.Online() {
		return f, nil, ErrRemoteUnavailable
	}
	data, _, err = s.blobs.GetObject(ctx, f.StoragePath)
	if errors.Is(err, remote.ErrNotFound) {
		return f, nil, sheetmusic.ErrFileNotFound
	}
	if err != nil {
		return f, nil, err
	}
	if err := s.cache.Save(ctx, cache.BlobKey(f.StoragePath), data); err != nil {
		slog.Warn("blob_cache_save_failed", "path", f.StoragePath, "error", err)
	}
	return f, data, nil
}

func (s *Service) dropLocalBlobs(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := s.cache.Delete(ctx, cache.BlobKey(p)); err != nil {
			slog.Warn("blob_cache_delete_failed", "path", p, "error", err)
		}
	}
}
