package cache

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"chamber/internal/adapters/storage"
)

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

func TestSQLiteStore_LoadMissing(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))
	_, err := store.Load(context.Background(), KeyMembers)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_SaveOverwrites(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))
	ctx := context.Background()

	if err := store.Save(ctx, KeyMembers, []byte(`[{"no":1}]`)); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.Save(ctx, KeyMembers, []byte(`[]`)); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := store.Load(ctx, KeyMembers)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "[]" {
		t.Errorf("value = %s", got)
	}
}

func TestSQLiteStore_BinaryBlobAndDelete(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))
	ctx := context.Background()
	key := BlobKey("sheet/file_score.pdf")
	data := []byte{0x25, 0x50, 0x44, 0x46, 0x00, 0xff, 0xfe}

	if err := store.Save(ctx, key, data); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("bytes = %v, want %v", got, data)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := store.Load(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
