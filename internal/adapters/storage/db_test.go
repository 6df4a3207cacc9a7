package storage

import (
	"database/sql"
	"sort"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// getTableNames returns sorted table names from sqlite_master, excluding internal tables.
func getTableNames(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		t.Fatalf("failed to query sqlite_master: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan table name: %v", err)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func TestInitDB_CreatesTables(t *testing.T) {
	db := openTestDB(t)
	if err := InitDB(db); err != nil {
		t.Fatalf("InitDB: %v", err)
	}

	got := strings.Join(getTableNames(t, db), ",")
	if got != "local_cache,outbox" {
		t.Errorf("tables = %s", got)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("user_version = %d, want %d", version, SchemaVersion)
	}
}

func TestInitDB_Idempotent(t *testing.T) {
	db := openTestDB(t)
	if err := InitDB(db); err != nil {
		t.Fatalf("first InitDB: %v", err)
	}
	if _, err := db.Exec("INSERT INTO local_cache (key, value, updated_at) VALUES ('k', 'v', 'now')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := InitDB(db); err != nil {
		t.Fatalf("second InitDB: %v", err)
	}

	var value string
	if err := db.QueryRow("SELECT value FROM local_cache WHERE key = 'k'").Scan(&value); err != nil {
		t.Fatalf("row lost after re-init: %v", err)
	}
	if value != "v" {
		t.Errorf("value = %q", value)
	}
}

func TestInitDB_MigratesVersion1Outbox(t *testing.T) {
	db := openTestDB(t)
	v1 := `
	CREATE TABLE outbox (
		id TEXT PRIMARY KEY,
		resource TEXT NOT NULL,
		action_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 20,
		last_attempted_at TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT ''
	);
	INSERT INTO outbox (id, resource, action_type, payload, status, created_at)
	VALUES ('e1', 'members', 'member_upsert', '{}', 'pending', 'now');
	PRAGMA user_version=1;
	`
	if _, err := db.Exec(v1); err != nil {
		t.Fatalf("seed v1 schema: %v", err)
	}
	if err := InitDB(db); err != nil {
		t.Fatalf("InitDB: %v", err)
	}

	var key string
	if err := db.QueryRow("SELECT entry_key FROM outbox WHERE id = 'e1'").Scan(&key); err != nil {
		t.Fatalf("entry_key after migration: %v", err)
	}
	if key != "" {
		t.Errorf("entry_key = %q, want empty", key)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("user_version = %d, want %d", version, SchemaVersion)
	}
}
