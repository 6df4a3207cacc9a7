package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chamber/internal/adapters/storage"
	domain "chamber/internal/domain/outbox"
)

const (
	dateLayout = "2006-01-02T15:04:05.000000000Z07:00"
	columns    = "id, resource, entry_key, action_type, payload, status, attempts, max_attempts, last_attempted_at, created_at, error_message"
)

// ErrNotFound is returned when no entry has the requested id.
var ErrNotFound = errors.New("outbox entry not found")

// SQLiteStore implements the outbox Store interface using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new outbox store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves an outbox entry by its ID.
// PRE: id is non-empty
// POST: Returns the entry or ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM outbox WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

// Save persists an outbox entry to the database.
// PRE: entity has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, e domain.Entry) error {
	lastAttemptedAt := ""
	if !e.LastAttemptedAt.IsZero() {
		lastAttemptedAt = e.LastAttemptedAt.UTC().Format(dateLayout)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox (`+columns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   resource=excluded.resource, entry_key=excluded.entry_key, action_type=excluded.action_type, payload=excluded.payload,
		   status=excluded.status, attempts=excluded.attempts, max_attempts=excluded.max_attempts,
		   last_attempted_at=excluded.last_attempted_at, error_message=excluded.error_message`,
		e.ID, e.Resource, e.Key, e.ActionType, e.Payload, e.Status, e.Attempts, e.MaxAttempts,
		lastAttemptedAt, e.CreatedAt.UTC().Format(dateLayout), e.ErrorMessage)
	return err
}

// ListPending returns pending and retrying entries ordered by created_at.
// PRE: limit > 0
// POST: Returns up to limit entries, oldest first
func (s *SQLiteStore) ListPending(ctx context.Context, resource string, limit int) ([]domain.Entry, error) {
	query := "SELECT " + columns + " FROM outbox WHERE status IN (?, ?)"
	args := []any{domain.StatusPending, domain.StatusRetrying}
	if resource != "" {
		query += " AND resource = ?"
		args = append(args, resource)
	}
	query += " ORDER BY created_at ASC, rowid ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// CountPending counts pending and retrying entries of resource.
// PRE: resource is non-empty
// POST: Returns count >= 0
func (s *SQLiteStore) CountPending(ctx context.Context, resource string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM outbox WHERE status IN (?, ?) AND resource = ?",
		domain.StatusPending, domain.StatusRetrying, resource).Scan(&n)
	return n, err
}

// PendingKeys returns the distinct keys of pending and retrying entries of resource.
// PRE: resource is non-empty
func (s *SQLiteStore) PendingKeys(ctx context.Context, resource string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT entry_key FROM outbox WHERE status IN (?, ?) AND resource = ? ORDER BY entry_key",
		domain.StatusPending, domain.StatusRetrying, resource)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListFailed returns entries that have permanently failed.
// PRE: limit > 0
// POST: Returns up to limit failed entries ordered by last_attempted_at desc
func (s *SQLiteStore) ListFailed(ctx context.Context, limit int) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+columns+" FROM outbox WHERE status = ? ORDER BY last_attempted_at DESC LIMIT ?",
		domain.StatusFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Delete removes an outbox entry.
// PRE: id is non-empty
// POST: Entry is removed from database
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM outbox WHERE id = ?", id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

// scanEntry scans a single row into an Entry.
func scanEntry(row scanner) (domain.Entry, error) {
	var e domain.Entry
	var createdAt, lastAttemptedAt string
	err := row.Scan(&e.ID, &e.Resource, &e.Key, &e.ActionType, &e.Payload, &e.Status, &e.Attempts, &e.MaxAttempts,
		&lastAttemptedAt, &createdAt, &e.ErrorMessage)
	if err != nil {
		return domain.Entry{}, err
	}
	e.CreatedAt, _ = time.Parse(dateLayout, createdAt)
	if lastAttemptedAt != "" {
		e.LastAttemptedAt, _ = time.Parse(dateLayout, lastAttemptedAt)
	}
	return e, nil
}

// scanEntries scans multiple rows into a slice of Entries.
func scanEntries(rows *sql.Rows) ([]domain.Entry, error) {
	var entries []domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
