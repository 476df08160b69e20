package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	index_name TEXT NOT NULL,
	content_id TEXT NOT NULL,
	doc        TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (index_name, content_id)
);
CREATE TABLE IF NOT EXISTS terms (
	index_name TEXT NOT NULL,
	content_id TEXT NOT NULL,
	field      TEXT NOT NULL,
	value      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS terms_lookup_idx ON terms(index_name, field, value);
CREATE INDEX IF NOT EXISTS terms_doc_idx ON terms(index_name, content_id);
`

// SQLiteIndex is an Index persisted in a SQLite file. Every scalar leaf of a
// document is stored as a term row for lookups.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the index database at path.
func OpenSQLite(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init search schema: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteIndex) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite db: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLiteIndex) Update(ctx context.Context, index, contentID string, partial map[string]any) error {
	return retryOnBusy(ctx, func() error {
		return s.update(ctx, index, contentID, partial)
	})
}

func (s *SQLiteIndex) update(ctx context.Context, index, contentID string, partial map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx,
		"SELECT doc FROM documents WHERE index_name = ? AND content_id = ?", index, contentID).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load document %s: %w", contentID, err)
	}

	merged, err := MergeDocument([]byte(current), partial)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (index_name, content_id, doc, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(index_name, content_id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		index, contentID, string(merged), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("store document %s: %w", contentID, err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM terms WHERE index_name = ? AND content_id = ?", index, contentID); err != nil {
		return fmt.Errorf("clear terms of %s: %w", contentID, err)
	}
	for field, values := range Terms(merged) {
		for _, value := range values {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO terms (index_name, content_id, field, value) VALUES (?, ?, ?, ?)",
				index, contentID, field, value); err != nil {
				return fmt.Errorf("store term %s of %s: %w", field, contentID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit document %s: %w", contentID, err)
	}
	return nil
}

func (s *SQLiteIndex) Search(ctx context.Context, q Query) ([]string, error) {
	ids := []string{}
	if len(q.Values) == 0 {
		return ids, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(q.Values)), ", ")
	args := make([]any, 0, len(q.Values)+2)
	args = append(args, q.Index, q.Field)
	for _, v := range q.Values {
		args = append(args, v)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT content_id FROM terms
		WHERE index_name = ? AND field = ? AND value IN (`+placeholders+`)
		ORDER BY content_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.Field, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan content id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	return excludeIDs(ids, q.Exclude), nil
}

func (s *SQLiteIndex) Get(ctx context.Context, index, contentID string) ([]byte, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT doc FROM documents WHERE index_name = ? AND content_id = ?", index, contentID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", contentID, err)
	}
	return []byte(doc), nil
}
