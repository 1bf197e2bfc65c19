package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/samsaffron/agentwire/internal/timeline"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS timelines (
    session_id TEXT PRIMARY KEY,
    messages TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_timelines_updated_at ON timelines(updated_at DESC);
`

// NewSQLiteStore opens (creating if needed) the cache database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Read(ctx context.Context, sessionID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT messages, version, updated_at FROM timelines WHERE session_id = ?`, sessionID)
	var (
		messagesJSON string
		version      int64
		updatedAt    time.Time
	)
	if err := row.Scan(&messagesJSON, &version, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	var msgs []timeline.Message
	if err := json.Unmarshal([]byte(messagesJSON), &msgs); err != nil {
		// An unparseable entry is treated as a miss, not an error: the
		// caller will rebuild it from the server.
		return nil, nil
	}
	return &Entry{SessionID: sessionID, Messages: msgs, Version: version, Timestamp: updatedAt}, nil
}

// Write is last-merge-wins: an entry older than the stored version is
// rejected and reported via the boolean, not an error.
func (s *SQLiteStore) Write(ctx context.Context, e Entry) (bool, error) {
	data, err := json.Marshal(e.Messages)
	if err != nil {
		return false, fmt.Errorf("encode cache entry: %w", err)
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO timelines (session_id, messages, version, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
    messages = excluded.messages,
    version = excluded.version,
    updated_at = excluded.updated_at
WHERE excluded.version >= timelines.version`,
		e.SessionID, string(data), e.Version, ts)
	if err != nil {
		return false, fmt.Errorf("write cache entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) Sessions(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, version, updated_at FROM timelines ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SessionID, &e.Version, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM timelines WHERE session_id = ?`, sessionID)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
