// Package journal persists one row per save attempt to SQLite. Failed
// attempts are the interesting ones: the final orchestrator state shows
// exactly where the host flow broke, including the known-risk case of a
// title already written into a host editor that never got confirmed.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Schema for the save_attempts table.
const Schema = `
CREATE TABLE IF NOT EXISTS save_attempts (
	id          TEXT PRIMARY KEY,
	popup_xpath TEXT NOT NULL,
	title       TEXT NOT NULL,
	state       TEXT NOT NULL,
	error       TEXT DEFAULT '',
	route_before TEXT DEFAULT '',
	route_after  TEXT DEFAULT '',
	started_at  INTEGER NOT NULL,
	finished_at INTEGER DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_save_attempts_started ON save_attempts(started_at);
`

// Attempt is one save attempt's journal row.
type Attempt struct {
	ID          string `json:"id"`
	PopupXPath  string `json:"popup_xpath"`
	Title       string `json:"title"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
	RouteBefore string `json:"route_before,omitempty"`
	RouteAfter  string `json:"route_after,omitempty"`
	StartedAt   int64  `json:"started_at"`  // epoch milliseconds
	FinishedAt  int64  `json:"finished_at"` // 0 while in flight
}

// Store wraps the attempts table.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path with the
// production pragmas (WAL, busy timeout, NORMAL sync) and applies the
// schema. Caller must blank-import modernc.org/sqlite.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin records the start of a save attempt.
func (s *Store) Begin(ctx context.Context, a Attempt) error {
	if a.StartedAt == 0 {
		a.StartedAt = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO save_attempts (id, popup_xpath, title, state, route_before, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.PopupXPath, a.Title, a.State, a.RouteBefore, a.StartedAt)
	if err != nil {
		return fmt.Errorf("journal: begin attempt: %w", err)
	}
	return nil
}

// Finish records an attempt's terminal state.
func (s *Store) Finish(ctx context.Context, id, state, errMsg, routeAfter string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE save_attempts
		SET state = ?, error = ?, route_after = ?, finished_at = ?
		WHERE id = ?`,
		state, errMsg, routeAfter, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("journal: finish attempt: %w", err)
	}
	return nil
}

// Recent returns the newest n attempts, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Attempt, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, popup_xpath, title, state, error, route_before, route_after, started_at, finished_at
		FROM save_attempts
		ORDER BY started_at DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.PopupXPath, &a.Title, &a.State, &a.Error,
			&a.RouteBefore, &a.RouteAfter, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
