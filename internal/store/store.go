// Package store is the optional sqlite-backed session-lifecycle audit log:
// session created/destroyed events, recorded as a side effect the registry
// calls through the registry.AuditSink interface. ControllerTransferred
// stores a controller_transferred row when called, but nothing in the server
// calls it, so controller transfers are not recorded.
// Persistence is explicitly out of scope for correctness per spec.md §1;
// a nil *Store disables it entirely.
//
// Grounded on the teacher's internal/store/store.go: Open/migrate with a
// schema-in-a-const-string pattern, slog logging of store operations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	event TEXT NOT NULL,
	client_id TEXT,
	at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_events_session_id ON session_events(session_id);
`

// Store wraps a sqlite database holding the audit log.
type Store struct {
	db *sql.DB
}

// Open creates/opens the sqlite file at path and runs the schema migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	slog.Info("audit store opened", "path", path)
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) insert(sessionID, event, clientID string, at time.Time) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_events (session_id, event, client_id, at_ms) VALUES (?, ?, ?, ?)`,
		sessionID, event, clientID, at.UnixMilli())
	if err != nil {
		slog.Warn("audit insert failed", "session_id", sessionID, "event", event, "err", err)
	}
}

// SessionCreated implements registry.AuditSink.
func (s *Store) SessionCreated(sessionID string, at time.Time) {
	s.insert(sessionID, "created", "", at)
}

// SessionDestroyed implements registry.AuditSink.
func (s *Store) SessionDestroyed(sessionID string, at time.Time) {
	s.insert(sessionID, "destroyed", "", at)
}

// ControllerTransferred implements registry.AuditSink.
func (s *Store) ControllerTransferred(sessionID, toClientID string, at time.Time) {
	s.insert(sessionID, "controller_transferred", toClientID, at)
}

// EventCount returns the number of rows for sessionID, for tests.
func (s *Store) EventCount(sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM session_events WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
