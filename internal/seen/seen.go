// Package seen records which entities a user has already been notified about.
package seen

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Kind scopes a seen marker to one entity type.
type Kind string

// Kinds of seen markers.
const (
	KindProject Kind = "project"
	KindIssue   Kind = "issue"
)

// Store is a persisted set of (kind, id) markers.
type Store interface {
	MarkSeen(ctx context.Context, kind Kind, id string) error
	HasSeen(ctx context.Context, kind Kind, id string) (bool, error)
}

const currentVersion = 1

// SQLite is a Store backed by a SQLite database, scoped to one user.
type SQLite struct {
	db   *sql.DB
	user string
}

// Open opens (or creates) the database at dbPath and runs migrations.
// Markers written through the returned store are scoped to user.
func Open(dbPath, user string) (*SQLite, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &SQLite{db: db, user: user}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// OpenMemory creates an in-memory SQLite store for testing.
func OpenMemory(user string) (*SQLite, error) {
	return Open(":memory:", user)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ForUser returns a store sharing the same database, scoped to another user.
func (s *SQLite) ForUser(user string) *SQLite {
	return &SQLite{db: s.db, user: user}
}

func (s *SQLite) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version >= currentVersion {
		return nil
	}

	const ddl = `
	CREATE TABLE IF NOT EXISTS seen (
		user_id  TEXT NOT NULL,
		kind     TEXT NOT NULL,
		id       TEXT NOT NULL,
		seen_at  TEXT NOT NULL,
		PRIMARY KEY (user_id, kind, id)
	);
	`
	if _, err := s.db.Exec(ddl); err != nil {
		return err
	}
	_, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

// MarkSeen records (kind, id). Marking twice is a no-op.
func (s *SQLite) MarkSeen(ctx context.Context, kind Kind, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO seen (user_id, kind, id, seen_at) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		s.user, string(kind), id, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("mark %s %q seen: %w", kind, id, err)
	}
	return nil
}

// HasSeen reports whether (kind, id) was marked.
func (s *SQLite) HasSeen(ctx context.Context, kind Kind, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen WHERE user_id = ? AND kind = ? AND id = ?`,
		s.user, string(kind), id,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s %q seen: %w", kind, id, err)
	}
	return n > 0, nil
}

// Memory is a Store kept in process memory.
type Memory struct {
	mu   sync.Mutex
	keys map[Kind]map[string]struct{}
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{keys: make(map[Kind]map[string]struct{})}
}

// MarkSeen records (kind, id).
func (m *Memory) MarkSeen(_ context.Context, kind Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, ok := m.keys[kind]
	if !ok {
		ids = make(map[string]struct{})
		m.keys[kind] = ids
	}
	ids[id] = struct{}{}
	return nil
}

// HasSeen reports whether (kind, id) was marked.
func (m *Memory) HasSeen(_ context.Context, kind Kind, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[kind][id]
	return ok, nil
}
