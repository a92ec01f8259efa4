// Package history persists accepted input lines to a SQLite database,
// reduced from the teacher's arg_history_sqlite.go (which tracked
// per-argument usage frequency for completion ranking) to the simpler
// job the expanded spec asks of it: a durable record of what was typed.
// Only the unexported dump reads the record back; no built-in exposes
// it. Only cmd/jsh calls this package — the
// executor and parser never touch persistence.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB is a handle to the session's history store.
type DB struct {
	db   *sql.DB
	lock sync.Mutex
}

// Open opens (creating if necessary) the history database at path, or
// at "~/.jsh_history.db" when path is empty.
func Open(path string) (*DB, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".jsh_history.db")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
	}

	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS lines (
		id INTEGER PRIMARY KEY,
		session_id TEXT NOT NULL,
		text TEXT NOT NULL,
		entered_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_lines_session ON lines(session_id);
	`
	if _, err := sqldb.Exec(schema); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("history: schema: %w", err)
	}

	return &DB{db: sqldb}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Record persists one accepted input line under sessionID.
func (d *DB) Record(sessionID, text string) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	_, err := d.db.Exec(
		`INSERT INTO lines (session_id, text, entered_at) VALUES (?, ?, ?)`,
		sessionID, text, time.Now(),
	)
	return err
}

// dump returns every recorded line across all sessions, oldest first.
func (d *DB) dump() ([]string, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	rows, err := d.db.Query(`SELECT text FROM lines ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, rows.Err()
}
