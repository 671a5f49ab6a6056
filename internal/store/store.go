package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// isBusyLock reports whether err indicates SQLite database lock (SQLITE_BUSY).
// Handles wrapped errors from database/sql.
func isBusyLock(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY")
}

// retryOnBusy runs fn and retries on SQLITE_BUSY with exponential backoff.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 4
	backoff := 25 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isBusyLock(lastErr) {
			return lastErr
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}

// Execution is one journaled command run against a session.
type Execution struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Command    string    `json:"command"`
	Output     string    `json:"output"`
	ExitCode   int       `json:"exit_code"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is a command history journal. Sessions themselves live in memory;
// only what was typed into them is recorded here.
type Store struct {
	db *sql.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS executions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	command     TEXT NOT NULL,
	output      TEXT NOT NULL DEFAULT '',
	exit_code   INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_session_id ON executions(session_id, id);
`

// DefaultMaxOpenConns is the connection pool size for file-backed journals.
const DefaultMaxOpenConns = 4

// dsnWithPragmas returns a connection string with WAL, busy_timeout, and perf
// pragmas applied to every new connection.
func dsnWithPragmas(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(15000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(MEMORY)"
}

// New opens the journal at dbPath. ":memory:" keeps it in process memory,
// which pins the pool to one connection since every connection to an
// in-memory database sees its own empty copy.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dsnWithPragmas(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxOpenConns := DefaultMaxOpenConns
	if dbPath == ":memory:" {
		maxOpenConns = 1
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RecordExecution(e *Execution) error {
	var result sql.Result
	err := retryOnBusy(func() error {
		var err error
		result, err = s.db.Exec(
			`INSERT INTO executions (session_id, command, output, exit_code, duration_ms, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			e.SessionID, e.Command, e.Output, e.ExitCode, e.DurationMs, e.CreatedAt.UTC(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// ListExecutions returns the most recent executions of a session, oldest
// first. limit <= 0 returns everything.
func (s *Store) ListExecutions(sessionID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, session_id, command, output, exit_code, duration_ms, created_at FROM (
			SELECT * FROM executions WHERE session_id = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer rows.Close()

	var out []*Execution
	for rows.Next() {
		var e Execution
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Command, &e.Output, &e.ExitCode, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}
	return out, nil
}

// DeleteSessionExecutions drops the journal of a session and reports how
// many rows went with it.
func (s *Store) DeleteSessionExecutions(sessionID string) (int64, error) {
	var result sql.Result
	err := retryOnBusy(func() error {
		var err error
		result, err = s.db.Exec(`DELETE FROM executions WHERE session_id = ?`, sessionID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("deleting executions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
