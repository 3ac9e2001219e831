// Package history records process runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Reason explains why a run ended.
type Reason string

const (
	// ReasonExited means the process exited on its own.
	ReasonExited Reason = "exited"
	// ReasonStopped means the process was stopped on request.
	ReasonStopped Reason = "stopped"
	// ReasonShutdown means the daemon stopped the process while shutting down.
	ReasonShutdown Reason = "shutdown"
	// ReasonAbandoned marks runs left open by a daemon that did not shut down cleanly.
	ReasonAbandoned Reason = "abandoned"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// DefaultLimit is the number of runs List returns when limit is not positive.
const DefaultLimit = 50

// Run is one recorded process lifetime.
type Run struct {
	ID        string     `json:"id"`
	Project   string     `json:"project"`
	PID       int        `json:"pid"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	Reason    Reason     `json:"reason,omitempty"`
}

// Running reports whether the run has no recorded end.
func (r Run) Running() bool { return r.EndedAt == nil }

// Store wraps the history database.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	return &Store{conn: conn, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

var migrations = []struct {
	version int
	sql     string
}{
	{1, migrationV1Runs},
}

const migrationV1Runs = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	project TEXT NOT NULL,
	pid INTEGER NOT NULL,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	exit_code INTEGER,
	reason TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Migrate applies pending schema migrations.
func (s *Store) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	if err := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// RecordStart inserts a new run and returns its id.
func (s *Store) RecordStart(ctx context.Context, project string, pid int, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO runs (id, project, pid, started_at) VALUES (?, ?, ?, ?)",
		id, project, pid, formatTime(at),
	)
	if err != nil {
		return "", fmt.Errorf("record start: %w", err)
	}
	return id, nil
}

// RecordExit closes the run with the given id.
func (s *Store) RecordExit(ctx context.Context, id string, at time.Time, exitCode int, reason Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.conn.ExecContext(ctx,
		"UPDATE runs SET ended_at = ?, exit_code = ?, reason = ? WHERE id = ?",
		formatTime(at), exitCode, string(reason), id,
	)
	if err != nil {
		return fmt.Errorf("record exit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record exit: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// CloseAbandoned marks every open run as abandoned. It returns the number
// of runs closed.
func (s *Store) CloseAbandoned(ctx context.Context, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.conn.ExecContext(ctx,
		"UPDATE runs SET ended_at = ?, reason = ? WHERE ended_at IS NULL",
		formatTime(at), string(ReasonAbandoned),
	)
	if err != nil {
		return 0, fmt.Errorf("close abandoned runs: %w", err)
	}
	return res.RowsAffected()
}

// List returns the most recent runs, newest first. An empty project lists
// runs for all projects.
func (s *Store) List(ctx context.Context, project string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, project, pid, started_at, ended_at, exit_code, reason FROM runs"
	args := []any{}
	if project != "" {
		query += " WHERE project = ?"
		args = append(args, project)
	}
	query += " ORDER BY started_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r        Run
			started  string
			ended    sql.NullString
			exitCode sql.NullInt64
			reason   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Project, &r.PID, &started, &ended, &exitCode, &reason); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		r.EndedAt = parseNullableTime(ended)
		if exitCode.Valid {
			code := int(exitCode.Int64)
			r.ExitCode = &code
		}
		r.Reason = Reason(reason.String)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// timeLayout is fixed-width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}
