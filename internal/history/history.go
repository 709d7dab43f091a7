// Package history records visual assertion outcomes in a local SQLite
// database so regressions can be traced across runs.
package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store persists one row per assertion run.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Run is a single recorded assertion outcome.
type Run struct {
	ID            string
	Name          string
	Mode          string // "update" or "compare"
	MismatchRatio float64
	AllowedRatio  float64
	Passed        bool
	DiffPath      string
	CreatedAt     time.Time
}

// Open opens (or creates) the history database at the given path and
// initializes the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("history store opened", "path", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			mode TEXT NOT NULL,
			mismatch_ratio REAL NOT NULL DEFAULT 0,
			allowed_ratio REAL NOT NULL DEFAULT 0,
			passed INTEGER NOT NULL,
			diff_path TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_name ON runs(name, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

// Record inserts a run. An empty ID or zero CreatedAt is filled in.
func (s *Store) Record(run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, name, mode, mismatch_ratio, allowed_ratio, passed, diff_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.Mode, run.MismatchRatio, run.AllowedRatio,
		boolToInt(run.Passed), run.DiffPath, run.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record run %q: %w", run.Name, err)
	}
	return nil
}

// Recent returns the latest runs, newest first. An empty name matches
// every scenario; limit <= 0 defaults to 20.
func (s *Store) Recent(name string, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, name, mode, mismatch_ratio, allowed_ratio, passed, diff_path, created_at
		FROM runs`
	args := []any{}
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var passed int
		var created int64
		if err := rows.Scan(&r.ID, &r.Name, &r.Mode, &r.MismatchRatio, &r.AllowedRatio, &passed, &r.DiffPath, &created); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Passed = passed != 0
		r.CreatedAt = time.Unix(created, 0)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
