// Package store implements the SQLite persistence layer for momentum.
// It owns the relational schema (goals, habits, completions, snapshots)
// and the transactional invariants the engine depends on: same-day
// completion idempotency and progress-preserving habit replacement.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"momentum/internal/logging"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database. Safe for concurrent use; writes are
// serialized through a single connection with WAL journaling.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	now    func() time.Time
}

// Open initializes the SQLite database at the given path, creating the
// schema and running migrations.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("Opening store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}

	s := &Store{db: db, dbPath: path, now: func() time.Time { return time.Now().UTC() }}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("Store schema ready")
	return s, nil
}

// initialize creates the required tables and runs migrations.
func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS life_metrics (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			color TEXT,
			created_at TEXT NOT NULL,
			UNIQUE(user_id, name)
		);
		CREATE INDEX IF NOT EXISTS idx_metrics_user ON life_metrics(user_id);`,

		`CREATE TABLE IF NOT EXISTS goal_definitions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			life_metric_id TEXT,
			term TEXT,
			archived INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_goal_defs_user ON goal_definitions(user_id);`,

		`CREATE TABLE IF NOT EXISTS goal_instances (
			id TEXT PRIMARY KEY,
			definition_id TEXT NOT NULL REFERENCES goal_definitions(id),
			user_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			target_value INTEGER NOT NULL DEFAULT 0,
			manual_offset INTEGER NOT NULL DEFAULT 0,
			streak INTEGER NOT NULL DEFAULT 0,
			target_date TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_goal_inst_user ON goal_instances(user_id, status);
		CREATE INDEX IF NOT EXISTS idx_goal_inst_def ON goal_instances(definition_id);`,

		`CREATE TABLE IF NOT EXISTS habit_definitions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_habit_defs_user ON habit_definitions(user_id, active);`,

		`CREATE TABLE IF NOT EXISTS habit_instances (
			id TEXT PRIMARY KEY,
			definition_id TEXT NOT NULL REFERENCES habit_definitions(id),
			goal_instance_id TEXT NOT NULL REFERENCES goal_instances(id),
			target INTEGER NOT NULL DEFAULT 1,
			current INTEGER NOT NULL DEFAULT 0,
			frequency TEXT NOT NULL DEFAULT 'daily',
			per_period INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			UNIQUE(definition_id, goal_instance_id)
		);
		CREATE INDEX IF NOT EXISTS idx_habit_inst_goal ON habit_instances(goal_instance_id);
		CREATE INDEX IF NOT EXISTS idx_habit_inst_def ON habit_instances(definition_id);`,

		// The UNIQUE(habit_instance_id, day) constraint is the storage-level
		// guarantee that a same-day duplicate completion cannot exist, even
		// under concurrent requests. No FK to habit_instances: completion
		// events are immutable and outlive replaced habit links.
		`CREATE TABLE IF NOT EXISTS habit_completions (
			id TEXT PRIMARY KEY,
			habit_instance_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			note TEXT,
			day TEXT NOT NULL,
			completed_at TEXT NOT NULL,
			UNIQUE(habit_instance_id, day)
		);
		CREATE INDEX IF NOT EXISTS idx_completions_user ON habit_completions(user_id, day);`,

		`CREATE TABLE IF NOT EXISTS priority_snapshots (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			items TEXT NOT NULL,
			source_thread_id TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_user ON priority_snapshots(user_id, created_at DESC);`,

		`CREATE TABLE IF NOT EXISTS insights (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			text TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			votes INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_insights_user ON insights(user_id);`,

		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			user_input TEXT,
			answer TEXT,
			cards_json TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_turns_thread ON turns(user_id, thread_id, created_at);`,
	}

	for _, table := range schema {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if err := runMigrations(s.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	logging.Store("Closing store")
	return s.db.Close()
}

// DB returns the underlying SQL database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetClock overrides the store's time source. Used by tests to pin
// calendar-day boundaries.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// timestamp formats a time for storage.
func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// dayOf formats a time as its UTC calendar day.
func dayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// parseTime reads a stored timestamp back. Zero time on empty or bad input.
func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
		return t
	}
	return time.Time{}
}

// nullable returns a sql NULL for empty strings.
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
