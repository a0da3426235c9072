package store

import (
	"database/sql"
	"fmt"

	"momentum/internal/logging"
)

// migration adds a column to an existing table when an older database
// predates it. CREATE TABLE IF NOT EXISTS does not alter existing tables, so
// column additions must go through here.
type migration struct {
	table  string
	column string
	ddl    string
}

var migrations = []migration{
	{"goal_instances", "streak", "ALTER TABLE goal_instances ADD COLUMN streak INTEGER NOT NULL DEFAULT 0"},
	{"priority_snapshots", "source_thread_id", "ALTER TABLE priority_snapshots ADD COLUMN source_thread_id TEXT"},
	{"habit_completions", "note", "ALTER TABLE habit_completions ADD COLUMN note TEXT"},
	{"goal_definitions", "term", "ALTER TABLE goal_definitions ADD COLUMN term TEXT"},
}

// runMigrations applies schema migrations for databases created by older
// versions. Idempotent: columns that already exist are skipped.
func runMigrations(db *sql.DB) error {
	for _, m := range migrations {
		exists, err := columnExists(db, m.table, m.column)
		if err != nil {
			return fmt.Errorf("failed to inspect %s.%s: %w", m.table, m.column, err)
		}
		if exists {
			continue
		}
		if _, err := db.Exec(m.ddl); err != nil {
			return fmt.Errorf("migration %s.%s failed: %w", m.table, m.column, err)
		}
		logging.Store("Migrated: added %s.%s", m.table, m.column)
	}
	return nil
}

// columnExists checks table_info for the named column.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
