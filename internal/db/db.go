package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/hpungsan/almanac/internal/config"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// DBFileName is the SQLite file name inside the base directory.
const DBFileName = "almanac.db"

// Init initializes the SQLite database at baseDir/almanac.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.almanac.
func Init(baseDir string) (*sqlx.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Pragmas in the DSN apply to every pooled connection. Transactions begin
	// IMMEDIATE so read-then-write transactions wait on busy_timeout.
	dbPath := filepath.Join(baseDir, DBFileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sqlx.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// WithTx runs fn inside a transaction. The transaction is rolled back if fn
// returns an error or panics, and committed otherwise.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// migrate applies schema migrations based on user_version.
func migrate(db *sqlx.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS projects (
		  id            INTEGER PRIMARY KEY AUTOINCREMENT,
		  name          TEXT NOT NULL,
		  icon          TEXT NOT NULL DEFAULT '',
		  repo_path     TEXT NOT NULL DEFAULT '',
		  artifact_path TEXT NOT NULL DEFAULT '',
		  created_at    INTEGER NOT NULL,
		  updated_at    INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS daily_notes (
		  id                INTEGER PRIMARY KEY AUTOINCREMENT,
		  project_id        INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		  date              TEXT NOT NULL,
		  content           TEXT NOT NULL DEFAULT '',
		  content_en        TEXT NOT NULL DEFAULT '',
		  content_secondary TEXT NOT NULL DEFAULT '',
		  created_at        INTEGER NOT NULL,
		  updated_at        INTEGER NOT NULL,
		  UNIQUE(project_id, date)
		);

		CREATE TABLE IF NOT EXISTS suggested_tasks (
		  id               INTEGER PRIMARY KEY AUTOINCREMENT,
		  project_id       INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		  description      TEXT NOT NULL,
		  description_norm TEXT NOT NULL,
		  status           TEXT NOT NULL,
		  source           TEXT NOT NULL DEFAULT 'absorption',
		  created_at       INTEGER NOT NULL,
		  updated_at       INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_project_norm
		ON suggested_tasks(project_id, description_norm);

		CREATE INDEX IF NOT EXISTS idx_tasks_project_status
		ON suggested_tasks(project_id, status, created_at DESC);

		CREATE TABLE IF NOT EXISTS entries (
		  id         INTEGER PRIMARY KEY AUTOINCREMENT,
		  project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		  kind       TEXT NOT NULL,
		  title      TEXT NOT NULL DEFAULT '',
		  body       TEXT NOT NULL,
		  created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_entries_project_kind
		ON entries(project_id, kind, created_at DESC);

		CREATE TABLE IF NOT EXISTS absorptions (
		  id              TEXT PRIMARY KEY,
		  project_id      INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		  date            TEXT NOT NULL,
		  degraded_json   TEXT NOT NULL DEFAULT '[]',
		  proposed_count  INTEGER NOT NULL DEFAULT 0,
		  completed_count INTEGER NOT NULL DEFAULT 0,
		  created_at      INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_absorptions_project
		ON absorptions(project_id, created_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sqlx.DB) error {
	var journalMode string
	if err := db.Get(&journalMode, "PRAGMA journal_mode;"); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sqlx.DB) (int, error) {
	var version int
	if err := db.Get(&version, "PRAGMA user_version;"); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sqlx.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
