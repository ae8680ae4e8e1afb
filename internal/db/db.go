package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JGnft17/clawtographer/internal/config"
	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the base directory.
const FileName = "clawtographer.db"

// CacheDir is the subdirectory used by the file-backed cache store.
const CacheDir = "cache"

// migrations[i] moves the schema from version i to i+1.
var migrations = []string{
	// 1: chunk cache and run history
	`
	CREATE TABLE IF NOT EXISTS chunk_entries (
	  identity        TEXT PRIMARY KEY,
	  status          TEXT NOT NULL CHECK (status IN ('pending', 'complete', 'failed')),
	  analysis        TEXT NOT NULL DEFAULT '',
	  error_code      TEXT,
	  error_message   TEXT,
	  attempts        INTEGER NOT NULL DEFAULT 0,
	  model           TEXT,
	  files_json      TEXT NOT NULL,
	  tokens_estimate INTEGER NOT NULL DEFAULT 0,
	  created_at      INTEGER NOT NULL,
	  updated_at      INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunk_entries_status_updated
	ON chunk_entries(status, updated_at DESC);

	CREATE TABLE IF NOT EXISTS runs (
	  id           TEXT PRIMARY KEY,
	  root         TEXT NOT NULL,
	  output_path  TEXT NOT NULL,
	  provider     TEXT,
	  model        TEXT,
	  mode         TEXT,
	  status       TEXT NOT NULL,
	  chunk_count  INTEGER NOT NULL DEFAULT 0,
	  cached       INTEGER NOT NULL DEFAULT 0,
	  analyzed     INTEGER NOT NULL DEFAULT 0,
	  failed       INTEGER NOT NULL DEFAULT 0,
	  error        TEXT,
	  started_at   INTEGER NOT NULL,
	  finished_at  INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started
	ON runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS run_chunks (
	  run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	  chunk_index INTEGER NOT NULL,
	  identity    TEXT NOT NULL,
	  file_count  INTEGER NOT NULL,
	  tokens      INTEGER NOT NULL,
	  from_cache  INTEGER NOT NULL DEFAULT 0,
	  status      TEXT NOT NULL,
	  PRIMARY KEY (run_id, chunk_index)
	);

	CREATE INDEX IF NOT EXISTS idx_run_chunks_identity
	ON run_chunks(identity);
	`,
}

// CurrentSchemaVersion is the version Init leaves the database at.
var CurrentSchemaVersion = len(migrations)

// Init opens baseDir/clawtographer.db, creating baseDir and the file cache
// directory as needed, and brings the schema up to date. Tests pass
// t.TempDir() for baseDir.
func Init(baseDir string) (*sql.DB, error) {
	for _, dir := range []string{baseDir, filepath.Join(baseDir, CacheDir)} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	_ = os.Chmod(baseDir, 0700)

	dbPath := filepath.Join(baseDir, FileName)
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := checkPragma(db, "journal_mode", "wal"); err != nil {
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

// dsn sets the per-connection pragmas: every pooled connection needs them.
func dsn(path string) string {
	return path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)"
}

// ConfigurePool applies the pool limits from cfg. Zero leaves the driver default.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
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

// migrate applies every migration above the stored user_version, each in
// its own transaction together with the version bump.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than this build supports (%d)", version, len(migrations))
	}

	for v := version; v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d", v+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: set user_version: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", v+1, err)
		}
	}
	return nil
}

// checkPragma fails unless PRAGMA name reports want.
func checkPragma(db *sql.DB, name, want string) error {
	var got string
	if err := db.QueryRow("PRAGMA " + name).Scan(&got); err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if got != want {
		return fmt.Errorf("expected %s=%s, got %s", name, want, got)
	}
	return nil
}

// GetUserVersion returns the stored schema version.
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion overwrites the stored schema version.
func SetUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
