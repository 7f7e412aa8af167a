package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"github.com/onelife/onelife/internal/config"
	"github.com/onelife/onelife/internal/errors"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// FileName is the database file inside the data directory.
const FileName = "onelife.db"

// Init initializes the SQLite database at baseDir/onelife.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.onelife.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Pragmas in the connection string apply to every pooled connection
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
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

// Opener lazily initializes the store on first use. Concurrent callers of
// Open share a single in-flight initialization and receive the same handle.
type Opener struct {
	baseDir string
	cfg     *config.Config

	group singleflight.Group
	mu    sync.Mutex
	db    *sql.DB
}

// NewOpener returns an Opener for the database under baseDir.
func NewOpener(baseDir string, cfg *config.Config) *Opener {
	return &Opener{baseDir: baseDir, cfg: cfg}
}

// Open returns the initialized store, initializing it if needed.
// A failed initialization is not cached; the next call retries.
func (o *Opener) Open(ctx context.Context) (*sql.DB, error) {
	if db := o.cached(); db != nil {
		return db, nil
	}

	ch := o.group.DoChan("init", func() (any, error) {
		if db := o.cached(); db != nil {
			return db, nil
		}
		db, err := Init(o.baseDir)
		if err != nil {
			return nil, err
		}
		ConfigurePool(db, o.cfg)
		o.mu.Lock()
		o.db = db
		o.mu.Unlock()
		return db, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, errors.NewStorage("open database", res.Err)
		}
		return res.Val.(*sql.DB), nil
	}
}

// BaseDir returns the data directory the opener initializes.
func (o *Opener) BaseDir() string { return o.baseDir }

// Close closes the cached handle, if any. A later Open initializes again.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.db == nil {
		return nil
	}
	err := o.db.Close()
	o.db = nil
	return err
}

func (o *Opener) cached() *sql.DB {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.db
}

// migrate applies schema migrations based on user_version. Each migration and
// its version bump commit together.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS records (
		  id          INTEGER PRIMARY KEY AUTOINCREMENT,
		  type        TEXT NOT NULL CHECK (type IN ('expense', 'todo', 'mood', 'health', 'note')),
		  date        INTEGER NOT NULL,
		  description TEXT NOT NULL,
		  amount      TEXT,
		  category    TEXT,
		  mood        TEXT,
		  completed   INTEGER,
		  extra_json  TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_records_type ON records(type);
		CREATE INDEX IF NOT EXISTS idx_records_date ON records(date);

		CREATE TABLE IF NOT EXISTS knowledge (
		  id         INTEGER PRIMARY KEY AUTOINCREMENT,
		  content    TEXT NOT NULL,
		  created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS knowledge_tags (
		  knowledge_id INTEGER NOT NULL REFERENCES knowledge(id) ON DELETE CASCADE,
		  tag          TEXT NOT NULL,
		  PRIMARY KEY (knowledge_id, tag)
		);

		CREATE INDEX IF NOT EXISTS idx_knowledge_tags_tag ON knowledge_tags(tag);

		CREATE TABLE IF NOT EXISTS embeddings (
		  id     INTEGER PRIMARY KEY AUTOINCREMENT,
		  vector BLOB
		);
		`
		if err := inTx(db, func(tx *sql.Tx) error {
			if _, err := tx.Exec(schema); err != nil {
				return err
			}
			_, err := tx.Exec("PRAGMA user_version=1")
			return err
		}); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

func inTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
