// Package sqlite implements the storage interface on SQLite via the
// pure-Go ncruces driver (no cgo). All mutations funnel through a single
// writer goroutine draining a bounded queue; reads go to a separate pool
// of read-only connections over the same WAL database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/untoldecay/LoomLog/internal/storage"
)

const defaultWriteQueueDepth = 256

// SQLiteStorage implements storage.Storage.
type SQLiteStorage struct {
	path string

	// db is the read-write pool, capped at one connection so the writer
	// goroutine and startup migrations fully serialize.
	db *sql.DB
	// rdb is the read-only pool used by all query methods.
	rdb *sql.DB

	queue      chan writeOp
	quit       chan struct{}
	writerDone chan struct{}
	closed     atomic.Bool
	closeOnce  sync.Once
	closeErr   error

	warnf func(format string, args ...any)
}

var compilationCacheOnce sync.Once

// setupCompilationCache pre-compiles the SQLite WASM module into a shared
// on-disk cache so repeated CLI invocations skip the wazero compile step.
// Failures fall back to in-process compilation.
func setupCompilationCache() {
	compilationCacheOnce.Do(func() {
		dir, err := os.UserCacheDir()
		if err != nil {
			return
		}
		cacheDir := filepath.Join(dir, "loom", "wazero")
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return
		}
		cache, err := wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return
		}
		sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
	})
}

// New opens (creating if necessary) the database at dbPath, initializes the
// schema, runs migrations, and starts the writer. Safe to call on an
// existing database: schema creation and every migration are idempotent.
func New(ctx context.Context, dbPath string) (*SQLiteStorage, error) {
	return NewWithQueueDepth(ctx, dbPath, defaultWriteQueueDepth)
}

// NewWithQueueDepth is New with an explicit write queue depth.
func NewWithQueueDepth(ctx context.Context, dbPath string, queueDepth int) (*SQLiteStorage, error) {
	setupCompilationCache()

	if queueDepth <= 0 {
		queueDepth = defaultWriteQueueDepth
	}

	memory := strings.Contains(dbPath, ":memory:")
	if !memory {
		if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	// Use file: prefix as required by ncruces/go-sqlite3 driver
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{
		path:       dbPath,
		db:         db,
		queue:      make(chan writeOp, queueDepth),
		quit:       make(chan struct{}),
		writerDone: make(chan struct{}),
		warnf:      func(string, ...any) {},
	}

	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if memory {
		// A second handle would open a different in-memory database, so
		// reads share the write pool.
		s.rdb = db
	} else {
		roStr := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", dbPath)
		rdb, err := sql.Open("sqlite3", roStr)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to open read pool: %w", err)
		}
		rdb.SetMaxOpenConns(4)
		if err := rdb.PingContext(ctx); err != nil {
			_ = rdb.Close()
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect read pool: %w", err)
		}
		s.rdb = rdb
	}

	go s.runWriter()
	return s, nil
}

// SetWarnFunc routes non-fatal warnings (migration hiccups, malformed stored
// JSON) to the caller's logger. The default is to drop them.
func (s *SQLiteStorage) SetWarnFunc(warnf func(format string, args ...any)) {
	if warnf != nil {
		s.warnf = warnf
	}
}

// initSchema creates tables and runs the migration list. Individual
// migration failures are logged and skipped rather than aborting the open:
// an old database that cannot take one ALTER is still serviceable for
// everything else.
func (s *SQLiteStorage) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := RunMigrations(s.db, func(format string, args ...any) {
		s.warnf(format, args...)
	}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// UnderlyingDB exposes the read-write handle for diagnostics and tests.
func (s *SQLiteStorage) UnderlyingDB() *sql.DB {
	return s.db
}

// Ping verifies the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.rdb.PingContext(ctx)
}

// QuickCheck runs PRAGMA quick_check and returns its verdict ("ok" on a
// healthy database).
func (s *SQLiteStorage) QuickCheck(ctx context.Context) (string, error) {
	var result string
	if err := s.rdb.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return "", fmt.Errorf("failed to run quick_check: %w", err)
	}
	return result, nil
}

// SetMetadata stores a small keyed state value (adapter cursors, marks).
func (s *SQLiteStorage) SetMetadata(ctx context.Context, key, value string) error {
	return s.enqueue(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO metadata (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		if err != nil {
			return fmt.Errorf("failed to set metadata %s: %w", key, err)
		}
		return nil
	})
}

// GetMetadata returns the stored value for key, or "" if absent.
func (s *SQLiteStorage) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.rdb.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	return value, nil
}

// Close flushes queued writes, stops the writer and closes both pools.
func (s *SQLiteStorage) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.quit)
		<-s.writerDone

		if s.rdb != s.db {
			if err := s.rdb.Close(); err != nil {
				s.closeErr = fmt.Errorf("failed to close read pool: %w", err)
			}
		}
		if err := s.db.Close(); err != nil && s.closeErr == nil {
			s.closeErr = fmt.Errorf("failed to close database: %w", err)
		}
	})
	return s.closeErr
}

// withTx runs fn inside a transaction on the writer connection, rolling
// back on error.
func withTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueConstraintError checks if error is a UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "UNIQUE constraint failed") ||
		strings.Contains(errMsg, "constraint failed: UNIQUE")
}

// isBusyError checks if error is a transient lock conflict worth retrying.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "database is locked") ||
		strings.Contains(errMsg, "SQLITE_BUSY") ||
		strings.Contains(errMsg, "database table is locked")
}

var _ storage.Storage = (*SQLiteStorage)(nil)
