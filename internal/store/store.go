// Package store is the SQLite-backed entity store: schema migrations,
// transactions, and typed CRUD for every entity kind in internal/entity.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// devMode is a process-wide flag so background threads pick the right
// database path without config plumbing (spec §9: "keep it as a single
// atomic for the same reason — background tasks create their own
// connections without config plumbing").
var devMode atomic.Bool

// SetDevMode flips the process-wide dev-mode flag. Call once at startup.
func SetDevMode(on bool) { devMode.Store(on) }

// DevMode reports the current process-wide dev-mode flag.
func DevMode() bool { return devMode.Load() }

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = fmt.Errorf("not found")

// Store wraps a single SQLite connection. Per spec §5, all writes are
// serialized through one process-wide handle behind database/sql's own
// connection pool discipline (SetMaxOpenConns(1) for the read-write
// handle); background workflows open their own handle via OpenReadOnly
// or a second Open so they do not starve foreground queries.
type Store struct {
	db       *sql.DB
	log      *slog.Logger
	readOnly bool
}

// Open opens (creating if necessary) the SQLite database at path in
// read-write mode, enables WAL journaling and foreign keys, and runs
// migrations. Migration failure is fatal — fail open (spec §4.1/§7).
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// All writes serialize through this single connection; readers take
	// their own handle via OpenReadOnly.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.runLegacyRepairs(); err != nil {
		log.Warn("legacy repair pass incomplete", "error", err)
	}
	return s, nil
}

// OpenReadOnly opens an additional connection to the same database file
// for read-only foreground queries. It shares the WAL so reads never
// block on the writer handle (spec §4.1: "one per external read-only
// consumer; shares the WAL so reads do not block writes").
func OpenReadOnly(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open read-only store: %w", err)
	}
	return &Store{db: db, log: log, readOnly: true}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// TryReadLocked runs fn in a goroutine and waits at most 50ms for it.
// If fn has not returned by then it returns ok=false and leaves fn
// running in the background, so foreground callers can degrade
// gracefully per the latency budgets in spec §5 instead of queueing
// behind a background batch.
func (s *Store) TryReadLocked(fn func() error) (ok bool, err error) {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err = <-done:
		return true, err
	case <-time.After(50 * time.Millisecond):
		return false, nil
	}
}

// WithTransaction wraps fn in a transaction: commits on
// success, rolls back on any error, and returns fn's error.
func (s *Store) WithTransaction(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RenameLegacyDatabase migrates a pre-DailyOS "actions.db" file in dir
// to "dailyos.db" (spec §6). It opens the legacy file, forces a WAL
// checkpoint so all data lives in the main file, closes it, then
// renames the file on disk. A no-op if actions.db doesn't exist or
// dailyos.db already does (never overwrite a newer database).
func RenameLegacyDatabase(dir string) error {
	oldPath := fmt.Sprintf("%s/actions.db", dir)
	newPath := fmt.Sprintf("%s/dailyos.db", dir)

	if _, err := os.Stat(oldPath); err != nil {
		return nil // nothing to migrate
	}
	if _, err := os.Stat(newPath); err == nil {
		return nil // destination already exists; leave both alone
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL", oldPath))
	if err != nil {
		return fmt.Errorf("open legacy db: %w", err)
	}
	if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.Close()
		return fmt.Errorf("checkpoint legacy db: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close legacy db: %w", err)
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("rename legacy db: %w", err)
	}
	return nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timeOrNil(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
