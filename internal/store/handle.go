// Package store owns the local SQLite database and the backup coordinator,
// the only code allowed to close and reopen it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Handle is the single connection pool to the local database.
//
// Acquire opens the database lazily and hands out the same *sql.DB until
// the coordinator releases it. Callers must never close the returned *sql.DB;
// release and reacquire are unexported so only the coordinator can.
type Handle struct {
	path string
	log  zerolog.Logger

	mu       sync.Mutex
	db       *sql.DB
	quiesced bool
	closed   bool
}

// NewHandle returns a Handle for the database file at path. Nothing is
// opened until the first Acquire.
func NewHandle(path string, log zerolog.Logger) *Handle {
	return &Handle{
		path: path,
		log:  log.With().Str("component", "store").Logger(),
	}
}

// Path returns the database file path.
func (h *Handle) Path() string {
	return h.path
}

// Acquire returns the open database, opening and migrating it if needed.
func (h *Handle) Acquire(ctx context.Context) (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.closed:
		return nil, ErrClosed
	case h.quiesced:
		return nil, ErrStoreUnavailable
	case h.db != nil:
		return h.db, nil
	}
	return h.openLocked(ctx)
}

// release closes the database and forgets it. Acquire fails with
// ErrStoreUnavailable until reacquire. Close errors are logged and dropped.
func (h *Handle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.quiesced = true
	if h.db == nil {
		return
	}
	db := h.db
	h.db = nil
	if err := db.Close(); err != nil {
		h.log.Warn().Err(err).Msg("Closing database during release")
	}
	h.log.Debug().Msg("Database released")
}

// reacquire lifts the quiesce and opens a fresh connection to whatever file
// is now at Path. On failure the next Acquire retries the open.
func (h *Handle) reacquire(ctx context.Context) (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	h.quiesced = false
	if h.db != nil {
		if err := h.db.Close(); err != nil {
			h.log.Warn().Err(err).Msg("Closing stale database during reacquire")
		}
		h.db = nil
	}
	return h.openLocked(ctx)
}

// keepCopy preserves the released database file and its WAL under a
// .restore-bak suffix so a bad restore can be rolled back. Hard links are
// used where possible, so the copy survives the rename that replaces Path.
// It returns false when there is no local file yet.
func (h *Handle) keepCopy() (bool, error) {
	h.dropCopy()
	if _, err := os.Stat(h.path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	for _, p := range []string{h.path, h.path + "-wal"} {
		if err := linkOrCopy(p, p+backupSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.dropCopy()
			return false, fmt.Errorf("keep copy of %q: %w", p, err)
		}
	}
	return true, nil
}

const backupSuffix = ".restore-bak"

// dropCopy removes whatever keepCopy left behind.
func (h *Handle) dropCopy() {
	for _, p := range []string{h.path, h.path + "-wal"} {
		if err := os.Remove(p + backupSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.log.Warn().Err(err).Str("path", p+backupSuffix).Msg("Removing restore copy")
		}
	}
}

// rollback puts the copy taken by keepCopy back in place and reopens it.
// With had == false the local file did not exist before, so the rejected
// file is removed and a fresh database is created.
func (h *Handle) rollback(ctx context.Context, had bool) (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if h.db != nil {
		if err := h.db.Close(); err != nil {
			h.log.Warn().Err(err).Msg("Closing rejected database")
		}
		h.db = nil
	}
	h.quiesced = false

	for _, p := range []string{h.path, h.path + "-wal", h.path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("rollback: remove %q: %w", p, err)
		}
	}
	if had {
		for _, p := range []string{h.path, h.path + "-wal"} {
			if err := os.Rename(p+backupSuffix, p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("rollback: restore %q: %w", p, err)
			}
		}
	}
	h.log.Warn().Str("path", h.path).Msg("Rolled back to the previous database")
	return h.openLocked(ctx)
}

func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// quickCheck runs PRAGMA quick_check and fails unless it reports "ok".
func quickCheck(ctx context.Context, db *sql.DB) error {
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("quick_check: %s", result)
	}
	return nil
}

func (h *Handle) isQuiesced() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.quiesced
}

// Close closes the database for process shutdown. The Handle cannot be
// used afterwards.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

func (h *Handle) openLocked(ctx context.Context) (*sql.DB, error) {
	if dir := filepath.Dir(h.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dsn(h.path))
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", h.path, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db, h.log); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database %q: %w", h.path, err)
	}

	h.db = db
	h.log.Debug().Str("path", h.path).Msg("Database opened")
	return db, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + q.Encode()
}
