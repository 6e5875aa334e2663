package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Client performs find/upload/download/stat/delete against the single
// well-known backup entry of a Backend.
type Client struct {
	backend Backend
	name    string
	log     zerolog.Logger
}

// NewClient creates a Client. An empty name selects DefaultName.
func NewClient(backend Backend, name string, log zerolog.Logger) *Client {
	if name == "" {
		name = DefaultName
	}
	return &Client{
		backend: backend,
		name:    name,
		log:     log.With().Str("component", "archive").Str("entry", name).Logger(),
	}
}

// Name returns the remote entry name.
func (c *Client) Name() string {
	return c.name
}

// Find returns the remote entry. A missing entry is reported as ErrNotFound,
// distinct from transport failures. When several entries share the name the
// first one listed wins and a warning is logged; duplicates are not cleaned up.
func (c *Client) Find(ctx context.Context) (Entry, error) {
	entries, err := c.backend.List(ctx, c.name)
	if err != nil {
		return Entry{}, fmt.Errorf("Find: %w", err)
	}
	if len(entries) == 0 {
		return Entry{}, NotFound("Find", c.name)
	}
	if len(entries) > 1 {
		c.log.Warn().
			Int("count", len(entries)).
			Str("chosen_id", entries[0].ID).
			Msg("Multiple remote backups share the well-known name")
	}
	return entries[0], nil
}

// Stat returns the remote entry and true, or false when no backup exists yet.
// Having no backup is a normal state, not an error.
func (c *Client) Stat(ctx context.Context) (Entry, bool, error) {
	e, err := c.Find(ctx)
	if errors.Is(err, ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("Stat: %w", err)
	}
	return e, true, nil
}

// Upload replaces the remote entry with the local file, creating it if none
// exists. If the entry disappears between Find and the update, the upload
// falls back to creating a fresh entry once.
func (c *Client) Upload(ctx context.Context, localPath string) (Entry, error) {
	f, err := os.Open(localPath)
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, fmt.Errorf("Upload: %w: %s", ErrLocalFileMissing, localPath)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("Upload: open %q: %w", localPath, err)
	}
	defer f.Close()

	existing, err := c.Find(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		return c.create(ctx, f)
	case err != nil:
		return Entry{}, fmt.Errorf("Upload: %w", err)
	}

	updated, err := c.backend.Update(ctx, existing.ID, f)
	if err == nil {
		c.log.Info().Str("id", updated.ID).Int64("size", updated.Size).Msg("Remote backup updated")
		return updated, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Entry{}, fmt.Errorf("Upload: update %s: %w", existing.ID, err)
	}

	c.log.Warn().Str("stale_id", existing.ID).Msg("Remote backup vanished before update, creating a new one")
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Entry{}, fmt.Errorf("Upload: rewind %q: %w", localPath, err)
	}
	return c.create(ctx, f)
}

func (c *Client) create(ctx context.Context, r io.Reader) (Entry, error) {
	created, err := c.backend.Create(ctx, c.name, r)
	if err != nil {
		return Entry{}, fmt.Errorf("Upload: create: %w", err)
	}
	c.log.Info().Str("id", created.ID).Int64("size", created.Size).Msg("Remote backup created")
	return created, nil
}

// sqliteHeader opens every SQLite database file.
const sqliteHeader = "SQLite format 3\x00"

// Download fetches the remote entry into destPath. The bytes land in a
// temporary file next to destPath first; a zero-byte payload fails with
// ErrEmptyDownload and one without the SQLite header fails with
// ErrInvalidBackup, both leaving destPath untouched. Before the swap the
// destination's -wal and -shm side files are removed, since they belong to
// the database being replaced.
func (c *Client) Download(ctx context.Context, destPath string) (Entry, error) {
	entry, err := c.Find(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("Download: %w", err)
	}

	rc, err := c.backend.Open(ctx, entry.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("Download: open %s: %w", entry.ID, err)
	}
	defer rc.Close()

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("Download: create dir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(destPath)+".download-*")
	if err != nil {
		return Entry{}, fmt.Errorf("Download: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, rc)
	if err != nil {
		tmp.Close()
		return Entry{}, fmt.Errorf("Download: %w", &TransportError{Op: "read body", Err: err})
	}
	if err := tmp.Close(); err != nil {
		return Entry{}, fmt.Errorf("Download: close temp file: %w", err)
	}
	if n == 0 {
		return Entry{}, fmt.Errorf("Download: %w", ErrEmptyDownload)
	}
	if err := checkHeader(tmpPath); err != nil {
		return Entry{}, fmt.Errorf("Download: %s: %w", entry.ID, err)
	}

	for _, side := range SideFiles(destPath) {
		if err := os.Remove(side); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Entry{}, fmt.Errorf("Download: remove stale %q: %w", side, err)
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return Entry{}, fmt.Errorf("Download: replace %q: %w", destPath, err)
	}

	c.log.Info().Str("id", entry.ID).Int64("bytes", n).Str("dest", destPath).Msg("Remote backup downloaded")
	return entry, nil
}

func checkHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("check header: %w", err)
	}
	defer f.Close()

	buf := make([]byte, len(sqliteHeader))
	if _, err := io.ReadFull(f, buf); err != nil || string(buf) != sqliteHeader {
		return ErrInvalidBackup
	}
	return nil
}

// Delete removes the remote entry, failing with ErrNotFound if there is none.
func (c *Client) Delete(ctx context.Context) error {
	entry, err := c.Find(ctx)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if err := c.backend.Delete(ctx, entry.ID); err != nil {
		return fmt.Errorf("Delete: %s: %w", entry.ID, err)
	}
	c.log.Info().Str("id", entry.ID).Msg("Remote backup deleted")
	return nil
}

// SideFiles returns the write-ahead log and shared-memory paths that
// accompany a SQLite database file.
func SideFiles(dbPath string) []string {
	return []string{dbPath + "-wal", dbPath + "-shm"}
}
