// Package localdir is an archive backend that keeps the backup in a plain
// directory: a mounted drive, a synced folder, or a scratch dir in tests.
package localdir

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/piggyflow/internal/archive"
)

// Backend stores entries as files named after the entry inside Dir.
// Entry ids are the file names.
type Backend struct {
	dir string
}

// New creates the directory if needed.
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("localdir: create %q: %w", dir, err)
	}
	return &Backend{dir: dir}, nil
}

// Dir returns the backing directory.
func (b *Backend) Dir() string {
	return b.dir
}

func (b *Backend) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("localdir: invalid entry id %q", id)
	}
	return filepath.Join(b.dir, id), nil
}

// List implements archive.Backend.
func (b *Backend) List(ctx context.Context, name string) ([]archive.Entry, error) {
	p, err := b.path(name)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &archive.TransportError{Op: "localdir list", Err: err}
	}
	return []archive.Entry{entryOf(name, fi)}, nil
}

// Create implements archive.Backend.
func (b *Backend) Create(ctx context.Context, name string, r io.Reader) (archive.Entry, error) {
	return b.write(name, r, false)
}

// Update implements archive.Backend.
func (b *Backend) Update(ctx context.Context, id string, r io.Reader) (archive.Entry, error) {
	return b.write(id, r, true)
}

func (b *Backend) write(id string, r io.Reader, mustExist bool) (archive.Entry, error) {
	p, err := b.path(id)
	if err != nil {
		return archive.Entry{}, err
	}
	if mustExist {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			return archive.Entry{}, archive.NotFound("localdir update", id)
		}
	}

	tmp, err := os.CreateTemp(b.dir, "."+id+".upload-*")
	if err != nil {
		return archive.Entry{}, &archive.TransportError{Op: "localdir write", Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return archive.Entry{}, &archive.TransportError{Op: "localdir write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return archive.Entry{}, &archive.TransportError{Op: "localdir write", Err: err}
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return archive.Entry{}, &archive.TransportError{Op: "localdir write", Err: err}
	}

	fi, err := os.Stat(p)
	if err != nil {
		return archive.Entry{}, &archive.TransportError{Op: "localdir stat", Err: err}
	}
	return entryOf(id, fi), nil
}

// Open implements archive.Backend.
func (b *Backend) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	p, err := b.path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, archive.NotFound("localdir open", id)
	}
	if err != nil {
		return nil, &archive.TransportError{Op: "localdir open", Err: err}
	}
	return f, nil
}

// Delete implements archive.Backend.
func (b *Backend) Delete(ctx context.Context, id string) error {
	p, err := b.path(id)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return archive.NotFound("localdir delete", id)
	}
	if err != nil {
		return &archive.TransportError{Op: "localdir delete", Err: err}
	}
	return nil
}

func entryOf(name string, fi fs.FileInfo) archive.Entry {
	return archive.Entry{
		ID:       name,
		Name:     name,
		Size:     fi.Size(),
		Modified: fi.ModTime().UTC(),
	}
}

var _ archive.Backend = (*Backend)(nil)
