package archive_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/piggyflow/internal/archive"
	"github.com/dvloznov/piggyflow/internal/archive/localdir"
)

func newClient(t *testing.T) (*archive.Client, *localdir.Backend) {
	t.Helper()
	backend, err := localdir.New(filepath.Join(t.TempDir(), "remote"))
	require.NoError(t, err)
	return archive.NewClient(backend, "", zerolog.Nop()), backend
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// sqliteFile prefixes body with the SQLite header so Download accepts it.
func sqliteFile(body string) string {
	return "SQLite format 3\x00" + body
}

// staleBackend keeps reporting an entry after it was deleted out of band,
// the way a remote listing can lag behind a concurrent delete.
type staleBackend struct {
	archive.Backend
	stale []archive.Entry
}

func (s *staleBackend) List(ctx context.Context, name string) ([]archive.Entry, error) {
	if s.stale != nil {
		return s.stale, nil
	}
	return s.Backend.List(ctx, name)
}

// funcBackend lets a test override individual calls.
type funcBackend struct {
	archive.Backend
	ListFunc func(ctx context.Context, name string) ([]archive.Entry, error)
	OpenFunc func(ctx context.Context, id string) (io.ReadCloser, error)
}

func (f *funcBackend) List(ctx context.Context, name string) ([]archive.Entry, error) {
	if f.ListFunc != nil {
		return f.ListFunc(ctx, name)
	}
	return f.Backend.List(ctx, name)
}

func (f *funcBackend) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if f.OpenFunc != nil {
		return f.OpenFunc(ctx, id)
	}
	return f.Backend.Open(ctx, id)
}

func TestClient_DefaultName(t *testing.T) {
	c, _ := newClient(t)
	assert.Equal(t, archive.DefaultName, c.Name())
}

func TestClient_FindMissing(t *testing.T) {
	c, _ := newClient(t)

	_, err := c.Find(context.Background())
	assert.ErrorIs(t, err, archive.ErrNotFound)

	_, ok, err := c.Stat(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_UploadIsIdempotentOnName(t *testing.T) {
	ctx := context.Background()
	c, backend := newClient(t)
	local := filepath.Join(t.TempDir(), "piggyflow.db")

	writeFile(t, local, "first")
	first, err := c.Upload(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, int64(5), first.Size)

	found, err := c.Find(ctx)
	require.NoError(t, err)
	again, err := c.Find(ctx)
	require.NoError(t, err)
	assert.Equal(t, found.ID, again.ID)

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(backend.Dir(), first.ID), old, old))
	before, ok, err := c.Stat(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	writeFile(t, local, "second, longer")
	second, err := c.Upload(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	after, ok, err := c.Stat(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, after.Modified.After(before.Modified), "modified time should advance: %v -> %v", before.Modified, after.Modified)
	assert.Equal(t, int64(len("second, longer")), after.Size)

	entries, err := backend.List(ctx, archive.DefaultName)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(len("second, longer")), entries[0].Size)
}

func TestClient_UploadLocalFileMissing(t *testing.T) {
	c, _ := newClient(t)

	_, err := c.Upload(context.Background(), filepath.Join(t.TempDir(), "nope.db"))
	assert.ErrorIs(t, err, archive.ErrLocalFileMissing)
}

func TestClient_UploadFallsBackToCreateWhenEntryVanished(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "remote")
	inner, err := localdir.New(dir)
	require.NoError(t, err)
	stale := &staleBackend{Backend: inner}
	c := archive.NewClient(stale, "", zerolog.Nop())

	local := filepath.Join(t.TempDir(), "piggyflow.db")
	writeFile(t, local, "v1")
	first, err := c.Upload(ctx, local)
	require.NoError(t, err)

	stale.stale = []archive.Entry{first}
	require.NoError(t, inner.Delete(ctx, first.ID))

	writeFile(t, local, "v2 payload")
	created, err := c.Upload(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, int64(len("v2 payload")), created.Size)

	data, err := os.ReadFile(filepath.Join(dir, archive.DefaultName))
	require.NoError(t, err)
	assert.Equal(t, "v2 payload", string(data))
}

func TestClient_DownloadReplacesDestinationAndSideFiles(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)
	work := t.TempDir()

	src := filepath.Join(work, "src.db")
	writeFile(t, src, sqliteFile("remote contents"))
	_, err := c.Upload(ctx, src)
	require.NoError(t, err)

	dest := filepath.Join(work, "data", "piggyflow.db")
	writeFile(t, dest, "local contents")
	for _, side := range archive.SideFiles(dest) {
		writeFile(t, side, "stale")
	}

	entry, err := c.Download(ctx, dest)
	require.NoError(t, err)
	assert.Equal(t, archive.DefaultName, entry.Name)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, sqliteFile("remote contents"), string(data))
	for _, side := range archive.SideFiles(dest) {
		_, err := os.Stat(side)
		assert.True(t, errors.Is(err, os.ErrNotExist), "side file %s should be gone", side)
	}

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(dest), "*.download-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestClient_DownloadEmptyLeavesDestinationUntouched(t *testing.T) {
	ctx := context.Background()
	c, backend := newClient(t)

	_, err := backend.Create(ctx, archive.DefaultName, strings.NewReader(""))
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "piggyflow.db")
	writeFile(t, dest, "keep me")
	wal := archive.SideFiles(dest)[0]
	writeFile(t, wal, "wal frames")

	_, err = c.Download(ctx, dest)
	assert.ErrorIs(t, err, archive.ErrEmptyDownload)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
	_, err = os.Stat(wal)
	assert.NoError(t, err)
}

func TestClient_DownloadRejectsNonDatabase(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "error page", payload: "<html>quota exceeded</html>"},
		{name: "truncated header", payload: "SQLite for"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			c, backend := newClient(t)

			_, err := backend.Create(ctx, archive.DefaultName, strings.NewReader(tt.payload))
			require.NoError(t, err)

			dest := filepath.Join(t.TempDir(), "piggyflow.db")
			writeFile(t, dest, sqliteFile("local data"))
			wal := archive.SideFiles(dest)[0]
			writeFile(t, wal, "wal frames")

			_, err = c.Download(ctx, dest)
			assert.ErrorIs(t, err, archive.ErrInvalidBackup)

			data, err := os.ReadFile(dest)
			require.NoError(t, err)
			assert.Equal(t, sqliteFile("local data"), string(data))
			_, err = os.Stat(wal)
			assert.NoError(t, err)

			leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(dest), "*.download-*"))
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		})
	}
}

func TestClient_DownloadMissing(t *testing.T) {
	c, _ := newClient(t)
	dest := filepath.Join(t.TempDir(), "piggyflow.db")

	_, err := c.Download(context.Background(), dest)
	assert.ErrorIs(t, err, archive.ErrNotFound)

	_, err = os.Stat(dest)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestClient_DownloadTransportFailure(t *testing.T) {
	ctx := context.Background()
	inner, err := localdir.New(t.TempDir())
	require.NoError(t, err)
	_, err = inner.Create(ctx, archive.DefaultName, strings.NewReader("x"))
	require.NoError(t, err)

	backend := &funcBackend{
		Backend: inner,
		OpenFunc: func(ctx context.Context, id string) (io.ReadCloser, error) {
			return nil, &archive.TransportError{Op: "open", StatusCode: 503, Message: "backend unavailable"}
		},
	}
	c := archive.NewClient(backend, "", zerolog.Nop())

	_, err = c.Download(ctx, filepath.Join(t.TempDir(), "piggyflow.db"))
	var te *archive.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 503, te.StatusCode)
	assert.False(t, errors.Is(err, archive.ErrNotFound))
}

func TestClient_FindReturnsFirstDuplicate(t *testing.T) {
	backend := &funcBackend{
		ListFunc: func(ctx context.Context, name string) ([]archive.Entry, error) {
			return []archive.Entry{
				{ID: "a", Name: name, Size: 1},
				{ID: "b", Name: name, Size: 2},
			}, nil
		},
	}
	c := archive.NewClient(backend, "", zerolog.Nop())

	for i := 0; i < 3; i++ {
		e, err := c.Find(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "a", e.ID)
	}
}

func TestClient_Delete(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)

	err := c.Delete(ctx)
	assert.ErrorIs(t, err, archive.ErrNotFound)

	local := filepath.Join(t.TempDir(), "piggyflow.db")
	writeFile(t, local, "data")
	_, err = c.Upload(ctx, local)
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx))
	_, ok, err := c.Stat(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	tests := []struct {
		name string
		err  *archive.TransportError
		want string
	}{
		{name: "status and message", err: &archive.TransportError{Op: "list", StatusCode: 500, Message: "boom"}, want: "list: remote returned 500: boom"},
		{name: "status only", err: &archive.TransportError{Op: "list", StatusCode: 502}, want: "list: remote returned 502"},
		{name: "cause", err: &archive.TransportError{Op: "list", Err: cause}, want: "list: connection refused"},
		{name: "bare", err: &archive.TransportError{Op: "list"}, want: "list: transport error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
	assert.ErrorIs(t, &archive.TransportError{Op: "x", Err: cause}, cause)
}
