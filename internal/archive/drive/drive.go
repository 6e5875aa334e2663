// Package drive stores the backup in the application's private
// appDataFolder on Google Drive.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dvloznov/piggyflow/internal/archive"
)

const (
	// Space is the hidden per-app folder; files there are invisible to the user's Drive UI.
	Space = "appDataFolder"

	// Scope is the OAuth scope required for the app data folder.
	Scope = drive.DriveAppdataScope

	contentType = "application/x-sqlite3"
	fileFields  = "id, name, size, modifiedTime"
)

// Backend implements archive.Backend on Drive v3. Uploads carry a JSON
// metadata part (name + parent folder) and the binary content part.
type Backend struct {
	files *drive.FilesService
}

// New creates a Drive backend. Callers pass auth through opts, typically
// option.WithTokenSource.
func New(ctx context.Context, opts ...option.ClientOption) (*Backend, error) {
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive: create service: %w", err)
	}
	return &Backend{files: srv.Files}, nil
}

// List implements archive.Backend.
func (b *Backend) List(ctx context.Context, name string) ([]archive.Entry, error) {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(name))

	var out []archive.Entry
	call := b.files.List().
		Spaces(Space).
		Q(q).
		Fields("nextPageToken, files(" + fileFields + ")").
		PageSize(100)

	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			e, err := entryOf(f)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, translate("drive list", err)
	}
	return out, nil
}

// Create implements archive.Backend.
func (b *Backend) Create(ctx context.Context, name string, r io.Reader) (archive.Entry, error) {
	meta := &drive.File{
		Name:     name,
		Parents:  []string{Space},
		MimeType: contentType,
	}
	f, err := b.files.Create(meta).
		Media(r, googleapi.ContentType(contentType)).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return archive.Entry{}, translate("drive create", err)
	}
	return entryOf(f)
}

// Update implements archive.Backend.
func (b *Backend) Update(ctx context.Context, id string, r io.Reader) (archive.Entry, error) {
	f, err := b.files.Update(id, &drive.File{}).
		Media(r, googleapi.ContentType(contentType)).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return archive.Entry{}, translate("drive update", err)
	}
	return entryOf(f)
}

// Open implements archive.Backend.
func (b *Backend) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := b.files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, translate("drive download", err)
	}
	return resp.Body, nil
}

// Delete implements archive.Backend.
func (b *Backend) Delete(ctx context.Context, id string) error {
	if err := b.files.Delete(id).Context(ctx).Do(); err != nil {
		return translate("drive delete", err)
	}
	return nil
}

func entryOf(f *drive.File) (archive.Entry, error) {
	e := archive.Entry{ID: f.Id, Name: f.Name, Size: f.Size}
	if f.ModifiedTime != "" {
		t, err := time.Parse(time.RFC3339, f.ModifiedTime)
		if err != nil {
			return archive.Entry{}, fmt.Errorf("drive: parse modifiedTime %q: %w", f.ModifiedTime, err)
		}
		e.Modified = t.UTC()
	}
	return e, nil
}

// translate maps googleapi errors onto the archive error taxonomy.
func translate(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusNotFound {
			return archive.NotFound(op, gerr.Message)
		}
		return &archive.TransportError{Op: op, StatusCode: gerr.Code, Message: gerr.Message, Err: err}
	}
	return &archive.TransportError{Op: op, Err: err}
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

var _ archive.Backend = (*Backend)(nil)
