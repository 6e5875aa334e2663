// Package gcs stores the backup as an object in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/dvloznov/piggyflow/internal/archive"
)

const (
	contentType   = "application/x-sqlite3"
	uploadTimeout = 2 * time.Minute
)

// Backend keeps entries under bucket/prefix. Entry ids are full object names.
type Backend struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a storage client. Without options it relies on Application
// Default Credentials (gcloud auth application-default login).
func New(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*Backend, error) {
	if bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Backend{client: client, bucket: bucket, prefix: prefix}, nil
}

// Close releases the underlying storage client.
func (b *Backend) Close() error {
	return b.client.Close()
}

// ObjectName returns the object name used for an entry name.
func (b *Backend) ObjectName(name string) string {
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}

func (b *Backend) List(ctx context.Context, name string) ([]archive.Entry, error) {
	want := b.ObjectName(name)
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: want})

	var out []archive.Entry
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, translate("gcs list", err)
		}
		if attrs.Name != want {
			continue
		}
		out = append(out, entryOf(attrs))
	}
	return out, nil
}

func (b *Backend) Create(ctx context.Context, name string, r io.Reader) (archive.Entry, error) {
	obj := b.client.Bucket(b.bucket).Object(b.ObjectName(name))
	return b.write(ctx, "gcs create", obj, r)
}

// Update overwrites the object only if it still has the generation observed
// just before the write. A concurrent delete surfaces as ErrNotFound; a
// concurrent overwrite fails the precondition and surfaces as a
// TransportError with status 412.
func (b *Backend) Update(ctx context.Context, id string, r io.Reader) (archive.Entry, error) {
	obj := b.client.Bucket(b.bucket).Object(id)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return archive.Entry{}, translate("gcs update", err)
	}
	guarded := obj.If(storage.Conditions{GenerationMatch: attrs.Generation})
	return b.write(ctx, "gcs update", guarded, r)
}

func (b *Backend) write(ctx context.Context, op string, obj *storage.ObjectHandle, r io.Reader) (archive.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return archive.Entry{}, translate(op, err)
	}
	if err := w.Close(); err != nil {
		return archive.Entry{}, translate(op, err)
	}
	return entryOf(w.Attrs()), nil
}

func (b *Backend) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	rc, err := b.client.Bucket(b.bucket).Object(id).NewReader(ctx)
	if err != nil {
		return nil, translate("gcs open", err)
	}
	return rc, nil
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	if err := b.client.Bucket(b.bucket).Object(id).Delete(ctx); err != nil {
		return translate("gcs delete", err)
	}
	return nil
}

func entryOf(attrs *storage.ObjectAttrs) archive.Entry {
	if attrs == nil {
		return archive.Entry{}
	}
	return archive.Entry{
		ID:       attrs.Name,
		Name:     path.Base(attrs.Name),
		Size:     attrs.Size,
		Modified: attrs.Updated,
	}
}

// translate maps a missing object to archive.ErrNotFound. Everything else,
// including a failed generation precondition, is a TransportError.
func translate(op string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return archive.NotFound(op, "")
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusNotFound {
			return archive.NotFound(op, strings.TrimSpace(gerr.Message))
		}
		return &archive.TransportError{Op: op, StatusCode: gerr.Code, Message: gerr.Message, Err: err}
	}
	return &archive.TransportError{Op: op, Err: err}
}
var _ archive.Backend = (*Backend)(nil)
