package archive

import (
	"context"
	"io"
	"time"
)

// DefaultName is the well-known name of the single remote backup entry.
const DefaultName = "piggyflow_backup.db"

// Entry describes the remote backup blob.
type Entry struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Backend is the storage API the Client drives. Implementations report a
// missing entry with an error wrapping ErrNotFound and any other remote
// failure as a *TransportError.
type Backend interface {
	// List returns every entry with exactly this name in the private folder.
	List(ctx context.Context, name string) ([]Entry, error)

	// Create stores a new entry with the given name and content.
	Create(ctx context.Context, name string, r io.Reader) (Entry, error)

	// Update replaces the content of an existing entry.
	Update(ctx context.Context, id string, r io.Reader) (Entry, error)

	// Open streams the content of an entry.
	Open(ctx context.Context, id string) (io.ReadCloser, error)

	// Delete removes an entry.
	Delete(ctx context.Context, id string) error
}
