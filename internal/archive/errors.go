package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no remote backup exists, or it vanished mid-operation.
	ErrNotFound = errors.New("remote backup not found")

	// ErrLocalFileMissing means there is no local database file to upload.
	ErrLocalFileMissing = errors.New("local database file missing")

	// ErrEmptyDownload means the remote returned zero bytes. The destination
	// is left untouched.
	ErrEmptyDownload = errors.New("downloaded backup is empty")

	// ErrInvalidBackup means the remote payload is not a SQLite database.
	// The destination is left untouched.
	ErrInvalidBackup = errors.New("downloaded backup is not a valid database")
)

// TransportError is a remote failure other than "not found": network errors,
// auth rejections, 4xx/5xx responses.
type TransportError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: remote returned %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: remote returned %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": transport error"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotFound wraps ErrNotFound with backend detail.
func NotFound(op, detail string) error {
	if detail == "" {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %s", op, ErrNotFound, detail)
}
