package store

import (
	"errors"
	"fmt"

	"github.com/dvloznov/piggyflow/internal/archive"
	"github.com/dvloznov/piggyflow/internal/auth"
)

var (
	// ErrStoreUnavailable is returned by Acquire while a backup or restore
	// has the database file released.
	ErrStoreUnavailable = errors.New("store temporarily unavailable")

	// ErrClosed is returned by Acquire after Close.
	ErrClosed = errors.New("store closed")

	// ErrAlreadyInProgress rejects a backup operation started while another
	// one is running.
	ErrAlreadyInProgress = errors.New("a backup operation is already in progress")

	// ErrInternal marks unexpected failures such as a recovered panic.
	ErrInternal = errors.New("internal error")
)

// FailureKind classifies why an operation failed.
type FailureKind string

const (
	FailureNotSignedIn       FailureKind = "not_signed_in"
	FailureRemoteNotFound    FailureKind = "remote_not_found"
	FailureRemoteTransport   FailureKind = "remote_transport"
	FailureLocalFileMissing  FailureKind = "local_file_missing"
	FailureEmptyDownload     FailureKind = "empty_download"
	FailureInvalidBackup     FailureKind = "invalid_backup"
	FailureAlreadyInProgress FailureKind = "already_in_progress"
	FailureInternal          FailureKind = "internal"
)

// Classify maps an operation error onto the failure taxonomy.
// It returns "" for a nil error.
func Classify(err error) FailureKind {
	var te *archive.TransportError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyInProgress):
		return FailureAlreadyInProgress
	case errors.Is(err, auth.ErrNotSignedIn):
		return FailureNotSignedIn
	case errors.Is(err, archive.ErrLocalFileMissing):
		return FailureLocalFileMissing
	case errors.Is(err, archive.ErrEmptyDownload):
		return FailureEmptyDownload
	case errors.Is(err, archive.ErrInvalidBackup):
		return FailureInvalidBackup
	case errors.Is(err, archive.ErrNotFound):
		return FailureRemoteNotFound
	case errors.As(err, &te):
		return FailureRemoteTransport
	default:
		return FailureInternal
	}
}

// failureMessage is the short text shown on the status banner.
func failureMessage(kind FailureKind, err error) string {
	switch kind {
	case FailureNotSignedIn:
		return "Not signed in"
	case FailureRemoteNotFound:
		return "No backup found"
	case FailureLocalFileMissing:
		return "Local database file is missing"
	case FailureEmptyDownload:
		return "Downloaded backup is empty, local data kept"
	case FailureInvalidBackup:
		return "Backup is not a usable database, local data kept"
	case FailureAlreadyInProgress:
		return "Another backup operation is running"
	case FailureRemoteTransport:
		return fmt.Sprintf("Remote error: %v", err)
	default:
		return fmt.Sprintf("Unexpected error: %v", err)
	}
}
