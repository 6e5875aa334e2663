package store

import (
	"time"

	"github.com/dvloznov/piggyflow/internal/archive"
)

// Operation names a coordinator action.
type Operation string

const (
	OpBackup       Operation = "backup"
	OpRestore      Operation = "restore"
	OpDeleteBackup Operation = "delete_backup"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpBackup, OpRestore, OpDeleteBackup:
		return true
	}
	return false
}

// State is the coordinator state machine position.
type State string

const (
	StateIdle       State = "idle"
	StateInProgress State = "in_progress"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Terminal reports whether s is Succeeded or Failed.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Status is what the status banner shows.
type Status struct {
	State     State       `json:"state"`
	Operation Operation   `json:"operation,omitempty"`
	Message   string      `json:"message,omitempty"`
	Failure   FailureKind `json:"failure,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RemoteInfo is the last known stat of the remote backup.
type RemoteInfo struct {
	Present   bool           `json:"present"`
	Entry     *archive.Entry `json:"entry,omitempty"`
	CheckedAt time.Time      `json:"checked_at,omitempty"`
	Error     string         `json:"error,omitempty"`
}
