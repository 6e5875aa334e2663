package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/piggyflow/internal/archive"
	"github.com/dvloznov/piggyflow/internal/store"
)

type fakeRunner struct {
	calls []store.Operation
	err   error
}

func (f *fakeRunner) Backup(ctx context.Context) (archive.Entry, error) {
	f.calls = append(f.calls, store.OpBackup)
	return archive.Entry{}, f.err
}

func (f *fakeRunner) Restore(ctx context.Context) (archive.Entry, error) {
	f.calls = append(f.calls, store.OpRestore)
	return archive.Entry{}, f.err
}

func (f *fakeRunner) DeleteBackup(ctx context.Context) error {
	f.calls = append(f.calls, store.OpDeleteBackup)
	return f.err
}

func TestBackupHandler_Dispatch(t *testing.T) {
	r := &fakeRunner{}
	h := NewBackupHandler(r)
	ctx := context.Background()

	for _, op := range []store.Operation{store.OpBackup, store.OpRestore, store.OpDeleteBackup} {
		require.NoError(t, h(ctx, &BackupJob{Operation: op}))
	}
	assert.Equal(t, []store.Operation{store.OpBackup, store.OpRestore, store.OpDeleteBackup}, r.calls)

	assert.Error(t, h(ctx, &BackupJob{Operation: "sync"}))
}

func TestBackupHandler_RetriesOnlyBusyCoordinator(t *testing.T) {
	ctx := context.Background()

	busy := NewBackupHandler(&fakeRunner{err: fmt.Errorf("restore: %w", store.ErrAlreadyInProgress)})
	err := busy(ctx, &BackupJob{Operation: store.OpRestore})
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, store.ErrAlreadyInProgress)

	failing := NewBackupHandler(&fakeRunner{err: archive.ErrEmptyDownload})
	err = failing(ctx, &BackupJob{Operation: store.OpRestore})
	assert.False(t, IsRetryable(err))
	assert.ErrorIs(t, err, archive.ErrEmptyDownload)
}

func TestRetry(t *testing.T) {
	assert.NoError(t, Retry(nil))
	base := errors.New("busy")
	err := Retry(base)
	assert.True(t, IsRetryable(err))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", err)))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsRetryable(base))
}
