package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/piggyflow/internal/archive"
	"github.com/dvloznov/piggyflow/internal/store"
)

// BackupRunner is the coordinator surface the handler drives.
type BackupRunner interface {
	Backup(ctx context.Context) (archive.Entry, error)
	Restore(ctx context.Context) (archive.Entry, error)
	DeleteBackup(ctx context.Context) error
}

// NewBackupHandler runs BackupJobs against r. A job that lost the race for
// the coordinator is retried; every other failure is final.
func NewBackupHandler(r BackupRunner) JobHandler {
	return func(ctx context.Context, job Job) error {
		bj, ok := job.(*BackupJob)
		if !ok {
			return fmt.Errorf("unexpected job type %s", job.GetType())
		}

		var err error
		switch bj.Operation {
		case store.OpBackup:
			_, err = r.Backup(ctx)
		case store.OpRestore:
			_, err = r.Restore(ctx)
		case store.OpDeleteBackup:
			err = r.DeleteBackup(ctx)
		default:
			return fmt.Errorf("unknown operation %q", bj.Operation)
		}

		if errors.Is(err, store.ErrAlreadyInProgress) {
			return Retry(err)
		}
		return err
	}
}
