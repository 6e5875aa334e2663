package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/piggyflow/internal/jobs"
	"github.com/dvloznov/piggyflow/internal/store"
)

func TestStore_SaveAndGetCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	job := &jobs.BackupJob{JobID: "a", Operation: store.OpBackup, Status: jobs.JobStatusPending}
	require.NoError(t, s.SaveJob(ctx, job))

	job.Status = jobs.JobStatusRunning
	got, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, got.Status)

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)

	assert.Error(t, s.SaveJob(ctx, &jobs.BackupJob{}))
}

func TestStore_ListJobs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, j := range []jobs.BackupJob{
		{JobID: "1", Operation: store.OpBackup, Status: jobs.JobStatusCompleted},
		{JobID: "2", Operation: store.OpRestore, Status: jobs.JobStatusFailed},
		{JobID: "3", Operation: store.OpBackup, Status: jobs.JobStatusPending},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveJob(ctx, &j))
	}

	all, err := s.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "3", all[0].JobID)

	backups, err := s.ListJobs(ctx, jobs.JobFilter{Operation: store.OpBackup})
	require.NoError(t, err)
	assert.Len(t, backups, 2)

	failed, err := s.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "2", failed[0].JobID)

	page, err := s.ListJobs(ctx, jobs.JobFilter{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "2", page[0].JobID)

	empty, err := s.ListJobs(ctx, jobs.JobFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_UpdateJobStatus(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.SaveJob(ctx, &jobs.BackupJob{JobID: "a", Status: jobs.JobStatusRunning}))

	require.NoError(t, s.UpdateJobStatus(ctx, "a", jobs.JobStatusFailed, "boom"))
	got, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)

	assert.ErrorIs(t, s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, ""), jobs.ErrJobNotFound)
}

func TestStore_UpdateJobStatusStampsCompletion(t *testing.T) {
	s := NewStore()
	at := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }
	ctx := context.Background()
	require.NoError(t, s.SaveJob(ctx, &jobs.BackupJob{JobID: "a", Status: jobs.JobStatusPending}))

	require.NoError(t, s.UpdateJobStatus(ctx, "a", jobs.JobStatusRunning, ""))
	got, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, s.UpdateJobStatus(ctx, "a", jobs.JobStatusCompleted, ""))
	got, err = s.GetJob(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, at, *got.CompletedAt)
}

func TestStore_CopiesTimestamps(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	job := &jobs.BackupJob{JobID: "a", Status: jobs.JobStatusRunning, StartedAt: &started}
	require.NoError(t, s.SaveJob(ctx, job))

	started = started.Add(time.Hour)

	got, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), *got.StartedAt)

	*got.StartedAt = time.Time{}
	again, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), *again.StartedAt)
}

func TestStore_EvictsOldestFinishedJobs(t *testing.T) {
	s := NewStore()
	s.limit = 3
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, j := range []jobs.BackupJob{
		{JobID: "old-pending", Status: jobs.JobStatusPending},
		{JobID: "old-done", Status: jobs.JobStatusCompleted},
		{JobID: "mid-failed", Status: jobs.JobStatusFailed},
		{JobID: "new-done", Status: jobs.JobStatusCompleted},
		{JobID: "newest", Status: jobs.JobStatusRunning},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveJob(ctx, &j))
	}

	all, err := s.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	var ids []string
	for _, j := range all {
		ids = append(ids, j.JobID)
	}
	assert.Equal(t, []string{"newest", "new-done", "old-pending"}, ids)

	_, err = s.GetJob(ctx, "old-done")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}
