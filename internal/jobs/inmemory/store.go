package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/piggyflow/internal/jobs"
)

// defaultHistory bounds how many backup jobs the daemon remembers.
const defaultHistory = 200

// Store keeps backup job history for the lifetime of the daemon.
// Once more than limit jobs are held, the oldest finished job is evicted;
// pending and running jobs are never evicted.
type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*jobs.BackupJob
	limit int
	now   func() time.Time
}

// NewStore creates an empty job history.
func NewStore() *Store {
	return &Store{
		jobs:  make(map[string]*jobs.BackupJob),
		limit: defaultHistory,
		now:   time.Now,
	}
}

func (s *Store) SaveJob(ctx context.Context, job *jobs.BackupJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.JobID] = clone(job)
	s.evict()
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.BackupJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}
	return clone(job), nil
}

// ListJobs returns matching jobs newest first, ties broken by id.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.BackupJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*jobs.BackupJob{}
	for _, job := range s.jobs {
		if matches(filter, job) {
			result = append(result, clone(job))
		}
	}
	sort.Slice(result, func(i, j int) bool { return newer(result[i], result[j]) })

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.BackupJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// UpdateJobStatus sets the status and, when non-empty, the error message.
// A terminal status without a completion time gets one.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	if finished(job) && job.CompletedAt == nil {
		at := s.now().UTC()
		job.CompletedAt = &at
	}
	s.evict()
	return nil
}

// evict drops the oldest finished jobs until the history fits. Caller holds mu.
func (s *Store) evict() {
	if s.limit <= 0 || len(s.jobs) <= s.limit {
		return
	}

	var done []*jobs.BackupJob
	for _, job := range s.jobs {
		if finished(job) {
			done = append(done, job)
		}
	}
	sort.Slice(done, func(i, j int) bool { return newer(done[j], done[i]) })

	for _, job := range done {
		if len(s.jobs) <= s.limit {
			return
		}
		delete(s.jobs, job.JobID)
	}
}

func matches(f jobs.JobFilter, job *jobs.BackupJob) bool {
	if f.Operation != "" && job.Operation != f.Operation {
		return false
	}
	return f.Status == "" || job.Status == f.Status
}

func newer(a, b *jobs.BackupJob) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.JobID < b.JobID
}

func finished(job *jobs.BackupJob) bool {
	return job.Status == jobs.JobStatusCompleted || job.Status == jobs.JobStatusFailed
}

// clone copies the job including its timestamp pointers.
func clone(job *jobs.BackupJob) *jobs.BackupJob {
	c := *job
	if job.StartedAt != nil {
		t := *job.StartedAt
		c.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

var _ jobs.JobStore = (*Store)(nil)
