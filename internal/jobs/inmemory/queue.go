package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/piggyflow/internal/jobs"
	"github.com/dvloznov/piggyflow/internal/store"
)

// ErrQueueClosed is returned when publishing to or starting a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// Config sizes a Queue.
type Config struct {
	// BufferSize is how many jobs can wait before PublishBackup blocks.
	BufferSize int
	// Workers is the number of concurrent workers.
	Workers int
	// MaxRetries applies to jobs published without their own limit.
	MaxRetries int
	// Backoff is multiplied by the retry count. Defaults to one second.
	Backoff time.Duration
}

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
type Queue struct {
	jobChan   chan *jobs.BackupJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool
	cfg       Config
	log       zerolog.Logger
}

// NewQueue creates a new in-memory job queue.
func NewQueue(cfg Config, store jobs.JobStore, log zerolog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize < 0 {
		cfg.BufferSize = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Queue{
		jobChan:   make(chan *jobs.BackupJob, cfg.BufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		cfg:       cfg,
		log:       log.With().Str("component", "jobs").Logger(),
	}
}

// PublishBackup implements the Publisher interface.
func (q *Queue) PublishBackup(ctx context.Context, job *jobs.BackupJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	if !job.Operation.Valid() {
		return fmt.Errorf("unknown operation %q", job.Operation)
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.cfg.MaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		q.log.Debug().Str("job_id", job.JobID).Str("operation", string(job.Operation)).Msg("Job enqueued")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return ErrQueueClosed
	}
}

// Start implements the Consumer interface. It launches cfg.Workers workers.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	q.log.Info().Int("workers", q.cfg.Workers).Msg("Job workers started")

	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job. Only errors marked jobs.Retry are
// re-enqueued, with linear backoff.
func (q *Queue) processJob(ctx context.Context, job *jobs.BackupJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	job.CompletedAt = nil

	q.save(ctx, job)

	err := q.run(ctx, job, handler)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	log := q.log.With().Str("job_id", job.JobID).Str("operation", string(job.Operation)).Logger()

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		job.Failure = ""
		log.Info().Msg("Job completed")

	case jobs.IsRetryable(err) && job.RetryCount < job.MaxRetries:
		job.Error = err.Error()
		job.Failure = store.Classify(err)
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		log.Info().Int("retry", job.RetryCount).Msg("Job will be retried")
		q.save(ctx, job)

		// The job is saved before the timer takes ownership of it.
		backoff := time.Duration(job.RetryCount) * q.cfg.Backoff
		time.AfterFunc(backoff, func() {
			job.Status = jobs.JobStatusPending
			job.StartedAt = nil
			job.CompletedAt = nil
			if err := q.PublishBackup(ctx, job); err != nil {
				job.Status = jobs.JobStatusFailed
				q.save(context.WithoutCancel(ctx), job)
				log.Warn().Err(err).Msg("Re-enqueue failed")
			}
		})
		return

	default:
		job.Error = err.Error()
		job.Failure = store.Classify(err)
		job.Status = jobs.JobStatusFailed
		log.Warn().Err(err).Str("failure", string(job.Failure)).Msg("Job failed")
	}

	q.save(ctx, job)
}

// run calls the handler, turning a panic into an error.
func (q *Queue) run(ctx context.Context, job *jobs.BackupJob, handler jobs.JobHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: job panicked: %v", store.ErrInternal, r)
		}
	}()
	return handler(ctx, job)
}

func (q *Queue) save(ctx context.Context, job *jobs.BackupJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.JobID).Msg("Saving job state")
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
