package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/goal-reconciliation/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultWorkers    = 5
	defaultMaxRetries = 3
)

// Queue is an in-memory publisher and consumer backed by a channel. It is
// safe for concurrent use and suits single-instance deployments and tests.
type Queue struct {
	jobChan   chan *jobs.ReconcileJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	workers   int
	backoff   time.Duration
	logger    zerolog.Logger
	closed    bool
}

// NewQueue creates a queue. bufferSize is how many jobs can wait before
// PublishReconcile blocks; workers below 1 selects the default of 5.
func NewQueue(bufferSize, workers int, store jobs.JobStore, logger zerolog.Logger) *Queue {
	if workers < 1 {
		workers = defaultWorkers
	}
	return &Queue{
		jobChan:   make(chan *jobs.ReconcileJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
		backoff:   time.Second,
		logger:    logger,
	}
}

// PublishReconcile implements the Publisher interface.
func (q *Queue) PublishReconcile(ctx context.Context, job *jobs.ReconcileJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}
	if err := job.Range.Validate(); err != nil {
		return err
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = defaultMaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

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

// processJob runs the handler and retries with linear backoff unless the
// error is permanent or retries are exhausted.
func (q *Queue) processJob(ctx context.Context, job *jobs.ReconcileJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	q.save(ctx, job)

	err := handler(ctx, job)

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt

	log := q.logger.With().Str("job_id", job.JobID).Int("retry_count", job.RetryCount).Logger()
	retry := false
	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		log.Info().Msg("Job completed")
	case jobs.IsPermanent(err) || job.RetryCount >= job.MaxRetries:
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
		log.Error().Err(err).Msg("Job failed")
	default:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		retry = true
	}

	// Persist before re-enqueueing so a fast retry cannot be overwritten.
	q.save(ctx, job)
	if !retry {
		return
	}

	backoff := time.Duration(job.RetryCount) * q.backoff
	log.Warn().Str("error", job.Error).Dur("backoff", backoff).Msg("Job failed, retrying")
	next := *job
	time.AfterFunc(backoff, func() {
		next.Status = jobs.JobStatusPending
		next.StartedAt = nil
		next.CompletedAt = nil
		if err := q.PublishReconcile(context.Background(), &next); err != nil {
			q.logger.Error().Err(err).Str("job_id", next.JobID).Msg("Failed to re-enqueue job")
		}
	})
}

func (q *Queue) save(ctx context.Context, job *jobs.ReconcileJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.logger.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
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

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
