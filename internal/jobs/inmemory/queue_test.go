package inmemory

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/jobs"
	"github.com/dvloznov/goal-reconciliation/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.ReconcileJob {
	t.Helper()
	var job *jobs.ReconcileJob
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = j
		return j.Status == want
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func TestQueue_ProcessesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(4, 1, store, logger.NewWithWriter(io.Discard))
	ctx := context.Background()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		job.(*jobs.ReconcileJob).Result = &jobs.JobResult{Goals: 2, Succeeded: 2}
		return nil
	}))
	defer q.Close()

	job := &jobs.ReconcileJob{Apply: true}
	require.NoError(t, q.PublishReconcile(ctx, job))
	assert.NotEmpty(t, job.JobID)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	require.NotNil(t, done.Result)
	assert.Equal(t, 2, done.Result.Succeeded)
	assert.NotNil(t, done.CompletedAt)
}

func TestQueue_PermanentErrorIsNotRetried(t *testing.T) {
	store := NewStore()
	q := NewQueue(4, 1, store, logger.NewWithWriter(io.Discard))
	ctx := context.Background()
	var calls int32

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&calls, 1)
		return jobs.Permanent(errors.New("bad range"))
	}))
	defer q.Close()

	job := &jobs.ReconcileJob{}
	require.NoError(t, q.PublishReconcile(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "bad range", failed.Error)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueue_RetriesTransientErrors(t *testing.T) {
	store := NewStore()
	q := NewQueue(4, 1, store, logger.NewWithWriter(io.Discard))
	q.backoff = time.Millisecond
	ctx := context.Background()
	var calls int32

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("store unavailable")
		}
		return nil
	}))
	defer q.Close()

	job := &jobs.ReconcileJob{}
	require.NoError(t, q.PublishReconcile(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 1, done.RetryCount)
}

func TestQueue_RejectsInvalidRangeAndClosedQueue(t *testing.T) {
	q := NewQueue(1, 1, NewStore(), logger.NewWithWriter(io.Discard))
	ctx := context.Background()

	bad := &jobs.ReconcileJob{Range: domain.DateRange{
		From: domain.DateOf(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)),
		To:   domain.DateOf(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}}
	assert.ErrorIs(t, q.PublishReconcile(ctx, bad), domain.ErrValidation)

	require.NoError(t, q.Close())
	assert.Error(t, q.PublishReconcile(ctx, &jobs.ReconcileJob{}))
	assert.Error(t, q.Start(ctx, func(context.Context, jobs.Job) error { return nil }))
}

func TestStore_ListJobs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		status := jobs.JobStatusCompleted
		if id == "b" {
			status = jobs.JobStatusFailed
		}
		require.NoError(t, s.SaveJob(ctx, &jobs.ReconcileJob{JobID: id, Status: status, CreatedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	all, err := s.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].JobID)

	failed, err := s.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].JobID)

	page, err := s.ListJobs(ctx, jobs.JobFilter{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].JobID)

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.SaveJob(ctx, &jobs.ReconcileJob{}), domain.ErrValidation)
}
