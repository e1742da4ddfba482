package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeReconcile runs batch matching over a date range.
	JobTypeReconcile JobType = "reconcile"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ReconcileJob asks a worker to reconcile goals over a date range.
type ReconcileJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Range is the inclusive date range to reconcile.
	Range domain.DateRange `json:"range"`

	// GoalIDs limits the run to these goals. Empty means all goals.
	GoalIDs []string `json:"goal_ids,omitempty"`

	// Apply persists the proposed matches when set.
	Apply bool `json:"apply"`

	// RequestedBy identifies who submitted the job.
	RequestedBy string `json:"requested_by,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// Result holds the batch counters once the job completes.
	Result *JobResult `json:"result,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// JobResult mirrors the batch counters of a finished run.
type JobResult struct {
	RunID        string `json:"run_id"`
	Goals        int    `json:"goals"`
	Succeeded    int    `json:"succeeded"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	MatchesFound int    `json:"matches_found"`
	UpdatedCount int    `json:"updated_count"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ReconcileJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ReconcileJob) GetType() JobType {
	return JobTypeReconcile
}

// GetStatus implements the Job interface.
func (j *ReconcileJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishReconcile publishes a reconciliation job.
	PublishReconcile(ctx context.Context, job *ReconcileJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error triggers a retry unless it is
// marked Permanent.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ReconcileJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ReconcileJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ReconcileJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
