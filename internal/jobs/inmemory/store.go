package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/jobs"
)

// Store is an in-memory implementation of JobStore.
// Data is lost on service restart.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.ReconcileJob
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.ReconcileJob),
	}
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.ReconcileJob) error {
	if job.JobID == "" {
		return domain.NewValidationError("SaveJob", "job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.JobID] = copyJob(job)
	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.ReconcileJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, domain.NewNotFoundError("GetJob", "job not found: "+jobID)
	}
	return copyJob(job), nil
}

// ListJobs implements the JobStore interface.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.ReconcileJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*jobs.ReconcileJob{}
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		result = append(result, copyJob(job))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].JobID < result[j].JobID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.ReconcileJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// UpdateJobStatus implements the JobStore interface.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return domain.NewNotFoundError("UpdateJobStatus", "job not found: "+jobID)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	return nil
}

// copyJob detaches a job from the caller's pointers.
func copyJob(job *jobs.ReconcileJob) *jobs.ReconcileJob {
	c := *job
	c.GoalIDs = append([]string(nil), job.GoalIDs...)
	if job.Result != nil {
		r := *job.Result
		c.Result = &r
	}
	return &c
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
