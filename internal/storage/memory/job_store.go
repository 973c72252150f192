package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/seo-auditor/internal/audit"
)

// JobStore keeps job records in process memory. Records live until the
// retention sweep removes them.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]audit.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]audit.Job),
	}
}

// Insert stores a new job.
func (s *JobStore) Insert(_ context.Context, job audit.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("insert %s: %w", job.ID, audit.ErrJobExists)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get fetches a snapshot of a job by ID.
func (s *JobStore) Get(_ context.Context, jobID string) (audit.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return audit.Job{}, audit.ErrJobNotFound
	}
	return job.Clone(), nil
}

// Update applies mutate to a copy of the job and commits it only when mutate
// succeeds. The read and write happen under one lock.
func (s *JobStore) Update(_ context.Context, jobID string, mutate func(*audit.Job) error) (audit.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return audit.Job{}, audit.ErrJobNotFound
	}
	working := job.Clone()
	if err := mutate(&working); err != nil {
		return job.Clone(), err
	}
	s.jobs[jobID] = working
	return working.Clone(), nil
}

// Delete removes a job.
func (s *JobStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return audit.ErrJobNotFound
	}
	delete(s.jobs, jobID)
	return nil
}

// Sweep removes COMPLETED and FAILED jobs that finished before cutoff.
func (s *JobStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		if !job.Status.Terminal() || job.CompletedAt == nil {
			continue
		}
		if job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// Len reports how many jobs are held.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
