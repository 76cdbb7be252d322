package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/totalityengine/api/internal/model"
)

// ErrJobNotFound is returned when a job id has no record.
var ErrJobNotFound = errors.New("job not found")

// JobStore is the in-process registry of analysis jobs. Records live for the
// whole process lifetime; retention is a deployment concern. Status polling
// takes the read lock, so many pollers never contend with each other; each
// record is mutated only by the worker executing that job.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*model.Job),
	}
}

// Create inserts a new queued job and returns it. The generated id is the
// job's handle for polling and for the task queue.
func (s *JobStore) Create(filename, inputPath string, meta model.TrackMetadata) *model.Job {
	job := &model.Job{
		ID:          uuid.New().String(),
		Status:      model.JobStatusQueued,
		SubmittedAt: time.Now(),
		InputPath:   inputPath,
		Filename:    filename,
		Metadata:    meta,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	return job
}

// Get returns a copy of the job record, so callers never observe a record
// mid-mutation.
func (s *JobStore) Get(id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

// Update applies mutate to the job under the write lock. Status transitions
// are monotonic: once a job reaches a terminal state, further status changes
// are discarded.
func (s *JobStore) Update(id string, mutate func(*model.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}

	prev := job.Status
	mutate(job)
	if prev.Terminal() && job.Status != prev {
		job.Status = prev
	}
	return nil
}

// MarkProcessing transitions a queued job to processing.
func (s *JobStore) MarkProcessing(id string) error {
	return s.Update(id, func(j *model.Job) {
		if j.Status != model.JobStatusQueued {
			return
		}
		j.Status = model.JobStatusProcessing
		now := time.Now()
		j.StartedAt = &now
	})
}

// MarkCompleted stores the final result and moves the job to its terminal
// completed state.
func (s *JobStore) MarkCompleted(id string, result model.AnalysisResult) error {
	return s.Update(id, func(j *model.Job) {
		j.Status = model.JobStatusCompleted
		j.Result = result
		now := time.Now()
		j.CompletedAt = &now
	})
}

// MarkFailed records a job-level error and moves the job to failed.
func (s *JobStore) MarkFailed(id string, errMsg string) error {
	return s.Update(id, func(j *model.Job) {
		j.Status = model.JobStatusFailed
		j.Error = &errMsg
		now := time.Now()
		j.CompletedAt = &now
	})
}

// ListRecent returns up to n job copies ordered most recent first.
func (s *JobStore) ListRecent(n int) []*model.Job {
	s.mu.RLock()
	all := make([]*model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		cp := *job
		all = append(all, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].SubmittedAt.After(all[j].SubmittedAt)
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}
