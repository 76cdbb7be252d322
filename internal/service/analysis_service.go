package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/totalityengine/api/internal/model"
	"github.com/totalityengine/api/internal/store"
)

// TaskTypeAnalysis is the asynq task type for one analysis job.
const TaskTypeAnalysis = "analysis:process"

// QueueAnalysis is the asynq queue analysis tasks run on.
const QueueAnalysis = "analysis"

// TaskEnqueuer hands a created job to the worker pool. The production
// implementation is asynq; tests substitute an in-process one.
type TaskEnqueuer interface {
	EnqueueAnalysis(ctx context.Context, jobID string) error
}

// AsynqEnqueuer enqueues analysis tasks on the redis-backed queue. Jobs are
// pulled in FIFO submission order; MaxRetry is zero because a failed run is
// reported, not replayed.
type AsynqEnqueuer struct {
	client *asynq.Client
}

func NewAsynqEnqueuer(client *asynq.Client) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client}
}

func (e *AsynqEnqueuer) EnqueueAnalysis(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(model.AnalysisJobPayload{JobID: jobID})
	if err != nil {
		return fmt.Errorf("marshal task payload: %w", err)
	}
	task := asynq.NewTask(TaskTypeAnalysis, payload)
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueAnalysis),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("enqueue analysis task: %w", err)
	}
	return nil
}

// AnalysisService is the ingress and read side of the job system: it accepts
// submissions, answers status polls, and lists history. The heavy lifting
// happens in the worker.
type AnalysisService struct {
	jobs      *store.JobStore
	history   *store.HistoryStore
	enqueuer  TaskEnqueuer
	uploadDir string
}

func NewAnalysisService(jobs *store.JobStore, history *store.HistoryStore, enqueuer TaskEnqueuer, uploadDir string) *AnalysisService {
	return &AnalysisService{
		jobs:      jobs,
		history:   history,
		enqueuer:  enqueuer,
		uploadDir: uploadDir,
	}
}

// Submit persists the uploaded resource, registers a queued job, and hands
// it to the worker pool. It returns as soon as the copy is done; submission
// cost never includes analysis time. On a save failure no job exists and the
// caller gets the error synchronously.
func (s *AnalysisService) Submit(ctx context.Context, filename string, file io.Reader, meta model.TrackMetadata) (*model.AnalyzeResponse, error) {
	if meta.ArtistID == "" {
		meta.ArtistID = "unknown"
	}
	if meta.Platform == "" {
		meta.Platform = "Spotify"
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	// The resource is saved before any job exists: a failed save is a
	// synchronous submission error with nothing left behind.
	tempPath := filepath.Join(s.uploadDir, fmt.Sprintf("%s_%s", uuid.New().String(), sanitizeFilename(filename)))
	if err := saveUpload(tempPath, file); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	job := s.jobs.Create(filename, tempPath, meta)

	if err := s.enqueuer.EnqueueAnalysis(ctx, job.ID); err != nil {
		s.jobs.MarkFailed(job.ID, err.Error())
		os.Remove(tempPath)
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	log.Printf("Job %s queued for %s", job.ID, filename)
	return &model.AnalyzeResponse{
		JobID:  job.ID,
		Status: model.JobStatusQueued,
	}, nil
}

// Status translates the internal job record into the polling response. It
// never blocks on processing.
func (s *AnalysisService) Status(jobID string) (*model.JobStatusResponse, error) {
	job, err := s.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}

	resp := &model.JobStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		SubmittedAt: job.SubmittedAt,
	}
	switch job.Status {
	case model.JobStatusCompleted:
		resp.Result = job.Result
	case model.JobStatusFailed:
		resp.Error = job.Error
	}
	return resp, nil
}

// History returns the most recent persisted analysis records.
func (s *AnalysisService) History(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	return s.history.Recent(ctx, limit)
}

func saveUpload(path string, file io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(path)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close temp file: %w", err)
	}
	return nil
}

// sanitizeFilename strips path separators and other surprises from the
// client-supplied name before it lands on disk.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." {
		name = "upload"
	}
	return name
}
