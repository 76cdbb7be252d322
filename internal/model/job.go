package model

import "time"

// JobStatus is the externally visible lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// TrackMetadata carries the caller-supplied context for one analysis request.
// ArtistID always has a value (the dispatcher defaults it); everything else
// is optional and drives the per-stage skip policy.
type TrackMetadata struct {
	ArtistID      string   `json:"artistId" validate:"omitempty,max=128,printascii"`
	Platform      string   `json:"platform" validate:"omitempty,oneof=Spotify TikTok YouTube Apple"`
	TargetMarkets []string `json:"targetMarkets,omitempty" validate:"omitempty,max=50,dive,len=2,alpha"`
	Lyrics        string   `json:"lyrics,omitempty" validate:"omitempty,max=20000"`
}

// Job represents one submitted analysis request and its tracked lifecycle.
// Status only ever moves forward: queued -> processing -> completed|failed.
type Job struct {
	ID          string         `json:"id"`
	Status      JobStatus      `json:"status"`
	SubmittedAt time.Time      `json:"submittedAt"`
	InputPath   string         `json:"-"` // temp upload owned by this job until cleanup
	Filename    string         `json:"filename"`
	Metadata    TrackMetadata  `json:"metadata"`
	Result      AnalysisResult `json:"result,omitempty"`
	Error       *string        `json:"error,omitempty"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// AnalysisJobPayload is the asynq task payload. The job record itself stays
// in the in-process registry; the task only carries the key.
type AnalysisJobPayload struct {
	JobID string `json:"jobId"`
}
