package model

import "time"

// Analysis categories. Every stage publishes into exactly one of these
// namespaces in the merged result.
const (
	CategoryCreative  = "creative"
	CategoryResonance = "resonance"
	CategoryIndustry  = "industry"
	CategoryAudience  = "audience"
	CategoryPlatform  = "platform"
	CategoryMarket    = "market"
	CategoryCulture   = "culture"
)

// AnalysisResult maps a category name to that category's merged payload.
// A category is absent when every stage feeding it was skipped; it carries
// an "error" key when a stage feeding it ran and failed.
type AnalysisResult map[string]map[string]any

// Category returns the payload for a category, or nil when absent.
func (r AnalysisResult) Category(name string) map[string]any {
	if r == nil {
		return nil
	}
	return r[name]
}

// StageOutcome is the result of one stage invocation: either a payload or an
// error message, never both.
type StageOutcome struct {
	Stage    string
	Category string
	Payload  map[string]any
	Err      string
	Skipped  bool
}

// Failed reports whether the stage ran and errored (as opposed to being
// skipped for missing optional input).
func (o StageOutcome) Failed() bool {
	return o.Err != ""
}

// PersistedRecord is the compact durable projection of one completed
// analysis, kept for history and search.
type PersistedRecord struct {
	ID               int64     `json:"id"`
	Filename         string    `json:"filename"`
	Timestamp        time.Time `json:"timestamp"`
	Status           string    `json:"status"`
	RawResult        string    `json:"-"`
	EmbeddingJSON    *string   `json:"-"`
	DissonanceScore  *float64  `json:"dissonanceScore,omitempty"`
	VibeDescriptor   *string   `json:"vibeDescriptor,omitempty"`
	LyricalSentiment *string   `json:"lyricalSentiment,omitempty"`
	ArtistID         string    `json:"artistId"`
	Markets          string    `json:"markets,omitempty"`
}

// AnalyzeResponse is returned by the submission endpoint.
type AnalyzeResponse struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// JobStatusResponse is returned by the polling endpoint.
type JobStatusResponse struct {
	JobID       string         `json:"job_id"`
	Status      JobStatus      `json:"status"`
	SubmittedAt time.Time      `json:"submitted_at"`
	Result      AnalysisResult `json:"result,omitempty"`
	Error       *string        `json:"error,omitempty"`
}

// HistoryEntry is one row of the history listing.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	ArtistID  string    `json:"artist_id"`
}
