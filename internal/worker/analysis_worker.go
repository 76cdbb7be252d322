package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/totalityengine/api/internal/model"
	"github.com/totalityengine/api/internal/pipeline"
	"github.com/totalityengine/api/internal/store"
	"github.com/totalityengine/api/internal/websocket"
)

// AnalysisWorker executes queued analysis jobs: it runs the pipeline, sinks
// the result into the durable and graph stores, cleans up the temp input,
// and moves the job record to its terminal state. One worker goroutine owns
// one job from pull to terminal state.
type AnalysisWorker struct {
	jobs         *store.JobStore
	orchestrator *pipeline.Orchestrator
	history      *store.HistoryStore
	graph        *store.GraphStore // nil when no mirror is configured
	hub          *websocket.Hub
}

func NewAnalysisWorker(jobs *store.JobStore, orch *pipeline.Orchestrator, history *store.HistoryStore, graph *store.GraphStore, hub *websocket.Hub) *AnalysisWorker {
	return &AnalysisWorker{
		jobs:         jobs,
		orchestrator: orch,
		history:      history,
		graph:        graph,
		hub:          hub,
	}
}

// ProcessTask handles one analysis task from the queue.
func (w *AnalysisWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.AnalysisJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal task payload: %w", err)
	}

	job, err := w.jobs.Get(payload.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", payload.JobID, err)
	}
	if job.Status.Terminal() {
		// Redelivery of a finished job; nothing to do.
		return nil
	}

	log.Printf("Job %s: starting analysis on %s", job.ID, job.Filename)
	w.jobs.MarkProcessing(job.ID)
	w.hub.BroadcastStatus(job.ID, model.JobStatusProcessing)

	result, runErr := w.orchestrator.Run(ctx, pipeline.Input{
		AudioPath: job.InputPath,
		Filename:  job.Filename,
		Metadata:  job.Metadata,
	})

	// The sink owns the temp resource from here: it is deleted exactly
	// once, whatever persistence does.
	w.sink(ctx, job, result, runErr)

	if runErr != nil {
		log.Printf("Job %s: failed: %v", job.ID, runErr)
		w.jobs.MarkFailed(job.ID, runErr.Error())
		w.hub.BroadcastError(job.ID, "ANALYSIS_FAILED", runErr.Error())
		return runErr
	}

	w.jobs.MarkCompleted(job.ID, result)
	w.hub.BroadcastComplete(job.ID, result)
	log.Printf("Job %s: completed", job.ID)
	return nil
}

// sink persists the durable projection and the graph mirror. Neither write
// can fail the job; both are logged on error. The deferred remove is the
// single cleanup point for the temp input.
func (w *AnalysisWorker) sink(ctx context.Context, job *model.Job, result model.AnalysisResult, runErr error) {
	defer func() {
		if job.InputPath == "" {
			return
		}
		if err := os.Remove(job.InputPath); err != nil && !os.IsNotExist(err) {
			log.Printf("Job %s: temp cleanup failed for %s: %v", job.ID, job.InputPath, err)
		}
	}()

	if runErr != nil || result == nil {
		return
	}

	rec := buildRecord(job, result)
	if _, err := w.history.Insert(ctx, rec); err != nil {
		log.Printf("Job %s: history write failed: %v", job.ID, err)
	}

	if w.graph == nil {
		return
	}
	mirror := store.TrackMirror{
		TrackID:  job.ID,
		Title:    job.Filename,
		ArtistID: job.Metadata.ArtistID,
	}
	if res := result.Category(model.CategoryResonance); res != nil {
		mirror.Vibe, _ = res["vibe"].(string)
		mirror.Dissonance, _ = res["dissonance_score"].(float64)
	}
	if err := w.graph.MirrorTrack(ctx, mirror); err != nil {
		log.Printf("Job %s: graph mirror failed: %v", job.ID, err)
	}
}

// buildRecord derives the compact persisted projection from the full result.
func buildRecord(job *model.Job, result model.AnalysisResult) *model.PersistedRecord {
	raw, err := json.Marshal(result)
	if err != nil {
		// A result that cannot serialize still deserves a history row.
		raw = []byte("{}")
		log.Printf("Job %s: result serialization failed: %v", job.ID, err)
	}

	rec := &model.PersistedRecord{
		Filename:  job.Filename,
		Timestamp: time.Now(),
		Status:    "success",
		RawResult: string(raw),
		ArtistID:  job.Metadata.ArtistID,
		Markets:   strings.Join(job.Metadata.TargetMarkets, ","),
	}

	if creative := result.Category(model.CategoryCreative); creative != nil {
		if emb, ok := creative["embedding"].([]float64); ok && len(emb) > 0 {
			if data, err := json.Marshal(emb); err == nil {
				s := string(data)
				rec.EmbeddingJSON = &s
			}
		}
	}

	if res := result.Category(model.CategoryResonance); res != nil {
		if v, ok := res["dissonance_score"].(float64); ok {
			rec.DissonanceScore = &v
		}
		if v, ok := res["vibe"].(string); ok {
			rec.VibeDescriptor = &v
		}
		if v, ok := res["lyrical_sentiment"].(string); ok {
			rec.LyricalSentiment = &v
		}
	}
	return rec
}
