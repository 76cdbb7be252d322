package worker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/totalityengine/api/internal/client"
	"github.com/totalityengine/api/internal/config"
	"github.com/totalityengine/api/internal/model"
	"github.com/totalityengine/api/internal/pipeline"
	"github.com/totalityengine/api/internal/service"
	"github.com/totalityengine/api/internal/store"
	"github.com/totalityengine/api/internal/websocket"
)

type workerFixture struct {
	worker  *AnalysisWorker
	jobs    *store.JobStore
	history *store.HistoryStore
}

// newWorkerFixture wires a worker against unconfigured clients, so every
// inference call runs its deterministic fallback. No graph mirror.
func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	jobs := store.NewJobStore()
	history, err := store.OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	audio := client.NewAudioClient(&config.AudioConfig{})
	sentiment := client.NewSentimentClient(&config.SentimentConfig{})
	orch := pipeline.New(audio, sentiment, nil)

	hub := websocket.NewHub()
	go hub.Run()

	return &workerFixture{
		worker:  NewAnalysisWorker(jobs, orch, history, nil, hub),
		jobs:    jobs,
		history: history,
	}
}

func analysisTask(t *testing.T, jobID string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(model.AnalysisJobPayload{JobID: jobID})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(service.TaskTypeAnalysis, payload)
}

func writeTempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.mp3")
	data := make([]byte, 2048)
	for i := range data {
		data[i] = byte(i * 7 % 256)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp audio: %v", err)
	}
	return path
}

func TestProcessTaskCompletesJob(t *testing.T) {
	f := newWorkerFixture(t)
	audioPath := writeTempAudio(t)

	job := f.jobs.Create("track.mp3", audioPath, model.TrackMetadata{
		ArtistID:      "artist-7",
		Platform:      "TikTok",
		TargetMarkets: []string{"US", "CN"},
		Lyrics:        "sad dark night sad dark night",
	})

	if err := f.worker.ProcessTask(context.Background(), analysisTask(t, job.ID)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	got, _ := f.jobs.Get(job.ID)
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("job status = %s, want completed", got.Status)
	}
	if got.Result == nil {
		t.Fatal("completed job has no result")
	}

	// Every expected category is present and none carries an error.
	for _, cat := range []string{
		model.CategoryCreative, model.CategoryResonance, model.CategoryIndustry,
		model.CategoryPlatform, model.CategoryMarket, model.CategoryCulture,
		model.CategoryAudience,
	} {
		entry := got.Result.Category(cat)
		if entry == nil {
			t.Errorf("category %s missing from result", cat)
			continue
		}
		if msg, ok := entry["error"]; ok {
			t.Errorf("category %s failed: %v", cat, msg)
		}
	}

	res := got.Result.Category(model.CategoryResonance)
	if res["status"] != "success" {
		t.Errorf("resonance status = %v, want success", res["status"])
	}

	// CN is in the high-risk market set.
	risks, _ := got.Result.Category(model.CategoryMarket)["geopolitical_risks"].(map[string]string)
	if risks["CN"] == "" {
		t.Errorf("expected CN risk entry, got %v", risks)
	}

	// Temp input is gone after the sink.
	if _, err := os.Stat(audioPath); !os.IsNotExist(err) {
		t.Errorf("temp input not deleted: %v", err)
	}

	// Exactly one history row.
	entries, err := f.history.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Filename != "track.mp3" {
		t.Fatalf("expected one history row, got %+v", entries)
	}

	// The row carries the csv-joined markets.
	record, err := f.history.Get(context.Background(), entries[0].ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.Markets != "US,CN" {
		t.Errorf("persisted markets = %q, want %q", record.Markets, "US,CN")
	}
}

func TestProcessTaskWithoutLyricsSkipsResonance(t *testing.T) {
	f := newWorkerFixture(t)
	audioPath := writeTempAudio(t)

	job := f.jobs.Create("inst.wav", audioPath, model.TrackMetadata{ArtistID: "a"})

	if err := f.worker.ProcessTask(context.Background(), analysisTask(t, job.ID)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	got, _ := f.jobs.Get(job.ID)
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("job status = %s, want completed", got.Status)
	}

	res := got.Result.Category(model.CategoryResonance)
	if res["status"] != "skipped" || res["vibe"] != pipeline.VibeNeutral {
		t.Errorf("expected neutral skipped resonance, got %v", res)
	}

	// Missing optional inputs are skips, never errors.
	for cat, entry := range got.Result {
		if _, ok := entry["error"]; ok {
			t.Errorf("category %s carries error for missing optional input", cat)
		}
	}
}

func TestProcessTaskOrchestratorFailure(t *testing.T) {
	f := newWorkerFixture(t)

	// No input path: the orchestrator refuses to run.
	job := f.jobs.Create("ghost.mp3", "", model.TrackMetadata{})

	if err := f.worker.ProcessTask(context.Background(), analysisTask(t, job.ID)); err == nil {
		t.Fatal("expected error from ProcessTask")
	}

	got, _ := f.jobs.Get(job.ID)
	if got.Status != model.JobStatusFailed {
		t.Errorf("job status = %s, want failed", got.Status)
	}
	if got.Error == nil {
		t.Error("failed job has no error message")
	}

	// Nothing persisted for a failed run.
	entries, _ := f.history.Recent(context.Background(), 10)
	if len(entries) != 0 {
		t.Errorf("failed run should not write history, got %+v", entries)
	}
}

func TestProcessTaskHistoryFailureStillCompletes(t *testing.T) {
	f := newWorkerFixture(t)
	audioPath := writeTempAudio(t)

	job := f.jobs.Create("track.mp3", audioPath, model.TrackMetadata{
		ArtistID: "artist-9",
		Lyrics:   "happy happy joy",
	})

	// Kill the history store before the worker gets to persist, so the
	// insert errors out mid-sink.
	if err := f.history.Close(); err != nil {
		t.Fatalf("close history: %v", err)
	}

	if err := f.worker.ProcessTask(context.Background(), analysisTask(t, job.ID)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	got, _ := f.jobs.Get(job.ID)
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("job status = %s, want completed despite history failure", got.Status)
	}
	if got.Result == nil {
		t.Fatal("completed job has no result")
	}

	// Temp input cleanup runs exactly once, persistence failure or not.
	if _, err := os.Stat(audioPath); !os.IsNotExist(err) {
		t.Errorf("temp input still present after processing: %v", err)
	}
}

func TestProcessTaskRedelivery(t *testing.T) {
	f := newWorkerFixture(t)
	audioPath := writeTempAudio(t)

	job := f.jobs.Create("once.mp3", audioPath, model.TrackMetadata{})
	task := analysisTask(t, job.ID)

	if err := f.worker.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("first ProcessTask: %v", err)
	}
	// A redelivered task for a finished job is a no-op.
	if err := f.worker.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("redelivered ProcessTask: %v", err)
	}

	entries, _ := f.history.Recent(context.Background(), 10)
	if len(entries) != 1 {
		t.Errorf("redelivery duplicated history rows: %d", len(entries))
	}
}

func TestProcessTaskUnknownJob(t *testing.T) {
	f := newWorkerFixture(t)
	if err := f.worker.ProcessTask(context.Background(), analysisTask(t, "no-such-job")); err == nil {
		t.Fatal("expected error for unknown job")
	}
}
