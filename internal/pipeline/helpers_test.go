package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/totalityengine/api/internal/client"
	"github.com/totalityengine/api/internal/config"
)

// writeTempAudio drops a small fake audio file into a test temp dir.
func writeTempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.mp3")
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp audio: %v", err)
	}
	return path
}

// newFallbackOrchestrator builds the production stage registry on top of
// unconfigured clients, so every inference call takes the deterministic
// fallback path. No graph source: centrality reads as 0.
func newFallbackOrchestrator() *Orchestrator {
	audio := client.NewAudioClient(&config.AudioConfig{})
	sentiment := client.NewSentimentClient(&config.SentimentConfig{})
	return New(audio, sentiment, nil)
}
