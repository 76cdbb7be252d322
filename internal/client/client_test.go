package client

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/totalityengine/api/internal/config"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestAudioFallbackDeterministic(t *testing.T) {
	c := NewAudioClient(&config.AudioConfig{})
	if c.IsConfigured() {
		t.Fatal("client without service URL should be unconfigured")
	}

	data := []byte("the same audio bytes every time")
	path := writeFile(t, "a.mp3", data)

	first, err := c.Embed(context.Background(), path)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(first.Embedding) == 0 {
		t.Fatal("fallback embedding is empty")
	}

	// Same bytes under a different name yield the same embedding.
	other := writeFile(t, "b.mp3", data)
	second, err := c.Embed(context.Background(), other)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(first.Embedding) != len(second.Embedding) {
		t.Fatalf("embedding lengths differ: %d vs %d", len(first.Embedding), len(second.Embedding))
	}
	for i := range first.Embedding {
		if first.Embedding[i] != second.Embedding[i] {
			t.Fatalf("embedding not content-derived at index %d", i)
		}
	}

	// Different bytes shift the embedding.
	changed := writeFile(t, "c.mp3", []byte("completely different audio bytes"))
	third, _ := c.Embed(context.Background(), changed)
	same := true
	for i := range first.Embedding {
		if first.Embedding[i] != third.Embedding[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct content produced identical embeddings")
	}
}

func TestAudioFallbackFeatureRanges(t *testing.T) {
	c := NewAudioClient(&config.AudioConfig{})
	path := writeFile(t, "d.mp3", make([]byte, 10_000))

	f, err := c.Features(context.Background(), path)
	if err != nil {
		t.Fatalf("Features: %v", err)
	}
	if f.Tempo < 80 || f.Tempo > 180 {
		t.Errorf("tempo %v outside [80,180]", f.Tempo)
	}
	if f.DurationMs <= 0 {
		t.Errorf("duration %d not positive", f.DurationMs)
	}
	if math.IsNaN(f.SpectralFluxMean) || math.IsNaN(f.SpectralFluxVariance) {
		t.Error("flux features are NaN")
	}
}

func TestAudioFallbackMissingFile(t *testing.T) {
	c := NewAudioClient(&config.AudioConfig{})
	if _, err := c.Embed(context.Background(), "/does/not/exist.mp3"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSentimentFallback(t *testing.T) {
	c := NewSentimentClient(&config.SentimentConfig{})
	if c.IsConfigured() {
		t.Fatal("client without service URL should be unconfigured")
	}

	tests := []struct {
		name  string
		text  string
		label string
	}{
		{"clearly positive", "happy joyful love shine bright", "POSITIVE"},
		{"clearly negative", "sad dark broken alone cold", "NEGATIVE"},
		{"no hits is neutral positive", "quantum flux capacitor", "POSITIVE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.Classify(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if resp.Label != tt.label {
				t.Errorf("label = %s, want %s", resp.Label, tt.label)
			}
			if resp.Score < 0.5 || resp.Score > 1.0 {
				t.Errorf("score %v outside [0.5,1]", resp.Score)
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"short text untouched", "hello", 10, "hello"},
		{"ascii cut at limit", "abcdef", 3, "abc"},
		{"multibyte kept whole", "aaŞŞŞ", 4, "aaŞŞ"},
		{"exactly at limit", "café", 4, "café"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateRunes(tt.text, tt.max)
			if got != tt.want {
				t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncation produced invalid utf-8: %q", got)
			}
		})
	}
}
