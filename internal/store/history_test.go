package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/totalityengine/api/internal/model"
)

func openTestHistory(t *testing.T) *HistoryStore {
	t.Helper()
	s, err := OpenHistory(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHistoryInsertAndGet(t *testing.T) {
	s := openTestHistory(t)
	ctx := context.Background()

	diss := 0.42
	vibe := "high-dissonance bittersweet"
	sentiment := "POSITIVE"
	emb := "[1.5,2.5]"

	id, err := s.Insert(ctx, &model.PersistedRecord{
		Filename:         "song.mp3",
		Timestamp:        time.Now(),
		Status:           "success",
		RawResult:        `{"creative":{"tempo":120}}`,
		EmbeddingJSON:    &emb,
		DissonanceScore:  &diss,
		VibeDescriptor:   &vibe,
		LyricalSentiment: &sentiment,
		ArtistID:         "artist-9",
		Markets:          "US,JP",
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id == 0 {
		t.Fatal("Insert returned zero row id")
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Filename != "song.mp3" || rec.ArtistID != "artist-9" || rec.Markets != "US,JP" {
		t.Errorf("record mismatch: %+v", rec)
	}
	if rec.DissonanceScore == nil || *rec.DissonanceScore != diss {
		t.Errorf("dissonance score mismatch: %v", rec.DissonanceScore)
	}
	if rec.VibeDescriptor == nil || *rec.VibeDescriptor != vibe {
		t.Errorf("vibe mismatch: %v", rec.VibeDescriptor)
	}
}

func TestHistoryInsertNullableFieldsOmitted(t *testing.T) {
	s := openTestHistory(t)
	ctx := context.Background()

	// A run whose resonance was skipped persists without the derived fields.
	id, err := s.Insert(ctx, &model.PersistedRecord{
		Filename:  "instrumental.wav",
		Timestamp: time.Now(),
		Status:    "success",
		RawResult: `{}`,
		ArtistID:  "unknown",
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.DissonanceScore != nil || rec.VibeDescriptor != nil || rec.LyricalSentiment != nil {
		t.Errorf("expected nil derived fields, got %+v", rec)
	}
}

func TestHistoryRecentOrderingAndLimit(t *testing.T) {
	s := openTestHistory(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err := s.Insert(ctx, &model.PersistedRecord{
			Filename:  fmt.Sprintf("t%d.mp3", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Status:    "success",
			RawResult: "{}",
			ArtistID:  "a",
		})
		if err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	entries, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Recent(3) returned %d entries", len(entries))
	}
	if entries[0].Filename != "t4.mp3" {
		t.Errorf("newest entry first expected t4.mp3, got %s", entries[0].Filename)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.After(entries[i-1].Timestamp) {
			t.Error("Recent not ordered newest first")
		}
	}

	// Zero limit falls back to the default page size.
	all, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent(0): %v", err)
	}
	if len(all) != 5 {
		t.Errorf("Recent(0) returned %d entries, want 5", len(all))
	}
}

func TestHistorySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reopen.db")
	ctx := context.Background()

	s, err := OpenHistory(path)
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	if _, err := s.Insert(ctx, &model.PersistedRecord{
		Filename:  "persisted.mp3",
		Timestamp: time.Now(),
		Status:    "success",
		RawResult: "{}",
		ArtistID:  "a",
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	s.Close()

	reopened, err := OpenHistory(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent after reopen: %v", err)
	}
	if len(entries) != 1 || entries[0].Filename != "persisted.mp3" {
		t.Errorf("record lost across reopen: %+v", entries)
	}
}
