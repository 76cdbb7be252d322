package pipeline

import (
	"context"
	"strings"

	"github.com/totalityengine/api/internal/client"
)

// Reference launch-window series used for the elasticity estimate until real
// per-track metrics land: short-video views vs streaming plays.
var (
	referenceShortVideoSeries = []float64{100, 500, 2000, 10000}
	referenceStreamingSeries  = []float64{50, 100, 300, 1200}
)

// viralityStage estimates cross-platform elasticity and emits per-platform
// release recommendations derived from the track's signal features.
type viralityStage struct {
	audio client.AudioAnalyzer
}

func (s *viralityStage) Name() string        { return "virality" }
func (s *viralityStage) Category() string    { return "platform" }
func (s *viralityStage) Runnable(Input) bool { return true }

func (s *viralityStage) Run(ctx context.Context, in Input) (map[string]any, error) {
	f, err := s.audio.Features(ctx, in.AudioPath)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"viral_elasticity": elasticity(referenceShortVideoSeries, referenceStreamingSeries),
		"optimizations":    optimizations(f, in.Metadata.Platform),
	}, nil
}

// elasticity is the mean percent change of the streaming series over the
// mean percent change of the short-video series.
func elasticity(shortVideo, streaming []float64) float64 {
	driver := meanPctChange(shortVideo)
	if driver == 0 {
		return 0
	}
	return meanPctChange(streaming) / driver
}

func meanPctChange(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	var sum float64
	var n int
	for i := 1; i < len(series); i++ {
		if series[i-1] == 0 {
			continue
		}
		sum += (series[i] - series[i-1]) / series[i-1]
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func optimizations(f *client.FeaturesResponse, platform string) []string {
	recs := []string{}
	switch strings.ToLower(platform) {
	case "spotify":
		if f.DurationMs > 210000 {
			recs = append(recs, "Consider a 'Radio Edit' under 3:00 to increase replay ratio.")
		}
		if f.IsMuddyMix {
			recs = append(recs, "Transients read as smeared. A brighter master reduces skip risk on editorial playlists.")
		}
	case "tiktok":
		if f.SpectralFluxVariance < 2.0 {
			recs = append(recs, "Lack of distinct 'drop' or 'hook' moment. Create a remix with higher onset strength variance.")
		}
		if f.Tempo < 110 {
			recs = append(recs, "Tempo is low. Release a 'Sped Up' version (+15-20%) for higher energy.")
		}
	}
	return recs
}
