package pipeline

import (
	"context"
	"math"
)

// Market centroids over [acousticness, energy, valence].
var marketCentroids = map[string][3]float64{
	"TW": {0.7, 0.4, 0.5},
	"JP": {0.2, 0.9, 0.8},
	"US": {0.3, 0.7, 0.6},
	"BR": {0.4, 0.8, 0.9},
}

// distanceStage measures how far the track sits from each target market's
// sonic norm. Skipped without target markets.
type distanceStage struct{}

func (s *distanceStage) Name() string     { return "distance" }
func (s *distanceStage) Category() string { return "culture" }

func (s *distanceStage) Runnable(in Input) bool {
	return len(in.Metadata.TargetMarkets) > 0
}

func (s *distanceStage) Run(ctx context.Context, in Input) (map[string]any, error) {
	// Until a trained feature regression lands, the track sits at the
	// centroid of the feature space.
	trackVector := [3]float64{0.5, 0.5, 0.5}

	distances := map[string]map[string]any{}
	for _, market := range in.Metadata.TargetMarkets {
		d := culturalDistance(trackVector, market)
		distances[market] = map[string]any{
			"score":          d,
			"interpretation": interpretDistance(d),
		}
	}
	return map[string]any{
		"distances": distances,
	}, nil
}

// culturalDistance is the euclidean distance from the market centroid.
// Unknown markets score 0.
func culturalDistance(track [3]float64, market string) float64 {
	centroid, ok := marketCentroids[market]
	if !ok {
		return 0
	}
	var sumsq float64
	for i := range track {
		d := track[i] - centroid[i]
		sumsq += d * d
	}
	return math.Sqrt(sumsq)
}

func interpretDistance(d float64) string {
	switch {
	case d < 0.2:
		return "Low Distance (Safe/Generic)"
	case d < 0.5:
		return "Moderate Distance (Sweet Spot)"
	default:
		return "High Distance (Outlier/Risk)"
	}
}
