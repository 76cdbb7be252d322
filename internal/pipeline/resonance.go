package pipeline

import "math"

// Vibe descriptors. The quadrant classification below is the only producer
// of these values.
const (
	VibeAlignedJoyful = "aligned joyful"
	VibeAlignedDark   = "aligned dark"
	VibeBittersweet   = "high-dissonance bittersweet"
	VibeAngsty        = "high-dissonance angsty"
	VibeNeutral       = "neutral/ambiguous"
)

// vibeThreshold is the magnitude a valence must clear on each axis before a
// quadrant counts as decisive.
const vibeThreshold = 0.3

// Embedding-norm squashing constants: a norm near embeddingNormCenter maps to
// an audio valence near zero.
const (
	embeddingNormCenter = 25.0
	embeddingNormScale  = 5.0
)

// LyricalValence converts a classifier outcome into a signed valence in
// [-1,1]: the positive-class probability with positive sign, or the
// negative-class probability negated.
func LyricalValence(label string, score float64) float64 {
	if label == "POSITIVE" {
		return clamp(score, 0, 1)
	}
	return -clamp(score, 0, 1)
}

// AudioValence maps an embedding's L2 norm through a centered sigmoid onto
// [-1,1]. High-energy embeddings (large norms) read as positive affect.
func AudioValence(embedding []float64) float64 {
	if len(embedding) == 0 {
		return 0
	}
	var sumsq float64
	for _, v := range embedding {
		sumsq += v * v
	}
	norm := math.Sqrt(sumsq)
	squashed := 1.0 / (1.0 + math.Exp(-(norm-embeddingNormCenter)/embeddingNormScale))
	return (squashed - 0.5) * 2.0
}

// DissonanceScore measures cross-modal divergence, normalized to [0,1].
func DissonanceScore(lyricalValence, audioValence float64) float64 {
	return math.Min(math.Abs(lyricalValence-audioValence)/2.0, 1.0)
}

// VibeDescriptor classifies the (lyrical, audio) valence pair into one of
// five fixed descriptors. Pure and deterministic: same inputs, same label.
func VibeDescriptor(lyricalValence, audioValence float64) string {
	switch {
	case lyricalValence > vibeThreshold && audioValence > vibeThreshold:
		return VibeAlignedJoyful
	case lyricalValence < -vibeThreshold && audioValence < -vibeThreshold:
		return VibeAlignedDark
	case lyricalValence > vibeThreshold && audioValence < -vibeThreshold:
		return VibeBittersweet
	case lyricalValence < -vibeThreshold && audioValence > vibeThreshold:
		return VibeAngsty
	default:
		return VibeNeutral
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
