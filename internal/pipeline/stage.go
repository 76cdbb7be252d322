package pipeline

import (
	"context"

	"github.com/totalityengine/api/internal/model"
)

// Input is everything a stage may read for one job. Stages must treat it as
// read-only; they never see each other's outputs.
type Input struct {
	AudioPath string
	Filename  string
	Metadata  model.TrackMetadata
}

// Stage is one independently invocable analysis unit. Runnable implements
// the optional-input skip policy: a stage whose required metadata is absent
// is skipped, which is distinct from a stage that ran and failed.
type Stage interface {
	Name() string
	Category() string
	Runnable(in Input) bool
	Run(ctx context.Context, in Input) (map[string]any, error)
}

// CentralitySource resolves an artist's network centrality. The graph store
// implements it; a nil source reads as an empty graph.
type CentralitySource interface {
	ArtistCentrality(ctx context.Context, artistID string) (float64, error)
}

// Stage names used by the dependent resonance computation.
const (
	stageListening = "listening"
	stageLyrical   = "lyrical"
)
