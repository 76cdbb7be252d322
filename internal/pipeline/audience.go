package pipeline

import (
	"context"

	"github.com/totalityengine/api/internal/client"
)

// hookEfficacyThreshold splits High from Low burstiness predictions.
const hookEfficacyThreshold = 3.0

// neuroStage predicts hook efficacy from the opening seconds' spectral
// burstiness.
type neuroStage struct {
	audio client.AudioAnalyzer
}

func (s *neuroStage) Name() string        { return "neuro" }
func (s *neuroStage) Category() string    { return "audience" }
func (s *neuroStage) Runnable(Input) bool { return true }

func (s *neuroStage) Run(ctx context.Context, in Input) (map[string]any, error) {
	f, err := s.audio.Features(ctx, in.AudioPath)
	if err != nil {
		return nil, err
	}

	prediction := "Low"
	if f.HookBurstiness > hookEfficacyThreshold {
		prediction = "High"
	}
	return map[string]any{
		"spectral_burstiness":      f.HookBurstiness,
		"hook_efficacy_prediction": prediction,
	}, nil
}
