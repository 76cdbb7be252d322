package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/totalityengine/api/internal/client"
	"github.com/totalityengine/api/internal/model"
)

// Orchestrator runs the full stage set for one job and merges the outputs
// into a namespaced AnalysisResult. One stage failing never discards the
// others' results: the failure is recorded under that stage's category and
// the remaining stages are unaffected.
//
// The orchestrator and the clients it holds are built once at startup and
// shared read-only across all workers.
type Orchestrator struct {
	stages []Stage // registration order fixes merge precedence
}

// New builds the stage registry. The set is resolved here, at construction
// time; nothing selects stages by name at run time.
func New(audio client.AudioAnalyzer, sentiment client.SentimentAnalyzer, graph CentralitySource) *Orchestrator {
	return &Orchestrator{
		stages: []Stage{
			&listeningStage{audio: audio},
			&signalStage{audio: audio},
			&harmonicStage{audio: audio},
			&lyricalStage{sentiment: sentiment},
			&centralityStage{graph: graph},
			&viralityStage{audio: audio},
			&riskStage{},
			&distanceStage{},
			&neuroStage{audio: audio},
		},
	}
}

// Run executes all runnable stages concurrently, merges their outputs by
// category, then computes the dependent resonance values. It returns an
// error only for an orchestrator-level failure; per-stage failures are
// embedded in the result.
func (o *Orchestrator) Run(ctx context.Context, in Input) (model.AnalysisResult, error) {
	if in.AudioPath == "" {
		return nil, fmt.Errorf("orchestrator: no input resource for %q", in.Filename)
	}

	outcomes := make([]model.StageOutcome, len(o.stages))

	var wg sync.WaitGroup
	for i, stage := range o.stages {
		if !stage.Runnable(in) {
			outcomes[i] = model.StageOutcome{
				Stage:    stage.Name(),
				Category: stage.Category(),
				Skipped:  true,
			}
			continue
		}

		wg.Add(1)
		go func(i int, stage Stage) {
			defer wg.Done()
			outcomes[i] = invoke(ctx, stage, in)
		}(i, stage)
	}
	wg.Wait()

	// Merge in registration order so the last-write-wins policy is
	// deterministic regardless of stage completion order.
	result := model.AnalysisResult{}
	for _, outcome := range outcomes {
		mergeOutcome(result, outcome)
	}

	result[model.CategoryResonance] = resonance(outcomes)

	return result, nil
}

// invoke runs a single stage, converting panics and errors into a failed
// outcome so no stage can take the job down.
func invoke(ctx context.Context, stage Stage, in Input) (outcome model.StageOutcome) {
	outcome = model.StageOutcome{
		Stage:    stage.Name(),
		Category: stage.Category(),
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Stage %s panicked: %v", stage.Name(), r)
			outcome.Payload = nil
			outcome.Err = fmt.Sprintf("stage panic: %v", r)
		}
	}()

	payload, err := stage.Run(ctx, in)
	if err != nil {
		log.Printf("Stage %s failed: %v", stage.Name(), err)
		outcome.Err = err.Error()
		return outcome
	}
	outcome.Payload = payload
	return outcome
}

// mergeOutcome folds one outcome into the result. Skipped stages leave no
// trace; failed stages leave an error marker under their category; keys
// within a category merge flatly, later writes winning.
func mergeOutcome(result model.AnalysisResult, outcome model.StageOutcome) {
	if outcome.Skipped {
		return
	}

	category := result[outcome.Category]
	if category == nil {
		category = map[string]any{}
		result[outcome.Category] = category
	}

	if outcome.Failed() {
		category["error"] = outcome.Err
		return
	}
	for k, v := range outcome.Payload {
		category[k] = v
	}
}

// resonance computes the dependent cross-modal values. It only runs on
// non-error prerequisite outcomes; a missing, skipped, or failed
// prerequisite yields the neutral default instead of a guess from partial
// inputs.
func resonance(outcomes []model.StageOutcome) map[string]any {
	var lyrical, listening *model.StageOutcome
	for i := range outcomes {
		switch outcomes[i].Stage {
		case stageLyrical:
			lyrical = &outcomes[i]
		case stageListening:
			listening = &outcomes[i]
		}
	}

	if lyrical == nil || listening == nil ||
		lyrical.Skipped || listening.Skipped ||
		lyrical.Failed() || listening.Failed() {
		return map[string]any{
			"dissonance_score":  0.0,
			"vibe":              VibeNeutral,
			"lyrical_sentiment": "unknown",
			"status":            "skipped",
		}
	}

	label, _ := lyrical.Payload["sentiment"].(string)
	score, _ := lyrical.Payload["sentiment_score"].(float64)
	embedding, _ := listening.Payload["embedding"].([]float64)

	lyricalValence := LyricalValence(label, score)
	audioValence := AudioValence(embedding)

	return map[string]any{
		"dissonance_score":  DissonanceScore(lyricalValence, audioValence),
		"vibe":              VibeDescriptor(lyricalValence, audioValence),
		"lyrical_valence":   lyricalValence,
		"audio_valence":     audioValence,
		"lyrical_sentiment": label,
		"status":            "success",
	}
}
