package pipeline

import "context"

// centralityStage looks the artist up in the industry graph. An artist the
// graph has never seen, or a missing graph connection, scores 0.0 rather
// than failing the stage.
type centralityStage struct {
	graph CentralitySource
}

func (s *centralityStage) Name() string        { return "centrality" }
func (s *centralityStage) Category() string    { return "industry" }
func (s *centralityStage) Runnable(Input) bool { return true }

func (s *centralityStage) Run(ctx context.Context, in Input) (map[string]any, error) {
	centrality := 0.0
	if s.graph != nil {
		score, err := s.graph.ArtistCentrality(ctx, in.Metadata.ArtistID)
		if err != nil {
			return nil, err
		}
		centrality = score
	}
	return map[string]any{
		"artist_centrality": centrality,
	}, nil
}
