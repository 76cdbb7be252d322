package pipeline

import "context"

var highRiskMarkets = map[string]string{
	"CN": "High Geopolitical Volatility",
	"RU": "High Geopolitical Volatility",
	"IR": "High Geopolitical Volatility",
	"KP": "High Geopolitical Volatility",
}

// riskStage flags geopolitical exposure per target market. Skipped when the
// request names no markets.
type riskStage struct{}

func (s *riskStage) Name() string     { return "risk" }
func (s *riskStage) Category() string { return "market" }

func (s *riskStage) Runnable(in Input) bool {
	return len(in.Metadata.TargetMarkets) > 0
}

func (s *riskStage) Run(ctx context.Context, in Input) (map[string]any, error) {
	risks := map[string]string{}
	for _, market := range in.Metadata.TargetMarkets {
		if label, ok := highRiskMarkets[market]; ok {
			risks[market] = label
		}
	}
	return map[string]any{
		"geopolitical_risks": risks,
	}, nil
}
