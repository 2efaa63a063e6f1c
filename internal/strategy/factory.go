package strategy

import (
	"fmt"
	"strings"

	"polyarb-go/internal/signal"
)

// Strategy turns one poll's market quote and spot bars into an edge estimate.
// Implementations are pure and never perform I/O.
type Strategy interface {
	Estimate(q signal.MarketQuote, bars []signal.PriceBar) (signal.Estimate, error)
	Mode() signal.Mode
	Name() string
}

// Params expresses tunable knobs required by strategy constructors.
type Params struct {
	Neighbors int
	Horizon   int
	MinBars   int
	ConfMin   float64
	ConfMax   float64
	ProbMin   float64
	ProbMax   float64
}

// Build returns a strategy implementation matching the configured mode.
func Build(mode string, params Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", string(signal.ModeModelEdge), "model", "knn":
		return NewModelEdge(params.Neighbors, params.Horizon, params.MinBars), nil
	case string(signal.ModeBucketFollow), "bucket":
		return NewBucketFollow(
			Range{Min: params.ConfMin, Max: params.ConfMax},
			Range{Min: params.ProbMin, Max: params.ProbMax},
		), nil
	default:
		return nil, fmt.Errorf("unknown strategy mode %q", mode)
	}
}
