package monitor

import (
	"time"

	"polyarb-go/internal/execution"
	"polyarb-go/internal/signal"
)

// SignalError marks a round that failed for a reason other than missing data or history.
const SignalError = "ERROR"

// PollRecord is one persisted line of the monitor journal.
type PollRecord struct {
	Timestamp      string                  `json:"timestamp_utc"`
	Round          int                     `json:"round"`
	Signal         string                  `json:"signal"`
	BestSide       signal.Side             `json:"best_side,omitempty"`
	BestEdge       float64                 `json:"best_edge"`
	FeeRate        float64                 `json:"fee_rate"`
	Reason         string                  `json:"reason,omitempty"`
	Mode           signal.Mode             `json:"strategy_mode,omitempty"`
	MarketQuestion string                  `json:"pm_market_question,omitempty"`
	MarketSlug     string                  `json:"pm_market_slug,omitempty"`
	EventSlug      string                  `json:"pm_event_slug,omitempty"`
	PMUp           float64                 `json:"pm_up_prob,omitempty"`
	PMDown         float64                 `json:"pm_down_prob,omitempty"`
	PMNormalized   *bool                   `json:"quote_normalized,omitempty"`
	ModelUp        *float64                `json:"model_up_prob,omitempty"`
	ModelDown      *float64                `json:"model_down_prob,omitempty"`
	Confidence     float64                 `json:"confidence,omitempty"`
	MaxProbability float64                 `json:"max_probability,omitempty"`
	BucketHit      *bool                   `json:"bucket_hit,omitempty"`
	ModelMeta      *signal.Meta            `json:"model_meta,omitempty"`
	Symbol         string                  `json:"alpaca_symbol,omitempty"`
	Spot           float64                 `json:"alpaca_spot_price,omitempty"`
	SpotSource     string                  `json:"spot_source,omitempty"`
	Paper          bool                    `json:"paper"`
	AutoTrade      *execution.TradeOutcome `json:"auto_trade,omitempty"`
	Error          string                  `json:"error,omitempty"`
	LatencyMS      int64                   `json:"latency_ms"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func (r *PollRecord) applyQuote(q signal.MarketQuote) {
	r.MarketQuestion = q.Question
	r.MarketSlug = q.Slug
	r.EventSlug = q.EventSlug
	r.PMUp = q.Up
	r.PMDown = q.Down
	normalized := q.Normalized()
	r.PMNormalized = &normalized
}

func (r *PollRecord) applyEstimate(est signal.Estimate) {
	r.Mode = est.Mode
	r.Confidence = est.Confidence
	r.MaxProbability = est.MaxProbability
	switch est.Mode {
	case signal.ModeModelEdge:
		up, down := est.ModelUp, est.ModelDown()
		r.ModelUp = &up
		r.ModelDown = &down
		r.ModelMeta = est.Meta
	case signal.ModeBucketFollow:
		hit := est.BucketHit
		r.BucketHit = &hit
	}
}

func (r *PollRecord) applySignal(sig signal.Signal) {
	r.Signal = string(sig.Kind)
	r.BestSide = sig.BestSide
	r.BestEdge = sig.BestEdge
	r.FeeRate = sig.FeeRate
	if sig.Reason != "" {
		r.Reason = sig.Reason
	}
}
