// Package signal standardizes payloads shared between the market data, strategy, and execution layers.
package signal

import (
	"errors"
	"math"
	"time"
)

// QuoteTolerance bounds how far Up+Down may drift from 1 before a quote is considered
// non-normalized (bid/ask spread, stale outcome prices).
const QuoteTolerance = 0.05

var (
	// ErrDataUnavailable reports that a feed returned no usable quote or bars.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrInsufficientHistory reports that the bar window is too short to estimate from.
	ErrInsufficientHistory = errors.New("insufficient history")
)

// MarketQuote is the prediction market's implied probability for each outcome.
type MarketQuote struct {
	Up        float64   `json:"up"`
	Down      float64   `json:"down"`
	Question  string    `json:"question,omitempty"`
	Slug      string    `json:"slug,omitempty"`
	EventSlug string    `json:"event_slug,omitempty"`
	Ts        time.Time `json:"ts"`
}

// NewQuote clamps both probabilities into [0,1].
func NewQuote(up, down float64, ts time.Time) MarketQuote {
	return MarketQuote{Up: clamp01(up), Down: clamp01(down), Ts: ts}
}

// Normalized reports whether Up+Down is within QuoteTolerance of 1.
func (q MarketQuote) Normalized() bool {
	return math.Abs(q.Up+q.Down-1) <= QuoteTolerance
}

// Confidence is the absolute gap between the two outcome probabilities.
func (q MarketQuote) Confidence() float64 { return math.Abs(q.Up - q.Down) }

// MaxProbability is the larger of the two outcome probabilities.
func (q MarketQuote) MaxProbability() float64 { return math.Max(q.Up, q.Down) }

// Favored returns the outcome the market prices higher; ties favor UP.
func (q MarketQuote) Favored() Side {
	if q.Down > q.Up {
		return Down
	}
	return Up
}

// PriceBar is one OHLCV bar from the spot feed.
type PriceBar struct {
	Ts     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Closes extracts close prices in bar order.
func Closes(bars []PriceBar) []float64 {
	out := make([]float64, 0, len(bars))
	for _, b := range bars {
		out = append(out, b.Close)
	}
	return out
}

// Mode names an estimation strategy.
type Mode string

const (
	ModeBucketFollow Mode = "bucket_follow"
	ModeModelEdge    Mode = "model_edge"
)

// Meta carries diagnostics from the nearest-neighbour model.
type Meta struct {
	SampleCount   int     `json:"sample_count"`
	CurrentReturn float64 `json:"current_ret"`
	UncondUp      float64 `json:"uncond_up_prob"`
}

// Estimate is the per-poll output of a strategy.
type Estimate struct {
	Mode           Mode    `json:"mode"`
	ModelUp        float64 `json:"model_up_prob,omitempty"`
	Confidence     float64 `json:"confidence"`
	MaxProbability float64 `json:"max_probability"`
	BucketHit      bool    `json:"bucket_hit,omitempty"`
	Meta           *Meta   `json:"model_meta,omitempty"`
}

// ModelDown is the complement of ModelUp.
func (e Estimate) ModelDown() float64 { return 1 - e.ModelUp }

// Kind classifies a signal.
type Kind string

const (
	Arbitrage Kind = "ARBITRAGE"
	NoEdge    Kind = "NO_EDGE"
)

// Side is the outcome a signal favors.
type Side string

const (
	Up   Side = "UP"
	Down Side = "DOWN"
)

// Signal is the evaluator's verdict for one poll. It is never mutated after creation.
type Signal struct {
	Kind     Kind    `json:"signal"`
	BestSide Side    `json:"best_side"`
	BestEdge float64 `json:"best_edge"`
	FeeRate  float64 `json:"fee_rate"`
	Reason   string  `json:"reason,omitempty"`
}

// Actionable reports whether the signal asks for a trade.
func (s Signal) Actionable() bool { return s.Kind == Arbitrage }

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
