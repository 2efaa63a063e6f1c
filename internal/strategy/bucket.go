// Package strategy contains the edge estimators the poll loop can run.
package strategy

import (
	"polyarb-go/internal/signal"
)

// Range is a half-open interval [Min, Max).
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v falls inside the range.
func (r Range) Contains(v float64) bool { return v >= r.Min && v < r.Max }

// BucketFollow classifies the market quote into backtested confidence/probability buckets.
// It uses no model; a hit requires both ranges to match at once.
type BucketFollow struct {
	confidence  Range
	probability Range
}

// NewBucketFollow builds the bucket classifier; zero ranges fall back to the backtested defaults.
func NewBucketFollow(confidence, probability Range) *BucketFollow {
	if confidence.Max <= confidence.Min {
		confidence = Range{Min: 0.01, Max: 0.02}
	}
	if probability.Max <= probability.Min {
		probability = Range{Min: 0.505, Max: 0.510}
	}
	return &BucketFollow{confidence: confidence, probability: probability}
}

// Name returns the identifier for the strategy implementation.
func (s *BucketFollow) Name() string { return "BucketFollow" }

// Mode reports bucket_follow.
func (s *BucketFollow) Mode() signal.Mode { return signal.ModeBucketFollow }

// Estimate ignores bars; everything is derived from the quote.
func (s *BucketFollow) Estimate(q signal.MarketQuote, _ []signal.PriceBar) (signal.Estimate, error) {
	return s.classify(q.Confidence(), q.MaxProbability()), nil
}

func (s *BucketFollow) classify(confidence, maxProbability float64) signal.Estimate {
	return signal.Estimate{
		Mode:           signal.ModeBucketFollow,
		Confidence:     confidence,
		MaxProbability: maxProbability,
		BucketHit:      s.confidence.Contains(confidence) && s.probability.Contains(maxProbability),
	}
}
