package strategy

import (
	"fmt"
	"math"
	"sort"

	"polyarb-go/internal/signal"
)

const (
	minSamples   = 50
	minNeighbors = 10
	condWeight   = 0.7
	probFloor    = 0.01
	probCeil     = 0.99
)

// ModelEdge estimates the probability that price is higher `horizon` bars from now using a
// nearest-neighbour lookup over the trailing window: each historical bar contributes its
// horizon return as the feature and whether the following horizon closed higher as the target.
type ModelEdge struct {
	neighbors int
	horizon   int
	minBars   int
}

type sample struct {
	feature float64
	up      bool
}

// NewModelEdge builds the estimator; non-positive knobs fall back to 80 neighbours, a 5 bar
// horizon, and a 300 bar minimum window.
func NewModelEdge(neighbors, horizon, minBars int) *ModelEdge {
	if neighbors <= 0 {
		neighbors = 80
	}
	if horizon <= 0 {
		horizon = 5
	}
	if minBars <= 0 {
		minBars = 300
	}
	return &ModelEdge{neighbors: neighbors, horizon: horizon, minBars: minBars}
}

// Name returns the identifier for logging.
func (m *ModelEdge) Name() string { return "ModelEdge" }

// Mode reports model_edge.
func (m *ModelEdge) Mode() signal.Mode { return signal.ModeModelEdge }

// Estimate returns ErrInsufficientHistory rather than estimating from an undersized window.
func (m *ModelEdge) Estimate(q signal.MarketQuote, bars []signal.PriceBar) (signal.Estimate, error) {
	if len(bars) < m.minBars {
		return signal.Estimate{}, fmt.Errorf("%w: have %d bars, need %d", signal.ErrInsufficientHistory, len(bars), m.minBars)
	}
	closes := signal.Closes(bars)
	samples := m.samples(closes)
	if len(samples) < minSamples {
		return signal.Estimate{}, fmt.Errorf("%w: %d usable samples, need %d", signal.ErrInsufficientHistory, len(samples), minSamples)
	}

	last := len(closes) - 1
	anchor := closes[last-m.horizon]
	if anchor <= 0 || closes[last] <= 0 {
		return signal.Estimate{}, fmt.Errorf("%w: non-positive close in latest window", signal.ErrDataUnavailable)
	}
	current := closes[last]/anchor - 1

	up, uncond := m.predict(samples, current)
	return signal.Estimate{
		Mode:           signal.ModeModelEdge,
		ModelUp:        up,
		Confidence:     q.Confidence(),
		MaxProbability: q.MaxProbability(),
		Meta: &signal.Meta{
			SampleCount:   len(samples),
			CurrentReturn: current,
			UncondUp:      uncond,
		},
	}, nil
}

func (m *ModelEdge) samples(closes []float64) []sample {
	h := m.horizon
	out := make([]sample, 0, len(closes))
	for t := h; t < len(closes)-h; t++ {
		prev, cur, next := closes[t-h], closes[t], closes[t+h]
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, sample{feature: cur/prev - 1, up: next/cur-1 > 0})
	}
	return out
}

// predict blends the neighbour frequency with the unconditional frequency to damp noise.
func (m *ModelEdge) predict(samples []sample, current float64) (float64, float64) {
	ranked := make([]sample, len(samples))
	copy(ranked, samples)
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].feature-current) < math.Abs(ranked[j].feature-current)
	})

	k := m.neighbors
	if k > len(ranked) {
		k = len(ranked)
	}
	if k < minNeighbors {
		k = minNeighbors
	}
	cond := upRate(ranked[:k])
	uncond := upRate(samples)
	blended := condWeight*cond + (1-condWeight)*uncond
	return clamp(blended, probFloor, probCeil), uncond
}

func upRate(samples []sample) float64 {
	if len(samples) == 0 {
		return 0.5
	}
	ups := 0
	for _, s := range samples {
		if s.up {
			ups++
		}
	}
	return float64(ups) / float64(len(samples))
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
