package strategy

import (
	"errors"
	"testing"
	"time"

	"polyarb-go/internal/signal"
)

func makeBars(n int, next func(i int) float64) []signal.PriceBar {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]signal.PriceBar, n)
	for i := range bars {
		px := next(i)
		bars[i] = signal.PriceBar{Ts: start.Add(time.Duration(i) * time.Minute), Open: px, High: px, Low: px, Close: px, Volume: 1}
	}
	return bars
}

func TestModelEdgeRisingSeriesClampsHigh(t *testing.T) {
	strat := NewModelEdge(80, 5, 300)
	bars := makeBars(300, func(i int) float64 { return 100 + float64(i)*0.1 })

	est, err := strat.Estimate(signal.NewQuote(0.5, 0.5, time.Now()), bars)
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}
	if est.ModelUp != 0.99 {
		t.Fatalf("expected clamp at 0.99, got %.4f", est.ModelUp)
	}
	if est.Meta == nil || est.Meta.SampleCount != 290 {
		t.Fatalf("unexpected meta %+v", est.Meta)
	}
	if est.Meta.UncondUp != 1 {
		t.Fatalf("expected unconditional up rate 1, got %.2f", est.Meta.UncondUp)
	}
}

func TestModelEdgeFallingSeriesClampsLow(t *testing.T) {
	strat := NewModelEdge(80, 5, 300)
	bars := makeBars(300, func(i int) float64 { return 200 - float64(i)*0.1 })

	est, err := strat.Estimate(signal.NewQuote(0.5, 0.5, time.Now()), bars)
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}
	if est.ModelUp != 0.01 {
		t.Fatalf("expected clamp at 0.01, got %.4f", est.ModelUp)
	}
	if est.ModelDown() != 0.99 {
		t.Fatalf("unexpected model down %.4f", est.ModelDown())
	}
}

func TestModelEdgeInsufficientHistory(t *testing.T) {
	strat := NewModelEdge(80, 5, 300)
	bars := makeBars(50, func(i int) float64 { return 100 })

	_, err := strat.Estimate(signal.NewQuote(0.5, 0.5, time.Now()), bars)
	if !errors.Is(err, signal.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestModelEdgeTooFewSamples(t *testing.T) {
	strat := NewModelEdge(80, 5, 30)
	bars := makeBars(40, func(i int) float64 { return 100 + float64(i) })

	_, err := strat.Estimate(signal.NewQuote(0.5, 0.5, time.Now()), bars)
	if !errors.Is(err, signal.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory for thin sample, got %v", err)
	}
}

func TestModelEdgeDeterministic(t *testing.T) {
	strat := NewModelEdge(40, 5, 120)
	bars := makeBars(200, func(i int) float64 {
		// saw-tooth keeps both outcomes present
		return 100 + float64(i%7) - float64(i%3)*0.5
	})
	quote := signal.NewQuote(0.48, 0.52, time.Now())

	first, err := strat.Estimate(quote, bars)
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}
	second, err := strat.Estimate(quote, bars)
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}
	if first.ModelUp != second.ModelUp {
		t.Fatalf("expected identical estimates, got %.6f and %.6f", first.ModelUp, second.ModelUp)
	}
	if first.ModelUp < 0.01 || first.ModelUp > 0.99 {
		t.Fatalf("estimate out of bounds %.4f", first.ModelUp)
	}
	if first.MaxProbability != 0.52 {
		t.Fatalf("expected quote max probability carried, got %.2f", first.MaxProbability)
	}
}
