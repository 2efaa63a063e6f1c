// Package exchange hosts the market data connectors: Polymarket Gamma quotes, Alpaca bars
// and the optional Alpaca spot trade stream.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"polyarb-go/internal/metrics"
	"polyarb-go/internal/signal"
)

// QuoteSource yields the current prediction market quote.
type QuoteSource interface {
	FetchQuote(ctx context.Context) (signal.MarketQuote, error)
}

// BarSource yields ascending minute bars.
type BarSource interface {
	Bars(ctx context.Context, limit int) ([]signal.PriceBar, error)
}

// SpotSource yields a cached spot price when one is fresh enough.
type SpotSource interface {
	Latest(maxAge time.Duration) (float64, bool)
}

const (
	SpotFromBars   = "bars"
	SpotFromStream = "stream"
)

// Snapshot is everything one poll round needs from the outside world.
type Snapshot struct {
	Quote      signal.MarketQuote
	Bars       []signal.PriceBar
	Spot       float64
	SpotSource string
}

// Fetcher gathers a quote and a bar window, one source after the other.
type Fetcher struct {
	quotes     QuoteSource
	bars       BarSource
	spot       SpotSource
	barLimit   int
	spotMaxAge time.Duration
	log        zerolog.Logger
}

// NewFetcher wires the sources. spot may be nil, in which case the last bar close is the spot.
func NewFetcher(quotes QuoteSource, bars BarSource, spot SpotSource, barLimit int, log zerolog.Logger) *Fetcher {
	if barLimit <= 0 {
		barLimit = 300
	}
	return &Fetcher{
		quotes:     quotes,
		bars:       bars,
		spot:       spot,
		barLimit:   barLimit,
		spotMaxAge: 2 * time.Minute,
		log:        log,
	}
}

// Fetch returns a snapshot or an error wrapping signal.ErrDataUnavailable.
func (f *Fetcher) Fetch(ctx context.Context) (Snapshot, error) {
	quote, err := f.quotes.FetchQuote(ctx)
	if err != nil {
		metrics.FetchErrors.WithLabelValues("polymarket").Inc()
		return Snapshot{}, wrapUnavailable("polymarket quote", err)
	}

	if !quote.Normalized() {
		f.log.Warn().
			Float64("up", quote.Up).
			Float64("down", quote.Down).
			Float64("sum", quote.Up+quote.Down).
			Str("slug", quote.Slug).
			Msg("market quote does not sum to 1")
	}

	bars, err := f.bars.Bars(ctx, f.barLimit)
	if err != nil {
		metrics.FetchErrors.WithLabelValues("alpaca").Inc()
		return Snapshot{}, wrapUnavailable("alpaca bars", err)
	}
	if len(bars) == 0 {
		metrics.FetchErrors.WithLabelValues("alpaca").Inc()
		return Snapshot{}, fmt.Errorf("%w: alpaca bars: empty window", signal.ErrDataUnavailable)
	}

	snap := Snapshot{
		Quote:      quote,
		Bars:       bars,
		Spot:       bars[len(bars)-1].Close,
		SpotSource: SpotFromBars,
	}
	if f.spot != nil {
		if px, ok := f.spot.Latest(f.spotMaxAge); ok {
			snap.Spot = px
			snap.SpotSource = SpotFromStream
		}
	}
	f.log.Debug().
		Float64("up", quote.Up).
		Float64("down", quote.Down).
		Int("bars", len(bars)).
		Float64("spot", snap.Spot).
		Str("spot_source", snap.SpotSource).
		Msg("fetched snapshot")
	return snap, nil
}

func wrapUnavailable(what string, err error) error {
	if errors.Is(err, signal.ErrDataUnavailable) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%w: %s: %w", signal.ErrDataUnavailable, what, err)
}
