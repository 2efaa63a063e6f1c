// Package monitor drives the poll loop: fetch, estimate, evaluate, optionally trade, persist.
package monitor

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"polyarb-go/internal/evaluator"
	"polyarb-go/internal/exchange"
	"polyarb-go/internal/execution"
	"polyarb-go/internal/metrics"
	"polyarb-go/internal/pidfile"
	"polyarb-go/internal/signal"
	"polyarb-go/internal/strategy"
)

// State is the loop lifecycle.
type State string

const (
	Idle     State = "IDLE"
	Running  State = "RUNNING"
	Stopping State = "STOPPING"
	Stopped  State = "STOPPED"
)

// Fetcher yields the per-round market snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (exchange.Snapshot, error)
}

// Sink persists records (journal.Writer).
type Sink interface {
	Append(v any) error
}

// Publisher fans records out (bus.Publisher).
type Publisher interface {
	Publish(ctx context.Context, v any) error
}

// Marker receives the round's spot price (paper.Broker).
type Marker interface {
	Mark(symbol string, px float64)
}

// Options are the loop parameters.
type Options struct {
	Interval     time.Duration
	Polls        int
	FeeRate      float64
	Symbol       string
	Paper        bool
	JSON         bool
	PIDFile      string
	RoundTimeout time.Duration
}

// Option configures optional collaborators.
type Option func(*Monitor)

// WithGate enables auto-trading through gate.
func WithGate(gate *execution.Gate) Option { return func(m *Monitor) { m.gate = gate } }

// WithJournal persists every record to sink.
func WithJournal(sink Sink) Option { return func(m *Monitor) { m.journal = sink } }

// WithPublisher fans every record out to pub.
func WithPublisher(pub Publisher) Option { return func(m *Monitor) { m.publisher = pub } }

// WithMarker forwards each round's spot price.
func WithMarker(marker Marker) Option { return func(m *Monitor) { m.marker = marker } }

// WithOutput sets where rendered rounds go; ERROR rounds in human mode go to errOut.
func WithOutput(out, errOut io.Writer) Option {
	return func(m *Monitor) {
		m.out = out
		m.errOut = errOut
	}
}

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// Monitor runs poll rounds strictly one after another on the calling goroutine.
type Monitor struct {
	fetcher   Fetcher
	strat     strategy.Strategy
	gate      *execution.Gate
	journal   Sink
	publisher Publisher
	marker    Marker
	out       io.Writer
	errOut    io.Writer
	opts      Options
	log       zerolog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	state  State
	rounds int
}

// New builds a monitor. Output defaults to stdout/stderr.
func New(fetcher Fetcher, strat strategy.Strategy, opts Options, log zerolog.Logger, options ...Option) *Monitor {
	if opts.RoundTimeout <= 0 {
		opts.RoundTimeout = 60 * time.Second
	}
	m := &Monitor{
		fetcher: fetcher,
		strat:   strat,
		opts:    opts,
		log:     log,
		out:     os.Stdout,
		errOut:  os.Stderr,
		now:     time.Now,
		state:   Idle,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// State reports the lifecycle state; safe to call from other goroutines.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Rounds is the number of completed rounds.
func (m *Monitor) Rounds() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rounds
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	if prev != s {
		m.log.Info().Str("from", string(prev)).Str("to", string(s)).Msg("monitor state")
	}
}

// Run loops until Polls rounds complete, ctx is canceled or a stop sentinel appears. Stop
// requests are honored between rounds; a round in progress always finishes and is persisted.
func (m *Monitor) Run(ctx context.Context) error {
	m.setState(Running)
	defer m.setState(Stopped)

	m.log.Info().
		Dur("interval", m.opts.Interval).
		Int("polls", m.opts.Polls).
		Float64("fee_rate", m.opts.FeeRate).
		Str("mode", string(m.strat.Mode())).
		Bool("auto_trade", m.gate != nil).
		Msg("monitor started")

	for round := 1; ; round++ {
		if m.stopRequested(ctx) {
			break
		}
		start := m.now()
		// Detached so a shutdown signal does not abort the round midway.
		roundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.RoundTimeout)
		m.Round(roundCtx, round)
		cancel()

		if m.opts.Polls > 0 && round >= m.opts.Polls {
			break
		}
		if !m.sleepUntil(ctx, start.Add(m.opts.Interval)) {
			break
		}
	}

	m.log.Info().Int("rounds", m.Rounds()).Msg("monitor stopped")
	return nil
}

func (m *Monitor) stopRequested(ctx context.Context) bool {
	reason := ""
	switch {
	case ctx.Err() != nil:
		reason = "signal"
	case pidfile.StopRequested(m.opts.PIDFile):
		reason = "stop_file"
	default:
		return false
	}
	m.setState(Stopping)
	m.log.Info().Str("reason", reason).Msg("stop requested")
	return true
}

const stopPollInterval = 250 * time.Millisecond

// sleepUntil waits for deadline and returns false if a stop was requested meanwhile. An
// overdue deadline returns immediately.
func (m *Monitor) sleepUntil(ctx context.Context, deadline time.Time) bool {
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return !m.stopRequested(ctx)
		}
		step := left
		if m.opts.PIDFile != "" && step > stopPollInterval {
			step = stopPollInterval
		}
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.stopRequested(ctx)
			return false
		case <-timer.C:
		}
		if pidfile.StopRequested(m.opts.PIDFile) {
			m.stopRequested(ctx)
			return false
		}
	}
}

// Round executes one poll and returns the persisted record.
func (m *Monitor) Round(ctx context.Context, round int) PollRecord {
	started := time.Now()
	rec := m.evaluate(ctx, round)
	if m.gate != nil && rec.Signal != SignalError {
		sig := signal.Signal{
			Kind:     signal.Kind(rec.Signal),
			BestSide: rec.BestSide,
			BestEdge: rec.BestEdge,
			FeeRate:  rec.FeeRate,
		}
		outcome := m.gate.Consider(ctx, sig, rec.Spot)
		rec.AutoTrade = &outcome
	}
	elapsed := time.Since(started)
	rec.LatencyMS = elapsed.Milliseconds()

	m.observe(rec, elapsed)
	m.persist(ctx, rec)

	m.mu.Lock()
	m.rounds++
	m.mu.Unlock()
	return rec
}

func (m *Monitor) evaluate(ctx context.Context, round int) PollRecord {
	rec := PollRecord{
		Timestamp: formatTimestamp(m.now()),
		Round:     round,
		FeeRate:   m.opts.FeeRate,
		Symbol:    m.opts.Symbol,
		Paper:     m.opts.Paper,
		Mode:      m.strat.Mode(),
	}

	snap, err := m.fetcher.Fetch(ctx)
	if err != nil {
		return m.failed(rec, signal.MarketQuote{}, err)
	}
	rec.applyQuote(snap.Quote)
	rec.Spot = snap.Spot
	rec.SpotSource = snap.SpotSource
	if m.marker != nil {
		m.marker.Mark(m.opts.Symbol, snap.Spot)
	}

	est, err := m.strat.Estimate(snap.Quote, snap.Bars)
	if err != nil {
		return m.failed(rec, snap.Quote, err)
	}
	rec.applyEstimate(est)
	rec.applySignal(evaluator.Evaluate(est, snap.Quote, m.opts.FeeRate))
	return rec
}

// failed turns a round error into a NO_EDGE row for missing data or history and an ERROR row
// for anything else.
func (m *Monitor) failed(rec PollRecord, q signal.MarketQuote, err error) PollRecord {
	rec.Error = err.Error()
	switch {
	case errors.Is(err, signal.ErrInsufficientHistory):
		rec.applySignal(evaluator.NoEdge(q, m.opts.FeeRate, "insufficient_history"))
		m.log.Warn().Err(err).Int("round", rec.Round).Msg("insufficient history")
	case errors.Is(err, signal.ErrDataUnavailable):
		rec.applySignal(evaluator.NoEdge(q, m.opts.FeeRate, "data_unavailable"))
		m.log.Warn().Err(err).Int("round", rec.Round).Msg("market data unavailable")
	default:
		rec.Signal = SignalError
		rec.BestSide = ""
		m.log.Error().Err(err).Int("round", rec.Round).Msg("round failed")
	}
	return rec
}

func (m *Monitor) observe(rec PollRecord, elapsed time.Duration) {
	metrics.PollLatency.Observe(elapsed.Seconds())
	result := "ok"
	switch {
	case rec.Signal == SignalError:
		result = "error"
	case rec.Error != "":
		result = "no_data"
	}
	metrics.PollsTotal.WithLabelValues(result).Inc()
	if rec.Signal == SignalError {
		return
	}
	metrics.SignalsTotal.WithLabelValues(rec.Signal, string(rec.BestSide)).Inc()
	metrics.BestEdge.Set(rec.BestEdge)
	if rec.PMUp > 0 {
		metrics.Probability.WithLabelValues("market").Set(rec.PMUp)
	}
	if rec.ModelUp != nil {
		metrics.Probability.WithLabelValues("model").Set(*rec.ModelUp)
	}
	if rec.Spot > 0 {
		metrics.SpotPrice.Set(rec.Spot)
	}
}

func (m *Monitor) persist(ctx context.Context, rec PollRecord) {
	if m.journal != nil {
		if err := m.journal.Append(rec); err != nil {
			m.log.Error().Err(err).Int("round", rec.Round).Msg("journal append failed")
		}
	}
	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, rec); err != nil {
			m.log.Warn().Err(err).Int("round", rec.Round).Msg("record publish failed")
		}
	}

	var err error
	switch {
	case m.opts.JSON:
		err = renderJSON(m.out, rec)
	case rec.Signal == SignalError:
		err = renderHuman(m.errOut, rec)
	default:
		err = renderHuman(m.out, rec)
	}
	if err != nil {
		m.log.Debug().Err(err).Msg("render failed")
	}
}
