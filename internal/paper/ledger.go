package paper

import (
	"sync"

	"polyarb-go/internal/execution"
)

// FillRecorder captures paper fills for later inspection.
type FillRecorder interface {
	Record(execution.Fill)
}

// Ledger stores paper fills in memory.
type Ledger struct {
	mu    sync.Mutex
	fills []execution.Fill
}

// NewLedger creates an empty ledger, pre-sizing storage.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{fills: make([]execution.Fill, 0, capacity)}
}

// Record appends a fill.
func (l *Ledger) Record(fill execution.Fill) {
	l.mu.Lock()
	l.fills = append(l.fills, fill)
	l.mu.Unlock()
}

// Snapshot returns a copy of the recorded fills.
func (l *Ledger) Snapshot() []execution.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]execution.Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// Totals sums USD notional bought and sold.
func (l *Ledger) Totals() (bought, sold float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range l.fills {
		switch f.Side {
		case execution.Buy:
			bought += f.Notional
		case execution.Sell:
			sold += f.Notional
		}
	}
	return bought, sold
}

type appender interface {
	Append(v any) error
}

type appendRecorder struct {
	sink  appender
	onErr func(error)
}

func (r appendRecorder) Record(fill execution.Fill) {
	if err := r.sink.Append(fill); err != nil && r.onErr != nil {
		r.onErr(err)
	}
}

// RecordTo adapts an append-only JSON sink (such as a journal.Writer) into a FillRecorder.
// onErr may be nil.
func RecordTo(sink appender, onErr func(error)) FillRecorder {
	return appendRecorder{sink: sink, onErr: onErr}
}
