package paper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"polyarb-go/internal/exchange"
	"polyarb-go/internal/execution"
)

// ErrNoMark means no spot price has been supplied for the symbol yet.
var ErrNoMark = errors.New("no mark price")

// Broker fills market orders against an Account at the latest mark price.
type Broker struct {
	account   *Account
	ledger    *Ledger
	recorders []FillRecorder
	log       zerolog.Logger
	now       func() time.Time

	mu    sync.RWMutex
	marks map[string]float64
}

// NewBroker builds a paper broker around account. Every fill goes to the in-memory ledger and
// then to each recorder.
func NewBroker(account *Account, log zerolog.Logger, recorders ...FillRecorder) *Broker {
	return &Broker{
		account:   account,
		ledger:    NewLedger(64),
		recorders: recorders,
		log:       log,
		now:       time.Now,
		marks:     make(map[string]float64),
	}
}

// Mark records the latest price for symbol.
func (b *Broker) Mark(symbol string, px float64) {
	if px <= 0 {
		return
	}
	b.mu.Lock()
	b.marks[exchange.TradingSymbol(symbol)] = px
	b.mu.Unlock()
}

func (b *Broker) mark(symbol string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	px, ok := b.marks[symbol]
	return px, ok && px > 0
}

// Account exposes the underlying paper account.
func (b *Broker) Account() *Account { return b.account }

// Ledger exposes the in-memory fill history.
func (b *Broker) Ledger() *Ledger { return b.ledger }

// SubmitMarketOrder fills immediately at the mark. Notional orders are converted to quantity.
func (b *Broker) SubmitMarketOrder(_ context.Context, order execution.Order) (execution.OrderAck, error) {
	sym := exchange.TradingSymbol(order.Symbol)
	px, ok := b.mark(sym)
	if !ok {
		return execution.OrderAck{}, fmt.Errorf("%w: %w for %s", execution.ErrRejected, ErrNoMark, sym)
	}
	qty := order.Qty
	if order.Notional > 0 {
		qty = order.Notional / px
	}
	if err := b.account.MarketFill(sym, order.Side, qty, px); err != nil {
		return execution.OrderAck{}, fmt.Errorf("%w: %w", execution.ErrRejected, err)
	}

	fill := execution.Fill{
		OrderID:       uuid.New().String(),
		ClientOrderID: order.ClientOrderID,
		Symbol:        sym,
		Side:          order.Side,
		Qty:           qty,
		Price:         px,
		Notional:      qty * px,
		Ts:            b.now().UTC(),
	}
	b.ledger.Record(fill)
	for _, r := range b.recorders {
		r.Record(fill)
	}
	b.log.Info().
		Str("order_id", fill.OrderID).
		Str("symbol", sym).
		Str("side", string(fill.Side)).
		Float64("qty", qty).
		Float64("px", px).
		Float64("cash", b.account.AvailableCash()).
		Msg("paper fill")

	return execution.OrderAck{
		ID:            fill.OrderID,
		ClientOrderID: fill.ClientOrderID,
		Status:        "filled",
		FilledQty:     qty,
		FilledPrice:   px,
	}, nil
}

// PositionQty returns the paper position for symbol.
func (b *Broker) PositionQty(_ context.Context, symbol string) (float64, error) {
	return b.account.Position(exchange.TradingSymbol(symbol)), nil
}
