// Package execution turns evaluator signals into broker orders behind a cooldown gate.
package execution

import (
	"context"
	"errors"
	"time"
)

// Side enumerates order directions, spelled the way the Alpaca API expects them.
type Side string

const (
	// Buy opens or adds to a long.
	Buy Side = "buy"
	// Sell reduces an existing long.
	Sell Side = "sell"
)

// ErrRejected marks an order the broker refused (as opposed to a transport failure).
var ErrRejected = errors.New("order rejected")

// Order is a market order request. Exactly one of Notional or Qty is set.
type Order struct {
	Symbol        string  `json:"symbol"`
	Side          Side    `json:"side"`
	Notional      float64 `json:"notional,omitempty"`
	Qty           float64 `json:"qty,omitempty"`
	ClientOrderID string  `json:"client_order_id"`
}

// OrderAck is the broker's acknowledgement of a submitted order.
type OrderAck struct {
	ID            string  `json:"id"`
	ClientOrderID string  `json:"client_order_id"`
	Status        string  `json:"status"`
	FilledQty     float64 `json:"filled_qty,omitempty"`
	FilledPrice   float64 `json:"filled_avg_price,omitempty"`
}

// Fill is an executed order as recorded by the paper broker.
type Fill struct {
	OrderID       string    `json:"order_id"`
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Qty           float64   `json:"qty"`
	Price         float64   `json:"price"`
	Notional      float64   `json:"notional"`
	Ts            time.Time `json:"ts"`
}

// Broker is the execution venue the gate submits to.
type Broker interface {
	SubmitMarketOrder(ctx context.Context, order Order) (OrderAck, error)
	PositionQty(ctx context.Context, symbol string) (float64, error)
}
