// Package paper simulates the Alpaca broker locally so auto-trading can run without live orders.
package paper

import (
	"errors"
	"fmt"
	"sync"

	"polyarb-go/internal/execution"
)

var (
	ErrInsufficientCash     = errors.New("insufficient cash for buy")
	ErrInsufficientPosition = errors.New("insufficient position to sell")
	ErrPositionLimit        = errors.New("position limit exceeded")
)

const epsilon = 1e-9

type positionState struct {
	Qty     float64
	AvgCost float64
}

// Account tracks virtual USD cash, realized PnL and per-symbol crypto positions.
type Account struct {
	mu                   sync.Mutex
	startingCash         float64
	cash                 float64
	realizedPnL          float64
	maxPositionPerSymbol float64
	positions            map[string]positionState
}

// PositionSnapshot is a read-only view of one position.
type PositionSnapshot struct {
	Qty         float64 `json:"qty"`
	AvgCost     float64 `json:"avg_cost"`
	MarketValue float64 `json:"market_value"`
	Unrealized  float64 `json:"unrealized"`
}

// Snapshot is a copy of the account, optionally marked to market.
type Snapshot struct {
	Cash        float64                     `json:"cash"`
	RealizedPnL float64                     `json:"realized_pnl"`
	Equity      float64                     `json:"equity"`
	Positions   map[string]PositionSnapshot `json:"positions"`
}

// NewAccount starts with startingCash; maxPositionPerSymbol of zero disables the cap.
func NewAccount(startingCash, maxPositionPerSymbol float64) *Account {
	return &Account{
		startingCash:         startingCash,
		cash:                 startingCash,
		maxPositionPerSymbol: maxPositionPerSymbol,
		positions:            make(map[string]positionState),
	}
}

// StartingCash returns the initial bankroll.
func (a *Account) StartingCash() float64 { return a.startingCash }

// MarketFill executes qty at price, mutating balances if the fill is allowed.
func (a *Account) MarketFill(symbol string, side execution.Side, qty, price float64) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive, got %v", qty)
	}
	if price <= 0 {
		return fmt.Errorf("price must be positive, got %v", price)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.positions[symbol]
	notional := qty * price

	switch side {
	case execution.Buy:
		if notional > a.cash+epsilon {
			return fmt.Errorf("%w: need %.2f have %.2f", ErrInsufficientCash, notional, a.cash)
		}
		newQty := state.Qty + qty
		if a.maxPositionPerSymbol > 0 && newQty > a.maxPositionPerSymbol+epsilon {
			return fmt.Errorf("%w: %s %.6f > %.6f", ErrPositionLimit, symbol, newQty, a.maxPositionPerSymbol)
		}
		a.cash -= notional
		a.positions[symbol] = positionState{
			Qty:     newQty,
			AvgCost: ((state.AvgCost * state.Qty) + notional) / newQty,
		}

	case execution.Sell:
		if state.Qty <= 0 || state.Qty+epsilon < qty {
			return fmt.Errorf("%w: %s have %.6f want %.6f", ErrInsufficientPosition, symbol, state.Qty, qty)
		}
		a.realizedPnL += (price - state.AvgCost) * qty
		a.cash += notional
		if rest := state.Qty - qty; rest <= epsilon {
			delete(a.positions, symbol)
		} else {
			a.positions[symbol] = positionState{Qty: rest, AvgCost: state.AvgCost}
		}

	default:
		return fmt.Errorf("unknown order side %q", side)
	}
	return nil
}

// Snapshot copies balances, marking positions with prices when present.
func (a *Account) Snapshot(prices map[string]float64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]PositionSnapshot, len(a.positions))
	equity := a.cash
	for sym, pos := range a.positions {
		snap := PositionSnapshot{Qty: pos.Qty, AvgCost: pos.AvgCost}
		if mark := prices[sym]; mark > 0 {
			snap.MarketValue = pos.Qty * mark
			snap.Unrealized = (mark - pos.AvgCost) * pos.Qty
		}
		positions[sym] = snap
		equity += snap.MarketValue
	}

	return Snapshot{
		Cash:        a.cash,
		RealizedPnL: a.realizedPnL,
		Equity:      equity,
		Positions:   positions,
	}
}

// AvailableCash reports free cash.
func (a *Account) AvailableCash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

// Position returns the held quantity for symbol.
func (a *Account) Position(symbol string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positions[symbol].Qty
}

// Seed sets an opening position, e.g. to let DOWN signals sell in a fresh paper session.
func (a *Account) Seed(symbol string, qty, avgCost float64) {
	if qty <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions[symbol] = positionState{Qty: qty, AvgCost: avgCost}
}

// RealizedPnL returns total closed-trade profit and loss.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}
