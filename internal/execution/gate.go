package execution

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"polyarb-go/internal/metrics"
	"polyarb-go/internal/risk"
	"polyarb-go/internal/signal"
)

// QtyDecimals is the precision sell quantities are rounded to before submission.
const QtyDecimals = 6

// State is the gate's trading eligibility.
type State string

const (
	Eligible State = "ELIGIBLE"
	Cooldown State = "COOLDOWN"
)

// Outcome reasons recorded on every considered signal.
const (
	ReasonNotArbitrage  = "signal_not_arbitrage"
	ReasonCooldown      = "cooldown"
	ReasonInvalidSide   = "invalid_best_side"
	ReasonInvalidSpot   = "invalid_spot_price"
	ReasonNoPosition    = "no_position_for_down_signal"
	ReasonQtyTooSmall   = "qty_too_small"
	ReasonNotionalLimit = "notional_limit"
	ReasonSubmitted     = "submitted"
	ReasonSubmitFailed  = "submit_failed"
)

// TradeOutcome describes what the gate did with one signal.
type TradeOutcome struct {
	Enabled             bool    `json:"enabled"`
	Executed            bool    `json:"executed"`
	Reason              string  `json:"reason"`
	Side                Side    `json:"side,omitempty"`
	Symbol              string  `json:"symbol,omitempty"`
	NotionalUSD         float64 `json:"notional_usd"`
	SellQty             float64 `json:"sell_qty,omitempty"`
	OrderID             string  `json:"order_id,omitempty"`
	Status              string  `json:"status,omitempty"`
	FilledQty           float64 `json:"filled_qty,omitempty"`
	FilledPrice         float64 `json:"filled_price,omitempty"`
	FillEstimated       bool    `json:"fill_estimated,omitempty"`
	CooldownLeftSeconds float64 `json:"cooldown_left_seconds,omitempty"`
	Error               string  `json:"error,omitempty"`
}

// GateConfig sizes and throttles auto trades.
type GateConfig struct {
	Symbol   string
	Notional float64
	Cooldown time.Duration
	Limits   risk.Limits
}

// Gate submits at most one order per cooldown window. It is meant to be driven from a single
// goroutine and holds no lock.
type Gate struct {
	broker  Broker
	cfg     GateConfig
	log     zerolog.Logger
	now     func() time.Time
	last    time.Time
	hasLast bool
}

// NewGate wraps broker with cooldown and sizing rules.
func NewGate(broker Broker, cfg GateConfig, log zerolog.Logger) *Gate {
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	return &Gate{broker: broker, cfg: cfg, log: log, now: time.Now}
}

// WithClock replaces the wall clock (tests).
func (g *Gate) WithClock(now func() time.Time) *Gate {
	if now != nil {
		g.now = now
	}
	return g
}

// State reports whether a trade submitted at now would be allowed.
func (g *Gate) State(now time.Time) State {
	if g.CooldownLeft(now) > 0 {
		return Cooldown
	}
	return Eligible
}

// CooldownLeft is the remaining wait before the next trade; zero when eligible.
func (g *Gate) CooldownLeft(now time.Time) time.Duration {
	if !g.hasLast {
		return 0
	}
	left := g.cfg.Cooldown - now.Sub(g.last)
	if left < 0 {
		return 0
	}
	return left
}

// LastTrade returns the instant of the last successful submission.
func (g *Gate) LastTrade() (time.Time, bool) { return g.last, g.hasLast }

// Consider acts on sig. It never returns an error; failures are reported in the outcome.
func (g *Gate) Consider(ctx context.Context, sig signal.Signal, spot float64) TradeOutcome {
	out := g.consider(ctx, sig, spot)
	side := string(out.Side)
	if side == "" {
		side = "none"
	}
	metrics.OrdersTotal.WithLabelValues(side, out.Reason).Inc()
	return out
}

func (g *Gate) consider(ctx context.Context, sig signal.Signal, spot float64) TradeOutcome {
	now := g.now()
	out := TradeOutcome{
		Enabled:     true,
		Reason:      ReasonNotArbitrage,
		Symbol:      g.cfg.Symbol,
		NotionalUSD: g.cfg.Notional,
	}
	if !sig.Actionable() {
		return out
	}

	if left := g.CooldownLeft(now); left > 0 {
		out.Reason = ReasonCooldown
		out.CooldownLeftSeconds = left.Seconds()
		g.log.Debug().Float64("cooldown_left_seconds", out.CooldownLeftSeconds).Msg("auto trade suppressed by cooldown")
		return out
	}

	var order Order
	switch sig.BestSide {
	case signal.Up:
		if !g.cfg.Limits.Allow(g.cfg.Notional) {
			out.Reason = ReasonNotionalLimit
			return out
		}
		order = Order{Symbol: g.cfg.Symbol, Side: Buy, Notional: g.cfg.Notional}

	case signal.Down:
		if spot <= 0 || math.IsNaN(spot) || math.IsInf(spot, 0) {
			out.Reason = ReasonInvalidSpot
			return out
		}
		position, err := g.broker.PositionQty(ctx, g.cfg.Symbol)
		if err != nil {
			out.Reason = ReasonSubmitFailed
			out.Error = err.Error()
			g.log.Warn().Err(err).Str("symbol", g.cfg.Symbol).Msg("position lookup failed")
			return out
		}
		if position <= 0 {
			out.Reason = ReasonNoPosition
			return out
		}
		qty, _ := decimal.NewFromFloat(math.Min(position, g.cfg.Notional/spot)).Round(QtyDecimals).Float64()
		if qty <= 0 {
			out.Reason = ReasonQtyTooSmall
			return out
		}
		if !g.cfg.Limits.Allow(qty * spot) {
			out.Reason = ReasonNotionalLimit
			return out
		}
		order = Order{Symbol: g.cfg.Symbol, Side: Sell, Qty: qty}
		out.SellQty = qty

	default:
		out.Reason = ReasonInvalidSide
		return out
	}

	order.ClientOrderID = uuid.New().String()
	ack, err := g.broker.SubmitMarketOrder(ctx, order)
	if err != nil {
		out.Reason = ReasonSubmitFailed
		out.Error = err.Error()
		g.log.Error().Err(err).Str("side", string(order.Side)).Msg("auto trade submit failed")
		return out
	}

	g.last = now
	g.hasLast = true
	out.Executed = true
	out.Side = order.Side
	out.OrderID = ack.ID
	out.Status = ack.Status
	out.Reason = ReasonSubmitted
	out.FilledQty, out.FilledPrice, out.FillEstimated = fillOf(ack, order, spot)
	g.log.Info().
		Str("order_id", ack.ID).
		Str("side", string(order.Side)).
		Float64("notional", order.Notional).
		Float64("qty", order.Qty).
		Float64("edge", sig.BestEdge).
		Float64("filled_qty", out.FilledQty).
		Float64("filled_price", out.FilledPrice).
		Bool("fill_estimated", out.FillEstimated).
		Msg("auto trade submitted")
	return out
}

// fillOf reports the broker's fill, or estimates one at spot when the order is still open.
func fillOf(ack OrderAck, order Order, spot float64) (qty, price float64, estimated bool) {
	if ack.FilledQty > 0 && ack.FilledPrice > 0 {
		return ack.FilledQty, ack.FilledPrice, false
	}
	if spot <= 0 || math.IsNaN(spot) || math.IsInf(spot, 0) {
		return 0, 0, false
	}
	qty = order.Qty
	if order.Notional > 0 {
		qty, _ = decimal.NewFromFloat(order.Notional / spot).Round(QtyDecimals).Float64()
	}
	return qty, spot, true
}
