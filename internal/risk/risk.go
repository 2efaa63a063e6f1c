// Package risk holds pre-trade limits applied by the auto-trade gate.
package risk

// Limits caps exposure per order. Zero values disable the corresponding check.
type Limits struct {
	MaxNotionalPerTrade float64
}

// Allow reports whether an order of the given USD notional fits the per-trade cap.
func (l Limits) Allow(notional float64) bool {
	if notional < 0 {
		return false
	}
	if l.MaxNotionalPerTrade <= 0 {
		return true
	}
	return notional <= l.MaxNotionalPerTrade
}
