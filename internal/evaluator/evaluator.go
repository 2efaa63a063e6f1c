// Package evaluator turns an edge estimate into an ARBITRAGE or NO_EDGE signal.
package evaluator

import (
	"fmt"

	"polyarb-go/internal/signal"
)

type rule func(est signal.Estimate, q signal.MarketQuote, feeRate float64) signal.Signal

var rules = map[signal.Mode]rule{
	signal.ModeBucketFollow: bucketRule,
	signal.ModeModelEdge:    edgeRule,
}

// Evaluate is a pure function of its inputs: the same estimate, quote, and fee rate always
// produce the same signal.
func Evaluate(est signal.Estimate, q signal.MarketQuote, feeRate float64) signal.Signal {
	r, ok := rules[est.Mode]
	if !ok {
		return NoEdge(q, feeRate, fmt.Sprintf("unknown estimate mode %q", est.Mode))
	}
	return r(est, q, feeRate)
}

// NoEdge builds the signal used when a round cannot be evaluated.
func NoEdge(q signal.MarketQuote, feeRate float64, reason string) signal.Signal {
	return signal.Signal{Kind: signal.NoEdge, BestSide: q.Favored(), FeeRate: feeRate, Reason: reason}
}

func bucketRule(est signal.Estimate, q signal.MarketQuote, feeRate float64) signal.Signal {
	out := signal.Signal{
		Kind:     signal.NoEdge,
		BestSide: q.Favored(),
		BestEdge: est.Confidence,
		FeeRate:  feeRate,
		Reason:   "bucket_miss",
	}
	if est.BucketHit {
		out.Kind = signal.Arbitrage
		out.Reason = "bucket_hit"
	}
	return out
}

// edgeRule compares each side's model probability with the market price. Equality with the
// fee rate is not enough; the edge has to strictly exceed it.
func edgeRule(est signal.Estimate, q signal.MarketQuote, feeRate float64) signal.Signal {
	edgeUp := est.ModelUp - q.Up
	edgeDown := est.ModelDown() - q.Down

	out := signal.Signal{Kind: signal.NoEdge, BestSide: signal.Up, BestEdge: edgeUp, FeeRate: feeRate}
	if edgeDown > edgeUp {
		out.BestSide = signal.Down
		out.BestEdge = edgeDown
	}
	if out.BestEdge > feeRate {
		out.Kind = signal.Arbitrage
	}
	return out
}
