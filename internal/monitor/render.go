package monitor

import (
	"encoding/json"
	"fmt"
	"io"
)

func renderJSON(w io.Writer, rec PollRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func renderHuman(w io.Writer, rec PollRecord) error {
	if rec.Signal == SignalError {
		_, err := fmt.Fprintf(w, "! %s | ERROR | %s\n", rec.Timestamp, rec.Error)
		return err
	}

	mark := "."
	if rec.Signal == "ARBITRAGE" {
		mark = "*"
	}
	line := fmt.Sprintf("%s %s | %s | best=%s edge=%.3f%% (fee=%.3f%%) | PM Up=%.2f%% Down=%.2f%%",
		mark, rec.Timestamp, rec.Signal, rec.BestSide, rec.BestEdge*100, rec.FeeRate*100, rec.PMUp*100, rec.PMDown*100)
	switch {
	case rec.ModelUp != nil:
		line += fmt.Sprintf(" | Model Up=%.2f%%", *rec.ModelUp*100)
	case rec.BucketHit != nil:
		line += fmt.Sprintf(" | Conf=%.2f%% MaxP=%.2f%%", rec.Confidence*100, rec.MaxProbability*100)
	}
	line += fmt.Sprintf(" | Spot=%.2f", rec.Spot)
	if rec.Reason != "" && rec.Signal != "ARBITRAGE" {
		line += " | " + rec.Reason
	}
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}

	if t := rec.AutoTrade; t != nil && t.Enabled {
		_, err := fmt.Fprintf(w, "    auto_trade: executed=%t side=%s order_id=%s reason=%s\n",
			t.Executed, orNone(string(t.Side)), orNone(t.OrderID), t.Reason)
		return err
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
