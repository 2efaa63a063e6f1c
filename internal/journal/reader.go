package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// Entry is the subset of a poll record the summarizer reads back.
type Entry struct {
	Timestamp string  `json:"timestamp_utc"`
	Round     int     `json:"round"`
	Signal    string  `json:"signal"`
	BestSide  string  `json:"best_side"`
	BestEdge  float64 `json:"best_edge"`
	FeeRate   float64 `json:"fee_rate"`
	Reason    string  `json:"reason"`
	Error     string  `json:"error"`
	AutoTrade *struct {
		Executed bool   `json:"executed"`
		Reason   string `json:"reason"`
		Side     string `json:"side"`
		OrderID  string `json:"order_id"`
	} `json:"auto_trade"`
}

// Summary aggregates a journal.
type Summary struct {
	Rows        int            `json:"rows"`
	Malformed   int            `json:"malformed"`
	BySignal    map[string]int `json:"by_signal"`
	BySide      map[string]int `json:"by_side"`
	TradeReason map[string]int `json:"trade_reasons"`
	Executed    int            `json:"executed"`
	MaxEdge     float64        `json:"max_edge"`
	First       string         `json:"first,omitempty"`
	Last        string         `json:"last,omitempty"`
	Tail        []Entry        `json:"tail,omitempty"`
}

// Signals returns signal names in a stable order.
func (s Summary) Signals() []string {
	out := make([]string, 0, len(s.BySignal))
	for k := range s.BySignal {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Scan calls fn for every decodable line. Undecodable lines are counted and skipped.
func Scan(r io.Reader, fn func(Entry)) (malformed int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			malformed++
			continue
		}
		fn(e)
	}
	return malformed, sc.Err()
}

// Summarize aggregates r, keeping the last tail entries.
func Summarize(r io.Reader, tail int) (Summary, error) {
	s := Summary{
		BySignal:    map[string]int{},
		BySide:      map[string]int{},
		TradeReason: map[string]int{},
	}
	malformed, err := Scan(r, func(e Entry) {
		s.Rows++
		s.BySignal[e.Signal]++
		if e.BestSide != "" {
			s.BySide[e.BestSide]++
		}
		if e.BestEdge > s.MaxEdge {
			s.MaxEdge = e.BestEdge
		}
		if e.AutoTrade != nil {
			s.TradeReason[e.AutoTrade.Reason]++
			if e.AutoTrade.Executed {
				s.Executed++
			}
		}
		if s.First == "" {
			s.First = e.Timestamp
		}
		s.Last = e.Timestamp
		if tail > 0 {
			s.Tail = append(s.Tail, e)
			if len(s.Tail) > tail {
				s.Tail = s.Tail[1:]
			}
		}
	})
	s.Malformed = malformed
	if err != nil {
		return s, fmt.Errorf("journal: scan: %w", err)
	}
	return s, nil
}

// SummarizeFile opens path and summarizes it.
func SummarizeFile(path string, tail int) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("journal: open: %w", err)
	}
	defer f.Close()
	return Summarize(f, tail)
}
