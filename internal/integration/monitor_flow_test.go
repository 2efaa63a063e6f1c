package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"polyarb-go/internal/exchange"
	"polyarb-go/internal/execution"
	"polyarb-go/internal/journal"
	"polyarb-go/internal/monitor"
	"polyarb-go/internal/paper"
	"polyarb-go/internal/risk"
	"polyarb-go/internal/strategy"
)

const gammaBody = `[{
  "title": "Bitcoin Up or Down - 5 min",
  "slug": "btc-updown-5m",
  "markets": [{
    "question": "Bitcoin Up or Down - 10:00AM",
    "slug": "btc-updown-1000",
    "outcomes": ["Up", "Down"],
    "outcomePrices": ["0.507", "0.493"],
    "volume24hr": 2500
  }]
}]`

const barsBody = `{"bars":{"BTC/USD":[
  {"t":"2024-05-01T10:02:00Z","o":60010,"h":60020,"l":60000,"c":60000,"v":1},
  {"t":"2024-05-01T10:01:00Z","o":59990,"h":60010,"l":59980,"c":60010,"v":1},
  {"t":"2024-05-01T10:00:00Z","o":59970,"h":59995,"l":59960,"c":59990,"v":1}
]}}`

func TestMonitorFlowTradesOnceThenCoolsDown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(gammaBody))
	})
	mux.HandleFunc("/v1beta3/crypto/us/bars", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(barsBody))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	log := zerolog.Nop()
	gamma := exchange.NewGammaClient(server.URL, log, exchange.WithGammaHTTPClient(server.Client()))
	bars := exchange.NewAlpacaBars(server.URL, "BTC/USD", exchange.Credentials{}, log).WithHTTPClient(server.Client())
	fetcher := exchange.NewFetcher(gamma, bars, nil, 3, log)

	strat, err := strategy.Build("bucket_follow", strategy.Params{ConfMin: 0.01, ConfMax: 0.02, ProbMin: 0.505, ProbMax: 0.510})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	dir := t.TempDir()
	records := journal.NewWriter(filepath.Join(dir, "arb_monitor.jsonl"))
	defer records.Close()
	fills := journal.NewWriter(filepath.Join(dir, "paper_fills.jsonl"))
	defer fills.Close()

	broker := paper.NewBroker(paper.NewAccount(10000, 0), log, paper.RecordTo(fills, func(err error) {
		t.Errorf("fill record failed: %v", err)
	}))
	gate := execution.NewGate(broker, execution.GateConfig{
		Symbol:   "BTC/USD",
		Notional: 100,
		Cooldown: time.Hour,
		Limits:   risk.Limits{MaxNotionalPerTrade: 500},
	}, log)

	var out bytes.Buffer
	mon := monitor.New(fetcher, strat, monitor.Options{
		Interval: time.Millisecond,
		Polls:    2,
		FeeRate:  0.0015,
		Symbol:   "BTC/USD",
		Paper:    true,
		JSON:     true,
	}, log,
		monitor.WithGate(gate),
		monitor.WithJournal(records),
		monitor.WithMarker(broker),
		monitor.WithOutput(&out, &out),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mon.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if mon.Rounds() != 2 {
		t.Fatalf("expected 2 rounds, got %d", mon.Rounds())
	}

	summary, err := journal.SummarizeFile(records.Path(), 2)
	if err != nil {
		t.Fatalf("SummarizeFile returned error: %v", err)
	}
	if summary.Rows != 2 || summary.BySignal["ARBITRAGE"] != 2 {
		t.Fatalf("expected two ARBITRAGE rows, got %+v", summary)
	}
	if summary.Executed != 1 {
		t.Fatalf("expected exactly one executed trade, got %d", summary.Executed)
	}
	if summary.TradeReason[execution.ReasonSubmitted] != 1 || summary.TradeReason[execution.ReasonCooldown] != 1 {
		t.Fatalf("unexpected trade reasons %v", summary.TradeReason)
	}

	var first monitor.PollRecord
	if err := json.Unmarshal(bytes.SplitN(out.Bytes(), []byte("\n"), 2)[0], &first); err != nil {
		t.Fatalf("decode first row: %v", err)
	}
	if first.AutoTrade == nil || !first.AutoTrade.Executed {
		t.Fatalf("expected executed trade on round 1, got %+v", first.AutoTrade)
	}
	if first.AutoTrade.FilledPrice != 60000 || first.AutoTrade.FillEstimated {
		t.Fatalf("expected paper fill at 60000, got %+v", first.AutoTrade)
	}
	if first.PMNormalized == nil || !*first.PMNormalized {
		t.Fatalf("expected normalized quote flag, got %v", first.PMNormalized)
	}

	qty := broker.Account().Position("BTCUSD")
	if want := 100.0 / 60000; qty < want*0.999 || qty > want*1.001 {
		t.Fatalf("expected position near %.8f, got %.8f", want, qty)
	}
	if got := len(broker.Ledger().Snapshot()); got != 1 {
		t.Fatalf("expected one ledger fill, got %d", got)
	}
	if bytes.Count(out.Bytes(), []byte("\n")) != 2 {
		t.Fatalf("expected two JSON lines on stdout, got %q", out.String())
	}
}
