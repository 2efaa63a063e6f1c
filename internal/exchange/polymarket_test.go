package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"polyarb-go/internal/signal"
)

const gammaEventsBody = `[
  {
    "title": "Bitcoin Up or Down - 5 min",
    "slug": "btc-updown-5m-low",
    "markets": [{
      "question": "Bitcoin Up or Down - 10:00AM",
      "slug": "btc-low",
      "outcomes": "[\"Up\", \"Down\"]",
      "outcomePrices": "[\"0.40\", \"0.60\"]",
      "volume24hr": 1200
    }]
  },
  {
    "title": "Ethereum Up or Down - 5 min",
    "slug": "eth-updown",
    "markets": [{
      "question": "Ethereum Up or Down",
      "slug": "eth",
      "outcomes": ["Up", "Down"],
      "outcomePrices": ["0.5", "0.5"],
      "volume24hr": 999999
    }]
  },
  {
    "title": "Crypto 5m",
    "slug": "btc-updown-5m-high",
    "markets": [{
      "question": "Bitcoin Up or Down - 10:05AM",
      "slug": "btc-high",
      "outcomes": ["Down", "Up"],
      "outcomePrices": [0.45, 0.55],
      "volume": "5000.5"
    }]
  }
]`

func TestGammaFetchTargetPicksHighestVolumeMatch(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		_, _ = w.Write([]byte(gammaEventsBody))
	}))
	defer server.Close()

	client := NewGammaClient(server.URL, zerolog.Nop(), WithGammaHTTPClient(server.Client()))
	market, err := client.FetchTarget(context.Background())
	if err != nil {
		t.Fatalf("FetchTarget returned error: %v", err)
	}
	if market.Slug != "btc-high" || market.EventSlug != "btc-updown-5m-high" {
		t.Fatalf("unexpected market selected: %+v", market)
	}
	if market.Volume != 5000.5 {
		t.Fatalf("expected volume fallback to 5000.5, got %v", market.Volume)
	}
	want := map[string]string{
		"closed":    "false",
		"limit":     "200",
		"tag_slug":  "5m",
		"order":     "volume24hr",
		"ascending": "false",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Fatalf("query %s: expected %q got %q", k, v, gotQuery[k])
		}
	}
}

func TestGammaFetchQuoteMapsOutcomeLabels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(gammaEventsBody))
	}))
	defer server.Close()

	client := NewGammaClient(server.URL, zerolog.Nop(), WithGammaHTTPClient(server.Client()))
	quote, err := client.FetchQuote(context.Background())
	if err != nil {
		t.Fatalf("FetchQuote returned error: %v", err)
	}
	if quote.Up != 0.55 || quote.Down != 0.45 {
		t.Fatalf("expected up=0.55 down=0.45, got %+v", quote)
	}
	if quote.Question != "Bitcoin Up or Down - 10:05AM" {
		t.Fatalf("unexpected question %q", quote.Question)
	}
}

func TestGammaSkipsMalformedMarket(t *testing.T) {
	body := `[
  {"title": "Weather", "slug": "rain", "markets": [{
    "question": "Will it rain?", "slug": "rain",
    "outcomes": "[\"Yes\", \"No\"]", "outcomePrices": "n/a", "volume24hr": 9000
  }]},
  {"title": "Bitcoin Up or Down - 5 min", "slug": "btc-updown", "markets": [{
    "question": "Bitcoin Up or Down - 10:00AM", "slug": "btc",
    "outcomes": ["Up", "Down"], "outcomePrices": ["0.52", "0.48"], "volume24hr": 100
  }]}
]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client := NewGammaClient(server.URL, zerolog.Nop(), WithGammaHTTPClient(server.Client()))
	quote, err := client.FetchQuote(context.Background())
	if err != nil {
		t.Fatalf("FetchQuote returned error: %v", err)
	}
	if quote.Up != 0.52 || quote.Down != 0.48 || quote.Slug != "btc" {
		t.Fatalf("unexpected quote %+v", quote)
	}
}

func TestGammaNoMatchIsDataUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"title":"Election","markets":[{"question":"Who wins?","outcomes":["Yes","No"],"outcomePrices":["0.5","0.5"]}]}]`))
	}))
	defer server.Close()

	client := NewGammaClient(server.URL, zerolog.Nop(), WithGammaHTTPClient(server.Client()))
	_, err := client.FetchTarget(context.Background())
	if !errors.Is(err, signal.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestGammaHTTPErrorIncludesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewGammaClient(server.URL, zerolog.Nop(), WithGammaHTTPClient(server.Client()))
	if _, err := client.FetchTarget(context.Background()); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestMarketQuoteIndexFallbacks(t *testing.T) {
	ts := time.Unix(0, 0)
	cases := []struct {
		name     string
		market   Market
		up, down float64
	}{
		{"yes-no", Market{Outcomes: []string{"No", "Yes"}, Prices: []float64{0.3, 0.7}}, 0.7, 0.3},
		{"unlabeled", Market{Outcomes: []string{"A", "B"}, Prices: []float64{0.6, 0.4}}, 0.6, 0.4},
		{"up-only-second", Market{Outcomes: []string{"X", "Up"}, Prices: []float64{0.2, 0.8}}, 0.8, 0.2},
		{"clamped", Market{Outcomes: []string{"Up", "Down"}, Prices: []float64{1.4, -0.1}}, 1, 0},
	}
	for _, tc := range cases {
		q, err := tc.market.Quote(ts)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if q.Up != tc.up || q.Down != tc.down {
			t.Fatalf("%s: expected %v/%v got %v/%v", tc.name, tc.up, tc.down, q.Up, q.Down)
		}
	}

	if _, err := (Market{Prices: []float64{0.5}}).Quote(ts); !errors.Is(err, signal.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable for single price, got %v", err)
	}
}

func TestStringListDecodesVariants(t *testing.T) {
	cases := map[string][]string{
		`["Up","Down"]`:         {"Up", "Down"},
		`"[\"0.1\", \"0.9\"]"`: {"0.1", "0.9"},
		`[0.25, 0.75]`:          {"0.25", "0.75"},
		`null`:                  nil,
		`""`:                    nil,
		`"n/a"`:                 nil,
		`{"up":1}`:              nil,
		`42`:                    nil,
	}
	for raw, want := range cases {
		var got stringList
		if err := got.UnmarshalJSON([]byte(raw)); err != nil {
			t.Fatalf("%s: unexpected error %v", raw, err)
		}
		if len(got) != len(want) {
			t.Fatalf("%s: expected %v got %v", raw, want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s: expected %v got %v", raw, want, got)
			}
		}
	}
}
