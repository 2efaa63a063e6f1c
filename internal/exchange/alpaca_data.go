package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"polyarb-go/internal/signal"
)

const defaultAlpacaDataURL = "https://data.alpaca.markets"

// AlpacaBars pulls one-minute crypto bars from the Alpaca market data API.
type AlpacaBars struct {
	baseURL string
	symbol  string
	creds   Credentials
	client  *http.Client
	log     zerolog.Logger
	now     func() time.Time
}

// NewAlpacaBars builds a bar source for symbol (any pair spelling; normalized to "BTC/USD").
func NewAlpacaBars(baseURL, symbol string, creds Credentials, log zerolog.Logger) *AlpacaBars {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultAlpacaDataURL
	}
	return &AlpacaBars{
		baseURL: baseURL,
		symbol:  DataSymbol(symbol),
		creds:   creds,
		client:  &http.Client{Timeout: 20 * time.Second},
		log:     log,
		now:     time.Now,
	}
}

// WithHTTPClient swaps the HTTP client used for requests.
func (a *AlpacaBars) WithHTTPClient(hc *http.Client) *AlpacaBars {
	if hc != nil {
		a.client = hc
	}
	return a
}

// WithClock replaces the wall clock used to anchor the request window.
func (a *AlpacaBars) WithClock(now func() time.Time) *AlpacaBars {
	if now != nil {
		a.now = now
	}
	return a
}

type alpacaBar struct {
	T time.Time `json:"t"`
	O float64   `json:"o"`
	H float64   `json:"h"`
	L float64   `json:"l"`
	C float64   `json:"c"`
	V float64   `json:"v"`
}

type alpacaBarsResponse struct {
	Bars map[string][]alpacaBar `json:"bars"`
}

// barWindow spans twice the requested minutes so gaps in trading still leave limit bars.
func barWindow(limit int) time.Duration { return time.Duration(limit) * 2 * time.Minute }

// Bars returns up to limit most recent minute bars in ascending time order.
func (a *AlpacaBars) Bars(ctx context.Context, limit int) ([]signal.PriceBar, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("bars: limit must be positive, got %d", limit)
	}
	q := url.Values{}
	q.Set("symbols", a.symbol)
	q.Set("timeframe", "1Min")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort", "desc")
	// Without start the API counts from 00:00 UTC, which starves the window early in the day.
	q.Set("start", a.now().UTC().Add(-barWindow(limit)).Format(time.RFC3339))
	endpoint := a.baseURL + "/v1beta3/crypto/us/bars?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	a.creds.apply(req.Header)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alpaca bars: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alpaca bars: status=%d body=%q", resp.StatusCode, readBodyLimit(resp.Body, 4<<10))
	}

	var payload alpacaBarsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("alpaca bars decode: %w", err)
	}
	raw := payload.Bars[a.symbol]
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s", signal.ErrDataUnavailable, a.symbol)
	}

	bars := make([]signal.PriceBar, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		b := raw[i]
		bars = append(bars, signal.PriceBar{
			Ts:     b.T.UTC(),
			Open:   b.O,
			High:   b.H,
			Low:    b.L,
			Close:  b.C,
			Volume: b.V,
		})
	}
	// Requests with sort=desc come back newest first; guard against servers ignoring it.
	if len(bars) > 1 && bars[0].Ts.After(bars[len(bars)-1].Ts) {
		for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
			bars[i], bars[j] = bars[j], bars[i]
		}
	}
	a.log.Debug().Str("symbol", a.symbol).Int("bars", len(bars)).Msg("fetched bars")
	return bars, nil
}
