package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"polyarb-go/internal/signal"
)

const (
	defaultGammaURL   = "https://gamma-api.polymarket.com"
	defaultGammaMatch = "bitcoin up or down"
)

// GammaClient locates the target up/down market on Polymarket's Gamma API and reads its
// outcome prices.
type GammaClient struct {
	baseURL string
	tagSlug string
	match   string
	limit   int
	client  *http.Client
	log     zerolog.Logger

	mu       sync.Mutex
	lastSlug string
}

// GammaOption configures GammaClient construction parameters.
type GammaOption func(*GammaClient)

// WithGammaFilter overrides the tag slug and the lower-cased title substring used to pick
// candidate markets.
func WithGammaFilter(tagSlug, match string) GammaOption {
	return func(c *GammaClient) {
		if tagSlug != "" {
			c.tagSlug = tagSlug
		}
		if match = strings.ToLower(strings.TrimSpace(match)); match != "" {
			c.match = match
		}
	}
}

// WithGammaLimit caps how many events one discovery request returns.
func WithGammaLimit(limit int) GammaOption {
	return func(c *GammaClient) {
		if limit > 0 {
			c.limit = limit
		}
	}
}

// WithGammaHTTPClient swaps the HTTP client (tests use the httptest client).
func WithGammaHTTPClient(hc *http.Client) GammaOption {
	return func(c *GammaClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewGammaClient builds a client against baseURL (default https://gamma-api.polymarket.com).
func NewGammaClient(baseURL string, log zerolog.Logger, opts ...GammaOption) *GammaClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultGammaURL
	}
	c := &GammaClient{
		baseURL: baseURL,
		tagSlug: "5m",
		match:   defaultGammaMatch,
		limit:   200,
		client:  &http.Client{Timeout: 20 * time.Second},
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Market is a candidate binary market with its decoded outcome prices.
type Market struct {
	Question   string
	Slug       string
	EventSlug  string
	EventTitle string
	Outcomes   []string
	Prices     []float64
	Volume     float64
}

type gammaEvent struct {
	Title   string        `json:"title"`
	Slug    string        `json:"slug"`
	Markets []gammaMarket `json:"markets"`
}

type gammaMarket struct {
	Question      string     `json:"question"`
	Title         string     `json:"title"`
	Slug          string     `json:"slug"`
	Outcomes      stringList `json:"outcomes"`
	OutcomePrices stringList `json:"outcomePrices"`
	Volume24hr    flexFloat  `json:"volume24hr"`
	Volume        flexFloat  `json:"volume"`
	VolumeNum     flexFloat  `json:"volumeNum"`
}

func (m gammaMarket) volume() float64 {
	for _, v := range []flexFloat{m.Volume24hr, m.Volume, m.VolumeNum} {
		if v > 0 {
			return float64(v)
		}
	}
	return 0
}

// FetchQuote discovers the target market and converts its outcome prices into a quote.
func (c *GammaClient) FetchQuote(ctx context.Context) (signal.MarketQuote, error) {
	market, err := c.FetchTarget(ctx)
	if err != nil {
		return signal.MarketQuote{}, err
	}
	return market.Quote(time.Now().UTC())
}

// FetchTarget returns the highest-volume open market whose title matches the configured filter.
func (c *GammaClient) FetchTarget(ctx context.Context) (Market, error) {
	q := url.Values{}
	q.Set("closed", "false")
	q.Set("limit", strconv.Itoa(c.limit))
	q.Set("tag_slug", c.tagSlug)
	q.Set("order", "volume24hr")
	q.Set("ascending", "false")
	endpoint := c.baseURL + "/events?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Market{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return Market{}, fmt.Errorf("gamma events: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Market{}, fmt.Errorf("gamma events: status=%d body=%q", resp.StatusCode, readBodyLimit(resp.Body, 4<<10))
	}

	var events []gammaEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return Market{}, fmt.Errorf("gamma decode: %w", err)
	}

	candidates := c.candidates(events)
	if len(candidates) == 0 {
		return Market{}, fmt.Errorf("%w: no open market matching %q", signal.ErrDataUnavailable, c.match)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Volume > candidates[j].Volume
	})
	c.logTargetChange(candidates[0], len(candidates))
	return candidates[0], nil
}

func (c *GammaClient) logTargetChange(target Market, candidates int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if target.Slug == c.lastSlug {
		return
	}
	prev := c.lastSlug
	c.lastSlug = target.Slug
	c.log.Info().
		Str("slug", target.Slug).
		Str("event_slug", target.EventSlug).
		Str("question", target.Question).
		Float64("volume", target.Volume).
		Int("candidates", candidates).
		Str("previous", prev).
		Msg("updated target market")
}

func (c *GammaClient) candidates(events []gammaEvent) []Market {
	var out []Market
	for _, ev := range events {
		eventTitle := strings.TrimSpace(ev.Title)
		eventMatches := strings.Contains(strings.ToLower(eventTitle), c.match)
		for _, m := range ev.Markets {
			title := strings.TrimSpace(m.Question)
			if title == "" {
				title = strings.TrimSpace(m.Title)
			}
			if title == "" {
				title = eventTitle
			}
			if !eventMatches && !strings.Contains(strings.ToLower(title), c.match) {
				continue
			}
			out = append(out, Market{
				Question:   title,
				Slug:       m.Slug,
				EventSlug:  ev.Slug,
				EventTitle: eventTitle,
				Outcomes:   append([]string(nil), m.Outcomes...),
				Prices:     parsePrices(m.OutcomePrices),
				Volume:     m.volume(),
			})
		}
	}
	return out
}

// Quote maps the market's outcome prices onto up/down probabilities. Outcome labels
// "up"/"yes" and "down"/"no" decide the indices; unlabeled markets use positions 0 and 1.
func (m Market) Quote(ts time.Time) (signal.MarketQuote, error) {
	if len(m.Prices) < 2 {
		return signal.MarketQuote{}, fmt.Errorf("%w: market %q has no usable outcome prices", signal.ErrDataUnavailable, m.Slug)
	}
	upIdx, downIdx := -1, -1
	for i, label := range m.Outcomes {
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "up", "yes":
			if upIdx < 0 {
				upIdx = i
			}
		case "down", "no":
			if downIdx < 0 {
				downIdx = i
			}
		}
	}
	if upIdx < 0 || upIdx >= len(m.Prices) {
		upIdx = 0
	}
	if downIdx < 0 || downIdx >= len(m.Prices) {
		downIdx = 1
		if upIdx != 0 {
			downIdx = 0
		}
	}

	quote := signal.NewQuote(m.Prices[upIdx], m.Prices[downIdx], ts)
	quote.Question = m.Question
	quote.Slug = m.Slug
	quote.EventSlug = m.EventSlug
	return quote, nil
}

func parsePrices(raw []string) []float64 {
	out := make([]float64, 0, len(raw))
	for _, s := range raw {
		px, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			px = 0
		}
		out = append(out, px)
	}
	return out
}

// stringList decodes Gamma list fields that arrive either as JSON arrays or as a JSON string
// containing an array. Numeric members are kept in their literal form. Anything else decodes
// to an empty list so one malformed market cannot fail the whole page.
type stringList []string

func (s *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}
	if b[0] == '"' {
		var inner string
		if err := json.Unmarshal(b, &inner); err != nil {
			*s = nil
			return nil
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			*s = nil
			return nil
		}
		b = []byte(inner)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		*s = nil
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var str string
		if err := json.Unmarshal(item, &str); err == nil {
			out = append(out, str)
			continue
		}
		out = append(out, string(bytes.TrimSpace(item)))
	}
	*s = out
	return nil
}

// flexFloat accepts a JSON number or a numeric string; anything else decodes to zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

func readBodyLimit(r io.Reader, max int64) string {
	if r == nil || max <= 0 {
		return ""
	}
	b, _ := io.ReadAll(&io.LimitedReader{R: r, N: max})
	return strings.TrimSpace(string(b))
}
