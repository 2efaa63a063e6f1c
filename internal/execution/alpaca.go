package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"polyarb-go/internal/exchange"
)

const (
	AlpacaPaperURL = "https://paper-api.alpaca.markets"
	AlpacaLiveURL  = "https://api.alpaca.markets"
)

// TradingURL resolves the trading endpoint: override when set, otherwise paper or live.
func TradingURL(override string, paper bool) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}
	if paper {
		return AlpacaPaperURL
	}
	return AlpacaLiveURL
}

// AlpacaBroker submits market orders to the Alpaca trading API.
type AlpacaBroker struct {
	baseURL string
	creds   exchange.Credentials
	client  *http.Client
	log     zerolog.Logger
}

// NewAlpacaBroker targets baseURL (paper or live trading endpoint).
func NewAlpacaBroker(baseURL string, creds exchange.Credentials, log zerolog.Logger) *AlpacaBroker {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = AlpacaPaperURL
	}
	return &AlpacaBroker{
		baseURL: baseURL,
		creds:   creds,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

// WithHTTPClient swaps the HTTP client used for requests.
func (b *AlpacaBroker) WithHTTPClient(hc *http.Client) *AlpacaBroker {
	if hc != nil {
		b.client = hc
	}
	return b
}

type alpacaOrderRequest struct {
	Symbol        string `json:"symbol"`
	Notional      string `json:"notional,omitempty"`
	Qty           string `json:"qty,omitempty"`
	Side          Side   `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id"`
}

type alpacaOrderResponse struct {
	ID             string          `json:"id"`
	ClientOrderID  string          `json:"client_order_id"`
	Status         string          `json:"status"`
	FilledQty      decimal.Decimal `json:"filled_qty"`
	FilledAvgPrice decimal.Decimal `json:"filled_avg_price"`
}

type alpacaPosition struct {
	Symbol string          `json:"symbol"`
	Qty    decimal.Decimal `json:"qty"`
}

type alpacaError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SubmitMarketOrder posts a GTC market order. Notional orders are sent in USD cents precision,
// quantity orders at six decimals.
func (b *AlpacaBroker) SubmitMarketOrder(ctx context.Context, order Order) (OrderAck, error) {
	if order.ClientOrderID == "" {
		order.ClientOrderID = uuid.New().String()
	}
	req := alpacaOrderRequest{
		Symbol:        exchange.TradingSymbol(order.Symbol),
		Side:          order.Side,
		Type:          "market",
		TimeInForce:   "gtc",
		ClientOrderID: order.ClientOrderID,
	}
	switch {
	case order.Notional > 0:
		req.Notional = decimal.NewFromFloat(order.Notional).Round(2).String()
	case order.Qty > 0:
		req.Qty = decimal.NewFromFloat(order.Qty).Round(QtyDecimals).String()
	default:
		return OrderAck{}, fmt.Errorf("%w: order needs notional or qty", ErrRejected)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return OrderAck{}, fmt.Errorf("encode order: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v2/orders", bytes.NewReader(body))
	if err != nil {
		return OrderAck{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	b.authorize(httpReq)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return OrderAck{}, fmt.Errorf("alpaca submit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return OrderAck{}, fmt.Errorf("%w: alpaca status=%d %s", ErrRejected, resp.StatusCode, decodeAlpacaError(resp.Body))
	}

	var out alpacaOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return OrderAck{}, fmt.Errorf("alpaca order decode: %w", err)
	}
	b.log.Info().
		Str("order_id", out.ID).
		Str("client_order_id", out.ClientOrderID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("notional", req.Notional).
		Str("qty", req.Qty).
		Str("status", out.Status).
		Msg("alpaca order submitted")

	filledQty, _ := out.FilledQty.Float64()
	filledPx, _ := out.FilledAvgPrice.Float64()
	return OrderAck{
		ID:            out.ID,
		ClientOrderID: out.ClientOrderID,
		Status:        out.Status,
		FilledQty:     filledQty,
		FilledPrice:   filledPx,
	}, nil
}

// PositionQty returns the open quantity for symbol; a 404 means flat.
func (b *AlpacaBroker) PositionQty(ctx context.Context, symbol string) (float64, error) {
	sym := exchange.TradingSymbol(symbol)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/v2/positions/"+url.PathEscape(sym), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	b.authorize(httpReq)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("alpaca position: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("alpaca position: status=%d %s", resp.StatusCode, decodeAlpacaError(resp.Body))
	}

	var pos alpacaPosition
	if err := json.NewDecoder(resp.Body).Decode(&pos); err != nil {
		return 0, fmt.Errorf("alpaca position decode: %w", err)
	}
	qty, _ := pos.Qty.Float64()
	return qty, nil
}

func (b *AlpacaBroker) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("APCA-API-KEY-ID", b.creds.KeyID)
	req.Header.Set("APCA-API-SECRET-KEY", b.creds.SecretKey)
}

func decodeAlpacaError(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4<<10))
	var e alpacaError
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		return fmt.Sprintf("code=%d message=%q", e.Code, e.Message)
	}
	return fmt.Sprintf("body=%q", strings.TrimSpace(string(raw)))
}
