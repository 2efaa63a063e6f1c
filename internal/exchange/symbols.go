package exchange

import (
	"net/http"
	"strings"
)

const userAgent = "polyarb-go/1.0 (monitor)"

// Credentials authenticates Alpaca REST and stream requests.
type Credentials struct {
	KeyID     string
	SecretKey string
}

// Empty reports whether either half of the key pair is missing.
func (c Credentials) Empty() bool {
	return strings.TrimSpace(c.KeyID) == "" || strings.TrimSpace(c.SecretKey) == ""
}

func (c Credentials) apply(h http.Header) {
	if c.KeyID != "" {
		h.Set("APCA-API-KEY-ID", c.KeyID)
	}
	if c.SecretKey != "" {
		h.Set("APCA-API-SECRET-KEY", c.SecretKey)
	}
}

// DataSymbol normalizes a crypto pair into Alpaca market-data form ("btcusd" -> "BTC/USD").
func DataSymbol(symbol string) string {
	base, quote := splitPair(symbol)
	if quote == "" {
		return base
	}
	return base + "/" + quote
}

// TradingSymbol normalizes a crypto pair into Alpaca trading form ("BTC/USD" -> "BTCUSD").
func TradingSymbol(symbol string) string {
	base, quote := splitPair(symbol)
	return base + quote
}

var knownQuotes = []string{"USDT", "USDC", "USD", "BTC"}

func splitPair(symbol string) (string, string) {
	clean := sanitizeSymbol(symbol)
	if idx := strings.IndexAny(symbol, "/-_"); idx > 0 {
		base := sanitizeSymbol(symbol[:idx])
		return base, sanitizeSymbol(symbol[idx+1:])
	}
	for _, q := range knownQuotes {
		if len(clean) > len(q) && strings.HasSuffix(clean, q) {
			return clean[:len(clean)-len(q)], q
		}
	}
	return clean, ""
}

func sanitizeSymbol(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(symbol))
	for _, r := range symbol {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if r >= 'a' && r <= 'z' {
				r -= 32
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
