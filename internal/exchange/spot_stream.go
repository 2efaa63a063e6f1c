package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultAlpacaStreamURL = "wss://stream.data.alpaca.markets/v1beta3/crypto/us"

// SpotStream keeps the latest trade price from the Alpaca crypto websocket.
type SpotStream struct {
	url    string
	symbol string
	creds  Credentials
	log    zerolog.Logger
	dialer websocket.Dialer

	minBackoff time.Duration
	maxBackoff time.Duration

	mu      sync.RWMutex
	price   float64
	updated time.Time
}

// NewSpotStream builds a stream for symbol. Run must be called to connect.
func NewSpotStream(url, symbol string, creds Credentials, log zerolog.Logger) *SpotStream {
	url = strings.TrimSpace(url)
	if url == "" {
		url = defaultAlpacaStreamURL
	}
	return &SpotStream{
		url:    url,
		symbol: DataSymbol(symbol),
		creds:  creds,
		log:    log,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},

		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Latest returns the last trade price if it is younger than maxAge.
func (s *SpotStream) Latest(maxAge time.Duration) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.price <= 0 || s.updated.IsZero() {
		return 0, false
	}
	if maxAge > 0 && time.Since(s.updated) > maxAge {
		return 0, false
	}
	return s.price, true
}

func (s *SpotStream) store(px float64, ts time.Time) {
	if px <= 0 || math.IsNaN(px) {
		return
	}
	s.mu.Lock()
	s.price = px
	s.updated = ts
	s.mu.Unlock()
}

type streamMessage struct {
	T     string  `json:"T"`
	S     string  `json:"S"`
	Price float64 `json:"p"`
	Size  float64 `json:"s"`
	Msg   string  `json:"msg"`
	Code  int     `json:"code"`
}

// Run connects and reconnects with backoff until ctx is canceled. The backoff starts over
// after any connection that got past authentication.
func (s *SpotStream) Run(ctx context.Context) error {
	backoff := s.minBackoff

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		authed, err := s.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errStreamAuth) {
			return err
		}
		if authed {
			backoff = s.minBackoff
		}
		s.log.Warn().Err(err).Dur("backoff", backoff).Msg("spot stream disconnected, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = time.Duration(math.Min(float64(s.maxBackoff), float64(backoff)*1.8))
	}
}

var errStreamAuth = errors.New("spot stream auth rejected")

// consume runs one connection. authed reports whether the server accepted the credentials.
func (s *SpotStream) consume(ctx context.Context) (authed bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	if err := conn.WriteJSON(map[string]string{
		"action": "auth",
		"key":    s.creds.KeyID,
		"secret": s.creds.SecretKey,
	}); err != nil {
		return false, fmt.Errorf("send auth: %w", err)
	}
	if err := conn.WriteJSON(map[string]any{
		"action": "subscribe",
		"trades": []string{s.symbol},
	}); err != nil {
		return false, fmt.Errorf("send subscribe: %w", err)
	}
	s.log.Info().Str("symbol", s.symbol).Msg("connected spot stream")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					s.log.Warn().Err(err).Msg("spot stream ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return authed, err
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var batch []streamMessage
		if err := json.Unmarshal(message, &batch); err != nil {
			s.log.Warn().Err(err).Msg("failed to decode spot stream message")
			continue
		}
		for _, m := range batch {
			switch m.T {
			case "success":
				if m.Msg == "authenticated" {
					authed = true
				}
			case "t":
				authed = true
				if m.S == "" || m.S == s.symbol {
					s.store(m.Price, time.Now())
				}
			case "error":
				if m.Code == 401 || m.Code == 402 || m.Code == 403 {
					return false, fmt.Errorf("%w: %s", errStreamAuth, m.Msg)
				}
				s.log.Warn().Int("code", m.Code).Str("msg", m.Msg).Msg("spot stream error")
			}
		}
	}
}
