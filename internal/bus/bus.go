// Package bus fans poll records out to Redis for downstream alerting.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const streamMaxLen int64 = 10000

// Options configures the Redis connection and destinations. An empty Channel or Stream skips
// that destination.
type Options struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Stream   string
}

// Publisher sends each record to a Pub/Sub channel and appends it to a capped stream.
type Publisher struct {
	rdb     *redis.Client
	channel string
	stream  string
}

// Dial connects and pings Redis.
func Dial(ctx context.Context, opts Options) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return New(rdb, opts.Channel, opts.Stream), nil
}

// New wraps an existing client.
func New(rdb *redis.Client, channel, stream string) *Publisher {
	return &Publisher{rdb: rdb, channel: channel, stream: stream}
}

// Publish encodes v as JSON and sends it to every configured destination.
func (p *Publisher) Publish(ctx context.Context, v any) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: encode: %w", err)
	}
	if p.channel != "" {
		if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
			return fmt.Errorf("redis: publish %s: %w", p.channel, err)
		}
	}
	if p.stream != "" {
		args := &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]any{"payload": payload},
		}
		if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("redis: stream append %s: %w", p.stream, err)
		}
	}
	return nil
}

// Close releases the client.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.rdb.Close()
}
