// Package redis provides the shared last-price cache and the signal
// event stream. Both are optional: a nil *Cache is a no-op, so the bot
// runs unchanged without a Redis server.
package redis

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"signalbot/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	latestPriceTTL = 30 * time.Second

	// signalStream holds ~a week of signal lifecycle events.
	signalStream       = "signals:events"
	signalStreamMaxLen = 10000
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Cache is the Redis-backed price cache and signal event publisher.
type Cache struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
// Returns nil on a nil Cache.
func (c *Cache) Client() *goredis.Client {
	if c == nil {
		return nil
	}
	return c.client
}

// New connects to Redis and pings the server.
func New(cfg Config) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Cache{client: client}, nil
}

// SetPrice stores the latest price for symbol with a short TTL so a
// stalled writer cannot serve stale prices forever.
func (c *Cache) SetPrice(ctx context.Context, symbol string, price float64) error {
	if c == nil {
		return nil
	}
	return c.client.Set(ctx, "price:latest:"+symbol, strconv.FormatFloat(price, 'f', -1, 64), latestPriceTTL).Err()
}

// GetPrice returns the cached latest price for symbol, or 0 on a miss.
func (c *Cache) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if c == nil {
		return 0, nil
	}
	val, err := c.client.Get(ctx, "price:latest:"+symbol).Result()
	if err != nil {
		if err == goredis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("redis GET price %s: %w", symbol, err)
	}
	return strconv.ParseFloat(val, 64)
}

// PublishSignalEvent appends a signal lifecycle event to the event
// stream and refreshes the per-code latest key. Best effort: errors are
// logged, never propagated into the signal lifecycle.
func (c *Cache) PublishSignalEvent(ctx context.Context, event string, sig *model.Signal) {
	if c == nil {
		return
	}
	payload := string(sig.JSON())

	pipe := c.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: signalStream,
		MaxLen: signalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event": event,
			"code":  sig.Code,
			"data":  payload,
		},
	})
	pipe.Set(ctx, "signal:latest:"+sig.Code, payload, 7*24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] publish %s event for %s: %v", event, sig.Code, err)
	}
}

// Close closes the client. Safe on nil.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
