package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"signalbot/internal/metrics"
)

const (
	streamBaseURL  = "wss://stream.binance.com:9443/stream"
	testnetBaseURL = "wss://testnet.binance.vision/stream"

	// priceStaleAfter bounds how old a streamed price may be before
	// callers fall back to REST.
	priceStaleAfter = 10 * time.Second

	// readTimeout must exceed Binance's ~3min ping interval margin;
	// the deadline resets on every frame.
	readTimeout = 90 * time.Second
)

// combinedMsg is one frame from a /stream multiplexed subscription.
type combinedMsg struct {
	Stream string     `json:"stream"`
	Data   miniTicker `json:"data"`
}

// miniTicker is the payload of a <symbol>@miniTicker event.
type miniTicker struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

type streamPrice struct {
	price float64
	ts    time.Time
}

// Stream maintains a live last-price map from the Binance combined
// miniTicker WebSocket stream, reconnecting with exponential backoff.
type Stream struct {
	url     string
	cache   PriceCache // may be nil
	metrics *metrics.Metrics
	health  *metrics.HealthStatus

	mu     sync.RWMutex
	prices map[string]streamPrice

	now func() time.Time
}

// NewStream creates a stream for the given symbols.
func NewStream(symbols []string, sandbox bool, cache PriceCache, mtr *metrics.Metrics, health *metrics.HealthStatus) *Stream {
	base := streamBaseURL
	if sandbox {
		base = testnetBaseURL
	}
	parts := make([]string, 0, len(symbols))
	for _, s := range symbols {
		parts = append(parts, strings.ToLower(s)+"@miniTicker")
	}
	return &Stream{
		url:     base + "?streams=" + strings.Join(parts, "/"),
		cache:   cache,
		metrics: mtr,
		health:  health,
		prices:  make(map[string]streamPrice),
		now:     time.Now,
	}
}

// Price returns the last streamed price for symbol if it is fresh.
func (s *Stream) Price(symbol string) (float64, bool) {
	s.mu.RLock()
	sp, ok := s.prices[symbol]
	s.mu.RUnlock()
	if !ok || s.now().Sub(sp.ts) > priceStaleAfter {
		return 0, false
	}
	return sp.price, true
}

// Run connects and consumes until ctx is done, redialing on failure.
func (s *Stream) Run(ctx context.Context) {
	b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Jitter: true}
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.consume(ctx, b)
		if ctx.Err() != nil {
			return
		}
		wait := b.Duration()
		if s.metrics != nil {
			s.metrics.WSReconnects.Inc()
		}
		log.Printf("[stream] disconnected (%v), redialing in %s", err, wait.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// consume runs one connection lifetime: dial, read frames, update the
// price map. Returns the error that broke the connection.
func (s *Stream) consume(ctx context.Context, b *backoff.Backoff) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	log.Printf("[stream] connected to %s", s.url)
	b.Reset()
	if s.health != nil {
		s.health.SetStreamConnected(true)
		defer s.health.SetStreamConnected(false)
	}

	conn.SetReadDeadline(s.now().Add(readTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(s.now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), s.now().Add(5*time.Second))
	})

	// Unblock ReadMessage when ctx ends
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(s.now().Add(readTimeout))

		var msg combinedMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[stream] bad frame: %v", err)
			continue
		}
		s.apply(ctx, msg.Data)
	}
}

// apply updates the price map from one miniTicker event.
func (s *Stream) apply(ctx context.Context, t miniTicker) {
	if t.Symbol == "" || t.Close == "" {
		return
	}
	price, err := strconv.ParseFloat(t.Close, 64)
	if err != nil {
		log.Printf("[stream] %s: bad price %q", t.Symbol, t.Close)
		return
	}

	ts := s.now()
	if t.EventTime > 0 {
		ts = time.Unix(0, t.EventTime*int64(time.Millisecond)).UTC()
	}
	s.mu.Lock()
	s.prices[t.Symbol] = streamPrice{price: price, ts: ts}
	s.mu.Unlock()

	if s.health != nil {
		s.health.SetLastPriceTime(ts)
	}
	if s.cache != nil {
		if err := s.cache.SetPrice(ctx, t.Symbol, price); err != nil {
			log.Printf("[stream] cache %s: %v", t.Symbol, err)
		}
	}
}
