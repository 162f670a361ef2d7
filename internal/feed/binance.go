// Package feed supplies market data from Binance: candle history over
// REST and live prices from the miniTicker WebSocket stream, with an
// optional Redis cache between the two.
package feed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"signalbot/internal/model"
)

// PriceCache is a shared last-price cache (Redis in production).
// Implementations may be nil-safe no-ops.
type PriceCache interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	SetPrice(ctx context.Context, symbol string, price float64) error
}

// Feed implements model.MarketDataFeed. Live prices resolve through
// the stream first, then the cache, then REST; candles always come
// from REST.
type Feed struct {
	client *binance.Client
	stream *Stream    // may be nil
	cache  PriceCache // may be nil
}

// New creates a feed. Credentials may be empty — market data endpoints
// are public. With sandbox set, requests go to the Binance testnet.
func New(apiKey, secret string, sandbox bool, stream *Stream, cache PriceCache) *Feed {
	if sandbox {
		binance.UseTestnet = true
	}
	return &Feed{
		client: binance.NewClient(apiKey, secret),
		stream: stream,
		cache:  cache,
	}
}

// GetCandles returns the latest count closed candles, oldest first.
// The most recent kline is still forming, so it is fetched and dropped.
func (f *Feed) GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]model.Candle, error) {
	klines, err := f.client.NewKlinesService().
		Symbol(symbol).
		Interval(timeframe).
		Limit(count + 1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, timeframe, err)
	}
	if len(klines) == 0 {
		return nil, fmt.Errorf("klines %s %s: empty response", symbol, timeframe)
	}
	klines = klines[:len(klines)-1] // drop the forming candle

	out := make([]model.Candle, 0, len(klines))
	for _, k := range klines {
		c := model.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			TS:        time.Unix(k.OpenTime/1000, 0).UTC(),
		}
		if c.Open, err = strconv.ParseFloat(k.Open, 64); err != nil {
			return nil, fmt.Errorf("klines %s %s: bad open %q: %w", symbol, timeframe, k.Open, err)
		}
		if c.High, err = strconv.ParseFloat(k.High, 64); err != nil {
			return nil, fmt.Errorf("klines %s %s: bad high %q: %w", symbol, timeframe, k.High, err)
		}
		if c.Low, err = strconv.ParseFloat(k.Low, 64); err != nil {
			return nil, fmt.Errorf("klines %s %s: bad low %q: %w", symbol, timeframe, k.Low, err)
		}
		if c.Close, err = strconv.ParseFloat(k.Close, 64); err != nil {
			return nil, fmt.Errorf("klines %s %s: bad close %q: %w", symbol, timeframe, k.Close, err)
		}
		if c.Volume, err = strconv.ParseFloat(k.Volume, 64); err != nil {
			return nil, fmt.Errorf("klines %s %s: bad volume %q: %w", symbol, timeframe, k.Volume, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// GetLatestPrice returns the freshest price available: stream, then
// cache, then a REST lookup (which also refreshes the cache).
func (f *Feed) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	if f.stream != nil {
		if price, ok := f.stream.Price(symbol); ok {
			return price, nil
		}
	}
	if f.cache != nil {
		if price, err := f.cache.GetPrice(ctx, symbol); err == nil && price > 0 {
			return price, nil
		}
	}

	prices, err := f.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("price %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("price %s: empty response", symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("price %s: bad value %q: %w", symbol, prices[0].Price, err)
	}

	if f.cache != nil {
		if err := f.cache.SetPrice(ctx, symbol, price); err != nil {
			// Cache is best-effort; the price is still good
			return price, nil
		}
	}
	return price, nil
}
