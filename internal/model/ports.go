package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the signal engine, risk manager, and monitor
// from concrete collaborators (exchange feed, SQLite, Telegram). Each
// implementation satisfies one or more of these interfaces.

// MarketDataFeed supplies candle history and live prices.
// Implementations must return an error rather than partial or stale data.
type MarketDataFeed interface {
	// GetCandles returns the latest count closed candles for (symbol,
	// timeframe), ordered oldest first.
	GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]Candle, error)

	// GetLatestPrice returns the latest trade price for symbol.
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// IndicatorProvider computes an IndicatorSnapshot from a candle series.
// Pure and deterministic for a given series.
type IndicatorProvider interface {
	Compute(series []Candle) (*IndicatorSnapshot, error)
}

// SignalStore is the durable log of signals, executions, cooldowns, and
// daily metrics. Writes are at-least-once; UpdateSignal must not re-apply a
// terminal transition for a code that already reached a terminal status.
type SignalStore interface {
	SaveSignal(ctx context.Context, s *Signal) error
	UpdateSignal(ctx context.Context, s *Signal) error
	AppendExecution(ctx context.Context, ev ExecutionEvent) error

	SaveCooldown(ctx context.Context, cd CooldownEntry) error
	LoadCooldowns(ctx context.Context, now time.Time) ([]CooldownEntry, error)

	SaveDailyMetrics(ctx context.Context, d DailyStats) error

	// LoadOpenSignals returns all Pending and Open signals for resumption
	// after a restart.
	LoadOpenSignals(ctx context.Context) ([]*Signal, error)

	Close() error
}

// Notifier delivers signal lifecycle messages. Delivery is best-effort:
// failures are logged by callers and never block lifecycle progress.
type Notifier interface {
	SendNewSignal(ctx context.Context, s *Signal) error
	SendResult(ctx context.Context, s *Signal) error
	SendDailySummary(ctx context.Context, d DailyStats) error
	SendAlert(ctx context.Context, level AlertLevel, message string) error
}

// AlertLevel represents the severity of a system alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)
