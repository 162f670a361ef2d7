// Package monitor tracks active signals against live prices: fills
// pending entries, detects take-profit and stop-loss hits, applies
// trailing-stop ratchets, and expires stale pending signals.
package monitor

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"signalbot/config"
	"signalbot/internal/metrics"
	"signalbot/internal/model"
	"signalbot/internal/risk"
)

// tickEvery is the monitor polling interval.
const tickEvery = 5 * time.Second

// fillTolerancePct is how close price must come to the entry before a
// pending signal counts as filled.
const fillTolerancePct = 0.001

// feedFailureAlertAfter is how many consecutive price failures on one
// symbol trigger an operator alert. The monitor never closes a signal
// on missing data; it keeps the last known price and keeps retrying.
const feedFailureAlertAfter = 5

// Monitor polls prices and drives signal transitions through the risk
// manager.
type Monitor struct {
	cfg      *config.Config
	feed     model.MarketDataFeed
	riskMgr  *risk.Manager
	notifier model.Notifier
	metrics  *metrics.Metrics
	health   *metrics.HealthStatus

	mu        sync.Mutex
	prevPrice map[string]float64 // last observed price per symbol
	failures  map[string]int     // consecutive feed failures per symbol

	now func() time.Time
}

// New creates a monitor. The metrics and health handles may be nil.
func New(cfg *config.Config, feed model.MarketDataFeed, rm *risk.Manager, notifier model.Notifier, mtr *metrics.Metrics, health *metrics.HealthStatus) *Monitor {
	return &Monitor{
		cfg:       cfg,
		feed:      feed,
		riskMgr:   rm,
		notifier:  notifier,
		metrics:   mtr,
		health:    health,
		prevPrice: make(map[string]float64),
		failures:  make(map[string]int),
		now:       time.Now,
	}
}

// Run polls until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if m.health != nil {
		m.health.SetMonitorOK(true)
		defer m.health.SetMonitorOK(false)
	}
	log.Printf("[monitor] started (every %s)", tickEvery)

	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick runs one full pass over the active signals.
func (m *Monitor) Tick(ctx context.Context) {
	start := m.now()
	signals := m.riskMgr.ActiveSignals()
	if len(signals) == 0 {
		return
	}

	prices := m.fetchPrices(ctx, signals)
	for _, sig := range signals {
		price, ok := prices[sig.Symbol]
		if !ok {
			continue // feed failure this tick; handled in fetchPrices
		}
		m.mu.Lock()
		prev := m.prevPrice[sig.Symbol]
		m.mu.Unlock()
		m.process(ctx, sig, prev, price)
	}

	m.mu.Lock()
	for sym, price := range prices {
		m.prevPrice[sym] = price
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.MonitorTickDur.Observe(time.Since(start).Seconds())
	}
}

// fetchPrices resolves the latest price for every distinct symbol in
// one concurrent burst.
func (m *Monitor) fetchPrices(ctx context.Context, signals []*model.Signal) map[string]float64 {
	symbols := make(map[string]struct{})
	for _, sig := range signals {
		symbols[sig.Symbol] = struct{}{}
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		prices = make(map[string]float64, len(symbols))
	)
	for sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			price, err := m.feed.GetLatestPrice(ctx, sym)
			if err != nil {
				m.recordFailure(ctx, sym, err)
				return
			}
			m.clearFailure(sym)
			mu.Lock()
			prices[sym] = price
			mu.Unlock()
		}(sym)
	}
	wg.Wait()

	if m.health != nil && len(prices) > 0 {
		m.health.SetLastPriceTime(m.now())
	}
	return prices
}

func (m *Monitor) recordFailure(ctx context.Context, symbol string, err error) {
	if m.metrics != nil {
		m.metrics.FeedErrors.WithLabelValues("price").Inc()
	}
	m.mu.Lock()
	m.failures[symbol]++
	n := m.failures[symbol]
	m.mu.Unlock()

	log.Printf("[monitor] price fetch %s failed (%d consecutive): %v", symbol, n, err)
	if n == feedFailureAlertAfter && m.notifier != nil {
		m.notifier.SendAlert(ctx, model.AlertWarning,
			fmt.Sprintf("price feed for %s failing (%d consecutive errors); signals held at last known state", symbol, n))
	}
}

func (m *Monitor) clearFailure(symbol string) {
	m.mu.Lock()
	delete(m.failures, symbol)
	m.mu.Unlock()
}

// process advances one signal given the previous and current price.
func (m *Monitor) process(ctx context.Context, sig *model.Signal, prev, price float64) {
	now := m.now()

	switch sig.Status {
	case model.StatusPending:
		if !now.Before(sig.ExpiresAt) {
			m.close(ctx, sig, model.CloseExpired, 0, now)
			return
		}
		if entryHit(sig, prev, price) {
			if err := m.riskMgr.MarkFilled(ctx, sig.Code, price, now); err != nil {
				log.Printf("[monitor] fill %s: %v", sig.Code, err)
				return
			}
			log.Printf("[monitor] %s %s filled at %.4f", sig.Code, sig.Symbol, price)
		}

	case model.StatusOpen:
		if reason, level, hit := resolveExit(sig, prev, price); hit {
			m.close(ctx, sig, reason, level, now)
			return
		}
		m.trail(ctx, sig, price, now)
	}
}

// close finalizes through the risk manager and notifies the result.
func (m *Monitor) close(ctx context.Context, sig *model.Signal, reason model.CloseReason, level float64, now time.Time) {
	closed, err := m.riskMgr.Close(ctx, sig.Code, reason, level, now)
	if err != nil {
		if err != risk.ErrNotFound {
			log.Printf("[monitor] close %s: %v", sig.Code, err)
		}
		return
	}
	log.Printf("[monitor] %s %s closed %s at %.4f pnl=%.2f", closed.Code, closed.Symbol, reason, level, closed.PnLQuote)
	if m.notifier != nil {
		if err := m.notifier.SendResult(ctx, closed); err != nil {
			log.Printf("[monitor] notify result %s: %v", closed.Code, err)
		}
	}
}

// trail ratchets the stop behind price, never past the fill price.
// The ratchet arms only after price has moved favorably by at least
// one trailing increment beyond the fill; until then the original
// stop stands.
func (m *Monitor) trail(ctx context.Context, sig *model.Signal, price float64, now time.Time) {
	if sig.TrailingPct <= 0 || sig.FillPrice <= 0 {
		return
	}
	var newStop float64
	if sig.Direction == model.Long {
		if price < sig.FillPrice*(1+sig.TrailingPct) {
			return
		}
		newStop = price * (1 - sig.TrailingPct)
		if newStop > sig.FillPrice {
			newStop = sig.FillPrice
		}
		if newStop <= sig.StopLoss {
			return
		}
	} else {
		if price > sig.FillPrice*(1-sig.TrailingPct) {
			return
		}
		newStop = price * (1 + sig.TrailingPct)
		if newStop < sig.FillPrice {
			newStop = sig.FillPrice
		}
		if newStop >= sig.StopLoss {
			return
		}
	}
	if err := m.riskMgr.RatchetStop(ctx, sig.Code, newStop, now); err != nil {
		log.Printf("[monitor] trail %s: %v", sig.Code, err)
		return
	}
	log.Printf("[monitor] %s trailing stop → %.4f", sig.Code, newStop)
}

// entryHit reports whether price traded through the entry since the
// previous tick. The condition is one-sided with a small tolerance, so
// a gap through the entry between ticks still fills: a Long fills once
// the observed range reaches entry (or better) from above, a Short
// from below.
func entryHit(sig *model.Signal, prev, price float64) bool {
	if sig.Entry <= 0 {
		return false
	}
	lo, hi := price, price
	if prev > 0 {
		lo, hi = math.Min(prev, price), math.Max(prev, price)
	}
	if sig.Direction == model.Long {
		return lo <= sig.Entry*(1+fillTolerancePct)
	}
	return hi >= sig.Entry*(1-fillTolerancePct)
}

// resolveExit checks whether price movement since the previous tick
// touched the take-profit or stop-loss. When the range spans both
// levels in a single tick the level nearer the entry wins, since price
// must have crossed it first; an exact tie resolves to the stop.
func resolveExit(sig *model.Signal, prev, price float64) (model.CloseReason, float64, bool) {
	lo, hi := price, price
	if prev > 0 {
		lo, hi = math.Min(prev, price), math.Max(prev, price)
	}

	var tpHit, slHit bool
	if sig.Direction == model.Long {
		tpHit = hi >= sig.TakeProfit
		slHit = lo <= sig.StopLoss
	} else {
		tpHit = lo <= sig.TakeProfit
		slHit = hi >= sig.StopLoss
	}

	switch {
	case tpHit && slHit:
		tpDist := math.Abs(sig.TakeProfit - sig.Entry)
		slDist := math.Abs(sig.StopLoss - sig.Entry)
		if tpDist < slDist {
			return model.CloseTP, sig.TakeProfit, true
		}
		return stopReason(sig), sig.StopLoss, true
	case tpHit:
		return model.CloseTP, sig.TakeProfit, true
	case slHit:
		return stopReason(sig), sig.StopLoss, true
	}
	return "", 0, false
}

// stopReason distinguishes a ratcheted trailing stop from the original
// stop-loss: once the stop has moved to or past breakeven the exit is
// a trail, not a loss at the planned stop.
func stopReason(sig *model.Signal) model.CloseReason {
	if sig.FillPrice > 0 {
		if sig.Direction == model.Long && sig.StopLoss >= sig.FillPrice {
			return model.CloseTrail
		}
		if sig.Direction == model.Short && sig.StopLoss <= sig.FillPrice {
			return model.CloseTrail
		}
	}
	return model.CloseSL
}
