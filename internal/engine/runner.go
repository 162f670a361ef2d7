package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"signalbot/config"
	"signalbot/internal/metrics"
	"signalbot/internal/model"
	"signalbot/internal/risk"
)

// candleCount is how many candles the runner fetches per timeframe.
// Must exceed indicator warm-up; the margin absorbs the odd missing
// candle from the exchange.
const candleCount = 250

// maxParallelSymbols bounds concurrent evaluations within one cycle so
// a long symbol list cannot stampede the exchange API.
const maxParallelSymbols = 3

// Runner drives the evaluation loop: one goroutine per mode, fanning
// out over the configured symbols each cycle.
type Runner struct {
	cfg       *config.Config
	evaluator *Evaluator
	feed      model.MarketDataFeed
	riskMgr   *risk.Manager
	notifier  model.Notifier
	metrics   *metrics.Metrics
	health    *metrics.HealthStatus
}

// NewRunner wires the evaluation loop to its collaborators. The
// metrics and health handles may be nil in tests.
func NewRunner(cfg *config.Config, ev *Evaluator, feed model.MarketDataFeed, rm *risk.Manager, notifier model.Notifier, mtr *metrics.Metrics, health *metrics.HealthStatus) *Runner {
	return &Runner{
		cfg:       cfg,
		evaluator: ev,
		feed:      feed,
		riskMgr:   rm,
		notifier:  notifier,
		metrics:   mtr,
		health:    health,
	}
}

// Run starts one evaluation loop per mode and blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	if r.health != nil {
		r.health.SetEngineOK(true)
		defer r.health.SetEngineOK(false)
	}

	var wg sync.WaitGroup
	for _, mode := range r.cfg.Modes {
		wg.Add(1)
		go func(mc config.ModeConfig) {
			defer wg.Done()
			r.runMode(ctx, mc)
		}(mode)
	}
	wg.Wait()
}

func (r *Runner) runMode(ctx context.Context, mode config.ModeConfig) {
	log.Printf("[engine] %s loop started (every %s, %s/%s)", mode.Name, mode.CycleEvery, mode.PrimaryTF, mode.ConfirmTF)
	ticker := time.NewTicker(mode.CycleEvery)
	defer ticker.Stop()

	r.cycle(ctx, mode)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cycle(ctx, mode)
		}
	}
}

// cycle evaluates every configured symbol under one mode, bounded by a
// semaphore so evaluations overlap without flooding the feed.
func (r *Runner) cycle(ctx context.Context, mode config.ModeConfig) {
	start := time.Now()
	sem := make(chan struct{}, maxParallelSymbols)
	var wg sync.WaitGroup

	for _, symbol := range r.cfg.Symbols {
		select {
		case <-ctx.Done():
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			r.evaluateSymbol(ctx, symbol, mode)
		}(symbol)
	}
	wg.Wait()

	if r.metrics != nil {
		r.metrics.EvalCycleDur.Observe(time.Since(start).Seconds())
	}
}

func (r *Runner) evaluateSymbol(ctx context.Context, symbol string, mode config.ModeConfig) {
	primary, err := r.feed.GetCandles(ctx, symbol, mode.PrimaryTF, candleCount)
	if err != nil {
		r.feedError("candles", "[engine] %s %s: primary candles: %v", symbol, mode.Name, err)
		return
	}
	confirm, err := r.feed.GetCandles(ctx, symbol, mode.ConfirmTF, candleCount)
	if err != nil {
		r.feedError("candles", "[engine] %s %s: confirm candles: %v", symbol, mode.Name, err)
		return
	}

	cand, reject := r.evaluator.Evaluate(symbol, mode, primary, confirm, r.riskMgr.Equity())
	if cand == nil {
		if r.metrics != nil {
			r.metrics.CandidatesTotal.WithLabelValues(string(mode.Name), "rejected").Inc()
		}
		if reject != RejectADXGate && reject != RejectTie && reject != RejectLowScore {
			// Quiet the common no-setup outcomes; log the unusual ones
			log.Printf("[engine] %s %s: rejected (%s)", symbol, mode.Name, reject)
		}
		return
	}
	if r.metrics != nil {
		r.metrics.CandidatesTotal.WithLabelValues(string(mode.Name), "emitted").Inc()
	}

	sig, reason := r.riskMgr.TryAdmit(ctx, cand)
	if sig == nil {
		log.Printf("[engine] %s %s: candidate blocked by risk gate (%s)", symbol, mode.Name, reason)
		return
	}

	if r.notifier != nil {
		if err := r.notifier.SendNewSignal(ctx, sig); err != nil {
			log.Printf("[engine] notify %s: %v", sig.Code, err)
		}
	}
}

func (r *Runner) feedError(op, format string, args ...any) {
	if r.metrics != nil {
		r.metrics.FeedErrors.WithLabelValues(op).Inc()
	}
	log.Printf(format, args...)
}
