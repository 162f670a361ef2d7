// Package risk enforces admission control and owns the signal
// lifecycle state machine. All transitions (admit, fill, ratchet,
// close) go through the Manager so concurrency limits, cooldowns and
// the daily loss cap are checked and updated under one lock.
package risk

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"signalbot/config"
	"signalbot/internal/metrics"
	"signalbot/internal/model"
)

// Admission rejection reasons.
const (
	RejectHalted    = "halted"
	RejectCooldown  = "cooldown"
	RejectMaxOpen   = "max_concurrent"
	RejectPerSymbol = "max_per_symbol"
	RejectPerMode   = "max_per_mode"
	RejectCorrupted = "state_corrupted"
)

// ErrNotFound is returned for lifecycle calls against unknown codes.
var ErrNotFound = fmt.Errorf("signal not found")

// Manager tracks active signals, cooldowns and daily risk state.
type Manager struct {
	mu  sync.Mutex
	cfg *config.Config

	store    model.SignalStore
	notifier model.Notifier
	metrics  *metrics.Metrics

	active    map[string]*model.Signal // code → signal, Pending and Open
	openCount int                      // must always equal len(active)
	cooldowns map[string]model.CooldownEntry

	equity         float64
	dayStartEquity float64
	day            model.DailyStats
	halted         bool
	corrupted      bool

	now func() time.Time // injectable clock
}

// NewManager creates a risk manager seeded with the configured equity.
func NewManager(cfg *config.Config, store model.SignalStore, notifier model.Notifier, mtr *metrics.Metrics) *Manager {
	m := &Manager{
		cfg:            cfg,
		store:          store,
		notifier:       notifier,
		metrics:        mtr,
		active:         make(map[string]*model.Signal),
		cooldowns:      make(map[string]model.CooldownEntry),
		equity:         cfg.InitialEquity,
		dayStartEquity: cfg.InitialEquity,
		now:            time.Now,
	}
	m.day = model.DailyStats{Date: utcMidnight(m.now()), Equity: m.equity}
	return m
}

func utcMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Restore reloads active signals and unexpired cooldowns from the
// store. Call once at startup before the engine and monitor start.
func (m *Manager) Restore(ctx context.Context) error {
	signals, err := m.store.LoadOpenSignals(ctx)
	if err != nil {
		return fmt.Errorf("load open signals: %w", err)
	}
	cooldowns, err := m.store.LoadCooldowns(ctx, m.now())
	if err != nil {
		return fmt.Errorf("load cooldowns: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sig := range signals {
		m.active[sig.Code] = sig
		m.openCount++
	}
	for _, cd := range cooldowns {
		m.cooldowns[cd.Symbol+":"+string(cd.Mode)] = cd
	}
	log.Printf("[risk] restored %d active signals, %d cooldowns", len(m.active), len(m.cooldowns))
	m.updateGauges()
	return nil
}

// TryAdmit runs the admission checks against a candidate and, if all
// pass, registers a new Pending signal. Returns the signal, or a
// rejection reason. Checks run in a fixed order so the reported
// reason is deterministic.
func (m *Manager) TryAdmit(ctx context.Context, cand *model.SignalCandidate) (*model.Signal, string) {
	mode, ok := m.cfg.Modes[cand.Mode]
	if !ok {
		return nil, "unknown_mode"
	}

	m.mu.Lock()
	now := m.now()

	if m.corrupted {
		m.mu.Unlock()
		m.reject(RejectCorrupted)
		return nil, RejectCorrupted
	}
	if m.halted {
		m.mu.Unlock()
		m.reject(RejectHalted)
		return nil, RejectHalted
	}
	if cd, ok := m.cooldowns[cand.Symbol+":"+string(cand.Mode)]; ok {
		if now.Before(cd.Until) {
			m.mu.Unlock()
			m.reject(RejectCooldown)
			return nil, RejectCooldown
		}
		delete(m.cooldowns, cand.Symbol+":"+string(cand.Mode))
	}
	if m.openCount >= m.cfg.MaxConcurrentSignals {
		m.mu.Unlock()
		m.reject(RejectMaxOpen)
		return nil, RejectMaxOpen
	}
	perSymbol, perMode := 0, 0
	for _, sig := range m.active {
		if sig.Symbol == cand.Symbol {
			perSymbol++
		}
		if sig.Mode == cand.Mode {
			perMode++
		}
	}
	if perSymbol >= m.cfg.MaxPerSymbol {
		m.mu.Unlock()
		m.reject(RejectPerSymbol)
		return nil, RejectPerSymbol
	}
	if perMode >= m.cfg.MaxPerMode {
		m.mu.Unlock()
		m.reject(RejectPerMode)
		return nil, RejectPerMode
	}

	sig := &model.Signal{
		Code:        newSignalCode(now),
		Symbol:      cand.Symbol,
		Mode:        cand.Mode,
		Direction:   cand.Direction,
		Score:       cand.Score,
		Confidence:  cand.Confidence,
		Entry:       cand.Entry,
		StopLoss:    cand.StopLoss,
		TakeProfit:  cand.TakeProfit,
		Quantity:    cand.Quantity,
		RiskReward:  cand.RiskReward,
		TrailingPct: cand.TrailingPct,
		Tags:        cand.Tags,
		ADX:         cand.ADX,
		ATR:         cand.ATR,
		VolumeBoost: cand.VolumeBoost,
		Status:      model.StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(mode.OrderValidity),
	}
	m.active[sig.Code] = sig
	m.openCount++
	m.day.SignalsGenerated++
	m.day.SumADX += cand.ADX
	m.day.SumVolumeBoost += cand.VolumeBoost
	m.updateGauges()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SignalsGenerated.WithLabelValues(string(sig.Mode)).Inc()
	}
	log.Printf("[risk] admitted %s %s %s score=%d entry=%.4f sl=%.4f tp=%.4f",
		sig.Code, sig.Symbol, sig.Direction, sig.Score, sig.Entry, sig.StopLoss, sig.TakeProfit)

	m.persist(ctx, func(pctx context.Context) error {
		return m.store.SaveSignal(pctx, sig)
	})
	m.appendExecution(ctx, model.ExecutionEvent{
		Code: sig.Code, Type: model.ExecEntry, Price: sig.Entry, Quantity: sig.Quantity, TS: now,
	})
	return sig, ""
}

// MarkFilled transitions a Pending signal to Open at the given price.
func (m *Manager) MarkFilled(ctx context.Context, code string, price float64, ts time.Time) error {
	m.mu.Lock()
	sig, ok := m.active[code]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if sig.Status != model.StatusPending {
		m.mu.Unlock()
		return nil // already open or racing a close
	}
	sig.Status = model.StatusOpen
	sig.FillPrice = price
	sig.FilledAt = ts
	snapshot := *sig
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SignalsFilled.Inc()
	}
	log.Printf("[risk] %s filled at %.4f", code, price)
	m.persist(ctx, func(pctx context.Context) error {
		return m.store.UpdateSignal(pctx, &snapshot)
	})
	return nil
}

// RatchetStop tightens the stop of an Open signal. The stop only moves
// in the favorable direction; a looser stop is rejected silently.
func (m *Manager) RatchetStop(ctx context.Context, code string, newStop float64, ts time.Time) error {
	m.mu.Lock()
	sig, ok := m.active[code]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if sig.Status != model.StatusOpen {
		m.mu.Unlock()
		return nil
	}
	improved := (sig.Direction == model.Long && newStop > sig.StopLoss) ||
		(sig.Direction == model.Short && newStop < sig.StopLoss)
	if !improved {
		m.mu.Unlock()
		return nil
	}
	sig.StopLoss = newStop
	snapshot := *sig
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.TrailingRatchets.Inc()
	}
	m.persist(ctx, func(pctx context.Context) error {
		return m.store.UpdateSignal(pctx, &snapshot)
	})
	m.appendExecution(ctx, model.ExecutionEvent{
		Code: code, Type: model.ExecTrail, Price: newStop, Quantity: snapshot.Quantity, TS: ts,
	})
	return nil
}

// Close finalizes a signal: computes realized P&L, updates equity and
// daily stats, applies cooldown on a loss, and checks the daily loss
// cap. Idempotent — closing an already-closed signal returns
// ErrNotFound and changes nothing. Returns a copy of the closed signal.
func (m *Manager) Close(ctx context.Context, code string, reason model.CloseReason, price float64, ts time.Time) (*model.Signal, error) {
	m.mu.Lock()
	sig, ok := m.active[code]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if sig.Status.Terminal() {
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	expired := reason == model.CloseExpired
	sig.CloseReason = reason
	sig.ClosedAt = ts
	switch reason {
	case model.CloseTP:
		sig.Status = model.StatusHitTP
	case model.CloseSL, model.CloseTrail:
		sig.Status = model.StatusHitSL
	case model.CloseExpired:
		sig.Status = model.StatusExpired
	default:
		sig.Status = model.StatusCancelled
	}

	// Expired signals never filled, so they realize nothing
	if !expired && sig.FillPrice > 0 {
		sig.ClosePrice = price
		points := price - sig.FillPrice
		if sig.Direction == model.Short {
			points = sig.FillPrice - price
		}
		sig.PnLPoints = points
		sig.PnLQuote = points * sig.Quantity
		sig.PnLPercent = points / sig.FillPrice * 100
	}

	delete(m.active, code)
	m.openCount--
	m.checkCountersLocked(ctx)

	m.equity += sig.PnLQuote
	m.day.PnLQuote += sig.PnLQuote
	if m.dayStartEquity > 0 {
		m.day.RealizedPnLPct = m.day.PnLQuote / m.dayStartEquity
	}
	m.day.Equity = m.equity
	m.day.OpenCount = m.openCount
	switch {
	case expired:
		m.day.Expired++
	case sig.PnLQuote > 0:
		m.day.Wins++
	case sig.PnLQuote < 0:
		m.day.Losses++
	}

	var (
		cooled   bool
		cooldown model.CooldownEntry
	)
	if !expired && sig.PnLQuote < 0 {
		if mode, ok := m.cfg.Modes[sig.Mode]; ok {
			cooldown = model.CooldownEntry{
				Symbol: sig.Symbol,
				Mode:   sig.Mode,
				Reason: string(reason),
				Until:  ts.Add(mode.Cooldown),
			}
			m.cooldowns[sig.Symbol+":"+string(sig.Mode)] = cooldown
			cooled = true
		}
	}

	var haltTripped bool
	if !m.halted && m.day.RealizedPnLPct <= -m.cfg.DailyLossCap {
		m.halted = true
		m.day.Halted = true
		haltTripped = true
	}
	m.updateGauges()
	snapshot := *sig
	dayPct := m.day.RealizedPnLPct
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SignalsClosed.WithLabelValues(string(reason)).Inc()
	}
	log.Printf("[risk] closed %s reason=%s price=%.4f pnl=%.2f daily=%.2f%%",
		code, reason, price, snapshot.PnLQuote, dayPct*100)

	if cooled {
		m.persist(ctx, func(pctx context.Context) error {
			return m.store.SaveCooldown(pctx, cooldown)
		})
	}
	if haltTripped && m.notifier != nil {
		m.notifier.SendAlert(ctx, model.AlertCritical,
			fmt.Sprintf("daily loss cap hit (%.2f%%) — new signals halted until next UTC day", dayPct*100))
	}

	m.persist(ctx, func(pctx context.Context) error {
		return m.store.UpdateSignal(pctx, &snapshot)
	})
	execType := model.ExecExpire
	switch reason {
	case model.CloseTP:
		execType = model.ExecTP
	case model.CloseSL:
		execType = model.ExecSL
	case model.CloseTrail:
		execType = model.ExecTrail
	}
	m.appendExecution(ctx, model.ExecutionEvent{
		Code: code, Type: execType, Price: price, Quantity: snapshot.Quantity, TS: ts,
	})
	return &snapshot, nil
}

// checkCountersLocked validates the open-count invariant. A mismatch
// means lifecycle state is corrupted; stop admitting and page.
func (m *Manager) checkCountersLocked(ctx context.Context) {
	if m.openCount == len(m.active) && m.openCount >= 0 {
		return
	}
	if !m.corrupted {
		m.corrupted = true
		log.Printf("[risk] INVARIANT VIOLATION: openCount=%d active=%d", m.openCount, len(m.active))
		if m.notifier != nil {
			go m.notifier.SendAlert(context.WithoutCancel(ctx), model.AlertCritical,
				fmt.Sprintf("risk state corrupted: openCount=%d active=%d, admissions disabled", m.openCount, len(m.active)))
		}
	}
}

// ActiveSignals returns copies of all non-terminal signals.
func (m *Manager) ActiveSignals() []*model.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Signal, 0, len(m.active))
	for _, sig := range m.active {
		cp := *sig
		out = append(out, &cp)
	}
	return out
}

// Equity returns the current tracked equity.
func (m *Manager) Equity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.equity
}

// Halted reports whether the daily loss cap halt is in effect.
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// Today returns a copy of the running daily stats.
func (m *Manager) Today() model.DailyStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.day
}

// RunDailyReset rolls daily stats at each UTC midnight: persists the
// finished day, sends the summary, clears the halt, and re-bases the
// daily P&L percentage on current equity. Blocks until ctx is done.
func (m *Manager) RunDailyReset(ctx context.Context) {
	for {
		now := m.now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			m.rollDay(ctx)
		}
	}
}

func (m *Manager) rollDay(ctx context.Context) {
	m.mu.Lock()
	finished := m.day
	m.day = model.DailyStats{
		Date:      utcMidnight(m.now()),
		Equity:    m.equity,
		OpenCount: m.openCount,
	}
	m.dayStartEquity = m.equity
	m.halted = false
	m.updateGauges()
	m.mu.Unlock()

	log.Printf("[risk] daily rollover: %s pnl=%.2f (%.2f%%) wins=%d losses=%d expired=%d",
		finished.Date.Format("2006-01-02"), finished.PnLQuote, finished.RealizedPnLPct*100, finished.Wins, finished.Losses, finished.Expired)
	m.persist(ctx, func(pctx context.Context) error {
		return m.store.SaveDailyMetrics(pctx, finished)
	})
	if m.notifier != nil {
		m.notifier.SendDailySummary(ctx, finished)
	}
}

// updateGauges refreshes risk gauges. Caller must hold m.mu.
func (m *Manager) updateGauges() {
	if m.metrics == nil {
		return
	}
	m.metrics.OpenSignals.Set(float64(m.openCount))
	m.metrics.DailyPnLPct.Set(m.day.RealizedPnLPct)
	m.metrics.Equity.Set(m.equity)
	if m.halted {
		m.metrics.HaltActive.Set(1)
	} else {
		m.metrics.HaltActive.Set(0)
	}
}

func (m *Manager) reject(reason string) {
	if m.metrics != nil {
		m.metrics.AdmissionRejected.WithLabelValues(reason).Inc()
	}
}

// persist runs a store write, retrying in the background with
// exponential backoff if it fails. In-memory state is already updated
// by the time persist is called; the store catches up.
func (m *Manager) persist(ctx context.Context, write func(context.Context) error) {
	err := write(ctx)
	if err == nil {
		return
	}
	log.Printf("[risk] store write failed, retrying in background: %v", err)
	go func() {
		b := &backoff.Backoff{Min: time.Second, Max: time.Minute, Jitter: true}
		bg := context.WithoutCancel(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.Duration()):
			}
			if m.metrics != nil {
				m.metrics.PersistRetries.Inc()
			}
			if err := write(bg); err == nil {
				return
			}
		}
	}()
}

func (m *Manager) appendExecution(ctx context.Context, ev model.ExecutionEvent) {
	m.persist(ctx, func(pctx context.Context) error {
		return m.store.AppendExecution(pctx, ev)
	})
}
