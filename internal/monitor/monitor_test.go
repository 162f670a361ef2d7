package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signalbot/config"
	"signalbot/internal/model"
	"signalbot/internal/risk"
)

// ────────────────────────────────────────────────────────────
// Fakes
// ────────────────────────────────────────────────────────────

type nopStore struct{}

func (nopStore) SaveSignal(context.Context, *model.Signal) error          { return nil }
func (nopStore) UpdateSignal(context.Context, *model.Signal) error        { return nil }
func (nopStore) AppendExecution(context.Context, model.ExecutionEvent) error { return nil }
func (nopStore) SaveCooldown(context.Context, model.CooldownEntry) error  { return nil }
func (nopStore) LoadCooldowns(context.Context, time.Time) ([]model.CooldownEntry, error) {
	return nil, nil
}
func (nopStore) SaveDailyMetrics(context.Context, model.DailyStats) error { return nil }
func (nopStore) LoadOpenSignals(context.Context) ([]*model.Signal, error) { return nil, nil }
func (nopStore) Close() error                                             { return nil }

type fakeFeed struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{prices: make(map[string]float64), errs: make(map[string]error)}
}

func (f *fakeFeed) setPrice(symbol string, price float64) {
	f.mu.Lock()
	f.prices[symbol] = price
	delete(f.errs, symbol)
	f.mu.Unlock()
}

func (f *fakeFeed) setError(symbol string, err error) {
	f.mu.Lock()
	f.errs[symbol] = err
	f.mu.Unlock()
}

func (f *fakeFeed) GetCandles(context.Context, string, string, int) ([]model.Candle, error) {
	return nil, nil
}

func (f *fakeFeed) GetLatestPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[symbol]; ok {
		return 0, err
	}
	return f.prices[symbol], nil
}

type captureNotifier struct {
	mu      sync.Mutex
	results []*model.Signal
	alerts  []string
}

func (c *captureNotifier) SendNewSignal(context.Context, *model.Signal) error { return nil }

func (c *captureNotifier) SendResult(_ context.Context, s *model.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, s)
	return nil
}

func (c *captureNotifier) SendDailySummary(context.Context, model.DailyStats) error { return nil }

func (c *captureNotifier) SendAlert(_ context.Context, level model.AlertLevel, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, string(level)+": "+msg)
	return nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// ────────────────────────────────────────────────────────────
// Harness
// ────────────────────────────────────────────────────────────

type harness struct {
	mon      *Monitor
	mgr      *risk.Manager
	feed     *fakeFeed
	notifier *captureNotifier
	clock    *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Load()
	mgr := risk.NewManager(cfg, nopStore{}, nil, nil)
	feed := newFakeFeed()
	notifier := &captureNotifier{}
	// The risk manager keeps its own (unexported, real-time) clock, so the
	// harness clock must start at wall time for ExpiresAt comparisons to line up.
	clock := &testClock{t: time.Now()}
	mon := New(cfg, feed, mgr, notifier, nil, nil)
	mon.now = clock.Now
	return &harness{mon: mon, mgr: mgr, feed: feed, notifier: notifier, clock: clock}
}

// admit registers an INTRADAY long at entry 100, SL 98, TP 104.
func (h *harness) admit(t *testing.T) *model.Signal {
	t.Helper()
	sig, reason := h.mgr.TryAdmit(context.Background(), &model.SignalCandidate{
		Symbol:      "BTCUSDT",
		Mode:        model.ModeIntraday,
		Direction:   model.Long,
		Score:       70,
		Entry:       100,
		StopLoss:    98,
		TakeProfit:  104,
		Quantity:    10,
		TrailingPct: 0.005,
	})
	if sig == nil {
		t.Fatalf("admission rejected: %s", reason)
	}
	return sig
}

func (h *harness) find(code string) *model.Signal {
	for _, s := range h.mgr.ActiveSignals() {
		if s.Code == code {
			return s
		}
	}
	return nil
}

// ────────────────────────────────────────────────────────────
// Pending → Open
// ────────────────────────────────────────────────────────────

func TestTick_FillsPendingWithinTolerance(t *testing.T) {
	h := newHarness(t)
	sig := h.admit(t)
	ctx := context.Background()

	// 1% away: no fill
	h.feed.setPrice("BTCUSDT", 101)
	h.mon.Tick(ctx)
	if got := h.find(sig.Code); got == nil || got.Status != model.StatusPending {
		t.Fatalf("signal filled at 1%% distance: %+v", got)
	}

	// 0.05% away: fills
	h.feed.setPrice("BTCUSDT", 100.05)
	h.mon.Tick(ctx)
	got := h.find(sig.Code)
	if got == nil || got.Status != model.StatusOpen {
		t.Fatalf("signal not filled within tolerance: %+v", got)
	}
	if got.FillPrice != 100.05 {
		t.Fatalf("fill price=%.4f, want 100.05", got.FillPrice)
	}
}

func TestTick_FillsOnGapThroughEntry(t *testing.T) {
	h := newHarness(t)
	sig := h.admit(t)
	ctx := context.Background()

	// Above entry, outside tolerance: still pending
	h.feed.setPrice("BTCUSDT", 101)
	h.mon.Tick(ctx)
	if got := h.find(sig.Code); got == nil || got.Status != model.StatusPending {
		t.Fatalf("signal filled above entry: %+v", got)
	}

	// Next tick gaps straight through the entry to 99. The 101→99
	// range crossed 100, so the signal fills even though neither
	// observation sat near the entry.
	h.feed.setPrice("BTCUSDT", 99)
	h.mon.Tick(ctx)
	got := h.find(sig.Code)
	if got == nil || got.Status != model.StatusOpen {
		t.Fatalf("gap through entry did not fill: %+v", got)
	}
	if got.FillPrice != 99 {
		t.Fatalf("fill price=%.4f, want 99 (observed price)", got.FillPrice)
	}
}

func TestTick_ExpiresStalePending(t *testing.T) {
	h := newHarness(t)
	sig := h.admit(t)
	ctx := context.Background()

	h.feed.setPrice("BTCUSDT", 110) // far from entry, never fills
	h.clock.Advance(76 * time.Minute)
	h.mon.Tick(ctx)

	if h.find(sig.Code) != nil {
		t.Fatal("expired signal still active")
	}
	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	if len(h.notifier.results) != 1 || h.notifier.results[0].Status != model.StatusExpired {
		t.Fatalf("expiry result not sent: %+v", h.notifier.results)
	}
}

// ────────────────────────────────────────────────────────────
// Open → terminal
// ────────────────────────────────────────────────────────────

func (h *harness) admitAndFill(t *testing.T) *model.Signal {
	t.Helper()
	sig := h.admit(t)
	h.feed.setPrice("BTCUSDT", 100)
	h.mon.Tick(context.Background())
	if got := h.find(sig.Code); got == nil || got.Status != model.StatusOpen {
		t.Fatalf("fill failed: %+v", got)
	}
	return sig
}

func TestTick_TakeProfitClosesAtLevel(t *testing.T) {
	h := newHarness(t)
	sig := h.admitAndFill(t)
	ctx := context.Background()

	h.feed.setPrice("BTCUSDT", 104.2)
	h.mon.Tick(ctx)

	if h.find(sig.Code) != nil {
		t.Fatal("signal still active after TP")
	}
	h.notifier.mu.Lock()
	closed := h.notifier.results[len(h.notifier.results)-1]
	h.notifier.mu.Unlock()
	if closed.Status != model.StatusHitTP {
		t.Fatalf("status=%s, want %s", closed.Status, model.StatusHitTP)
	}
	// Closed at the level, not the observed price
	if closed.ClosePrice != 104 {
		t.Fatalf("close price=%.4f, want 104.0", closed.ClosePrice)
	}
	if closed.PnLQuote != 40 {
		t.Fatalf("pnl=%.2f, want 40", closed.PnLQuote)
	}
}

func TestTick_StopLossClosesAtLevel(t *testing.T) {
	h := newHarness(t)
	sig := h.admitAndFill(t)
	ctx := context.Background()

	h.feed.setPrice("BTCUSDT", 97.5)
	h.mon.Tick(ctx)

	if h.find(sig.Code) != nil {
		t.Fatal("signal still active after SL")
	}
	h.notifier.mu.Lock()
	closed := h.notifier.results[len(h.notifier.results)-1]
	h.notifier.mu.Unlock()
	if closed.Status != model.StatusHitSL || closed.ClosePrice != 98 {
		t.Fatalf("close: status=%s price=%.4f, want HIT_SL at 98", closed.Status, closed.ClosePrice)
	}
}

// ────────────────────────────────────────────────────────────
// Exit resolution
// ────────────────────────────────────────────────────────────

func openLong(entry, sl, tp float64) *model.Signal {
	return &model.Signal{
		Direction: model.Long, Status: model.StatusOpen,
		Entry: entry, StopLoss: sl, TakeProfit: tp, FillPrice: entry,
	}
}

func openShort(entry, sl, tp float64) *model.Signal {
	return &model.Signal{
		Direction: model.Short, Status: model.StatusOpen,
		Entry: entry, StopLoss: sl, TakeProfit: tp, FillPrice: entry,
	}
}

func TestResolveExit_RangeSpansBoth_NearerLevelWins(t *testing.T) {
	// SL 2 points away, TP 3 points away: the gap crossed SL first
	reason, level, hit := resolveExit(openLong(100, 98, 103), 104, 97)
	if !hit || reason != model.CloseSL || level != 98 {
		t.Fatalf("got %s at %.2f (hit=%v), want SL at 98", reason, level, hit)
	}

	// TP 2 points away, SL 3 points away: TP is nearer
	reason, level, hit = resolveExit(openLong(100, 97, 102), 96, 103)
	if !hit || reason != model.CloseTP || level != 102 {
		t.Fatalf("got %s at %.2f (hit=%v), want TP at 102", reason, level, hit)
	}
}

func TestResolveExit_EqualDistanceResolvesToStop(t *testing.T) {
	reason, level, hit := resolveExit(openLong(100, 97, 103), 104, 96)
	if !hit || reason != model.CloseSL || level != 97 {
		t.Fatalf("got %s at %.2f (hit=%v), want SL at 97", reason, level, hit)
	}
}

func TestResolveExit_ShortDirections(t *testing.T) {
	// Short: TP below entry, SL above
	reason, level, hit := resolveExit(openShort(100, 102, 96), 99, 95.5)
	if !hit || reason != model.CloseTP || level != 96 {
		t.Fatalf("short TP: got %s at %.2f (hit=%v)", reason, level, hit)
	}
	reason, level, hit = resolveExit(openShort(100, 102, 96), 101, 102.5)
	if !hit || reason != model.CloseSL || level != 102 {
		t.Fatalf("short SL: got %s at %.2f (hit=%v)", reason, level, hit)
	}
}

func TestResolveExit_NoPrevUsesSpotOnly(t *testing.T) {
	// Without a previous price there is no range; 103.9 touches nothing
	if _, _, hit := resolveExit(openLong(100, 98, 104), 0, 103.9); hit {
		t.Fatal("exit resolved from a price that touched no level")
	}
}

func TestEntryHit_ShortFillsFromBelow(t *testing.T) {
	sig := &model.Signal{Direction: model.Short, Entry: 100}
	if entryHit(sig, 0, 99.5) {
		t.Fatal("short filled while price still below entry")
	}
	if !entryHit(sig, 99, 101) {
		t.Fatal("short did not fill on a gap up through entry")
	}
}

// ────────────────────────────────────────────────────────────
// Trailing stop
// ────────────────────────────────────────────────────────────

func TestTrail_RatchetsUpAndNeverLoosens(t *testing.T) {
	h := newHarness(t)
	sig := h.admitAndFill(t)
	ctx := context.Background()

	// 100.5 clears the arming threshold (100 × 1.005); stop tightens
	// from 98 to 100.5 × 0.995 = 99.9975
	h.feed.setPrice("BTCUSDT", 100.5)
	h.mon.Tick(ctx)
	if got := h.find(sig.Code); got.StopLoss < 99.99 || got.StopLoss > 99.998 {
		t.Fatalf("stop=%.4f, want ≈99.9975", got.StopLoss)
	}

	// Price eases back: the stop must hold, never loosen
	h.feed.setPrice("BTCUSDT", 100.2)
	h.mon.Tick(ctx)
	if got := h.find(sig.Code); got.StopLoss < 99.99 {
		t.Fatalf("stop loosened to %.4f", got.StopLoss)
	}
}

func TestTrail_NoRatchetBeforeFavorableMove(t *testing.T) {
	h := newHarness(t)
	sig := h.admitAndFill(t)
	ctx := context.Background()

	// Price below the 100 fill: the ratchet must stay disarmed even
	// though 99 × 0.995 = 98.505 would tighten the 98 stop
	h.feed.setPrice("BTCUSDT", 99)
	h.mon.Tick(ctx)
	if got := h.find(sig.Code); got.StopLoss != 98 {
		t.Fatalf("stop moved to %.4f on adverse price, want 98", got.StopLoss)
	}

	// Above the fill but short of one full trailing increment: still disarmed
	h.feed.setPrice("BTCUSDT", 100.4)
	h.mon.Tick(ctx)
	if got := h.find(sig.Code); got.StopLoss != 98 {
		t.Fatalf("stop moved to %.4f below arming threshold, want 98", got.StopLoss)
	}

	// One full increment beyond the fill arms the ratchet
	h.feed.setPrice("BTCUSDT", 100.5)
	h.mon.Tick(ctx)
	if got := h.find(sig.Code); got.StopLoss <= 98 {
		t.Fatalf("stop=%.4f, want ratchet above 98", got.StopLoss)
	}
}

func TestTrail_CapsAtBreakeven(t *testing.T) {
	h := newHarness(t)
	sig := h.admitAndFill(t)
	ctx := context.Background()

	// 103 × 0.995 = 102.485 would be past the 100 fill; cap at breakeven
	h.feed.setPrice("BTCUSDT", 103)
	h.mon.Tick(ctx)
	if got := h.find(sig.Code); got.StopLoss != 100 {
		t.Fatalf("stop=%.4f, want breakeven cap at 100", got.StopLoss)
	}
}

func TestTrail_BreakevenExitReportsTrail(t *testing.T) {
	h := newHarness(t)
	sig := h.admitAndFill(t)
	ctx := context.Background()

	h.feed.setPrice("BTCUSDT", 103)
	h.mon.Tick(ctx) // stop ratchets to breakeven
	h.feed.setPrice("BTCUSDT", 99.5)
	h.mon.Tick(ctx) // range 103→99.5 crosses the ratcheted stop

	if h.find(sig.Code) != nil {
		t.Fatal("signal still active after trailing stop hit")
	}
	h.notifier.mu.Lock()
	closed := h.notifier.results[len(h.notifier.results)-1]
	h.notifier.mu.Unlock()
	if closed.CloseReason != model.CloseTrail {
		t.Fatalf("close reason=%s, want %s", closed.CloseReason, model.CloseTrail)
	}
	if closed.PnLQuote != 0 {
		t.Fatalf("breakeven exit pnl=%.2f, want 0", closed.PnLQuote)
	}
}

// ────────────────────────────────────────────────────────────
// Feed failures
// ────────────────────────────────────────────────────────────

func TestFeedFailure_AlertsOnceAfterThreshold(t *testing.T) {
	h := newHarness(t)
	sig := h.admit(t)
	ctx := context.Background()

	h.feed.setError("BTCUSDT", errors.New("exchange unavailable"))
	for i := 0; i < feedFailureAlertAfter+2; i++ {
		h.mon.Tick(ctx)
	}

	h.notifier.mu.Lock()
	alerts := len(h.notifier.alerts)
	h.notifier.mu.Unlock()
	if alerts != 1 {
		t.Fatalf("alerts=%d, want exactly 1", alerts)
	}
	// Feed trouble never force-closes a signal
	if h.find(sig.Code) == nil {
		t.Fatal("signal closed on feed failure")
	}

	// Recovery clears the counter; the monitor resumes normally
	h.feed.setPrice("BTCUSDT", 100)
	h.mon.Tick(ctx)
	if got := h.find(sig.Code); got == nil || got.Status != model.StatusOpen {
		t.Fatal("signal did not fill after feed recovery")
	}
}
