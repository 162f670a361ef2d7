package indicator

import (
	"math"
	"testing"

	"signalbot/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func candle(close float64) model.Candle {
	return model.Candle{
		Symbol: "BTCUSDT", Timeframe: "1m",
		Open: close, High: close + 0.5, Low: close - 0.5, Close: close,
		Volume: 100,
	}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Hand-calculated SMA(3) for a known price series:
	// Prices: 100, 102, 104, 103, 105
	// SMA after candle 3: (100+102+104)/3 = 102.0000
	// SMA after candle 4: (102+104+103)/3 = 103.0000
	// SMA after candle 5: (104+103+105)/3 = 104.0000

	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(candle(p))
		if sma.Ready() != ready[i] {
			t.Errorf("candle %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 0.0001)
		}
	}
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5
	// Prices: 100, 102, 104, 103, 105
	//
	// Candle 3: initial EMA = (100+102+104)/3 = 102.0 (SMA seed)
	// Candle 4: EMA = 103*0.5 + 102.0*0.5 = 102.5
	// Candle 5: EMA = 105*0.5 + 102.5*0.5 = 103.75

	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.5, 103.75}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		ema.Update(candle(p))
		if ema.Ready() != ready[i] {
			t.Errorf("candle %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 0.0001)
		}
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness
// ────────────────────────────────────────────────────────────

func TestRSI_AllGains_Is100(t *testing.T) {
	rsi := NewRSI(3)
	for _, p := range []float64{100, 101, 102, 103, 104} {
		rsi.Update(candle(p))
	}
	if !rsi.Ready() {
		t.Fatal("RSI not ready after 5 candles with period 3")
	}
	assertClose(t, "RSI all gains", rsi.Value(), 100.0, 0.0001)
}

func TestRSI_Correctness_Period3(t *testing.T) {
	// Prices: 100, 101, 103, 102, 104
	// Deltas: +1, +2, -1, +2
	// Seed over first 3 deltas: avgGain=(1+2+0)/3=1.0, avgLoss=(0+0+1)/3=0.3333
	//   RS = 3.0 → RSI = 100 - 100/4 = 75.0
	// Candle 5 (delta +2): avgGain=(1.0*2+2)/3=1.3333, avgLoss=(0.3333*2+0)/3=0.2222
	//   RS = 6.0 → RSI = 100 - 100/7 = 85.714286

	rsi := NewRSI(3)
	prices := []float64{100, 101, 103, 102, 104}
	for i, p := range prices {
		rsi.Update(candle(p))
		if i == 3 {
			assertClose(t, "RSI seed", rsi.Value(), 75.0, 0.0001)
		}
	}
	assertClose(t, "RSI smoothed", rsi.Value(), 85.714286, 0.0001)
}

// ────────────────────────────────────────────────────────────
// MACD Correctness
// ────────────────────────────────────────────────────────────

func TestMACD_LineIsFastMinusSlow(t *testing.T) {
	macd := NewMACD(3, 5, 3)
	fast := NewEMA(3)
	slow := NewEMA(5)

	prices := []float64{100, 102, 101, 104, 106, 105, 108, 110, 109, 112}
	for _, p := range prices {
		c := candle(p)
		macd.Update(c)
		fast.Update(c)
		slow.Update(c)
	}

	if !macd.Ready() {
		t.Fatal("MACD not ready after 10 candles")
	}
	assertClose(t, "MACD line", macd.Line(), fast.Value()-slow.Value(), 0.0001)
	assertClose(t, "MACD histogram", macd.Histogram(), macd.Line()-macd.Signal(), 0.0001)
}

func TestMACD_UptrendGoesPositive(t *testing.T) {
	macd := NewMACD(3, 5, 3)
	price := 100.0
	for i := 0; i < 40; i++ {
		price += 1.0
		macd.Update(candle(price))
	}
	if macd.Line() <= 0 {
		t.Errorf("MACD line in sustained uptrend: got %.4f, want > 0", macd.Line())
	}
}

// ────────────────────────────────────────────────────────────
// ATR Correctness
// ────────────────────────────────────────────────────────────

func TestATR_ConstantRange(t *testing.T) {
	// Candles with identical close and High-Low = 1.0 everywhere:
	// every TR is 1.0, so ATR must converge to exactly 1.0.
	atr := NewATR(5)
	for i := 0; i < 20; i++ {
		atr.Update(model.Candle{Open: 100, High: 100.5, Low: 99.5, Close: 100, Volume: 10})
	}
	if !atr.Ready() {
		t.Fatal("ATR not ready")
	}
	assertClose(t, "ATR constant range", atr.Value(), 1.0, 0.0001)
}

func TestATR_GapIncludedInTrueRange(t *testing.T) {
	// Second candle gaps up: TR = max(H-L, |H-prevC|, |L-prevC|)
	// prevC=100, then H=110, L=109 → TR = |110-100| = 10
	atr := NewATR(2)
	atr.Update(model.Candle{Open: 100, High: 100.5, Low: 99.5, Close: 100})
	atr.Update(model.Candle{Open: 109, High: 110, Low: 109, Close: 109.5})
	// Seed = (range1 + TR2)/2 = (1 + 10)/2
	assertClose(t, "ATR with gap", atr.Value(), 5.5, 0.0001)
}

// ────────────────────────────────────────────────────────────
// ADX Correctness
// ────────────────────────────────────────────────────────────

func TestADX_StrongTrendReadsHigh(t *testing.T) {
	// Relentless one-directional move: -DM is always zero, so DX = 100
	// every candle and ADX converges toward 100.
	adx := NewADX(14)
	price := 100.0
	for i := 0; i < 120; i++ {
		price += 2.0
		adx.Update(model.Candle{Open: price - 1, High: price + 1, Low: price - 2, Close: price})
	}
	if !adx.Ready() {
		t.Fatal("ADX not ready after 120 candles")
	}
	if adx.Value() < 80 {
		t.Errorf("ADX in relentless trend: got %.2f, want >= 80", adx.Value())
	}
}

func TestADX_FlatMarketReadsLow(t *testing.T) {
	adx := NewADX(14)
	for i := 0; i < 120; i++ {
		// Alternate small up/down moves with no net direction
		off := 0.5
		if i%2 == 0 {
			off = -0.5
		}
		adx.Update(model.Candle{Open: 100, High: 100.6 + off/10, Low: 99.4 + off/10, Close: 100 + off/10})
	}
	if adx.Value() > 40 {
		t.Errorf("ADX in flat market: got %.2f, want <= 40", adx.Value())
	}
}

// ────────────────────────────────────────────────────────────
// Bollinger Correctness
// ────────────────────────────────────────────────────────────

func TestBollinger_ConstantPriceCollapses(t *testing.T) {
	bb := NewBollinger(5, 2.0)
	for i := 0; i < 10; i++ {
		bb.Update(candle(100))
	}
	assertClose(t, "BB middle", bb.Middle(), 100, 0.0001)
	assertClose(t, "BB upper", bb.Upper(), 100, 0.0001)
	assertClose(t, "BB lower", bb.Lower(), 100, 0.0001)
	// Degenerate band width: %B falls back to midpoint
	assertClose(t, "BB %B degenerate", bb.PercentB(100), 0.5, 0.0001)
}

func TestBollinger_Correctness_Period4(t *testing.T) {
	// Closes: 98, 102, 98, 102 → mean 100, population stddev 2
	// Upper = 100 + 2*2 = 104, Lower = 96
	bb := NewBollinger(4, 2.0)
	for _, p := range []float64{98, 102, 98, 102} {
		bb.Update(candle(p))
	}
	assertClose(t, "BB middle", bb.Middle(), 100, 0.0001)
	assertClose(t, "BB upper", bb.Upper(), 104, 0.0001)
	assertClose(t, "BB lower", bb.Lower(), 96, 0.0001)
	assertClose(t, "BB %B at lower", bb.PercentB(96), 0.0, 0.0001)
	assertClose(t, "BB %B at upper", bb.PercentB(104), 1.0, 0.0001)
}

// ────────────────────────────────────────────────────────────
// OBV Correctness
// ────────────────────────────────────────────────────────────

func TestOBV_SignedAccumulation(t *testing.T) {
	// Closes 100→101 (+100 vol), 101→100 (−100), 100→102 (+100), flat (0)
	obv := NewOBV()
	obv.Update(model.Candle{Close: 100, Volume: 100})
	obv.Update(model.Candle{Close: 101, Volume: 100})
	obv.Update(model.Candle{Close: 100, Volume: 100})
	obv.Update(model.Candle{Close: 102, Volume: 100})
	obv.Update(model.Candle{Close: 102, Volume: 100})
	assertClose(t, "OBV", obv.Value(), 100, 0.0001)
}

func TestOBV_BackReturnsHistory(t *testing.T) {
	obv := NewOBV()
	for i := 0; i < 10; i++ {
		obv.Update(model.Candle{Close: float64(100 + i), Volume: 10})
	}
	// Each up candle adds 10; Back(5) is OBV five candles before current
	assertClose(t, "OBV back 5", obv.Value()-obv.Back(5), 50, 0.0001)
}

// ────────────────────────────────────────────────────────────
// StochRSI bounds
// ────────────────────────────────────────────────────────────

func TestStochRSI_BoundedZeroToHundred(t *testing.T) {
	stoch := NewStochRSI(14, 3, 3)
	price := 100.0
	for i := 0; i < 100; i++ {
		// Oscillating series to exercise both extremes
		if i%7 < 4 {
			price += 1.5
		} else {
			price -= 2.0
		}
		stoch.Update(candle(price))
		if stoch.Ready() {
			if stoch.K() < 0 || stoch.K() > 100 {
				t.Fatalf("candle %d: %%K out of bounds: %.4f", i, stoch.K())
			}
			if stoch.D() < 0 || stoch.D() > 100 {
				t.Fatalf("candle %d: %%D out of bounds: %.4f", i, stoch.D())
			}
		}
	}
	if !stoch.Ready() {
		t.Fatal("StochRSI not ready after 100 candles")
	}
}

// ────────────────────────────────────────────────────────────
// Ichimoku Correctness
// ────────────────────────────────────────────────────────────

func TestIchimoku_FlatSeries(t *testing.T) {
	// All candles identical: every midpoint is (high+low)/2
	ichi := NewIchimoku(9, 26, 52)
	for i := 0; i < 60; i++ {
		ichi.Update(model.Candle{High: 102, Low: 98, Close: 100})
	}
	if !ichi.Ready() {
		t.Fatal("Ichimoku not ready after 60 candles")
	}
	assertClose(t, "Tenkan", ichi.TenkanSen(), 100, 0.0001)
	assertClose(t, "Kijun", ichi.KijunSen(), 100, 0.0001)
	assertClose(t, "SenkouA", ichi.SenkouA(), 100, 0.0001)
	assertClose(t, "SenkouB", ichi.SenkouB(), 100, 0.0001)
}

func TestIchimoku_TenkanTracksRecentRange(t *testing.T) {
	ichi := NewIchimoku(9, 26, 52)
	// 52 candles at 100, then 9 candles stepping up to shift only the
	// short Tenkan window fully into the new range
	for i := 0; i < 52; i++ {
		ichi.Update(model.Candle{High: 101, Low: 99, Close: 100})
	}
	for i := 0; i < 9; i++ {
		ichi.Update(model.Candle{High: 111, Low: 109, Close: 110})
	}
	assertClose(t, "Tenkan after shift", ichi.TenkanSen(), 110, 0.0001)
	if ichi.KijunSen() >= 110 {
		t.Errorf("Kijun should still straddle old range: got %.2f", ichi.KijunSen())
	}
}

// ────────────────────────────────────────────────────────────
// Provider
// ────────────────────────────────────────────────────────────

func trendingSeries(n int, start, step float64) []model.Candle {
	out := make([]model.Candle, n)
	price := start
	for i := range out {
		price += step
		out[i] = model.Candle{
			Symbol: "BTCUSDT", Timeframe: "1m",
			Open: price - step, High: price + 1, Low: price - step - 1, Close: price,
			Volume: 100 + float64(i%10)*5,
		}
	}
	return out
}

func TestProvider_RejectsShortSeries(t *testing.T) {
	p := NewProvider()
	if _, err := p.Compute(trendingSeries(MinSeriesLen-1, 100, 0.5)); err == nil {
		t.Fatal("expected error for short series")
	}
}

func TestProvider_PopulatesSnapshot(t *testing.T) {
	p := NewProvider()
	series := trendingSeries(250, 100, 0.5)
	snap, err := p.Compute(series)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	last := series[len(series)-1]
	assertClose(t, "Close", snap.Close, last.Close, 0.0001)
	assertClose(t, "PrevClose", snap.PrevClose, series[len(series)-2].Close, 0.0001)

	// Sustained uptrend: fast EMA above slow, MACD positive, RSI elevated
	if snap.EMA20 <= snap.EMA50 || snap.EMA50 <= snap.EMA200 {
		t.Errorf("uptrend EMA stack broken: 20=%.2f 50=%.2f 200=%.2f", snap.EMA20, snap.EMA50, snap.EMA200)
	}
	if snap.MACDLine <= 0 {
		t.Errorf("MACD line in uptrend: got %.4f, want > 0", snap.MACDLine)
	}
	if snap.RSI < 60 {
		t.Errorf("RSI in steady uptrend: got %.2f, want >= 60", snap.RSI)
	}
	if snap.ATR <= 0 {
		t.Errorf("ATR: got %.4f, want > 0", snap.ATR)
	}
	if snap.ADX <= 0 {
		t.Errorf("ADX: got %.4f, want > 0", snap.ADX)
	}
	if snap.Swing20High < last.High {
		t.Errorf("Swing20High %.2f below last high %.2f", snap.Swing20High, last.High)
	}
	if snap.VolumeRatio <= 0 {
		t.Errorf("VolumeRatio: got %.4f, want > 0", snap.VolumeRatio)
	}
	if snap.OBV <= snap.OBVPrev5 {
		t.Errorf("OBV slope in uptrend: cur=%.0f prev5=%.0f", snap.OBV, snap.OBVPrev5)
	}
}

func TestProvider_VolumeSMATrailsCurrentCandle(t *testing.T) {
	p := NewProvider()
	series := trendingSeries(250, 100, 0.5)
	for i := range series {
		series[i].Volume = 100
	}
	series[len(series)-1].Volume = 300 // spike on the evaluated candle

	snap, err := p.Compute(series)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	// The average covers the candles before the spike, so the spike
	// measures against flat volume rather than against itself.
	assertClose(t, "VolumeSMA", snap.VolumeSMA, 100, 0.0001)
	assertClose(t, "VolumeRatio", snap.VolumeRatio, 3.0, 0.0001)
}
