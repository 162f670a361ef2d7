package indicator

import (
	"fmt"

	"signalbot/internal/model"
)

// Default indicator parameters, matching common charting conventions.
const (
	rsiPeriod      = 14
	stochSmoothK   = 3
	stochSmoothD   = 3
	macdFast       = 12
	macdSlow       = 26
	macdSignal     = 9
	atrPeriod      = 14
	adxPeriod      = 14
	bbPeriod       = 20
	bbStdDev       = 2.0
	ichimokuTenkan = 9
	ichimokuKijun  = 26
	ichimokuSenkou = 52
	volumeSMALen   = 20
	swingLookback  = 20
)

// Provider computes a full IndicatorSnapshot from a candle series by
// replaying the series through fresh streaming indicators. Stateless
// and safe for concurrent use.
type Provider struct{}

// NewProvider creates an indicator provider.
func NewProvider() *Provider { return &Provider{} }

// Compute replays the series through every indicator and returns the
// snapshot as of the last candle. Previous-candle fields are captured
// one update before the end so callers can detect crosses.
func (p *Provider) Compute(series []model.Candle) (*model.IndicatorSnapshot, error) {
	if len(series) < MinSeriesLen {
		return nil, fmt.Errorf("series too short: %d candles, need %d", len(series), MinSeriesLen)
	}

	ema20 := NewEMA(20)
	ema50 := NewEMA(50)
	ema200 := NewEMA(200)
	rsi := NewRSI(rsiPeriod)
	stoch := NewStochRSI(rsiPeriod, stochSmoothK, stochSmoothD)
	macd := NewMACD(macdFast, macdSlow, macdSignal)
	atr := NewATR(atrPeriod)
	adx := NewADX(adxPeriod)
	bb := NewBollinger(bbPeriod, bbStdDev)
	ichi := NewIchimoku(ichimokuTenkan, ichimokuKijun, ichimokuSenkou)
	obv := NewOBV()
	volSMA := NewSMA(volumeSMALen)

	snap := &model.IndicatorSnapshot{}
	last := len(series) - 1

	for i, c := range series {
		if i == last {
			// Capture previous-candle values before the final update
			snap.PrevClose = series[i-1].Close
			snap.PrevRSI = rsi.Value()
			snap.PrevStochK = stoch.K()
			snap.PrevMACDLine = macd.Line()
			snap.PrevMACDSignal = macd.Signal()
			// Trailing volume average excludes the current candle
			snap.VolumeSMA = volSMA.Value()
		}

		ema20.Update(c)
		ema50.Update(c)
		ema200.Update(c)
		rsi.Update(c)
		stoch.Update(c)
		macd.Update(c)
		atr.Update(c)
		adx.Update(c)
		bb.Update(c)
		ichi.Update(c)
		obv.Update(c)
		volSMA.updateValue(c.Volume)
	}

	cur := series[last]
	snap.Close = cur.Close
	snap.Volume = cur.Volume

	snap.EMA20 = ema20.Value()
	snap.EMA50 = ema50.Value()
	snap.EMA200 = ema200.Value()
	snap.RSI = rsi.Value()
	snap.StochK = stoch.K()
	snap.StochD = stoch.D()
	snap.MACDLine = macd.Line()
	snap.MACDSignal = macd.Signal()
	snap.MACDHist = macd.Histogram()
	snap.ADX = adx.Value()
	snap.ATR = atr.Value()
	snap.BBUpper = bb.Upper()
	snap.BBMiddle = bb.Middle()
	snap.BBLower = bb.Lower()
	snap.BBPercentB = bb.PercentB(cur.Close)
	snap.TenkanSen = ichi.TenkanSen()
	snap.KijunSen = ichi.KijunSen()
	snap.SenkouA = ichi.SenkouA()
	snap.SenkouB = ichi.SenkouB()
	snap.OBV = obv.Value()
	snap.OBVPrev5 = obv.Back(5)
	if snap.VolumeSMA > 0 {
		snap.VolumeRatio = cur.Volume / snap.VolumeSMA
	}

	// Swing range over the recent lookback window
	snap.Swing20High = series[last].High
	snap.Swing20Low = series[last].Low
	for i := last - swingLookback + 1; i < last; i++ {
		if series[i].High > snap.Swing20High {
			snap.Swing20High = series[i].High
		}
		if series[i].Low < snap.Swing20Low {
			snap.Swing20Low = series[i].Low
		}
	}

	return snap, nil
}
