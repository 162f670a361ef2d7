// Package indicator implements streaming technical indicators.
// Every indicator consumes candles one at a time with O(1) work per
// update, so a full series recompute is linear in the series length.
package indicator

import "signalbot/internal/model"

// Indicator is the common contract for all streaming indicators.
type Indicator interface {
	Name() string
	Update(candle model.Candle)
	Value() float64
	Ready() bool
}

// MinSeriesLen is the minimum number of candles Compute accepts.
// EMA(200) is the slowest indicator to warm up; the extra margin lets
// Wilder-smoothed values (RSI, ATR, ADX) converge past their seed.
const MinSeriesLen = 210
