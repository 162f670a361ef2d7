package model

import (
	"encoding/json"
	"time"
)

// Candle represents one closed OHLCV bucket for a (symbol, timeframe) pair.
// Prices are float64 quote-currency units; crypto pairs quote fractional
// prices and quantities, so integer minor units are not practical here.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"` // "1m", "5m", "15m", "1h", "4h", "1d"
	TS        time.Time `json:"ts"`        // bucket open time (UTC)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Key returns a unique key for this candle's series: "symbol:timeframe".
func (c *Candle) Key() string {
	return c.Symbol + ":" + c.Timeframe
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// IndicatorSnapshot holds the indicator values computed over one candle
// series at one evaluation instant. Prev* fields carry the value one candle
// back so that cross detection does not need the raw series.
type IndicatorSnapshot struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	TS        time.Time `json:"ts"`

	Close     float64 `json:"close"`
	PrevClose float64 `json:"prev_close"`
	Volume    float64 `json:"volume"`

	EMA20  float64 `json:"ema_20"`
	EMA50  float64 `json:"ema_50"`
	EMA200 float64 `json:"ema_200"`

	RSI     float64 `json:"rsi"`
	PrevRSI float64 `json:"prev_rsi"`

	StochK     float64 `json:"stoch_rsi_k"`
	StochD     float64 `json:"stoch_rsi_d"`
	PrevStochK float64 `json:"prev_stoch_rsi_k"`

	MACDLine       float64 `json:"macd_line"`
	MACDSignal     float64 `json:"macd_signal"`
	MACDHist       float64 `json:"macd_histogram"`
	PrevMACDLine   float64 `json:"prev_macd_line"`
	PrevMACDSignal float64 `json:"prev_macd_signal"`

	ADX float64 `json:"adx"`
	ATR float64 `json:"atr"`

	BBUpper    float64 `json:"bb_upper"`
	BBMiddle   float64 `json:"bb_middle"`
	BBLower    float64 `json:"bb_lower"`
	BBPercentB float64 `json:"bb_pband"`

	TenkanSen float64 `json:"tenkan_sen"`
	KijunSen  float64 `json:"kijun_sen"`
	SenkouA   float64 `json:"senkou_span_a"`
	SenkouB   float64 `json:"senkou_span_b"`

	OBV      float64 `json:"obv"`
	OBVPrev5 float64 `json:"obv_prev_5"` // OBV five candles back, for slope checks

	VolumeSMA   float64 `json:"volume_sma"`
	VolumeRatio float64 `json:"volume_ratio"` // current volume / 20-candle SMA

	Swing20High float64 `json:"swing_20_high"`
	Swing20Low  float64 `json:"swing_20_low"`
}
