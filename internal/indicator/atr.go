package indicator

import (
	"math"

	"signalbot/internal/model"
)

// ATR calculates Average True Range with Wilder's smoothing.
type ATR struct {
	period    int
	count     int
	prevClose float64
	sum       float64
	current   float64
}

// NewATR creates an ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string { return "ATR" }

func (a *ATR) Update(candle model.Candle) {
	a.count++
	if a.count == 1 {
		// First candle has no previous close; TR degenerates to the range
		a.sum = candle.High - candle.Low
		a.prevClose = candle.Close
		return
	}

	tr := trueRange(candle.High, candle.Low, a.prevClose)
	a.prevClose = candle.Close

	if a.count <= a.period {
		a.sum += tr
		if a.count == a.period {
			a.current = a.sum / float64(a.period)
		}
		return
	}

	p := float64(a.period)
	a.current = (a.current*(p-1) + tr) / p
}

func trueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if d := math.Abs(high - prevClose); d > tr {
		tr = d
	}
	if d := math.Abs(low - prevClose); d > tr {
		tr = d
	}
	return tr
}

func (a *ATR) Value() float64 { return a.current }
func (a *ATR) Ready() bool    { return a.count >= a.period }
