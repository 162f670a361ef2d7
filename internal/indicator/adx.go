package indicator

import "signalbot/internal/model"

// ADX calculates the Average Directional Index, Wilder's measure of
// trend strength. Tracks smoothed +DM, -DM and TR, derives +DI/-DI,
// then smooths the resulting DX into ADX.
type ADX struct {
	period   int
	count    int
	prevHigh float64
	prevLow  float64
	prevCls  float64

	smTR      float64 // Wilder-smoothed true range
	smPlusDM  float64
	smMinusDM float64

	dxCount int
	dxSum   float64
	current float64
}

// NewADX creates an ADX indicator with the given period (typically 14).
func NewADX(period int) *ADX {
	return &ADX{period: period}
}

func (a *ADX) Name() string { return "ADX" }

func (a *ADX) Update(candle model.Candle) {
	a.count++
	if a.count == 1 {
		a.prevHigh, a.prevLow, a.prevCls = candle.High, candle.Low, candle.Close
		return
	}

	upMove := candle.High - a.prevHigh
	downMove := a.prevLow - candle.Low

	plusDM, minusDM := 0.0, 0.0
	if upMove > downMove && upMove > 0 {
		plusDM = upMove
	}
	if downMove > upMove && downMove > 0 {
		minusDM = downMove
	}
	tr := trueRange(candle.High, candle.Low, a.prevCls)
	a.prevHigh, a.prevLow, a.prevCls = candle.High, candle.Low, candle.Close

	p := float64(a.period)
	if a.count <= a.period+1 {
		// Accumulation phase for the initial smoothed sums
		a.smTR += tr
		a.smPlusDM += plusDM
		a.smMinusDM += minusDM
		if a.count < a.period+1 {
			return
		}
	} else {
		// Wilder smoothing: sm = sm - sm/period + new
		a.smTR = a.smTR - a.smTR/p + tr
		a.smPlusDM = a.smPlusDM - a.smPlusDM/p + plusDM
		a.smMinusDM = a.smMinusDM - a.smMinusDM/p + minusDM
	}

	if a.smTR == 0 {
		return
	}
	plusDI := 100.0 * a.smPlusDM / a.smTR
	minusDI := 100.0 * a.smMinusDM / a.smTR

	diSum := plusDI + minusDI
	if diSum == 0 {
		return
	}
	dx := 100.0 * abs(plusDI-minusDI) / diSum

	a.dxCount++
	if a.dxCount <= a.period {
		a.dxSum += dx
		if a.dxCount == a.period {
			a.current = a.dxSum / p
		}
		return
	}
	a.current = (a.current*(p-1) + dx) / p
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func (a *ADX) Value() float64 { return a.current }
func (a *ADX) Ready() bool    { return a.dxCount >= a.period }
