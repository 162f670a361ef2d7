package indicator

import "signalbot/internal/model"

// obvHistory is how many trailing OBV values are kept so slope checks
// can look a few candles back.
const obvHistory = 6

// OBV calculates On-Balance Volume: cumulative volume signed by the
// direction of each close-to-close move. Keeps a short history ring so
// callers can read the value from a few candles ago.
type OBV struct {
	count     int
	prevClose float64
	current   float64
	hist      [obvHistory]float64
	histIdx   int
	histCount int
}

// NewOBV creates an OBV indicator.
func NewOBV() *OBV {
	return &OBV{}
}

func (o *OBV) Name() string { return "OBV" }

func (o *OBV) Update(candle model.Candle) {
	o.count++
	if o.count > 1 {
		switch {
		case candle.Close > o.prevClose:
			o.current += candle.Volume
		case candle.Close < o.prevClose:
			o.current -= candle.Volume
		}
	}
	o.prevClose = candle.Close

	o.hist[o.histIdx] = o.current
	o.histIdx = (o.histIdx + 1) % obvHistory
	if o.histCount < obvHistory {
		o.histCount++
	}
}

// Back returns the OBV value n candles ago (Back(0) == Value()).
// Returns the oldest retained value when n exceeds the history.
func (o *OBV) Back(n int) float64 {
	if n >= o.histCount {
		n = o.histCount - 1
	}
	if n < 0 {
		n = 0
	}
	j := (o.histIdx - 1 - n + 2*obvHistory) % obvHistory
	return o.hist[j]
}

func (o *OBV) Value() float64 { return o.current }
func (o *OBV) Ready() bool    { return o.count >= obvHistory }
