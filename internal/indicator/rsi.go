package indicator

import "signalbot/internal/model"

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// Update is O(1) per candle — no history scans.
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string { return "RSI" }

func (r *RSI) Update(candle model.Candle) {
	price := candle.Close
	r.count++

	if r.count == 1 {
		// First candle — just record price, no delta yet
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain := 0.0
	loss := 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		// Accumulation phase: build initial averages
		r.avgGain += gain
		r.avgLoss += loss

		if r.count == r.period+1 {
			// First RSI value using SMA seed
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiFromAverages(r.avgGain, r.avgLoss)
		}
		return
	}

	// Wilder's smoothing: avgGain = (prevAvgGain * (period-1) + gain) / period
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiFromAverages(r.avgGain, r.avgLoss)
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.count > r.period }

// StochRSI applies the stochastic oscillator to RSI values and smooths
// the result twice: %K is an SMA of the raw stochastic, %D an SMA of %K.
// Output is scaled to 0–100.
type StochRSI struct {
	rsi    *RSI
	window []float64 // last rsiPeriod RSI values, circular
	idx    int
	count  int
	k      *SMA
	d      *SMA
}

// NewStochRSI creates a StochRSI with the given RSI/stochastic period
// and smoothing periods (typically 14, 3, 3).
func NewStochRSI(period, smoothK, smoothD int) *StochRSI {
	return &StochRSI{
		rsi:    NewRSI(period),
		window: make([]float64, period),
		k:      NewSMA(smoothK),
		d:      NewSMA(smoothD),
	}
}

func (s *StochRSI) Name() string { return "StochRSI" }

func (s *StochRSI) Update(candle model.Candle) {
	s.rsi.Update(candle)
	if !s.rsi.Ready() {
		return
	}

	v := s.rsi.Value()
	s.window[s.idx] = v
	s.idx = (s.idx + 1) % len(s.window)
	s.count++
	if s.count < len(s.window) {
		return
	}

	lo, hi := s.window[0], s.window[0]
	for _, w := range s.window[1:] {
		if w < lo {
			lo = w
		}
		if w > hi {
			hi = w
		}
	}

	raw := 0.0
	if hi > lo {
		raw = (v - lo) / (hi - lo) * 100.0
	}
	s.k.updateValue(raw)
	if s.k.Ready() {
		s.d.updateValue(s.k.Value())
	}
}

// K returns the smoothed %K line.
func (s *StochRSI) K() float64 { return s.k.Value() }

// D returns the %D signal line.
func (s *StochRSI) D() float64 { return s.d.Value() }

func (s *StochRSI) Value() float64 { return s.k.Value() }
func (s *StochRSI) Ready() bool    { return s.d.Ready() }
