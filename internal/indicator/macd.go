package indicator

import "signalbot/internal/model"

// MACD calculates Moving Average Convergence Divergence: the difference
// of a fast and slow EMA, plus a signal-line EMA of that difference.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
	line   float64
}

// NewMACD creates a MACD with the given fast, slow and signal periods
// (typically 12, 26, 9).
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fast:   NewEMA(fastPeriod),
		slow:   NewEMA(slowPeriod),
		signal: NewEMA(signalPeriod),
	}
}

func (m *MACD) Name() string { return "MACD" }

func (m *MACD) Update(candle model.Candle) {
	m.fast.Update(candle)
	m.slow.Update(candle)
	if !m.slow.Ready() {
		return
	}
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.updatePrice(m.line)
}

// Line returns the MACD line (fast EMA − slow EMA).
func (m *MACD) Line() float64 { return m.line }

// Signal returns the signal line (EMA of the MACD line).
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Histogram returns MACD line minus signal line.
func (m *MACD) Histogram() float64 { return m.line - m.signal.Value() }

func (m *MACD) Value() float64 { return m.line }
func (m *MACD) Ready() bool    { return m.slow.Ready() && m.signal.Ready() }
