package indicator

import (
	"math"

	"signalbot/internal/model"
)

// Bollinger calculates Bollinger Bands: an SMA middle band with upper
// and lower bands a fixed number of standard deviations away.
type Bollinger struct {
	period int
	stddev float64
	buf    []float64 // circular window of closes
	idx    int
	count  int
	upper  float64
	middle float64
	lower  float64
}

// NewBollinger creates Bollinger Bands with the given period and
// standard-deviation multiplier (typically 20, 2.0).
func NewBollinger(period int, stddev float64) *Bollinger {
	return &Bollinger{
		period: period,
		stddev: stddev,
		buf:    make([]float64, period),
	}
}

func (b *Bollinger) Name() string { return "Bollinger" }

func (b *Bollinger) Update(candle model.Candle) {
	b.buf[b.idx] = candle.Close
	b.idx = (b.idx + 1) % b.period
	b.count++
	if b.count < b.period {
		return
	}

	sum := 0.0
	for _, v := range b.buf {
		sum += v
	}
	mean := sum / float64(b.period)

	variance := 0.0
	for _, v := range b.buf {
		d := v - mean
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(b.period))

	b.middle = mean
	b.upper = mean + b.stddev*sd
	b.lower = mean - b.stddev*sd
}

// Upper returns the upper band.
func (b *Bollinger) Upper() float64 { return b.upper }

// Middle returns the middle band (SMA).
func (b *Bollinger) Middle() float64 { return b.middle }

// Lower returns the lower band.
func (b *Bollinger) Lower() float64 { return b.lower }

// PercentB returns where price sits within the bands: 0 at the lower
// band, 1 at the upper. Values outside [0,1] mean price closed outside.
func (b *Bollinger) PercentB(price float64) float64 {
	width := b.upper - b.lower
	if width == 0 {
		return 0.5
	}
	return (price - b.lower) / width
}

func (b *Bollinger) Value() float64 { return b.middle }
func (b *Bollinger) Ready() bool    { return b.count >= b.period }
