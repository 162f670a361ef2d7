package indicator

import "signalbot/internal/model"

// Ichimoku calculates the Ichimoku Cloud lines from rolling high/low
// windows. Senkou spans are reported unshifted: they describe the
// cloud boundary computed from the most recent candles, which is what
// trend-bias checks compare price against.
type Ichimoku struct {
	tenkanPeriod int
	kijunPeriod  int
	senkouPeriod int

	highs []float64 // circular, senkouPeriod long (largest window)
	lows  []float64
	idx   int
	count int

	tenkan  float64
	kijun   float64
	senkouA float64
	senkouB float64
}

// NewIchimoku creates an Ichimoku indicator with the given Tenkan,
// Kijun and Senkou B periods (typically 9, 26, 52).
func NewIchimoku(tenkanPeriod, kijunPeriod, senkouPeriod int) *Ichimoku {
	return &Ichimoku{
		tenkanPeriod: tenkanPeriod,
		kijunPeriod:  kijunPeriod,
		senkouPeriod: senkouPeriod,
		highs:        make([]float64, senkouPeriod),
		lows:         make([]float64, senkouPeriod),
	}
}

func (i *Ichimoku) Name() string { return "Ichimoku" }

func (i *Ichimoku) Update(candle model.Candle) {
	i.highs[i.idx] = candle.High
	i.lows[i.idx] = candle.Low
	i.idx = (i.idx + 1) % i.senkouPeriod
	i.count++

	if i.count < i.senkouPeriod {
		return
	}

	i.tenkan = i.midpoint(i.tenkanPeriod)
	i.kijun = i.midpoint(i.kijunPeriod)
	i.senkouA = (i.tenkan + i.kijun) / 2
	i.senkouB = i.midpoint(i.senkouPeriod)
}

// midpoint returns (highest high + lowest low) / 2 over the last n candles.
func (i *Ichimoku) midpoint(n int) float64 {
	hi, lo := 0.0, 0.0
	for k := 1; k <= n; k++ {
		j := (i.idx - k + i.senkouPeriod) % i.senkouPeriod
		if k == 1 {
			hi, lo = i.highs[j], i.lows[j]
			continue
		}
		if i.highs[j] > hi {
			hi = i.highs[j]
		}
		if i.lows[j] < lo {
			lo = i.lows[j]
		}
	}
	return (hi + lo) / 2
}

// TenkanSen returns the conversion line.
func (i *Ichimoku) TenkanSen() float64 { return i.tenkan }

// KijunSen returns the base line.
func (i *Ichimoku) KijunSen() float64 { return i.kijun }

// SenkouA returns leading span A.
func (i *Ichimoku) SenkouA() float64 { return i.senkouA }

// SenkouB returns leading span B.
func (i *Ichimoku) SenkouB() float64 { return i.senkouB }

func (i *Ichimoku) Value() float64 { return i.kijun }
func (i *Ichimoku) Ready() bool    { return i.count >= i.senkouPeriod }
