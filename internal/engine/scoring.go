package engine

import (
	"math"

	"signalbot/internal/model"
)

// Confluence component weights. The total is capped at 100.
const (
	ptsTrend      = 20
	ptsMACDCross  = 20
	ptsADX        = 10
	ptsRSICross   = 10
	ptsStochExit  = 10
	ptsVolume     = 10
	ptsEMARetest  = 10
	ptsBollinger  = 5
	ptsFibZone    = 10
	ptsOBVSlope   = 10
	maxScore      = 100
	retestTolPct  = 0.002 // price within 0.2% of EMA50 counts as a retest
	stochOversold = 20
	stochOverbght = 80
)

// scorecard accumulates directional votes from confluence components.
// Neutral components (trend strength, volume) don't pick a side; their
// points go to whichever direction wins the vote.
type scorecard struct {
	long    int
	short   int
	neutral int

	longTags    []string
	shortTags   []string
	neutralTags []string
}

func (s *scorecard) voteLong(pts int, tag string) {
	s.long += pts
	s.longTags = append(s.longTags, tag)
}

func (s *scorecard) voteShort(pts int, tag string) {
	s.short += pts
	s.shortTags = append(s.shortTags, tag)
}

func (s *scorecard) voteNeutral(pts int, tag string) {
	s.neutral += pts
	s.neutralTags = append(s.neutralTags, tag)
}

// resolve picks the winning direction and its final score. A tie
// (including zero–zero) yields no direction.
func (s *scorecard) resolve() (model.Direction, int, []string, bool) {
	if s.long == s.short {
		return "", 0, nil, false
	}
	dir := model.Long
	pts := s.long
	tags := s.longTags
	if s.short > s.long {
		dir = model.Short
		pts = s.short
		tags = s.shortTags
	}
	score := pts + s.neutral
	if score > maxScore {
		score = maxScore
	}
	return dir, score, append(tags, s.neutralTags...), true
}

// score runs every confluence component against the primary snapshot,
// with the confirmation snapshot backing the trend component.
func score(p, c *model.IndicatorSnapshot, mode model.Mode, adxMin, volumeBoostMin float64) *scorecard {
	sc := &scorecard{}

	switch trendBias(p, c, mode) {
	case model.Long:
		sc.voteLong(ptsTrend, "trend")
	case model.Short:
		sc.voteShort(ptsTrend, "trend")
	}

	// MACD line crossing its signal line on the latest candle
	if p.PrevMACDLine <= p.PrevMACDSignal && p.MACDLine > p.MACDSignal {
		sc.voteLong(ptsMACDCross, "macd_cross")
	} else if p.PrevMACDLine >= p.PrevMACDSignal && p.MACDLine < p.MACDSignal {
		sc.voteShort(ptsMACDCross, "macd_cross")
	}

	if c.ADX >= adxMin {
		sc.voteNeutral(ptsADX, "adx")
	}

	// RSI crossing the 50 midline
	if p.PrevRSI <= 50 && p.RSI > 50 {
		sc.voteLong(ptsRSICross, "rsi_cross")
	} else if p.PrevRSI >= 50 && p.RSI < 50 {
		sc.voteShort(ptsRSICross, "rsi_cross")
	}

	// StochRSI leaving an extreme with slope agreement
	if p.PrevStochK <= stochOversold && p.StochK > stochOversold && p.StochK > p.PrevStochK {
		sc.voteLong(ptsStochExit, "stoch_exit")
	} else if p.PrevStochK >= stochOverbght && p.StochK < stochOverbght && p.StochK < p.PrevStochK {
		sc.voteShort(ptsStochExit, "stoch_exit")
	}

	if p.VolumeRatio >= 1+volumeBoostMin {
		sc.voteNeutral(ptsVolume, "volume")
	}

	// Pullback retest of EMA50 in an established trend
	if p.EMA50 > 0 {
		dist := math.Abs(p.Close-p.EMA50) / p.EMA50
		if dist <= retestTolPct {
			if p.EMA20 > p.EMA50 {
				sc.voteLong(ptsEMARetest, "ema50_retest")
			} else if p.EMA20 < p.EMA50 {
				sc.voteShort(ptsEMARetest, "ema50_retest")
			}
		}
	}

	// Price stretched to a Bollinger extreme
	if p.BBPercentB <= 0.2 {
		sc.voteLong(ptsBollinger, "bb_lower")
	} else if p.BBPercentB >= 0.8 {
		sc.voteShort(ptsBollinger, "bb_upper")
	}

	fibZone(p, sc)

	// OBV slope over the last five candles
	if p.OBV > p.OBVPrev5 {
		sc.voteLong(ptsOBVSlope, "obv")
	} else if p.OBV < p.OBVPrev5 {
		sc.voteShort(ptsOBVSlope, "obv")
	}

	return sc
}

// trendBias derives the trend direction from the EMA stack on the
// primary timeframe, confirmed by the higher timeframe. Swing mode
// additionally requires price on the right side of the Ichimoku cloud.
func trendBias(p, c *model.IndicatorSnapshot, mode model.Mode) model.Direction {
	longBias := p.EMA20 > p.EMA50 && p.EMA50 > p.EMA200 && c.EMA20 > c.EMA50
	shortBias := p.EMA20 < p.EMA50 && p.EMA50 < p.EMA200 && c.EMA20 < c.EMA50

	if mode == model.ModeSwing {
		cloudTop := math.Max(p.SenkouA, p.SenkouB)
		cloudBottom := math.Min(p.SenkouA, p.SenkouB)
		longBias = longBias && p.Close > cloudTop
		shortBias = shortBias && p.Close < cloudBottom
	}

	switch {
	case longBias:
		return model.Long
	case shortBias:
		return model.Short
	default:
		return ""
	}
}

// fibZone votes when price sits in the 0.5–0.618 retracement band of
// the recent swing range: a pullback zone measured from the swing high
// for longs, from the swing low for shorts.
func fibZone(p *model.IndicatorSnapshot, sc *scorecard) {
	swing := p.Swing20High - p.Swing20Low
	if swing <= 0 {
		return
	}
	longLo := p.Swing20High - 0.618*swing
	longHi := p.Swing20High - 0.5*swing
	shortLo := p.Swing20Low + 0.5*swing
	shortHi := p.Swing20Low + 0.618*swing

	if p.Close >= longLo && p.Close <= longHi {
		sc.voteLong(ptsFibZone, "fib_zone")
	} else if p.Close >= shortLo && p.Close <= shortHi {
		sc.voteShort(ptsFibZone, "fib_zone")
	}
}
