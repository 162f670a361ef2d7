// Package engine evaluates symbols for confluence-based trade signals.
// Each mode (scalping, intraday, swing) runs its own evaluation cycle;
// candidates that clear the gates are handed to the risk manager.
package engine

import (
	"math"
	"time"

	"signalbot/config"
	"signalbot/internal/model"
)

// Rejection reasons reported by Evaluate.
const (
	RejectIndicators = "indicators"
	RejectADXGate    = "adx_gate"
	RejectTie        = "direction_tie"
	RejectLowScore   = "low_score"
	RejectFlatATR    = "flat_atr"
	RejectRiskReward = "risk_reward"
	RejectQuantity   = "quantity"
)

// minRiskReward is the floor on take-profit vs stop-loss distance.
const minRiskReward = 1.2

// Confidence thresholds.
const (
	confidenceHigh   = 80
	confidenceMedium = 65
)

// Evaluator scores candle series into signal candidates. Stateless;
// all inputs arrive per call, so it is safe for concurrent use.
type Evaluator struct {
	cfg      *config.Config
	provider model.IndicatorProvider
}

// NewEvaluator creates an evaluator backed by the given indicator provider.
func NewEvaluator(cfg *config.Config, provider model.IndicatorProvider) *Evaluator {
	return &Evaluator{cfg: cfg, provider: provider}
}

// Evaluate scores one symbol under one mode. Returns a candidate when
// every gate passes, otherwise nil and the rejection reason.
func (e *Evaluator) Evaluate(symbol string, mode config.ModeConfig, primary, confirm []model.Candle, equity float64) (*model.SignalCandidate, string) {
	p, err := e.provider.Compute(primary)
	if err != nil {
		return nil, RejectIndicators
	}
	c, err := e.provider.Compute(confirm)
	if err != nil {
		return nil, RejectIndicators
	}
	return e.evaluateSnapshots(symbol, mode, p, c, equity)
}

func (e *Evaluator) evaluateSnapshots(symbol string, mode config.ModeConfig, p, c *model.IndicatorSnapshot, equity float64) (*model.SignalCandidate, string) {
	// Hard gate: no signal without trend strength on the confirmation TF
	if c.ADX < mode.ADXMin {
		return nil, RejectADXGate
	}

	sc := score(p, c, mode.Name, mode.ADXMin, mode.VolumeBoostMin)
	dir, total, tags, ok := sc.resolve()
	if !ok {
		return nil, RejectTie
	}
	if total < mode.ScoreMin {
		return nil, RejectLowScore
	}

	if p.ATR <= 0 {
		return nil, RejectFlatATR
	}

	entry := p.Close
	slDist := mode.SLATRMult * p.ATR
	tpDist := tpMultiplier(mode, total) * p.ATR

	var stopLoss, takeProfit float64
	if dir == model.Long {
		stopLoss = entry - slDist
		takeProfit = entry + tpDist
	} else {
		stopLoss = entry + slDist
		takeProfit = entry - tpDist
	}

	rr := tpDist / slDist
	if rr < minRiskReward {
		return nil, RejectRiskReward
	}

	qty := positionSize(equity, e.cfg.RiskPerTrade, slDist, e.cfg.QtyStep)
	if qty <= 0 {
		return nil, RejectQuantity
	}

	return &model.SignalCandidate{
		Symbol:      symbol,
		Mode:        mode.Name,
		Direction:   dir,
		Score:       total,
		Confidence:  confidence(total),
		Entry:       entry,
		StopLoss:    stopLoss,
		TakeProfit:  takeProfit,
		Quantity:    qty,
		RiskReward:  rr,
		TrailingPct: mode.TrailingPct,
		Tags:        tags,
		ADX:         c.ADX,
		ATR:         p.ATR,
		VolumeBoost: p.VolumeRatio - 1,
		Primary:     p,
		Confirm:     c,
		CreatedAt:   time.Now().UTC(),
	}, ""
}

// tpMultiplier scales the take-profit ATR multiplier linearly with the
// score: the mode minimum at the score floor, the mode maximum at 100.
func tpMultiplier(mode config.ModeConfig, score int) float64 {
	span := mode.TPATRMultMax - mode.TPATRMultMin
	denom := float64(maxScore - mode.ScoreMin)
	if denom <= 0 {
		return mode.TPATRMultMax
	}
	frac := float64(score-mode.ScoreMin) / denom
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return mode.TPATRMultMin + span*frac
}

// positionSize converts the per-trade risk budget into a quantity,
// floored to the instrument's step size.
func positionSize(equity, riskPerTrade, slDist, step float64) float64 {
	if slDist <= 0 || step <= 0 {
		return 0
	}
	riskAmount := equity * riskPerTrade
	qty := riskAmount / slDist
	return math.Floor(qty/step) * step
}

func confidence(score int) string {
	switch {
	case score >= confidenceHigh:
		return "HIGH"
	case score >= confidenceMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}
