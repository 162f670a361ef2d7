package model

import (
	"encoding/json"
	"time"
)

// Mode identifies a trading profile. Each mode binds a primary and a
// confirmation timeframe plus its own thresholds (see config.ModeConfig).
type Mode string

const (
	ModeScalping Mode = "SCALPING"
	ModeIntraday Mode = "INTRADAY"
	ModeSwing    Mode = "SWING"
)

// Direction of a signal.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Status is the lifecycle state of a committed signal.
type Status string

const (
	StatusPending   Status = "PENDING" // waiting for price to trade through entry
	StatusOpen      Status = "OPEN"    // entry filled, tracked against TP/SL
	StatusHitTP     Status = "HIT_TP"
	StatusHitSL     Status = "HIT_SL"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether s is a final state. Terminal signals are immutable.
func (s Status) Terminal() bool {
	switch s {
	case StatusHitTP, StatusHitSL, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// CloseReason records why a signal left the Open/Pending state.
type CloseReason string

const (
	CloseTP      CloseReason = "TP"
	CloseSL      CloseReason = "SL"
	CloseTrail   CloseReason = "TRAIL"
	CloseExpired CloseReason = "EXPIRED"
	CloseManual  CloseReason = "MANUAL"
)

// SignalCandidate is the Signal Engine's output before risk admission.
// It carries everything needed to commit a Signal plus the indicator
// snapshots it was scored from, for audit.
type SignalCandidate struct {
	Symbol      string    `json:"symbol"`
	Mode        Mode      `json:"mode"`
	Direction   Direction `json:"direction"`
	Score       int       `json:"score"` // 0–100 confluence score
	Confidence  string    `json:"confidence"`
	Entry       float64   `json:"entry"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfit  float64   `json:"take_profit"`
	Quantity    float64   `json:"quantity"`
	RiskReward  float64   `json:"risk_reward"`
	TrailingPct float64   `json:"trailing_pct"`
	Tags        []string  `json:"tags"` // scoring components that fired

	ADX         float64 `json:"adx"`
	ATR         float64 `json:"atr"`
	VolumeBoost float64 `json:"volume_boost"`

	Primary *IndicatorSnapshot `json:"primary,omitempty"`
	Confirm *IndicatorSnapshot `json:"confirm,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Signal is the committed, identity-bearing entity. Created by admission
// through the risk manager and mutated exclusively by the signal monitor;
// once Terminal it is immutable.
type Signal struct {
	Code string `json:"code"` // globally unique, immutable

	Symbol      string    `json:"symbol"`
	Mode        Mode      `json:"mode"`
	Direction   Direction `json:"direction"`
	Score       int       `json:"score"`
	Confidence  string    `json:"confidence"`
	Entry       float64   `json:"entry"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfit  float64   `json:"take_profit"`
	Quantity    float64   `json:"quantity"`
	RiskReward  float64   `json:"risk_reward"`
	TrailingPct float64   `json:"trailing_pct"`
	Tags        []string  `json:"tags"`
	ADX         float64   `json:"adx"`
	ATR         float64   `json:"atr"`
	VolumeBoost float64   `json:"volume_boost"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	FillPrice float64   `json:"fill_price,omitempty"`
	FilledAt  time.Time `json:"filled_at,omitempty"`

	CloseReason CloseReason `json:"close_reason,omitempty"`
	ClosePrice  float64     `json:"close_price,omitempty"`
	ClosedAt    time.Time   `json:"closed_at,omitempty"`

	PnLPercent float64 `json:"pnl_percent,omitempty"`
	PnLPoints  float64 `json:"pnl_points,omitempty"`
	PnLQuote   float64 `json:"pnl_quote,omitempty"` // in quote currency units
}

// Key returns the (symbol, mode) pair key, used for cooldown bookkeeping.
func (s *Signal) Key() string {
	return s.Symbol + ":" + string(s.Mode)
}

// JSON returns the JSON-encoded signal (ignoring errors for event publishing).
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// ExecutionEvent is one append-only lifecycle record for a signal:
// entry fill, trailing-stop ratchet, or close.
type ExecutionEvent struct {
	Code     string    `json:"code"`
	Type     string    `json:"type"` // ENTRY, TP, SL, TRAIL, EXPIRE
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
	TS       time.Time `json:"ts"`
}

// Execution event types.
const (
	ExecEntry  = "ENTRY"
	ExecTP     = "TP"
	ExecSL     = "SL"
	ExecTrail  = "TRAIL"
	ExecExpire = "EXPIRE"
)

// CooldownEntry blocks new admissions for a (symbol, mode) pair until Until.
type CooldownEntry struct {
	Symbol string    `json:"symbol"`
	Mode   Mode      `json:"mode"`
	Reason string    `json:"reason"` // LOSS, MANUAL
	Until  time.Time `json:"until"`
}

// DailyStats is the per-UTC-day risk and performance snapshot owned by the
// risk manager and persisted at every close and at the day boundary.
type DailyStats struct {
	Date time.Time `json:"date"` // UTC midnight of the day

	RealizedPnLPct float64 `json:"realized_pnl_pct"` // cumulative, fraction of day-start equity
	PnLQuote       float64 `json:"pnl_quote"`
	Equity         float64 `json:"equity"`

	SignalsGenerated int `json:"signals_generated"`
	Wins             int `json:"wins"`
	Losses           int `json:"losses"`
	Expired          int `json:"expired"`
	OpenCount        int `json:"open_count"` // Pending + Open right now

	SumADX         float64 `json:"sum_adx"`
	SumVolumeBoost float64 `json:"sum_volume_boost"`

	Halted bool `json:"halted"` // daily loss cap reached
}

// WinRate returns wins / decided closes, or 0 when nothing closed yet.
func (d *DailyStats) WinRate() float64 {
	decided := d.Wins + d.Losses
	if decided == 0 {
		return 0
	}
	return float64(d.Wins) / float64(decided)
}
