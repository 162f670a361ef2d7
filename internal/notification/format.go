// Package notification delivers signal lifecycle messages to external
// channels (Telegram, webhooks) and to the log. Delivery is best
// effort: callers log failures and never block the signal lifecycle on
// them.
package notification

import (
	"fmt"
	"strings"
	"time"

	"signalbot/internal/model"
)

func directionEmoji(d model.Direction) string {
	if d == model.Long {
		return "🟩"
	}
	return "🟥"
}

// formatNewSignal renders the new-signal announcement.
func formatNewSignal(s *model.Signal) string {
	atrPct := 0.0
	if s.Entry > 0 {
		atrPct = s.ATR / s.Entry * 100
	}
	var b strings.Builder
	b.WriteString("🚀 NEW SIGNAL\n\n")
	fmt.Fprintf(&b, "PAIR      : %s\n", s.Symbol)
	fmt.Fprintf(&b, "MODE      : %s\n", s.Mode)
	fmt.Fprintf(&b, "SIGNAL    : %s %s | ADX: %.1f\n", s.Direction, directionEmoji(s.Direction), s.ADX)
	fmt.Fprintf(&b, "ENTRY     : %.6f   (qty %.6f)\n", s.Entry, s.Quantity)
	fmt.Fprintf(&b, "SL/TP     : %.6f  | %.6f   (RR 1:%.1f, trail %.1f%%)\n",
		s.StopLoss, s.TakeProfit, s.RiskReward, s.TrailingPct*100)
	fmt.Fprintf(&b, "VOL/ATR   : Vol +%.1f%% vs 20-candle | ATR(14)=%.2f%%\n", s.VolumeBoost*100, atrPct)
	fmt.Fprintf(&b, "CODE      : %s\n\n", s.Code)
	fmt.Fprintf(&b, "Score: %d | Confidence: %s", s.Score, s.Confidence)
	return b.String()
}

// formatResult renders the close announcement for a terminal signal.
func formatResult(s *model.Signal) string {
	result := "LOSE"
	resultEmoji := "❌"
	switch {
	case s.Status == model.StatusHitTP || s.PnLQuote > 0:
		result = "WIN"
		resultEmoji = "✅"
	case s.Status == model.StatusExpired:
		result = "EXPIRED"
		resultEmoji = "⌛"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s SIGNAL RESULT\n\n", resultEmoji)
	fmt.Fprintf(&b, "CODE      : %s\n", s.Code)
	fmt.Fprintf(&b, "PAIR      : %s\n", s.Symbol)
	fmt.Fprintf(&b, "SIGNAL    : %s %s\n", s.Direction, directionEmoji(s.Direction))
	fmt.Fprintf(&b, "ENTRY     : %.6f   (qty %.6f)\n", s.FillPrice, s.Quantity)
	fmt.Fprintf(&b, "INFO      : %s | %.6f | %s", s.CloseReason, s.ClosePrice, result)
	if s.PnLPercent != 0 {
		pnlEmoji := "💸"
		if s.PnLPercent > 0 {
			pnlEmoji = "💰"
		}
		fmt.Fprintf(&b, "\nPnL       : %.2f%% %s", s.PnLPercent, pnlEmoji)
	}
	return b.String()
}

// formatDailySummary renders the UTC-day performance summary.
func formatDailySummary(d model.DailyStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 DAILY SUMMARY - %s\n\n", d.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "Signals Generated: %d\n", d.SignalsGenerated)
	fmt.Fprintf(&b, "Results: %d WIN | %d LOSE | %d EXPIRED\n", d.Wins, d.Losses, d.Expired)
	fmt.Fprintf(&b, "Win Rate: %.1f%%\n", d.WinRate()*100)
	fmt.Fprintf(&b, "Total PnL: %+.2f%%\n", d.RealizedPnLPct*100)
	fmt.Fprintf(&b, "Equity: %.2f", d.Equity)
	if d.SignalsGenerated > 0 {
		// ADX and volume sums accumulate at admission
		n := float64(d.SignalsGenerated)
		fmt.Fprintf(&b, "\n\nMarket Conditions:\n")
		fmt.Fprintf(&b, "• Avg ADX: %.1f\n", d.SumADX/n)
		fmt.Fprintf(&b, "• Avg Volume Boost: +%.1f%%", d.SumVolumeBoost/n*100)
	}
	if d.Halted {
		b.WriteString("\n\n🔴 Daily loss cap reached — admissions halted until next UTC day")
	}
	return b.String()
}

// formatAlert renders a system alert.
func formatAlert(level model.AlertLevel, message string, now time.Time) string {
	emoji := "ℹ️"
	switch level {
	case model.AlertWarning:
		emoji = "⚠️"
	case model.AlertCritical:
		emoji = "🔴"
	}
	return fmt.Sprintf("%s SYSTEM %s\n\nTime: %s\nMessage: %s",
		emoji, level, now.UTC().Format("15:04:05"), message)
}
