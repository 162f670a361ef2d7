package notification

import (
	"context"
	"log"
	"time"

	"signalbot/internal/model"
)

// LogNotifier writes every message to the process log. Always present
// in the fan-out so signals remain visible without Telegram configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) SendNewSignal(ctx context.Context, s *model.Signal) error {
	log.Printf("[notify] new signal %s %s %s score=%d entry=%.6f sl=%.6f tp=%.6f",
		s.Code, s.Symbol, s.Direction, s.Score, s.Entry, s.StopLoss, s.TakeProfit)
	return nil
}

func (n *LogNotifier) SendResult(ctx context.Context, s *model.Signal) error {
	log.Printf("[notify] result %s %s %s close=%.6f pnl=%.2f%%",
		s.Code, s.Status, s.CloseReason, s.ClosePrice, s.PnLPercent)
	return nil
}

func (n *LogNotifier) SendDailySummary(ctx context.Context, d model.DailyStats) error {
	log.Printf("[notify] daily summary %s: signals=%d wins=%d losses=%d expired=%d pnl=%+.2f%% equity=%.2f",
		d.Date.Format("2006-01-02"), d.SignalsGenerated, d.Wins, d.Losses, d.Expired, d.RealizedPnLPct*100, d.Equity)
	return nil
}

func (n *LogNotifier) SendAlert(ctx context.Context, level model.AlertLevel, message string) error {
	log.Printf("[notify] [%s] %s", level, message)
	return nil
}

// Multi fans a message out to every sink. Individual sink failures are
// logged and do not stop delivery to the rest; Multi itself never
// returns an error.
type Multi struct {
	sinks []model.Notifier
}

// NewMulti creates a fan-out over sinks.
func NewMulti(sinks ...model.Notifier) *Multi {
	return &Multi{sinks: sinks}
}

const sendTimeout = 15 * time.Second

func (m *Multi) SendNewSignal(ctx context.Context, s *model.Signal) error {
	m.each(ctx, "new signal", func(ctx context.Context, n model.Notifier) error {
		return n.SendNewSignal(ctx, s)
	})
	return nil
}

func (m *Multi) SendResult(ctx context.Context, s *model.Signal) error {
	m.each(ctx, "result", func(ctx context.Context, n model.Notifier) error {
		return n.SendResult(ctx, s)
	})
	return nil
}

func (m *Multi) SendDailySummary(ctx context.Context, d model.DailyStats) error {
	m.each(ctx, "daily summary", func(ctx context.Context, n model.Notifier) error {
		return n.SendDailySummary(ctx, d)
	})
	return nil
}

func (m *Multi) SendAlert(ctx context.Context, level model.AlertLevel, message string) error {
	m.each(ctx, "alert", func(ctx context.Context, n model.Notifier) error {
		return n.SendAlert(ctx, level, message)
	})
	return nil
}

func (m *Multi) each(ctx context.Context, kind string, send func(context.Context, model.Notifier) error) {
	for _, n := range m.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		if err := send(sendCtx, n); err != nil {
			log.Printf("[notify] %T: %s delivery failed: %v", n, kind, err)
		}
		cancel()
	}
}
