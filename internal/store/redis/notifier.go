package redis

import (
	"context"

	"signalbot/internal/model"
)

// Notifier publishes signal lifecycle events to the Redis event stream.
// It satisfies model.Notifier so it can sit in the notifier fan-out next
// to Telegram and the webhook. Safe to construct around a nil Cache.
type Notifier struct {
	cache *Cache
}

// NewNotifier wraps cache as a model.Notifier.
func NewNotifier(cache *Cache) *Notifier {
	return &Notifier{cache: cache}
}

func (n *Notifier) SendNewSignal(ctx context.Context, s *model.Signal) error {
	n.cache.PublishSignalEvent(ctx, "created", s)
	return nil
}

func (n *Notifier) SendResult(ctx context.Context, s *model.Signal) error {
	n.cache.PublishSignalEvent(ctx, "closed", s)
	return nil
}

// SendDailySummary is a no-op: daily metrics live in SQLite.
func (n *Notifier) SendDailySummary(ctx context.Context, d model.DailyStats) error {
	return nil
}

// SendAlert is a no-op: alerts go to Telegram and the log.
func (n *Notifier) SendAlert(ctx context.Context, level model.AlertLevel, message string) error {
	return nil
}
