package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"signalbot/internal/model"
)

// Webhook POSTs signal lifecycle events as JSON to a generic HTTP endpoint.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier targeting url.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *Webhook) SendNewSignal(ctx context.Context, s *model.Signal) error {
	return w.post(ctx, map[string]interface{}{"event": "new_signal", "signal": s})
}

func (w *Webhook) SendResult(ctx context.Context, s *model.Signal) error {
	return w.post(ctx, map[string]interface{}{"event": "signal_result", "signal": s})
}

func (w *Webhook) SendDailySummary(ctx context.Context, d model.DailyStats) error {
	return w.post(ctx, map[string]interface{}{"event": "daily_summary", "summary": d})
}

func (w *Webhook) SendAlert(ctx context.Context, level model.AlertLevel, message string) error {
	return w.post(ctx, map[string]interface{}{"event": "alert", "level": string(level), "message": message})
}

func (w *Webhook) post(ctx context.Context, payload map[string]interface{}) error {
	payload["ts"] = time.Now().UTC().Format(time.RFC3339Nano)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[webhook] sent %s to %s", payload["event"], w.url)
	return nil
}
