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

// Telegram sends signal messages via the Telegram Bot API.
type Telegram struct {
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegram creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: Target chat/group/channel ID
func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (t *Telegram) SendNewSignal(ctx context.Context, s *model.Signal) error {
	if err := t.send(ctx, formatNewSignal(s)); err != nil {
		return err
	}
	log.Printf("[telegram] sent new signal: %s", s.Code)
	return nil
}

func (t *Telegram) SendResult(ctx context.Context, s *model.Signal) error {
	if err := t.send(ctx, formatResult(s)); err != nil {
		return err
	}
	log.Printf("[telegram] sent result: %s %s", s.Code, s.Status)
	return nil
}

func (t *Telegram) SendDailySummary(ctx context.Context, d model.DailyStats) error {
	if err := t.send(ctx, formatDailySummary(d)); err != nil {
		return err
	}
	log.Printf("[telegram] sent daily summary for %s", d.Date.Format("2006-01-02"))
	return nil
}

func (t *Telegram) SendAlert(ctx context.Context, level model.AlertLevel, message string) error {
	if err := t.send(ctx, formatAlert(level, message, time.Now())); err != nil {
		return err
	}
	log.Printf("[telegram] sent %s alert", level)
	return nil
}

func (t *Telegram) send(ctx context.Context, text string) error {
	body, _ := json.Marshal(map[string]interface{}{
		"chat_id": t.chatID,
		"text":    text,
	})

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}
	return nil
}
