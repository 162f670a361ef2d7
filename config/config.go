package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"signalbot/internal/model"
)

// ModeConfig fixes the thresholds for one trading mode. Modes are immutable
// configuration, loaded once at startup.
type ModeConfig struct {
	Name      model.Mode
	PrimaryTF string // evaluation timeframe
	ConfirmTF string // higher timeframe for trend confirmation

	ADXMin         float64 // hard admission gate on the confirmation TF
	VolumeBoostMin float64 // e.g. 0.15 = current volume 15% above 20-candle SMA

	SLATRMult    float64 // stop-loss distance in ATRs
	TPATRMultMin float64 // take-profit multiplier range; actual multiplier
	TPATRMultMax float64 // scales with score (see engine)

	TrailingPct float64 // trailing-stop distance as fraction of price
	ScoreMin    int     // minimum confluence score

	OrderValidity time.Duration // Pending → Expired window
	Cooldown      time.Duration // admission block after a losing close
	CycleEvery    time.Duration // engine evaluation interval
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Exchange
	ExchangeName string
	APIKey       string
	APISecret    string
	Sandbox      bool

	// Telegram
	TelegramToken  string
	TelegramChatID string
	WebhookURL     string

	// Infrastructure
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	MetricsAddr   string
	LogLevel      string

	// Risk management
	InitialEquity        float64
	RiskPerTrade         float64 // fraction of equity risked per signal
	DailyLossCap         float64 // fraction; 0.03 halts at -3% daily P&L
	MaxConcurrentSignals int
	MaxPerSymbol         int
	MaxPerMode           int
	QtyStep              float64 // instrument minimum quantity step

	// Symbols
	Symbols []string

	// Mode configurations, keyed by mode name
	Modes map[model.Mode]ModeConfig
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		ExchangeName: getEnv("EXCHANGE_NAME", "binance"),
		APIKey:       getEnv("EXCHANGE_API_KEY", ""),
		APISecret:    getEnv("EXCHANGE_SECRET", ""),
		Sandbox:      getEnvBool("EXCHANGE_SANDBOX", true),

		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:     getEnv("WEBHOOK_URL", ""),

		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),

		InitialEquity:        getEnvFloat("INITIAL_EQUITY", 10000),
		RiskPerTrade:         getEnvFloat("RISK_PER_TRADE", 0.01),
		DailyLossCap:         getEnvFloat("DAILY_LOSS_CAP", 0.03),
		MaxConcurrentSignals: getEnvInt("MAX_CONCURRENT_SIGNALS", 3),
		MaxPerSymbol:         getEnvInt("MAX_SIGNALS_PER_SYMBOL", 2),
		MaxPerMode:           getEnvInt("MAX_SIGNALS_PER_MODE", 3),
		QtyStep:              getEnvFloat("QTY_STEP", 0.000001),

		Symbols: splitList(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT,SOLUSDT")),

		Modes: DefaultModes(),
	}
}

// DefaultModes returns the built-in per-mode threshold table.
func DefaultModes() map[model.Mode]ModeConfig {
	return map[model.Mode]ModeConfig{
		model.ModeScalping: {
			Name:           model.ModeScalping,
			PrimaryTF:      "1m",
			ConfirmTF:      "5m",
			ADXMin:         22,
			VolumeBoostMin: 0.15,
			SLATRMult:      1.0,
			TPATRMultMin:   1.5,
			TPATRMultMax:   2.0,
			TrailingPct:    0.003,
			ScoreMin:       55,
			OrderValidity:  15 * time.Minute,
			Cooldown:       15 * time.Minute,
			CycleEvery:     1 * time.Minute,
		},
		model.ModeIntraday: {
			Name:           model.ModeIntraday,
			PrimaryTF:      "15m",
			ConfirmTF:      "1h",
			ADXMin:         20,
			VolumeBoostMin: 0.20,
			SLATRMult:      1.25,
			TPATRMultMin:   2.0,
			TPATRMultMax:   3.0,
			TrailingPct:    0.005,
			ScoreMin:       60,
			OrderValidity:  75 * time.Minute,
			Cooldown:       time.Hour,
			CycleEvery:     5 * time.Minute,
		},
		model.ModeSwing: {
			Name:           model.ModeSwing,
			PrimaryTF:      "4h",
			ConfirmTF:      "1d",
			ADXMin:         18,
			VolumeBoostMin: 0.10,
			SLATRMult:      1.5,
			TPATRMultMin:   2.5,
			TPATRMultMax:   3.5,
			TrailingPct:    0.008,
			ScoreMin:       65,
			OrderValidity:  12 * time.Hour,
			Cooldown:       4 * time.Hour,
			CycleEvery:     15 * time.Minute,
		},
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %g", key, v, fallback)
		return fallback
	}
	return f
}
