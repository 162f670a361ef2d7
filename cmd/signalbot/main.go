package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"signalbot/config"
	"signalbot/internal/engine"
	"signalbot/internal/feed"
	"signalbot/internal/indicator"
	"signalbot/internal/logger"
	"signalbot/internal/metrics"
	"signalbot/internal/model"
	"signalbot/internal/monitor"
	"signalbot/internal/notification"
	"signalbot/internal/risk"
	redisstore "signalbot/internal/store/redis"
	sqlitestore "signalbot/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[signalbot] starting...")

	cfg := config.Load()
	slogger := logger.Init("signalbot", logger.ParseLevel(cfg.LogLevel))
	slogger.Info("configuration loaded",
		slog.String("exchange", cfg.ExchangeName),
		slog.Bool("sandbox", cfg.Sandbox),
		slog.Any("symbols", cfg.Symbols),
	)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite signal store ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	store, err := sqlitestore.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[signalbot] sqlite init failed: %v", err)
	}
	defer store.Close()
	log.Println("[signalbot] sqlite store ready")

	// ---- Redis price cache (optional) ----
	var cache *redisstore.Cache
	if cfg.RedisAddr != "" {
		cache, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[signalbot] WARNING: redis init failed: %v (continuing without redis)", err)
			cache = nil
		} else {
			log.Println("[signalbot] redis cache ready")
		}
	}
	defer cache.Close()

	// ---- Periodic liveness checks ----
	health.StartLivenessChecker(ctx, cache.Client(), store.DB(), 10*time.Second)

	// ---- Notifier fan-out ----
	sinks := []model.Notifier{notification.NewLogNotifier()}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		sinks = append(sinks, notification.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID))
		log.Println("[signalbot] telegram notifier enabled")
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notification.NewWebhook(cfg.WebhookURL))
		log.Println("[signalbot] webhook notifier enabled")
	}
	if cache != nil {
		sinks = append(sinks, redisstore.NewNotifier(cache))
	}
	notifier := notification.NewMulti(sinks...)

	// ---- Market data: WS price stream + REST candles ----
	stream := feed.NewStream(cfg.Symbols, cfg.Sandbox, cache, prom, health)
	go stream.Run(ctx)

	marketFeed := feed.New(cfg.APIKey, cfg.APISecret, cfg.Sandbox, stream, cache)

	if err := probeFeed(ctx, marketFeed, cfg.Symbols); err != nil {
		log.Fatalf("[signalbot] feed connectivity check failed: %v", err)
	}
	log.Println("[signalbot] feed connectivity ok")

	// ---- Risk manager: restore persisted state ----
	rm := risk.NewManager(cfg, store, notifier, prom)
	if err := rm.Restore(ctx); err != nil {
		log.Fatalf("[signalbot] state restore failed: %v", err)
	}
	go rm.RunDailyReset(ctx)

	// ---- Signal engine ----
	evaluator := engine.NewEvaluator(cfg, indicator.NewProvider())
	runner := engine.NewRunner(cfg, evaluator, marketFeed, rm, notifier, prom, health)
	go runner.Run(ctx)

	// ---- Signal monitor ----
	mon := monitor.New(cfg, marketFeed, rm, notifier, prom, health)
	go mon.Run(ctx)

	log.Printf("[signalbot] running: %d symbols, %d modes, equity %.2f",
		len(cfg.Symbols), len(cfg.Modes), rm.Equity())
	notifier.SendAlert(ctx, model.AlertInfo, "signal bot started")

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[signalbot] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[signalbot] shutdown complete.")
}

// probeFeed fetches one price per symbol before the schedulers start, so
// a bad exchange configuration fails fast instead of failing every cycle.
func probeFeed(ctx context.Context, f model.MarketDataFeed, symbols []string) error {
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	for _, sym := range symbols {
		price, err := f.GetLatestPrice(probeCtx, sym)
		if err != nil {
			return fmt.Errorf("probe %s: %w", sym, err)
		}
		log.Printf("[signalbot] probe %s: %.6f", sym, price)
	}
	return nil
}
