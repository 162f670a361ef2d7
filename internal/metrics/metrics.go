package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal bot.
type Metrics struct {
	// Engine
	SignalsGenerated *prometheus.CounterVec // labels: mode
	CandidatesTotal  *prometheus.CounterVec // labels: mode, outcome=emitted|rejected
	EvalCycleDur     prometheus.Histogram

	// Admission
	AdmissionRejected *prometheus.CounterVec // labels: reason

	// Monitor
	SignalsClosed    *prometheus.CounterVec // labels: reason
	SignalsFilled    prometheus.Counter
	TrailingRatchets prometheus.Counter
	MonitorTickDur   prometheus.Histogram

	// Feed
	FeedErrors   *prometheus.CounterVec // labels: op
	WSReconnects prometheus.Counter

	// Persistence
	PersistRetries prometheus.Counter

	// Risk state
	OpenSignals prometheus.Gauge
	DailyPnLPct prometheus.Gauge
	Equity      prometheus.Gauge
	HaltActive  prometheus.Gauge // 0=trading, 1=halted
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		SignalsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_signals_generated_total",
			Help: "Total signals admitted, by mode",
		}, []string{"mode"}),
		CandidatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_candidates_total",
			Help: "Total evaluation outcomes, by mode and outcome",
		}, []string{"mode", "outcome"}),
		EvalCycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_eval_cycle_duration_seconds",
			Help:    "Duration of one full evaluation cycle across symbols",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		AdmissionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_admission_rejected_total",
			Help: "Candidates rejected by the risk gate, by reason",
		}, []string{"reason"}),
		SignalsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_signals_closed_total",
			Help: "Signals closed, by close reason",
		}, []string{"reason"}),
		SignalsFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_signals_filled_total",
			Help: "Pending signals that reached their entry price",
		}),
		TrailingRatchets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_trailing_ratchets_total",
			Help: "Trailing stop adjustments applied",
		}),
		MonitorTickDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_monitor_tick_duration_seconds",
			Help:    "Duration of one monitor tick across active signals",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		FeedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_feed_errors_total",
			Help: "Market data feed failures, by operation",
		}, []string{"op"}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_ws_reconnects_total",
			Help: "Total price stream reconnection attempts",
		}),
		PersistRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_persist_retries_total",
			Help: "Retried store writes after a persistence failure",
		}),
		OpenSignals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_open_signals",
			Help: "Currently active signals (pending + open)",
		}),
		DailyPnLPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_daily_pnl_pct",
			Help: "Realized daily P&L as a fraction of day-start equity",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_equity",
			Help: "Current tracked equity in quote currency",
		}),
		HaltActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_halt_active",
			Help: "1 while the daily loss cap halt is in effect",
		}),
	}

	prometheus.MustRegister(
		m.SignalsGenerated,
		m.CandidatesTotal,
		m.EvalCycleDur,
		m.AdmissionRejected,
		m.SignalsClosed,
		m.SignalsFilled,
		m.TrailingRatchets,
		m.MonitorTickDur,
		m.FeedErrors,
		m.WSReconnects,
		m.PersistRetries,
		m.OpenSignals,
		m.DailyPnLPct,
		m.Equity,
		m.HaltActive,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	StreamConnected bool      `json:"stream_connected"`
	LastPriceTime   time.Time `json:"last_price_time"`
	RedisConnected  bool      `json:"redis_connected"`
	SQLiteOK        bool      `json:"sqlite_ok"`
	EngineOK        bool      `json:"engine_ok"`
	MonitorOK       bool      `json:"monitor_ok"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		// SQLite is mandatory; assume healthy until a probe says otherwise
		SQLiteOK: true,
	}
}

func (h *HealthStatus) SetStreamConnected(v bool) {
	h.mu.Lock()
	h.StreamConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastPriceTime(t time.Time) {
	h.mu.Lock()
	h.LastPriceTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetEngineOK(v bool) {
	h.mu.Lock()
	h.EngineOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetMonitorOK(v bool) {
	h.mu.Lock()
	h.MonitorOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// SQLite is the only hard dependency; Redis and the price stream
	// are optional accelerators
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if !h.EngineOK || !h.MonitorOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	priceAge := ""
	if !h.LastPriceTime.IsZero() {
		priceAge = time.Since(h.LastPriceTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		StreamConnected bool    `json:"stream_connected"`
		LastPriceTime   string  `json:"last_price_time"`
		PriceAge        string  `json:"price_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		EngineOK        bool    `json:"engine_ok"`
		MonitorOK       bool    `json:"monitor_ok"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		StreamConnected: h.StreamConnected,
		LastPriceTime:   h.LastPriceTime.Format(time.RFC3339),
		PriceAge:        priceAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		EngineOK:        h.EngineOK,
		MonitorOK:       h.MonitorOK,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
