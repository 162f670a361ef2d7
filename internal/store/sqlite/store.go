// Package sqlite persists signals, execution events, cooldowns and
// daily metrics in a single SQLite database with WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"signalbot/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Store implements model.SignalStore on SQLite.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens (or creates) the database at path and applies the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer keeps SQLite happy under concurrent callers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", path)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			code         TEXT PRIMARY KEY,
			symbol       TEXT NOT NULL,
			mode         TEXT NOT NULL,
			direction    TEXT NOT NULL,
			score        INTEGER NOT NULL,
			confidence   TEXT NOT NULL,
			entry        REAL NOT NULL,
			stop_loss    REAL NOT NULL,
			take_profit  REAL NOT NULL,
			quantity     REAL NOT NULL,
			risk_reward  REAL NOT NULL,
			trailing_pct REAL NOT NULL,
			adx          REAL NOT NULL DEFAULT 0,
			atr          REAL NOT NULL DEFAULT 0,
			volume_boost REAL NOT NULL DEFAULT 0,
			tags         TEXT,
			status       TEXT NOT NULL,
			created_at   INTEGER NOT NULL,
			expires_at   INTEGER NOT NULL,
			fill_price   REAL NOT NULL DEFAULT 0,
			filled_at    INTEGER NOT NULL DEFAULT 0,
			close_reason TEXT NOT NULL DEFAULT '',
			close_price  REAL NOT NULL DEFAULT 0,
			closed_at    INTEGER NOT NULL DEFAULT 0,
			pnl_percent  REAL NOT NULL DEFAULT 0,
			pnl_points   REAL NOT NULL DEFAULT 0,
			pnl_quote    REAL NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status);
		CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol, mode);

		CREATE TABLE IF NOT EXISTS signal_executions (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			code     TEXT NOT NULL,
			type     TEXT NOT NULL,
			price    REAL NOT NULL,
			quantity REAL NOT NULL,
			ts       INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_executions_code ON signal_executions(code);

		CREATE TABLE IF NOT EXISTS cooldowns (
			symbol TEXT NOT NULL,
			mode   TEXT NOT NULL,
			reason TEXT NOT NULL,
			until  INTEGER NOT NULL,
			PRIMARY KEY (symbol, mode)
		);

		CREATE TABLE IF NOT EXISTS daily_metrics (
			date              TEXT PRIMARY KEY,
			realized_pnl_pct  REAL NOT NULL,
			pnl_quote         REAL NOT NULL,
			equity            REAL NOT NULL,
			signals_generated INTEGER NOT NULL,
			wins              INTEGER NOT NULL,
			losses            INTEGER NOT NULL,
			expired           INTEGER NOT NULL,
			open_count        INTEGER NOT NULL,
			sum_adx           REAL NOT NULL,
			sum_volume_boost  REAL NOT NULL,
			halted            INTEGER NOT NULL
		);
	`)
	return err
}

// terminalStatuses guards terminal updates: a signal that already
// reached a terminal status is never transitioned again, no matter how
// often a close is retried.
const terminalStatuses = `'HIT_TP','HIT_SL','EXPIRED','CANCELLED'`

// SaveSignal inserts a newly admitted signal.
func (s *Store) SaveSignal(ctx context.Context, sig *model.Signal) error {
	tags, err := json.Marshal(sig.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO signals (
			code, symbol, mode, direction, score, confidence,
			entry, stop_loss, take_profit, quantity, risk_reward, trailing_pct,
			adx, atr, volume_boost, tags, status, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.Code, sig.Symbol, string(sig.Mode), string(sig.Direction), sig.Score, sig.Confidence,
		sig.Entry, sig.StopLoss, sig.TakeProfit, sig.Quantity, sig.RiskReward, sig.TrailingPct,
		sig.ADX, sig.ATR, sig.VolumeBoost,
		string(tags), string(sig.Status), sig.CreatedAt.Unix(), sig.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite save signal %s: %w", sig.Code, err)
	}
	return nil
}

// UpdateSignal writes the current state of a signal. Terminal writes
// are guarded so a replayed close cannot overwrite an earlier terminal
// outcome.
func (s *Store) UpdateSignal(ctx context.Context, sig *model.Signal) error {
	query := `
		UPDATE signals SET
			status = ?, stop_loss = ?,
			fill_price = ?, filled_at = ?,
			close_reason = ?, close_price = ?, closed_at = ?,
			pnl_percent = ?, pnl_points = ?, pnl_quote = ?
		WHERE code = ?`
	if sig.Status.Terminal() {
		query += ` AND status NOT IN (` + terminalStatuses + `)`
	}

	_, err := s.db.ExecContext(ctx, query,
		string(sig.Status), sig.StopLoss,
		sig.FillPrice, unixOrZero(sig.FilledAt),
		string(sig.CloseReason), sig.ClosePrice, unixOrZero(sig.ClosedAt),
		sig.PnLPercent, sig.PnLPoints, sig.PnLQuote,
		sig.Code,
	)
	if err != nil {
		return fmt.Errorf("sqlite update signal %s: %w", sig.Code, err)
	}
	return nil
}

// AppendExecution records one execution event.
func (s *Store) AppendExecution(ctx context.Context, ev model.ExecutionEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signal_executions (code, type, price, quantity, ts)
		VALUES (?, ?, ?, ?, ?)`,
		ev.Code, ev.Type, ev.Price, ev.Quantity, ev.TS.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite append execution %s/%s: %w", ev.Code, ev.Type, err)
	}
	return nil
}

// SaveCooldown upserts the cooldown for (symbol, mode).
func (s *Store) SaveCooldown(ctx context.Context, cd model.CooldownEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cooldowns (symbol, mode, reason, until)
		VALUES (?, ?, ?, ?)`,
		cd.Symbol, string(cd.Mode), cd.Reason, cd.Until.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite save cooldown %s/%s: %w", cd.Symbol, cd.Mode, err)
	}
	return nil
}

// LoadCooldowns returns cooldowns still in effect at now, pruning the
// rest.
func (s *Store) LoadCooldowns(ctx context.Context, now time.Time) ([]model.CooldownEntry, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cooldowns WHERE until <= ?`, now.Unix()); err != nil {
		log.Printf("[sqlite] prune cooldowns warning: %v", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT symbol, mode, reason, until FROM cooldowns WHERE until > ?`, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite load cooldowns: %w", err)
	}
	defer rows.Close()

	var out []model.CooldownEntry
	for rows.Next() {
		var (
			cd    model.CooldownEntry
			mode  string
			until int64
		)
		if err := rows.Scan(&cd.Symbol, &mode, &cd.Reason, &until); err != nil {
			return nil, fmt.Errorf("sqlite scan cooldown: %w", err)
		}
		cd.Mode = model.Mode(mode)
		cd.Until = time.Unix(until, 0).UTC()
		out = append(out, cd)
	}
	return out, rows.Err()
}

// SaveDailyMetrics upserts the stats row for one UTC day.
func (s *Store) SaveDailyMetrics(ctx context.Context, d model.DailyStats) error {
	halted := 0
	if d.Halted {
		halted = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO daily_metrics (
			date, realized_pnl_pct, pnl_quote, equity, signals_generated,
			wins, losses, expired, open_count, sum_adx, sum_volume_boost, halted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Date.UTC().Format("2006-01-02"), d.RealizedPnLPct, d.PnLQuote, d.Equity, d.SignalsGenerated,
		d.Wins, d.Losses, d.Expired, d.OpenCount, d.SumADX, d.SumVolumeBoost, halted,
	)
	if err != nil {
		return fmt.Errorf("sqlite save daily metrics %s: %w", d.Date.Format("2006-01-02"), err)
	}
	return nil
}

// LoadOpenSignals returns every Pending and Open signal.
func (s *Store) LoadOpenSignals(ctx context.Context) ([]*model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, symbol, mode, direction, score, confidence,
		       entry, stop_loss, take_profit, quantity, risk_reward, trailing_pct,
		       adx, atr, volume_boost, tags, status, created_at, expires_at,
		       fill_price, filled_at
		FROM signals WHERE status IN ('PENDING', 'OPEN')`)
	if err != nil {
		return nil, fmt.Errorf("sqlite load open signals: %w", err)
	}
	defer rows.Close()

	var out []*model.Signal
	for rows.Next() {
		var (
			sig                  model.Signal
			mode, dir, status    string
			tags                 sql.NullString
			createdAt, expiresAt int64
			filledAt             int64
		)
		if err := rows.Scan(
			&sig.Code, &sig.Symbol, &mode, &dir, &sig.Score, &sig.Confidence,
			&sig.Entry, &sig.StopLoss, &sig.TakeProfit, &sig.Quantity, &sig.RiskReward, &sig.TrailingPct,
			&sig.ADX, &sig.ATR, &sig.VolumeBoost,
			&tags, &status, &createdAt, &expiresAt, &sig.FillPrice, &filledAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite scan signal: %w", err)
		}
		sig.Mode = model.Mode(mode)
		sig.Direction = model.Direction(dir)
		sig.Status = model.Status(status)
		sig.CreatedAt = time.Unix(createdAt, 0).UTC()
		sig.ExpiresAt = time.Unix(expiresAt, 0).UTC()
		if filledAt > 0 {
			sig.FilledAt = time.Unix(filledAt, 0).UTC()
		}
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &sig.Tags); err != nil {
				log.Printf("[sqlite] %s: bad tags payload: %v", sig.Code, err)
			}
		}
		out = append(out, &sig)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
