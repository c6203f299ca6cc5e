package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"patternbt/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunJournal = (*SQLiteStore)(nil)

// SQLiteStore implements RunJournal backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id                TEXT PRIMARY KEY,
		strategy          TEXT NOT NULL,
		started_at        INTEGER NOT NULL,
		initial_capital   REAL NOT NULL,
		position_size_pct REAL NOT NULL,
		stop_loss_pct     REAL NOT NULL,
		stop_win_pct      REAL NOT NULL,
		commission_bps    REAL NOT NULL,
		symbols           INTEGER NOT NULL,
		trading_days      INTEGER NOT NULL,
		total_trades      INTEGER NOT NULL,
		hit_rate          REAL NOT NULL,
		average_return    REAL NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq           INTEGER NOT NULL,
		symbol        TEXT NOT NULL,
		direction     TEXT NOT NULL,
		entry_date    TEXT NOT NULL,
		exit_date     TEXT NOT NULL,
		entry_price   REAL NOT NULL,
		exit_price    REAL NOT NULL,
		shares        REAL NOT NULL,
		entry_value   REAL NOT NULL,
		exit_value    REAL NOT NULL,
		commission    REAL NOT NULL,
		return_amount REAL NOT NULL,
		return_pct    REAL NOT NULL,
		hold_days     INTEGER NOT NULL,
		exit_reason   TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers and keeps :memory: databases
	// consistent across calls.
	db.SetMaxOpenConns(1)

	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const dateLayout = "2006-01-02"

// SaveRun inserts the run and its trades in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run domain.Run, trades []domain.Trade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (
		id, strategy, started_at, initial_capital, position_size_pct, stop_loss_pct,
		stop_win_pct, commission_bps, symbols, trading_days, total_trades, hit_rate, average_return
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.StartedAt.UnixMilli(), run.InitialCapital, run.PositionSizePct,
		run.StopLossPct, run.StopWinPct, run.CommissionBps, run.Symbols, run.TradingDays,
		run.TotalTrades, run.HitRate, run.AverageReturn)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO trades (
		run_id, seq, symbol, direction, entry_date, exit_date, entry_price, exit_price, shares,
		entry_value, exit_value, commission, return_amount, return_pct, hold_days, exit_reason
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, t := range trades {
		_, err := stmt.ExecContext(ctx,
			run.ID, i, t.Symbol, string(t.Direction),
			t.EntryDate.UTC().Format(dateLayout), t.ExitDate.UTC().Format(dateLayout),
			t.EntryPrice, t.ExitPrice, t.Shares, t.EntryValue, t.ExitValue, t.Commission,
			t.ReturnAmount, t.ReturnPct, t.HoldDays, string(t.ExitReason))
		if err != nil {
			return fmt.Errorf("inserting trade %d of run %s: %w", i, run.ID, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, strategy, started_at, initial_capital, position_size_pct, stop_loss_pct,
		stop_win_pct, commission_bps, symbols, trading_days, total_trades, hit_rate, average_return
	FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		var (
			r       domain.Run
			startMs int64
		)
		if err := rows.Scan(&r.ID, &r.Strategy, &startMs, &r.InitialCapital, &r.PositionSizePct,
			&r.StopLossPct, &r.StopWinPct, &r.CommissionBps, &r.Symbols, &r.TradingDays,
			&r.TotalTrades, &r.HitRate, &r.AverageReturn); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(startMs).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListTrades returns the trades of runID in the order they were closed.
func (s *SQLiteStore) ListTrades(ctx context.Context, runID string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		symbol, direction, entry_date, exit_date, entry_price, exit_price, shares, entry_value,
		exit_value, commission, return_amount, return_pct, hold_days, exit_reason
	FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			t                 domain.Trade
			dir, reason       string
			entryDay, exitDay string
		)
		if err := rows.Scan(&t.Symbol, &dir, &entryDay, &exitDay, &t.EntryPrice, &t.ExitPrice,
			&t.Shares, &t.EntryValue, &t.ExitValue, &t.Commission, &t.ReturnAmount, &t.ReturnPct,
			&t.HoldDays, &reason); err != nil {
			return nil, err
		}
		t.Direction = domain.Direction(dir)
		t.ExitReason = domain.ExitReason(reason)
		if t.EntryDate, err = time.Parse(dateLayout, entryDay); err != nil {
			return nil, fmt.Errorf("trade entry date: %w", err)
		}
		if t.ExitDate, err = time.Parse(dateLayout, exitDay); err != nil {
			return nil, fmt.Errorf("trade exit date: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
