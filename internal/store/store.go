// Package store defines storage interfaces for daily bars and backtest run
// history, with Parquet, CSV, and SQLite implementations.
package store

import (
	"context"
	"time"

	"patternbt/internal/domain"
)

// BarStore persists and retrieves daily OHLCV bars.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within
	// [start, end] by calendar date, ascending. A zero start or end leaves
	// that side unbounded.
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// RunJournal persists completed backtest runs and their closed trades.
type RunJournal interface {
	// SaveRun stores a run header together with every trade it produced.
	SaveRun(ctx context.Context, run domain.Run, trades []domain.Trade) error

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)

	// ListTrades returns the trades of one run in close order.
	ListTrades(ctx context.Context, runID string) ([]domain.Trade, error)
}

// ReadSeries reads every symbol in symbols from s into a map keyed by
// symbol. Symbols with no bars in range map to an empty series.
func ReadSeries(ctx context.Context, s BarStore, market string, symbols []string, start, end time.Time) (map[string][]domain.Bar, error) {
	series := make(map[string][]domain.Bar, len(symbols))
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars, err := s.ReadBars(ctx, sym, market, start, end)
		if err != nil {
			return nil, err
		}
		series[sym] = bars
	}
	return series, nil
}

// inRange reports whether t's calendar date falls in [start, end]; zero
// bounds are open.
func inRange(t, start, end time.Time) bool {
	d := domain.Day(t)
	if !start.IsZero() && d.Before(domain.Day(start)) {
		return false
	}
	if !end.IsZero() && d.After(domain.Day(end)) {
		return false
	}
	return true
}
