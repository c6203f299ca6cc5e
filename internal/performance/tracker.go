// Package performance accumulates the closed trades and daily returns of a
// backtest run, aggregates them into hit-rate and return statistics, and
// exports them as CSV.
package performance

import (
	"time"

	"patternbt/internal/domain"
)

// DailyReturn is the portfolio return on one trading day, in percent.
type DailyReturn struct {
	Date      time.Time
	ReturnPct float64
}

// Tracker is the append-only record of one run. It is not safe for
// concurrent use; the engine appends from its single simulation loop.
type Tracker struct {
	trades []domain.Trade
	daily  []DailyReturn
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// AddTrade appends a closed trade.
func (t *Tracker) AddTrade(tr domain.Trade) {
	t.trades = append(t.trades, tr)
}

// AddDailyReturn appends the portfolio return for date.
func (t *Tracker) AddDailyReturn(date time.Time, pct float64) {
	t.daily = append(t.daily, DailyReturn{Date: date, ReturnPct: pct})
}

// Trades returns a copy of the recorded trades in close order.
func (t *Tracker) Trades() []domain.Trade {
	return append([]domain.Trade(nil), t.trades...)
}

// DailyReturns returns a copy of the recorded daily returns.
func (t *Tracker) DailyReturns() []DailyReturn {
	return append([]DailyReturn(nil), t.daily...)
}
