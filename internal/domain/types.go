// Package domain defines the core value types shared across the backtester:
// bars, signals, directions, exit reasons, and closed-trade records.
package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Market identifies the exchange group a symbol belongs to. It selects the
// directory under which bars are stored.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// Bar is a single daily OHLCV row.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Day normalises t to midnight UTC of its calendar date. All timeline and
// signal lookups are keyed by Day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ErrInvalidBars is returned when an input series violates the loader
// contract (ordering, duplicates, or missing values).
var ErrInvalidBars = errors.New("invalid bars")

// ValidateBars checks that bars belong to one symbol, are strictly ascending
// by date with no duplicate days, and carry finite, non-negative values. NaN
// is treated as a missing value.
func ValidateBars(bars []Bar) error {
	var prev time.Time
	for i, b := range bars {
		if b.Symbol == "" {
			return fmt.Errorf("%w: row %d has no symbol", ErrInvalidBars, i)
		}
		if b.Symbol != bars[0].Symbol {
			return fmt.Errorf("%w: row %d symbol %q differs from %q", ErrInvalidBars, i, b.Symbol, bars[0].Symbol)
		}
		if b.Timestamp.IsZero() {
			return fmt.Errorf("%w: row %d has no date", ErrInvalidBars, i)
		}
		day := Day(b.Timestamp)
		if i > 0 && !day.After(prev) {
			if day.Equal(prev) {
				return fmt.Errorf("%w: duplicate date %s", ErrInvalidBars, day.Format("2006-01-02"))
			}
			return fmt.Errorf("%w: row %d (%s) is not after %s", ErrInvalidBars, i,
				day.Format("2006-01-02"), prev.Format("2006-01-02"))
		}
		prev = day

		prices := [...]struct {
			name string
			v    float64
		}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}}
		for _, p := range prices {
			if math.IsNaN(p.v) || math.IsInf(p.v, 0) || p.v < 0 {
				return fmt.Errorf("%w: row %d has invalid %s %v", ErrInvalidBars, i, p.name, p.v)
			}
		}
		if b.Volume < 0 {
			return fmt.Errorf("%w: row %d has negative volume", ErrInvalidBars, i)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Signals and positions
// ---------------------------------------------------------------------------

// Direction is the side of a position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Opposes reports whether a signal of type s points against a position in
// direction d.
func (d Direction) Opposes(s SignalType) bool {
	switch d {
	case DirectionLong:
		return s == SignalBearish
	case DirectionShort:
		return s == SignalBullish
	default:
		panic(fmt.Sprintf("domain: unknown direction %q", string(d)))
	}
}

// SignalType is the directional bias of a detected pattern.
type SignalType string

const (
	SignalBullish SignalType = "bullish"
	SignalBearish SignalType = "bearish"
)

// Direction returns the position direction a signal of this type opens.
func (s SignalType) Direction() Direction {
	switch s {
	case SignalBullish:
		return DirectionLong
	case SignalBearish:
		return DirectionShort
	default:
		panic(fmt.Sprintf("domain: unknown signal type %q", string(s)))
	}
}

// Signal is a dated directional event produced by a signal source.
type Signal struct {
	Date    time.Time
	Symbol  string
	Type    SignalType
	Price   float64
	Volume  int64
	Pattern string // detector-specific pattern name, e.g. "hammer"
}

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitStopLoss    ExitReason = "stop_loss"
	ExitStopWin     ExitReason = "stop_win"
	ExitPatternExit ExitReason = "pattern_exit"
)

// Valid reports whether r is one of the known exit reasons.
func (r ExitReason) Valid() bool {
	switch r {
	case ExitStopLoss, ExitStopWin, ExitPatternExit:
		return true
	default:
		return false
	}
}

// Trade is the flattened, closed-out view of a position. It is the unit of
// performance aggregation and export.
type Trade struct {
	Symbol       string
	Direction    Direction
	EntryDate    time.Time
	ExitDate     time.Time
	EntryPrice   float64
	ExitPrice    float64
	Shares       float64
	EntryValue   float64
	ExitValue    float64
	Commission   float64
	ReturnAmount float64
	ReturnPct    float64
	HoldDays     int
	ExitReason   ExitReason
}

// ---------------------------------------------------------------------------
// Run journal
// ---------------------------------------------------------------------------

// Run is the persisted header of a single backtest run.
type Run struct {
	ID              string
	Strategy        string
	StartedAt       time.Time
	InitialCapital  float64
	PositionSizePct float64
	StopLossPct     float64
	StopWinPct      float64
	CommissionBps   float64
	Symbols         int
	TradingDays     int
	TotalTrades     int
	HitRate         float64
	AverageReturn   float64
}
