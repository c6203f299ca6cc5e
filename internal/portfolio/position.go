// Package portfolio tracks open and closed positions for a backtest run and
// holds the sizing and close-out math.
package portfolio

import (
	"errors"
	"fmt"
	"math"
	"time"

	"patternbt/internal/domain"
)

// Status is the lifecycle state of a Position.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// ErrPositionClosed is returned when closing a position twice.
var ErrPositionClosed = errors.New("position already closed")

// Exit holds the close-out fields of a Position. It is set exactly once.
type Exit struct {
	Date         time.Time
	Price        float64
	Value        float64
	Commission   float64
	ReturnAmount float64
	ReturnPct    float64
	HoldDays     int
	Reason       domain.ExitReason
}

// Position is a single instrument's trade, open or closed.
type Position struct {
	Symbol      string
	Direction   domain.Direction
	EntryDate   time.Time
	EntryPrice  float64
	Shares      float64
	EntryValue  float64
	StopLossPct float64
	StopWinPct  float64

	exit *Exit // nil while open
}

// Status reports whether the position is open or closed.
func (p *Position) Status() Status {
	if p.exit == nil {
		return StatusOpen
	}
	return StatusClosed
}

// Exit returns the close-out fields; ok is false while the position is open.
func (p *Position) Exit() (Exit, bool) {
	if p.exit == nil {
		return Exit{}, false
	}
	return *p.exit, true
}

// CheckStopLoss reports whether price has moved stopLossPct against the
// position.
func (p *Position) CheckStopLoss(price float64) bool {
	switch p.Direction {
	case domain.DirectionLong:
		return price <= p.EntryPrice*(1-p.StopLossPct)
	case domain.DirectionShort:
		return price >= p.EntryPrice*(1+p.StopLossPct)
	default:
		panic(fmt.Sprintf("portfolio: unknown direction %q", string(p.Direction)))
	}
}

// CheckStopWin reports whether price has moved stopWinPct in favour of the
// position.
func (p *Position) CheckStopWin(price float64) bool {
	switch p.Direction {
	case domain.DirectionLong:
		return price >= p.EntryPrice*(1+p.StopWinPct)
	case domain.DirectionShort:
		return price <= p.EntryPrice*(1-p.StopWinPct)
	default:
		panic(fmt.Sprintf("portfolio: unknown direction %q", string(p.Direction)))
	}
}

// Close records the exit and computes the signed return net of commission.
// It fails with ErrPositionClosed if the position was already closed.
func (p *Position) Close(date time.Time, price float64, reason domain.ExitReason, commission float64) error {
	if p.exit != nil {
		return fmt.Errorf("closing %s: %w", p.Symbol, ErrPositionClosed)
	}

	exitValue := p.Shares * price

	var amount float64
	switch p.Direction {
	case domain.DirectionLong:
		amount = exitValue - p.EntryValue - commission
	case domain.DirectionShort:
		amount = p.EntryValue - exitValue - commission
	default:
		panic(fmt.Sprintf("portfolio: unknown direction %q", string(p.Direction)))
	}

	p.exit = &Exit{
		Date:         date,
		Price:        price,
		Value:        exitValue,
		Commission:   commission,
		ReturnAmount: amount,
		ReturnPct:    amount / p.EntryValue * 100,
		HoldDays:     holdDays(p.EntryDate, date),
		Reason:       reason,
	}
	return nil
}

// Trade returns the flattened record of a closed position.
func (p *Position) Trade() (domain.Trade, bool) {
	if p.exit == nil {
		return domain.Trade{}, false
	}
	return domain.Trade{
		Symbol:       p.Symbol,
		Direction:    p.Direction,
		EntryDate:    p.EntryDate,
		ExitDate:     p.exit.Date,
		EntryPrice:   p.EntryPrice,
		ExitPrice:    p.exit.Price,
		Shares:       p.Shares,
		EntryValue:   p.EntryValue,
		ExitValue:    p.exit.Value,
		Commission:   p.exit.Commission,
		ReturnAmount: p.exit.ReturnAmount,
		ReturnPct:    p.exit.ReturnPct,
		HoldDays:     p.exit.HoldDays,
		ExitReason:   p.exit.Reason,
	}, true
}

// MarketValue is the position's contribution to portfolio value at price:
// shares*price for a long, entryValue - shares*price for a short.
func (p *Position) MarketValue(price float64) float64 {
	switch p.Direction {
	case domain.DirectionLong:
		return p.Shares * price
	case domain.DirectionShort:
		return p.EntryValue - p.Shares*price
	default:
		panic(fmt.Sprintf("portfolio: unknown direction %q", string(p.Direction)))
	}
}

// UnrealizedPnL is the gross gain or loss of an open position at price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	switch p.Direction {
	case domain.DirectionLong:
		return p.Shares*price - p.EntryValue
	case domain.DirectionShort:
		return p.EntryValue - p.Shares*price
	default:
		panic(fmt.Sprintf("portfolio: unknown direction %q", string(p.Direction)))
	}
}

// holdDays counts whole calendar days between entry and exit.
func holdDays(entry, exit time.Time) int {
	return int(math.Floor(exit.Sub(entry).Hours() / 24))
}
