package portfolio

import (
	"fmt"
	"sort"
	"time"

	"patternbt/internal/config"
	"patternbt/internal/domain"
)

// Portfolio owns the open positions (at most one per symbol) and the ordered
// history of closed ones.
type Portfolio struct {
	cfg    config.Backtest
	sizer  Sizer
	cash   float64
	open   map[string]*Position
	closed []*Position
}

// New creates an empty Portfolio. Cash starts at the initial capital and is
// informational only: entries do not draw it down.
func New(cfg config.Backtest) *Portfolio {
	return &Portfolio{
		cfg:   cfg,
		sizer: NewSizer(cfg),
		cash:  cfg.InitialCapital,
		open:  make(map[string]*Position),
	}
}

// Cash returns the tracked cash balance.
func (p *Portfolio) Cash() float64 { return p.cash }

// HasPosition reports whether symbol has an open position.
func (p *Portfolio) HasPosition(symbol string) bool {
	_, ok := p.open[symbol]
	return ok
}

// OpenLong opens a long position in symbol. It returns false without
// changing state if the symbol already has a position or price is not
// positive.
func (p *Portfolio) OpenLong(symbol string, date time.Time, price float64, volume int64) bool {
	return p.openPosition(symbol, domain.DirectionLong, date, price)
}

// OpenShort opens a short position in symbol. It returns false without
// changing state if the symbol already has a position or price is not
// positive.
func (p *Portfolio) OpenShort(symbol string, date time.Time, price float64, volume int64) bool {
	return p.openPosition(symbol, domain.DirectionShort, date, price)
}

func (p *Portfolio) openPosition(symbol string, dir domain.Direction, date time.Time, price float64) bool {
	if p.HasPosition(symbol) || price <= 0 {
		return false
	}

	p.open[symbol] = &Position{
		Symbol:      symbol,
		Direction:   dir,
		EntryDate:   date,
		EntryPrice:  price,
		Shares:      p.sizer.Shares(price),
		EntryValue:  p.sizer.PositionValue(),
		StopLossPct: p.cfg.StopLossPct,
		StopWinPct:  p.cfg.StopWinPct,
	}
	return true
}

// Close closes the open position in symbol at price, moves it to the closed
// history, and returns the resulting trade. It is a no-op returning false
// when symbol has no open position. The symbol is free for a new position
// as soon as Close returns.
func (p *Portfolio) Close(symbol string, date time.Time, price float64, reason domain.ExitReason) (domain.Trade, bool) {
	pos, ok := p.open[symbol]
	if !ok {
		return domain.Trade{}, false
	}

	if err := pos.Close(date, price, reason, p.sizer.Commission(pos.EntryValue)); err != nil {
		// Open positions are removed on close, so an open entry is never
		// already closed.
		panic(fmt.Sprintf("portfolio: %v", err))
	}

	delete(p.open, symbol)
	p.closed = append(p.closed, pos)

	trade, _ := pos.Trade()
	return trade, true
}

// Position returns a copy of the open position in symbol.
func (p *Portfolio) Position(symbol string) (Position, bool) {
	pos, ok := p.open[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// OpenSymbols returns the symbols with open positions, sorted. The slice is
// a snapshot; closing positions while iterating it is safe.
func (p *Portfolio) OpenSymbols() []string {
	symbols := make([]string, 0, len(p.open))
	for s := range p.open {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// OpenCount returns the number of open positions.
func (p *Portfolio) OpenCount() int { return len(p.open) }

// ClosedCount returns the number of closed positions.
func (p *Portfolio) ClosedCount() int { return len(p.closed) }

// OpenPositionCounts returns the number of open long and short positions.
func (p *Portfolio) OpenPositionCounts() (long, short int) {
	for _, pos := range p.open {
		switch pos.Direction {
		case domain.DirectionLong:
			long++
		case domain.DirectionShort:
			short++
		}
	}
	return long, short
}

// ClosedPositions returns the closed history in close order.
func (p *Portfolio) ClosedPositions() []Position {
	out := make([]Position, len(p.closed))
	for i, pos := range p.closed {
		out[i] = *pos
	}
	return out
}

// TotalValue sums the market value of open positions at the given prices.
// Symbols missing from prices are skipped. Positions are visited in symbol
// order so the float sum is reproducible.
func (p *Portfolio) TotalValue(prices map[string]float64) float64 {
	var total float64
	for _, symbol := range p.OpenSymbols() {
		if price, ok := prices[symbol]; ok {
			total += p.open[symbol].MarketValue(price)
		}
	}
	return total
}

// RealizedPnL sums the net return amount of every closed position.
func (p *Portfolio) RealizedPnL() float64 {
	var total float64
	for _, pos := range p.closed {
		total += pos.exit.ReturnAmount
	}
	return total
}

// UnrealizedPnL sums the gross open gain or loss at the given prices.
// Symbols missing from prices are skipped.
func (p *Portfolio) UnrealizedPnL(prices map[string]float64) float64 {
	var total float64
	for _, symbol := range p.OpenSymbols() {
		if price, ok := prices[symbol]; ok {
			total += p.open[symbol].UnrealizedPnL(price)
		}
	}
	return total
}
