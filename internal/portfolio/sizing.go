package portfolio

import "patternbt/internal/config"

// Sizer applies the fixed sizing and commission rules. Position value is
// always a fraction of the initial capital, never of current cash or equity,
// so realised gains and losses do not compound into later positions.
type Sizer struct {
	initialCapital  float64
	positionSizePct float64
	commissionBps   float64
}

// NewSizer creates a Sizer from the backtest parameters.
func NewSizer(cfg config.Backtest) Sizer {
	return Sizer{
		initialCapital:  cfg.InitialCapital,
		positionSizePct: cfg.PositionSizePct,
		commissionBps:   cfg.CommissionBps,
	}
}

// PositionValue returns the notional committed to every new position.
func (s Sizer) PositionValue() float64 {
	return s.initialCapital * s.positionSizePct
}

// Shares returns the (fractional) share count bought with PositionValue at
// price.
func (s Sizer) Shares(price float64) float64 {
	return s.PositionValue() / price
}

// Commission returns the flat close-out commission on entryValue.
func (s Sizer) Commission(entryValue float64) float64 {
	return entryValue * s.commissionBps / 10000
}
