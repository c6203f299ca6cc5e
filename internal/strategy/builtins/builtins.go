// Package builtins provides the candlestick pattern detectors that ship with
// patternbt.
package builtins

import (
	"math"

	"patternbt/internal/domain"
	"patternbt/internal/strategy"
)

// Register adds every built-in detector to r.
func Register(r *strategy.Registry) {
	r.Register(NewEngulfing())
	r.Register(NewReversal())
}

// usable reports whether bars can be scanned: at least minBars rows and no
// NaN prices.
func usable(bars []domain.Bar, minBars int) bool {
	if len(bars) < minBars {
		return false
	}
	for _, b := range bars {
		if math.IsNaN(b.Open) || math.IsNaN(b.High) || math.IsNaN(b.Low) || math.IsNaN(b.Close) {
			return false
		}
	}
	return true
}

func signalAt(b domain.Bar, typ domain.SignalType, pattern string) domain.Signal {
	return domain.Signal{
		Date:    b.Timestamp,
		Symbol:  b.Symbol,
		Type:    typ,
		Price:   b.Close,
		Volume:  b.Volume,
		Pattern: pattern,
	}
}
