package builtins

import (
	"context"

	"patternbt/internal/domain"
	"patternbt/internal/strategy"
)

// Compile-time interface check.
var _ strategy.SignalSource = (*Engulfing)(nil)

// Engulfing detects two-candle engulfing patterns. A bullish engulfing is a
// bearish candle followed by a bullish one that opens below the prior close
// and closes above the prior open; bearish engulfing is the mirror.
type Engulfing struct{}

// NewEngulfing creates an Engulfing detector.
func NewEngulfing() *Engulfing { return &Engulfing{} }

// Name returns "engulfing".
func (e *Engulfing) Name() string { return "engulfing" }

// GenerateSignals scans bars from the second row on. Fewer than two bars
// produce no signals.
func (e *Engulfing) GenerateSignals(ctx context.Context, bars []domain.Bar) ([]domain.Signal, error) {
	if !usable(bars, 2) {
		return nil, nil
	}

	var out []domain.Signal
	for i := 1; i < len(bars); i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		prev, curr := bars[i-1], bars[i]

		switch {
		case prev.Close < prev.Open &&
			curr.Close > curr.Open &&
			curr.Open < prev.Close &&
			curr.Close > prev.Open:
			out = append(out, signalAt(curr, domain.SignalBullish, "bullish_engulfing"))

		case prev.Close > prev.Open &&
			curr.Close < curr.Open &&
			curr.Open > prev.Close &&
			curr.Close < prev.Open:
			out = append(out, signalAt(curr, domain.SignalBearish, "bearish_engulfing"))
		}
	}
	return out, nil
}
