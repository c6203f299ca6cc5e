package builtins

import (
	"context"
	"math"

	"patternbt/internal/domain"
	"patternbt/internal/strategy"
)

// Compile-time interface check.
var _ strategy.SignalSource = (*Reversal)(nil)

// Pattern names reported by Reversal.
const (
	PatternHammer       = "hammer"
	PatternShootingStar = "shooting_star"
	PatternDoji         = "doji"
	PatternMorningStar  = "morning_star"
	PatternEveningStar  = "evening_star"
)

// Thresholds shared by the single-candle rules, as fractions of the bar's
// high-low range (or of the body, for shadows).
const (
	smallBodyRatio   = 0.3
	dojiBodyRatio    = 0.1
	longShadowFactor = 2.0
	shortShadowRatio = 0.1
	starBodyRatio    = 0.3
)

// Reversal detects hammer, shooting star, doji, and morning/evening star
// reversal patterns. Three-candle stars override a single-candle result on
// the same bar.
//
// A doji's direction depends on the next bar's close, so a doji signal uses
// one bar of future data.
type Reversal struct{}

// NewReversal creates a Reversal detector.
func NewReversal() *Reversal { return &Reversal{} }

// Name returns "reversal".
func (r *Reversal) Name() string { return "reversal" }

// GenerateSignals scans bars from the second row on. Fewer than three bars
// produce no signals.
func (r *Reversal) GenerateSignals(ctx context.Context, bars []domain.Bar) ([]domain.Signal, error) {
	if !usable(bars, 3) {
		return nil, nil
	}

	var out []domain.Signal
	for i := 1; i < len(bars); i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if typ, pattern, ok := classify(bars, i); ok {
			out = append(out, signalAt(bars[i], typ, pattern))
		}
	}
	return out, nil
}

// Breakdown counts how often each pattern occurs in bars, independent of the
// signal each one resolves to. A doji is counted even when its context is
// neutral.
func (r *Reversal) Breakdown(bars []domain.Bar) map[string]int {
	counts := map[string]int{
		PatternHammer:       0,
		PatternShootingStar: 0,
		PatternDoji:         0,
		PatternMorningStar:  0,
		PatternEveningStar:  0,
	}
	if !usable(bars, 2) {
		return counts
	}

	for i := 1; i < len(bars); i++ {
		b := bars[i]
		switch {
		case isHammer(b, bars[i-1].Close):
			counts[PatternHammer]++
		case isShootingStar(b):
			counts[PatternShootingStar]++
		case isDoji(b):
			counts[PatternDoji]++
		}

		if i >= 2 {
			switch {
			case isMorningStar(bars[i-2], bars[i-1], b):
				counts[PatternMorningStar]++
			case isEveningStar(bars[i-2], bars[i-1], b):
				counts[PatternEveningStar]++
			}
		}
	}
	return counts
}

// classify resolves bar i to at most one signal.
func classify(bars []domain.Bar, i int) (domain.SignalType, string, bool) {
	var (
		typ     domain.SignalType
		pattern string
		ok      bool
	)

	b := bars[i]
	switch {
	case isHammer(b, bars[i-1].Close):
		typ, pattern, ok = domain.SignalBullish, PatternHammer, true
	case isShootingStar(b):
		typ, pattern, ok = domain.SignalBearish, PatternShootingStar, true
	case isDoji(b):
		typ, ok = dojiContext(bars, i)
		pattern = PatternDoji
	}

	if i >= 2 {
		switch {
		case isMorningStar(bars[i-2], bars[i-1], b):
			typ, pattern, ok = domain.SignalBullish, PatternMorningStar, true
		case isEveningStar(bars[i-2], bars[i-1], b):
			typ, pattern, ok = domain.SignalBearish, PatternEveningStar, true
		}
	}
	return typ, pattern, ok
}

// candle holds the derived geometry of a bar.
type candle struct {
	body, upper, lower, span float64
}

func shape(b domain.Bar) candle {
	return candle{
		body:  math.Abs(b.Close - b.Open),
		upper: b.High - math.Max(b.Open, b.Close),
		lower: math.Min(b.Open, b.Close) - b.Low,
		span:  b.High - b.Low,
	}
}

// shadowToBody is shadow/body, or 0 for a bodiless candle.
func shadowToBody(shadow, body float64) float64 {
	if body > 0 {
		return shadow / body
	}
	return 0
}

// isHammer: small body, long lower shadow, almost no upper shadow, not a
// down candle, and opening below the previous close.
func isHammer(b domain.Bar, prevClose float64) bool {
	c := shape(b)
	if c.span == 0 || b.Close < b.Open {
		return false
	}
	return c.body/c.span < smallBodyRatio &&
		shadowToBody(c.lower, c.body) >= longShadowFactor &&
		c.upper/c.span < shortShadowRatio &&
		b.Open < prevClose
}

// isShootingStar: small body, long upper shadow, almost no lower shadow.
func isShootingStar(b domain.Bar) bool {
	c := shape(b)
	if c.span == 0 {
		return false
	}
	return c.body/c.span < smallBodyRatio &&
		shadowToBody(c.upper, c.body) >= longShadowFactor &&
		c.lower/c.span < shortShadowRatio
}

func isDoji(b domain.Bar) bool {
	c := shape(b)
	if c.span == 0 {
		return false
	}
	return c.body/c.span < dojiBodyRatio
}

// dojiContext reads the closes around a doji: lower than both neighbours is
// bullish, higher than both is bearish. The first and last bars have no
// context.
func dojiContext(bars []domain.Bar, i int) (domain.SignalType, bool) {
	if i == 0 || i >= len(bars)-1 {
		return "", false
	}
	prev, curr, next := bars[i-1].Close, bars[i].Close, bars[i+1].Close
	switch {
	case prev > curr && next > curr:
		return domain.SignalBullish, true
	case prev < curr && next < curr:
		return domain.SignalBearish, true
	}
	return "", false
}

func isMorningStar(first, second, third domain.Bar) bool {
	firstBody := math.Abs(first.Close - first.Open)
	secondBody := math.Abs(second.Close - second.Open)
	mid := (first.Open + first.Close) / 2

	return first.Close < first.Open &&
		secondBody < firstBody*starBodyRatio &&
		second.Close < first.Close &&
		third.Close > third.Open &&
		third.Close > mid
}

func isEveningStar(first, second, third domain.Bar) bool {
	firstBody := math.Abs(first.Close - first.Open)
	secondBody := math.Abs(second.Close - second.Open)
	mid := (first.Open + first.Close) / 2

	return first.Close > first.Open &&
		secondBody < firstBody*starBodyRatio &&
		second.Close > first.Close &&
		third.Close < third.Open &&
		third.Close < mid
}
