// Package report renders backtest results, journaled runs, and signals for
// the console.
package report

import (
	"fmt"
	"math"
	"strings"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatMoney formats a dollar amount as $1,234.56, with a leading minus
// for negative values.
func FormatMoney(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	cents := int64(math.Round(math.Abs(v) * 100))
	s := fmt.Sprintf("$%s.%02d", FormatInt(int(cents/100)), cents%100)
	if v < 0 && cents != 0 {
		return "-" + s
	}
	return s
}

// FormatCapital formats a whole-dollar amount as $1,000,000.
func FormatCapital(v float64) string {
	return "$" + FormatInt(int(math.Round(v)))
}

// FormatPct formats a value already expressed in percent with two decimals.
func FormatPct(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}

// FormatFraction formats a fraction (0.05) as a one-decimal percent (5.0%).
func FormatFraction(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

// FormatCompact formats a large value with B/M/K suffixes.
func FormatCompact(v float64) string {
	a := math.Abs(v)
	switch {
	case a >= 1e9:
		return fmt.Sprintf("%.1fB", v/1e9)
	case a >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case a >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
