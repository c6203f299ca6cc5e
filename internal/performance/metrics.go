package performance

import (
	"github.com/montanaflynn/stats"

	"patternbt/internal/domain"
)

// GroupStats summarises the return percentages of a set of trades. Every
// field is zero for an empty set.
type GroupStats struct {
	HitRate          float64 `json:"hit_rate"`
	AverageReturn    float64 `json:"average_return"`
	TotalReturn      float64 `json:"total_return"`
	BestTrade        float64 `json:"best_trade"`
	WorstTrade       float64 `json:"worst_trade"`
	TotalTrades      int     `json:"total_trades"`
	ProfitableTrades int     `json:"profitable_trades"`
}

// Overall holds run-wide counts.
type Overall struct {
	TotalTrades int `json:"total_trades"`
}

// Combined holds statistics over all trades regardless of direction.
type Combined struct {
	HitRate       float64 `json:"hit_rate"`
	AverageReturn float64 `json:"average_return"`
}

// Metrics is the aggregate result of a run.
type Metrics struct {
	Overall        Overall    `json:"overall"`
	LongPositions  GroupStats `json:"long_positions"`
	ShortPositions GroupStats `json:"short_positions"`
	Combined       Combined   `json:"combined"`
}

// SymbolStats is GroupStats for a single symbol.
type SymbolStats struct {
	Symbol string `json:"symbol"`
	GroupStats
}

// DailySummary describes the distribution of daily portfolio returns.
type DailySummary struct {
	Days   int     `json:"days"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Best   float64 `json:"best"`
	Worst  float64 `json:"worst"`
}

// ComputeMetrics aggregates the recorded trades. It does not modify the
// tracker, so repeated calls return identical results.
func (t *Tracker) ComputeMetrics() Metrics {
	var long, short []float64
	all := make([]float64, 0, len(t.trades))
	for _, tr := range t.trades {
		all = append(all, tr.ReturnPct)
		switch tr.Direction {
		case domain.DirectionLong:
			long = append(long, tr.ReturnPct)
		case domain.DirectionShort:
			short = append(short, tr.ReturnPct)
		default:
			panic("performance: unknown direction " + string(tr.Direction))
		}
	}

	combined := groupStats(all)
	return Metrics{
		Overall:        Overall{TotalTrades: len(t.trades)},
		LongPositions:  groupStats(long),
		ShortPositions: groupStats(short),
		Combined: Combined{
			HitRate:       combined.HitRate,
			AverageReturn: combined.AverageReturn,
		},
	}
}

// SymbolStatistics returns per-symbol statistics in the order each symbol
// first closed a trade.
func (t *Tracker) SymbolStatistics() []SymbolStats {
	var order []string
	returns := make(map[string][]float64)
	for _, tr := range t.trades {
		if _, ok := returns[tr.Symbol]; !ok {
			order = append(order, tr.Symbol)
		}
		returns[tr.Symbol] = append(returns[tr.Symbol], tr.ReturnPct)
	}

	out := make([]SymbolStats, 0, len(order))
	for _, sym := range order {
		out = append(out, SymbolStats{Symbol: sym, GroupStats: groupStats(returns[sym])})
	}
	return out
}

// DailySummary aggregates the recorded daily returns. The standard deviation
// is the sample deviation and is zero with fewer than two days.
func (t *Tracker) DailySummary() DailySummary {
	if len(t.daily) == 0 {
		return DailySummary{}
	}
	data := make(stats.Float64Data, len(t.daily))
	for i, d := range t.daily {
		data[i] = d.ReturnPct
	}

	s := DailySummary{Days: len(data)}
	s.Mean, _ = stats.Mean(data)
	s.Best, _ = stats.Max(data)
	s.Worst, _ = stats.Min(data)
	if len(data) > 1 {
		s.StdDev, _ = stats.StandardDeviationSample(data)
	}
	return s
}

// groupStats computes GroupStats over return percentages. The stats package
// errors only on empty input, which is handled up front.
func groupStats(returns []float64) GroupStats {
	if len(returns) == 0 {
		return GroupStats{}
	}
	data := stats.Float64Data(returns)

	g := GroupStats{TotalTrades: len(returns)}
	for _, r := range returns {
		if r > 0 {
			g.ProfitableTrades++
		}
	}
	g.HitRate = float64(g.ProfitableTrades) / float64(g.TotalTrades) * 100
	g.AverageReturn, _ = stats.Mean(data)
	g.TotalReturn, _ = stats.Sum(data)
	g.BestTrade, _ = stats.Max(data)
	g.WorstTrade, _ = stats.Min(data)
	return g
}
