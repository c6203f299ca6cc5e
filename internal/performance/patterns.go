package performance

import (
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"patternbt/internal/domain"
)

// DefaultHorizons are the forward windows, in bars, used for pattern
// statistics.
var DefaultHorizons = []int{1, 5, 10}

// PatternObservation is one detected pattern with its forward returns as
// fractions of the signal bar's close. A horizon without enough later bars
// has no entry.
type PatternObservation struct {
	Pattern string
	Date    time.Time
	Forward map[int]float64
}

// ReturnStats describes the forward returns at one horizon. Hit rate is the
// fraction of positive returns. StdDev is the sample deviation and TStat the
// one-sample t statistic against zero; both are zero with fewer than two
// observations or no dispersion.
type ReturnStats struct {
	Horizon      int     `json:"horizon"`
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	TStat        float64 `json:"t_stat"`
	HitRate      float64 `json:"hit_rate"`
	Observations int     `json:"n_obs"`
}

// PatternStats holds ReturnStats per horizon for one pattern, in horizon
// order.
type PatternStats struct {
	Pattern  string        `json:"pattern"`
	Signals  int           `json:"signals"`
	Horizons []ReturnStats `json:"horizons"`
}

// Horizon returns the stats for horizon h.
func (p PatternStats) Horizon(h int) (ReturnStats, bool) {
	for _, rs := range p.Horizons {
		if rs.Horizon == h {
			return rs, true
		}
	}
	return ReturnStats{}, false
}

// PatternReport is the per-pattern and aggregate forward-return summary.
// Patterns are in order of first appearance.
type PatternReport struct {
	Patterns  []PatternStats `json:"patterns"`
	Aggregate []ReturnStats  `json:"aggregate"`
}

// ForwardReturns pairs each signal with the closes h bars later for every
// horizon. bars must be ascending by date; signals on dates without a bar
// are skipped. A signal without a pattern name is keyed by its type.
func ForwardReturns(bars []domain.Bar, signals []domain.Signal, horizons []int) []PatternObservation {
	index := make(map[time.Time]int, len(bars))
	for i, b := range bars {
		index[domain.Day(b.Timestamp)] = i
	}

	obs := make([]PatternObservation, 0, len(signals))
	for _, sig := range signals {
		i, ok := index[domain.Day(sig.Date)]
		if !ok {
			continue
		}
		name := sig.Pattern
		if name == "" {
			name = string(sig.Type)
		}
		o := PatternObservation{Pattern: name, Date: domain.Day(sig.Date), Forward: make(map[int]float64, len(horizons))}
		base := bars[i].Close
		for _, h := range horizons {
			if h <= 0 || i+h >= len(bars) || base == 0 {
				continue
			}
			o.Forward[h] = (bars[i+h].Close - base) / base
		}
		obs = append(obs, o)
	}
	return obs
}

// SummarizePatterns aggregates observations per pattern and overall.
func SummarizePatterns(obs []PatternObservation, horizons []int) PatternReport {
	var order []string
	byPattern := make(map[string][]PatternObservation)
	for _, o := range obs {
		if _, ok := byPattern[o.Pattern]; !ok {
			order = append(order, o.Pattern)
		}
		byPattern[o.Pattern] = append(byPattern[o.Pattern], o)
	}

	r := PatternReport{Patterns: make([]PatternStats, 0, len(order))}
	for _, name := range order {
		group := byPattern[name]
		ps := PatternStats{Pattern: name, Signals: len(group)}
		for _, h := range horizons {
			ps.Horizons = append(ps.Horizons, returnStats(h, collect(group, h)))
		}
		r.Patterns = append(r.Patterns, ps)
	}
	for _, h := range horizons {
		r.Aggregate = append(r.Aggregate, returnStats(h, collect(obs, h)))
	}
	return r
}

// PatternStatistics computes forward-return statistics for the signals
// detected on one symbol's bars.
func PatternStatistics(bars []domain.Bar, signals []domain.Signal, horizons []int) PatternReport {
	return SummarizePatterns(ForwardReturns(bars, signals, horizons), horizons)
}

func collect(obs []PatternObservation, h int) []float64 {
	var out []float64
	for _, o := range obs {
		if v, ok := o.Forward[h]; ok {
			out = append(out, v)
		}
	}
	return out
}

func returnStats(h int, returns []float64) ReturnStats {
	rs := ReturnStats{Horizon: h, Observations: len(returns)}
	if len(returns) == 0 {
		return rs
	}
	data := stats.Float64Data(returns)

	positive := 0
	for _, v := range returns {
		if v > 0 {
			positive++
		}
	}
	rs.HitRate = float64(positive) / float64(len(returns))
	rs.Mean, _ = stats.Mean(data)
	if len(returns) > 1 {
		rs.StdDev, _ = stats.StandardDeviationSample(data)
		if rs.StdDev > 0 {
			rs.TStat = rs.Mean / (rs.StdDev / math.Sqrt(float64(len(returns))))
		}
	}
	return rs
}

// RankMetric selects the statistic BestPatterns orders by.
type RankMetric string

const (
	RankMean    RankMetric = "mean"
	RankHitRate RankMetric = "hit_rate"
	RankTStat   RankMetric = "t_stat"
	RankStdDev  RankMetric = "std"
)

// RankedPattern is one entry of a BestPatterns ranking.
type RankedPattern struct {
	Pattern string  `json:"pattern"`
	Value   float64 `json:"value"`
}

// BestPatterns ranks patterns with observations at horizon h. Mean and hit
// rate rank highest first, t-stat by largest magnitude, std lowest first.
// Ties keep first-appearance order.
func (r PatternReport) BestPatterns(metric RankMetric, h int) []RankedPattern {
	var ranked []RankedPattern
	for _, p := range r.Patterns {
		rs, ok := p.Horizon(h)
		if !ok || rs.Observations == 0 {
			continue
		}
		var v float64
		switch metric {
		case RankMean:
			v = rs.Mean
		case RankHitRate:
			v = rs.HitRate
		case RankTStat:
			v = rs.TStat
		case RankStdDev:
			v = rs.StdDev
		default:
			return nil
		}
		ranked = append(ranked, RankedPattern{Pattern: p.Pattern, Value: v})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Value, ranked[j].Value
		switch metric {
		case RankTStat:
			return math.Abs(a) > math.Abs(b)
		case RankStdDev:
			return a < b
		}
		return a > b
	})
	return ranked
}
