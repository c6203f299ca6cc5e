package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"patternbt/internal/config"
	"patternbt/internal/domain"
	"patternbt/internal/engine"
	"patternbt/internal/performance"
)

const ruleWidth = 60

func rule(ch string) string { return strings.Repeat(ch, ruleWidth) }

// WriteHeader prints the run parameters before a backtest starts.
func WriteHeader(w io.Writer, strategy string, cfg config.Backtest) {
	fmt.Fprintf(w, "Starting %s backtest...\n", strategy)
	fmt.Fprintf(w, "Initial Capital: %s\n", FormatCapital(cfg.InitialCapital))
	fmt.Fprintf(w, "Position Size: %s\n", FormatFraction(cfg.PositionSizePct))
	fmt.Fprintf(w, "Stop Loss: %s\n", FormatFraction(cfg.StopLossPct))
	fmt.Fprintf(w, "Stop Win: %s\n", FormatFraction(cfg.StopWinPct))
	fmt.Fprintf(w, "Commission: %g bps\n", cfg.CommissionBps)
	fmt.Fprintln(w, rule("-"))
}

// WriteSummary prints the result block: per-direction metrics, combined
// metrics, the portfolio summary, and, when outputDir is set, where the
// detailed files went.
func WriteSummary(w io.Writer, r *engine.Result, outputDir string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule("="))
	fmt.Fprintf(w, "%s BACKTEST RESULTS\n", strings.ToUpper(r.Strategy))
	fmt.Fprintln(w, rule("="))

	if r.TradingDays > 0 {
		fmt.Fprintf(w, "Period: %s .. %s (%s trading days, %s symbols)\n",
			r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly),
			FormatInt(r.TradingDays), FormatInt(r.Symbols))
	}
	fmt.Fprintf(w, "Total Trades: %s\n", FormatInt(r.Metrics.Overall.TotalTrades))

	writeGroup(w, "LONG POSITIONS", r.Metrics.LongPositions)
	writeGroup(w, "SHORT POSITIONS", r.Metrics.ShortPositions)

	fmt.Fprintf(w, "\nCOMBINED METRICS:\n")
	fmt.Fprintf(w, "Overall Hit Rate: %.1f%%\n", r.Metrics.Combined.HitRate)
	fmt.Fprintf(w, "Overall Average Return: %s\n", FormatPct(r.Metrics.Combined.AverageReturn))

	if r.Daily.Days > 0 {
		fmt.Fprintf(w, "\nDAILY RETURNS:\n")
		fmt.Fprintf(w, "Days: %s  Mean: %s  StdDev: %s\n", FormatInt(r.Daily.Days), FormatPct(r.Daily.Mean), FormatPct(r.Daily.StdDev))
		fmt.Fprintf(w, "Best Day: %s  Worst Day: %s\n", FormatPct(r.Daily.Best), FormatPct(r.Daily.Worst))
	}

	fmt.Fprintf(w, "\nPORTFOLIO SUMMARY:\n")
	fmt.Fprintf(w, "Final Cash: %s\n", FormatMoney(r.Portfolio.FinalCash))
	fmt.Fprintf(w, "Open Positions: %d (long=%d short=%d)\n", r.Portfolio.FinalPositions, r.Portfolio.OpenLong, r.Portfolio.OpenShort)
	fmt.Fprintf(w, "Closed Positions: %s\n", FormatInt(r.Portfolio.TotalClosedPositions))

	if outputDir != "" {
		fmt.Fprintf(w, "\nDetailed results exported to: %s\n", outputDir)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule("="))
}

func writeGroup(w io.Writer, title string, g performance.GroupStats) {
	fmt.Fprintf(w, "\n%s:\n", title)
	fmt.Fprintf(w, "Hit Rate: %.1f%% (%d/%d)\n", g.HitRate, g.ProfitableTrades, g.TotalTrades)
	fmt.Fprintf(w, "Average Return: %s\n", FormatPct(g.AverageReturn))
	fmt.Fprintf(w, "Total Return: %s\n", FormatPct(g.TotalReturn))
	fmt.Fprintf(w, "Best Trade: %s\n", FormatPct(g.BestTrade))
	fmt.Fprintf(w, "Worst Trade: %s\n", FormatPct(g.WorstTrade))
}

// WriteTopSymbols prints up to n symbols ranked by total return.
func WriteTopSymbols(w io.Writer, stats []performance.SymbolStats, n int) {
	if len(stats) == 0 || n <= 0 {
		return
	}
	ranked := append([]performance.SymbolStats(nil), stats...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].TotalReturn > ranked[j].TotalReturn })
	if len(ranked) > n {
		ranked = ranked[:n]
	}

	fmt.Fprintf(w, "\n--- Top symbols by total return ---\n")
	fmt.Fprintf(w, "  %-8s %6s %8s %10s %10s\n", "Symbol", "Trades", "HitRate", "AvgRet", "TotalRet")
	for _, s := range ranked {
		fmt.Fprintf(w, "  %-8s %6d %7.1f%% %10s %10s\n",
			s.Symbol, s.TotalTrades, s.HitRate, FormatPct(s.AverageReturn), FormatPct(s.TotalReturn))
	}
}

// RunHeader is the column header matching RunRow.
func RunHeader() string {
	return fmt.Sprintf("%-36s %-10s %-16s %7s %6s %8s %8s", "Run", "Strategy", "Started", "Symbols", "Trades", "HitRate", "AvgRet")
}

// RunRow formats one journaled run as a table row.
func RunRow(r domain.Run) string {
	return fmt.Sprintf("%-36s %-10s %-16s %7d %6d %7.1f%% %8s",
		r.ID, r.Strategy, r.StartedAt.Local().Format("2006-01-02 15:04"),
		r.Symbols, r.TotalTrades, r.HitRate, FormatPct(r.AverageReturn))
}

// WriteRuns prints journaled runs, newest first as given.
func WriteRuns(w io.Writer, runs []domain.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	fmt.Fprintf(w, "  %s\n", RunHeader())
	for _, r := range runs {
		fmt.Fprintf(w, "  %s\n", RunRow(r))
	}
}

// TradeHeader is the column header matching TradeRow.
func TradeHeader() string {
	return fmt.Sprintf("%-8s %-5s %-10s %-10s %10s %10s %9s %5s  %s",
		"Symbol", "Dir", "Entry", "Exit", "EntryPx", "ExitPx", "Return", "Days", "Reason")
}

// TradeRow formats one closed trade as a table row.
func TradeRow(t domain.Trade) string {
	return fmt.Sprintf("%-8s %-5s %-10s %-10s %10.2f %10.2f %9s %5d  %s",
		t.Symbol, t.Direction, t.EntryDate.Format(time.DateOnly), t.ExitDate.Format(time.DateOnly),
		t.EntryPrice, t.ExitPrice, FormatPct(t.ReturnPct), t.HoldDays, t.ExitReason)
}

// WriteTrades prints closed trades in the order given.
func WriteTrades(w io.Writer, trades []domain.Trade) {
	if len(trades) == 0 {
		fmt.Fprintln(w, "no trades")
		return
	}
	fmt.Fprintf(w, "  %s\n", TradeHeader())
	for _, t := range trades {
		fmt.Fprintf(w, "  %s\n", TradeRow(t))
	}
}

// WriteSignals prints detected signals and, when breakdown is non-nil, a
// per-pattern count.
func WriteSignals(w io.Writer, symbol string, signals []domain.Signal, breakdown map[string]int) {
	fmt.Fprintf(w, "=== %s: %d signals ===\n", symbol, len(signals))
	for _, s := range signals {
		fmt.Fprintf(w, "  %s  %-8s %10.2f  %s\n", s.Date.Format(time.DateOnly), s.Type, s.Price, s.Pattern)
	}
	if breakdown == nil {
		return
	}

	patterns := make([]string, 0, len(breakdown))
	for p := range breakdown {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	fmt.Fprintf(w, "\n--- Pattern breakdown ---\n")
	for _, p := range patterns {
		fmt.Fprintf(w, "  %-16s %6d\n", p, breakdown[p])
	}
}

// WritePatternStats prints forward-return statistics per pattern, the
// aggregate over all patterns, and the patterns ranked by mean return at the
// shortest horizon.
func WritePatternStats(w io.Writer, r performance.PatternReport) {
	fmt.Fprintln(w, rule("="))
	fmt.Fprintln(w, "PATTERN PERFORMANCE SUMMARY")
	fmt.Fprintln(w, rule("="))
	if len(r.Patterns) == 0 {
		fmt.Fprintln(w, "no patterns detected")
		return
	}

	for _, p := range r.Patterns {
		fmt.Fprintf(w, "\n%s (%d signals):\n", strings.ToUpper(p.Pattern), p.Signals)
		for _, rs := range p.Horizons {
			writeReturnStats(w, rs)
		}
	}

	fmt.Fprintf(w, "\nALL PATTERNS:\n")
	for _, rs := range r.Aggregate {
		writeReturnStats(w, rs)
	}

	if len(r.Aggregate) == 0 {
		return
	}
	h := r.Aggregate[0].Horizon
	ranked := r.BestPatterns(performance.RankMean, h)
	if len(ranked) == 0 {
		return
	}
	fmt.Fprintf(w, "\nBest patterns by %dd mean return:\n", h)
	for i, rp := range ranked {
		fmt.Fprintf(w, "  %2d. %-16s %8.4f\n", i+1, rp.Pattern, rp.Value)
	}
}

func writeReturnStats(w io.Writer, rs performance.ReturnStats) {
	if rs.Observations == 0 {
		return
	}
	fmt.Fprintf(w, "  %dd: Mean=%.4f, Hit Rate=%.3f, T-Stat=%.3f, Obs=%d\n",
		rs.Horizon, rs.Mean, rs.HitRate, rs.TStat, rs.Observations)
}
