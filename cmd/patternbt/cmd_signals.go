package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"patternbt/internal/domain"
	"patternbt/internal/performance"
	"patternbt/internal/report"
	"patternbt/internal/strategy"
)

var signalsCmd = &cobra.Command{
	Use:   "signals SYMBOL",
	Short: "Print the pattern signals detected for one symbol",
	Long: `Signals runs a detector over one symbol's bars without simulating trades.
Detectors that classify several patterns also print a per-pattern count.
Forward returns after each signal are summarised per pattern (mean, hit
rate, t-stat) at the --horizons bar offsets.

Examples:
  patternbt signals AAPL
  patternbt signals MSFT --strategy reversal --start 2023-01-01
  patternbt signals NVDA --strategy reversal --horizons 1,3,20`,
	Args: cobra.ExactArgs(1),
	RunE: runSignals,
}

var (
	signalsStrategy string
	signalsSource   string
	signalsStart    string
	signalsEnd      string
	signalsHorizons []int
	signalsNoStats  bool
)

// breakdowner is implemented by detectors that count bars per pattern.
type breakdowner interface {
	Breakdown(bars []domain.Bar) map[string]int
}

func init() {
	rootCmd.AddCommand(signalsCmd)

	signalsCmd.Flags().StringVar(&signalsStrategy, "strategy", "", "pattern detector (default run.strategy)")
	signalsCmd.Flags().StringVar(&signalsSource, "source", "", "bar source: parquet or csv (default run.source)")
	signalsCmd.Flags().StringVar(&signalsStart, "start", "", "first date, YYYY-MM-DD")
	signalsCmd.Flags().StringVar(&signalsEnd, "end", "", "last date, YYYY-MM-DD")
	signalsCmd.Flags().IntSliceVar(&signalsHorizons, "horizons", performance.DefaultHorizons, "forward-return horizons in bars")
	signalsCmd.Flags().BoolVar(&signalsNoStats, "no-stats", false, "skip forward-return pattern statistics")
}

func runSignals(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	symbol := strings.ToUpper(args[0])

	name := cfg.Run.Strategy
	if signalsStrategy != "" {
		name = signalsStrategy
	}
	source := cfg.Run.Source
	if signalsSource != "" {
		source = signalsSource
	}

	src, err := lookupStrategy(name)
	if err != nil {
		return err
	}
	bars, err := openBarStore(source)
	if err != nil {
		return err
	}
	start, err := parseDate(signalsStart)
	if err != nil {
		return err
	}
	end, err := parseDate(signalsEnd)
	if err != nil {
		return err
	}

	series, err := bars.ReadBars(ctx, symbol, cfg.Run.Market, start, end)
	if err != nil {
		return fmt.Errorf("loading %s: %w", symbol, err)
	}
	if len(series) == 0 {
		return fmt.Errorf("no bars for %s in %s source", symbol, source)
	}
	if err := domain.ValidateBars(series); err != nil {
		return err
	}

	signals, err := src.GenerateSignals(ctx, series)
	if err != nil {
		return err
	}
	strategy.SortSignals(signals)

	var breakdown map[string]int
	if b, ok := src.(breakdowner); ok {
		breakdown = b.Breakdown(series)
	}
	out := cmd.OutOrStdout()
	report.WriteSignals(out, symbol, signals, breakdown)

	if signalsNoStats {
		return nil
	}
	horizons, err := validHorizons(signalsHorizons)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	report.WritePatternStats(out, performance.PatternStatistics(series, signals, horizons))
	return nil
}

// validHorizons rejects non-positive horizons and returns the rest sorted
// and deduplicated.
func validHorizons(hs []int) ([]int, error) {
	if len(hs) == 0 {
		return nil, fmt.Errorf("at least one horizon is required")
	}
	out := append([]int(nil), hs...)
	sort.Ints(out)
	uniq := out[:0]
	for _, h := range out {
		if h <= 0 {
			return nil, fmt.Errorf("horizon %d must be positive", h)
		}
		if len(uniq) == 0 || h != uniq[len(uniq)-1] {
			uniq = append(uniq, h)
		}
	}
	return uniq, nil
}
