package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"patternbt/internal/engine"
	"patternbt/internal/report"
	"patternbt/internal/store"
)

const resultsFile = "results.json"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a backtest over the configured bar source",
	Long: `Run loads daily bars for the selected symbols, replays them through the
chosen pattern detector, prints the summary, and writes the detailed CSV
files and results.json to the output directory. Completed runs are recorded
in the SQLite journal.

Examples:
  patternbt run
  patternbt run --strategy reversal --source parquet --symbols AAPL,MSFT
  patternbt run --start 2022-01-01 --end 2023-12-31 --output data/results/2022`,
	RunE: runBacktest,
}

var (
	runStrategy  string
	runSource    string
	runSymbols   []string
	runStart     string
	runEnd       string
	runOutput    string
	runNoDaily   bool
	runNoJournal bool
	runTop       int
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "pattern detector (default run.strategy)")
	runCmd.Flags().StringVar(&runSource, "source", "", "bar source: parquet or csv (default run.source)")
	runCmd.Flags().StringSliceVar(&runSymbols, "symbols", nil, "symbols to test (default run.symbols, else every symbol in the source)")
	runCmd.Flags().StringVar(&runStart, "start", "", "first date, YYYY-MM-DD")
	runCmd.Flags().StringVar(&runEnd, "end", "", "last date, YYYY-MM-DD")
	runCmd.Flags().StringVar(&runOutput, "output", "", "output directory (default run.output_dir)")
	runCmd.Flags().BoolVar(&runNoDaily, "no-daily", false, "skip daily mark-to-market returns")
	runCmd.Flags().BoolVar(&runNoJournal, "no-journal", false, "do not record the run in the journal")
	runCmd.Flags().IntVar(&runTop, "top", 10, "number of symbols to list by total return (0 to hide)")
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rc := cfg.Run
	if runStrategy != "" {
		rc.Strategy = runStrategy
	}
	if runSource != "" {
		rc.Source = runSource
	}
	if len(runSymbols) > 0 {
		rc.Symbols = runSymbols
	}
	if runStart != "" {
		rc.StartDate = runStart
	}
	if runEnd != "" {
		rc.EndDate = runEnd
	}
	if runOutput != "" {
		rc.OutputDir = runOutput
	}
	if runNoDaily {
		rc.DailyReturns = false
	}

	src, err := lookupStrategy(rc.Strategy)
	if err != nil {
		return err
	}
	bars, err := openBarStore(rc.Source)
	if err != nil {
		return err
	}
	start, err := parseDate(rc.StartDate)
	if err != nil {
		return err
	}
	end, err := parseDate(rc.EndDate)
	if err != nil {
		return err
	}

	symbols := upperAll(rc.Symbols)
	if len(symbols) == 0 {
		if symbols, err = bars.ListSymbols(ctx, rc.Market); err != nil {
			return fmt.Errorf("listing symbols: %w", err)
		}
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols found in %s source", rc.Source)
	}

	series, err := store.ReadSeries(ctx, bars, rc.Market, symbols, start, end)
	if err != nil {
		return fmt.Errorf("loading bars: %w", err)
	}

	eng, err := engine.New(cfg.Backtest, src,
		engine.WithLogger(slog.Default()),
		engine.WithWorkers(rc.Workers),
		engine.WithDailyReturns(rc.DailyReturns),
	)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	report.WriteHeader(out, src.Name(), cfg.Backtest)

	res, err := eng.Run(ctx, series)
	if err != nil {
		return err
	}

	files, err := res.Export(rc.OutputDir)
	if err != nil {
		return err
	}
	if err := writeResultsJSON(filepath.Join(rc.OutputDir, resultsFile), res); err != nil {
		return err
	}
	slog.Info("results exported", "dir", rc.OutputDir, "files", append(files, resultsFile))

	if !runNoJournal {
		if err := journalRun(ctx, res); err != nil {
			slog.Warn("journal write failed", "runID", res.RunID, "err", err)
		}
	}

	report.WriteSummary(out, res, rc.OutputDir)
	report.WriteTopSymbols(out, res.SymbolStats, runTop)
	return nil
}

func writeResultsJSON(path string, res *engine.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func journalRun(ctx context.Context, res *engine.Result) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return err
	}
	j, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer j.Close()
	return j.SaveRun(ctx, res.JournalEntry(), res.Trades)
}
