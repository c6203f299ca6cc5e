package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"patternbt/internal/domain"
	"patternbt/internal/gather/us"
	"patternbt/internal/store"
)

var gatherCmd = &cobra.Command{
	Use:   "gather",
	Short: "Download daily bars from Alpaca into the Parquet store",
	Long: `Gather fetches daily OHLCV bars for gather.symbols and gather.symbols_file
from the Alpaca market-data API and merges them into the Parquet store. The
end date defaults to the latest finished trading day. An interrupted run
resumes where it stopped; a finished run is a no-op until the end date moves.

Examples:
  patternbt gather
  patternbt gather --symbols AAPL,MSFT --start 2015-01-01`,
	RunE: runGather,
}

var (
	gatherSymbols []string
	gatherStart   string
	gatherEnd     string
)

func init() {
	rootCmd.AddCommand(gatherCmd)

	gatherCmd.Flags().StringSliceVar(&gatherSymbols, "symbols", nil, "symbols to fetch (default gather.symbols + gather.symbols_file)")
	gatherCmd.Flags().StringVar(&gatherStart, "start", "", "first date, YYYY-MM-DD (default gather.start_date)")
	gatherCmd.Flags().StringVar(&gatherEnd, "end", "", "last date, YYYY-MM-DD (default latest finished trading day)")
}

func runGather(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gc := cfg.Gather
	if gatherStart != "" {
		gc.StartDate = gatherStart
	}
	if gatherEnd != "" {
		gc.EndDate = gatherEnd
	}

	symbols := gatherSymbols
	if len(symbols) == 0 {
		var err error
		if symbols, err = us.ResolveSymbols(gc.Symbols, gc.SymbolsFile); err != nil {
			return err
		}
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols to gather: set gather.symbols, gather.symbols_file or --symbols")
	}

	pstore := &store.ParquetStore{DataDir: cfg.Storage.DataDir, Market: string(domain.MarketUS)}
	g := us.NewDailyBarGatherer(cfg.Alpaca, gc, pstore, symbols, us.ProgressDir(cfg.Storage.DataDir))

	slog.Info("starting gatherer", "name", g.Name(), "symbols", len(symbols), "dataDir", cfg.Storage.DataDir)
	return g.Run(ctx)
}
