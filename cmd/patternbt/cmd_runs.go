package main

import (
	"github.com/spf13/cobra"

	"patternbt/internal/report"
	"patternbt/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List journaled backtest runs",
	Long: `Runs lists the most recent backtests recorded in the SQLite journal, or
the closed trades of one run.

Examples:
  patternbt runs
  patternbt runs --limit 5
  patternbt runs --run 6f1c2d3e-...`,
	RunE: runRuns,
}

var (
	runsLimit int
	runsID    string
)

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list (0 for all)")
	runsCmd.Flags().StringVar(&runsID, "run", "", "show the trades of this run ID")
}

func runRuns(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	j, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer j.Close()

	out := cmd.OutOrStdout()
	if runsID != "" {
		trades, err := j.ListTrades(ctx, runsID)
		if err != nil {
			return err
		}
		report.WriteTrades(out, trades)
		return nil
	}

	runs, err := j.ListRuns(ctx, runsLimit)
	if err != nil {
		return err
	}
	report.WriteRuns(out, runs)
	return nil
}
