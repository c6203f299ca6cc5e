package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"patternbt/internal/config"
	"patternbt/internal/store"
	"patternbt/internal/strategy"
	"patternbt/internal/strategy/builtins"
	"patternbt/internal/util"
)

const defaultConfigPath = "config/patternbt.yaml"

var (
	configPath string

	cfg     *config.Config
	logFile *os.File
)

var rootCmd = &cobra.Command{
	Use:   "patternbt",
	Short: "Candlestick pattern backtester",
	Long: `patternbt replays daily OHLCV bars through a candlestick pattern detector
and simulates a long/short portfolio with fixed-fraction sizing, stop-loss and
stop-win exits, and pattern-driven exits.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $PATTERNBT_CONFIG or "+defaultConfigPath+")")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the config and installs the default logger. Logs go to stderr
// so reports on stdout stay clean; logging.file tees them to disk.
func setup(cmd *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		path = defaultConfigPath
		if p := os.Getenv("PATTERNBT_CONFIG"); p != "" {
			path = p
		}
	}

	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var w io.Writer = os.Stderr
	if cfg.Logging.File != "" {
		name := strings.ReplaceAll(cfg.Logging.File, "{date}", time.Now().Format(time.DateOnly))
		logFile, err = os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, logFile)
	}
	util.SetDefault(util.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.Format))
	slog.Debug("config loaded", "path", path, "command", cmd.Name())
	return nil
}

func teardown(*cobra.Command, []string) error {
	if logFile != nil {
		return logFile.Close()
	}
	return nil
}

// registry returns the built-in detectors.
func registry() *strategy.Registry {
	r := strategy.NewRegistry()
	builtins.Register(r)
	return r
}

// lookupStrategy resolves a detector by name.
func lookupStrategy(name string) (strategy.SignalSource, error) {
	r := registry()
	src, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %s)", name, strings.Join(r.List(), ", "))
	}
	return src, nil
}

// openBarStore returns the bar source selected by name.
func openBarStore(source string) (store.BarStore, error) {
	switch source {
	case "parquet":
		return &store.ParquetStore{DataDir: cfg.Storage.DataDir, Market: cfg.Run.Market}, nil
	case "csv":
		return store.NewCSVStore(cfg.Storage.CSVDir), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want parquet or csv)", source)
	}
}

// parseDate parses an optional YYYY-MM-DD bound; empty means unbounded.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func upperAll(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
