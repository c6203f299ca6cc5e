package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for patternbt.
type Config struct {
	Storage  Storage      `yaml:"storage"`
	Alpaca   Alpaca       `yaml:"alpaca"`
	Logging  Logging      `yaml:"logging"`
	Gather   GatherConfig `yaml:"gather"`
	Backtest Backtest     `yaml:"backtest"`
	Run      RunConfig    `yaml:"run"`
	Server   Server       `yaml:"server"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`    // root of the Parquet bar store
	SQLitePath string `yaml:"sqlite_path"` // run journal
	CSVDir     string `yaml:"csv_dir"`     // directory of <SYMBOL>_daily.csv files
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	BaseURL   string `yaml:"base_url"` // trading API, used for the market calendar
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	File   string `yaml:"file"`   // optional; logs are teed to stderr and this file
}

// GatherConfig controls daily bar ingestion.
type GatherConfig struct {
	StartDate       string   `yaml:"start_date"`
	EndDate         string   `yaml:"end_date"` // empty = latest finished trading day
	BatchSize       int      `yaml:"batch_size"`
	Workers         int      `yaml:"workers"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	MaxAttempts     int      `yaml:"max_attempts"`
	BreakerFailures int      `yaml:"breaker_failures"`
	Symbols         []string `yaml:"symbols"`
	SymbolsFile     string   `yaml:"symbols_file"` // CSV with a "symbol" column
}

// Backtest holds the five simulation parameters. It is read once and never
// mutated during a run.
type Backtest struct {
	InitialCapital  float64 `yaml:"initial_capital"`
	PositionSizePct float64 `yaml:"position_size_pct"` // fraction of initial capital per position
	StopLossPct     float64 `yaml:"stop_loss_pct"`     // fractional adverse move from entry
	StopWinPct      float64 `yaml:"stop_win_pct"`      // fractional favourable move from entry
	CommissionBps   float64 `yaml:"commission_bps"`    // charged once on entry value at close
}

// RunConfig selects what a backtest run reads and where it writes.
type RunConfig struct {
	Strategy     string   `yaml:"strategy"`
	Source       string   `yaml:"source"` // "parquet" or "csv"
	Market       string   `yaml:"market"`
	Symbols      []string `yaml:"symbols"` // empty = every symbol in the source
	StartDate    string   `yaml:"start_date"`
	EndDate      string   `yaml:"end_date"`
	Workers      int      `yaml:"workers"`
	DailyReturns bool     `yaml:"daily_returns"`
	OutputDir    string   `yaml:"output_dir"`
}

// Server configures the read-only results API.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ---------------------------------------------------------------------------
// Defaults and validation
// ---------------------------------------------------------------------------

// DefaultBacktest returns the stock parameters: $1M capital, 5% per position,
// 5% stop loss, 20% stop win and 10 bps commission.
func DefaultBacktest() Backtest {
	return Backtest{
		InitialCapital:  1_000_000,
		PositionSizePct: 0.05,
		StopLossPct:     0.05,
		StopWinPct:      0.20,
		CommissionBps:   10,
	}
}

// Default returns a Config populated with defaults for every section.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/patternbt.db",
			CSVDir:     "data/temp",
		},
		Logging: Logging{Level: "info", Format: "json"},
		Gather: GatherConfig{
			StartDate:       "2020-01-01",
			BatchSize:       100,
			Workers:         4,
			RateLimitPerMin: 200,
			MaxAttempts:     3,
			BreakerFailures: 5,
		},
		Backtest: DefaultBacktest(),
		Run: RunConfig{
			Strategy:     "engulfing",
			Source:       "csv",
			Market:       "us",
			Workers:      4,
			DailyReturns: true,
			OutputDir:    "data/results",
		},
		Server: Server{Host: "127.0.0.1", Port: 8080},
	}
}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks that the backtest parameters describe a runnable
// simulation.
func (b Backtest) Validate() error {
	switch {
	case b.InitialCapital <= 0:
		return fmt.Errorf("%w: initial_capital must be > 0, got %v", ErrInvalidConfig, b.InitialCapital)
	case b.PositionSizePct <= 0 || b.PositionSizePct > 1:
		return fmt.Errorf("%w: position_size_pct must be in (0, 1], got %v", ErrInvalidConfig, b.PositionSizePct)
	case b.StopLossPct < 0:
		return fmt.Errorf("%w: stop_loss_pct must be >= 0, got %v", ErrInvalidConfig, b.StopLossPct)
	case b.StopWinPct < 0:
		return fmt.Errorf("%w: stop_win_pct must be >= 0, got %v", ErrInvalidConfig, b.StopWinPct)
	case b.CommissionBps < 0:
		return fmt.Errorf("%w: commission_bps must be >= 0, got %v", ErrInvalidConfig, b.CommissionBps)
	}
	return nil
}

// Validate checks the sections a backtest run depends on.
func (c *Config) Validate() error {
	if err := c.Backtest.Validate(); err != nil {
		return err
	}
	switch c.Run.Source {
	case "parquet", "csv":
	default:
		return fmt.Errorf("%w: run.source must be \"parquet\" or \"csv\", got %q", ErrInvalidConfig, c.Run.Source)
	}
	if c.Run.Workers < 0 {
		return fmt.Errorf("%w: run.workers must be >= 0", ErrInvalidConfig)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port out of range: %d", ErrInvalidConfig, c.Server.Port)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path on top of
// Default(), applies environment variable overrides, and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("CSV_DIR"); v != "" {
		cfg.Storage.CSVDir = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		cfg.Run.OutputDir = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars take precedence.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
