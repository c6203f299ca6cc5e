// Package engine runs the day-by-day backtest simulation: it merges the
// per-symbol series into one timeline, applies stop exits and pattern
// signals to the portfolio, and hands closed trades to the performance
// tracker.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"patternbt/internal/config"
	"patternbt/internal/domain"
	"patternbt/internal/performance"
	"patternbt/internal/portfolio"
	"patternbt/internal/strategy"
	"patternbt/internal/util"
)

// Engine holds the immutable inputs of a backtest. All mutable state lives in
// a per-call run, so one Engine may execute any number of independent runs.
type Engine struct {
	cfg          config.Backtest
	source       strategy.SignalSource
	log          *slog.Logger
	workers      int
	dailyReturns bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. It defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithWorkers bounds how many symbols generate signals concurrently. Values
// below 1 mean GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithDailyReturns enables the end-of-day mark-to-market that records a
// portfolio return for every trading day.
func WithDailyReturns(on bool) Option {
	return func(e *Engine) { e.dailyReturns = on }
}

// New creates an Engine for cfg that takes signals from src.
func New(cfg config.Backtest, src strategy.SignalSource, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errors.New("engine: nil signal source")
	}

	e := &Engine{cfg: cfg, source: src, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	e.log = e.log.With("component", "engine", "strategy", src.Name())
	return e, nil
}

// PortfolioSummary is the final state of the portfolio after a run.
type PortfolioSummary struct {
	FinalCash            float64 `json:"final_cash"`
	FinalPositions       int     `json:"final_positions"`
	TotalClosedPositions int     `json:"total_closed_positions"`
	OpenLong             int     `json:"open_long_positions"`
	OpenShort            int     `json:"open_short_positions"`
}

// Result is everything a run produced.
type Result struct {
	RunID       string                    `json:"run_id"`
	Strategy    string                    `json:"strategy"`
	Config      config.Backtest           `json:"config"`
	StartedAt   time.Time                 `json:"started_at"`
	Start       time.Time                 `json:"start"`
	End         time.Time                 `json:"end"`
	TradingDays int                       `json:"trading_days"`
	Symbols     int                       `json:"symbols"`
	Metrics     performance.Metrics       `json:"metrics"`
	Portfolio   PortfolioSummary          `json:"portfolio"`
	Daily       performance.DailySummary  `json:"daily"`
	SymbolStats []performance.SymbolStats `json:"symbol_statistics"`
	Trades      []domain.Trade            `json:"-"`
	Returns     []performance.DailyReturn `json:"-"`

	tracker *performance.Tracker
}

// Export writes the run's CSV artifacts to dir.
func (r *Result) Export(dir string) ([]string, error) {
	return performance.Export(dir, r.tracker, r.Metrics)
}

// JournalEntry returns the run header persisted by a RunJournal.
func (r *Result) JournalEntry() domain.Run {
	return domain.Run{
		ID:              r.RunID,
		Strategy:        r.Strategy,
		StartedAt:       r.StartedAt,
		InitialCapital:  r.Config.InitialCapital,
		PositionSizePct: r.Config.PositionSizePct,
		StopLossPct:     r.Config.StopLossPct,
		StopWinPct:      r.Config.StopWinPct,
		CommissionBps:   r.Config.CommissionBps,
		Symbols:         r.Symbols,
		TradingDays:     r.TradingDays,
		TotalTrades:     r.Metrics.Overall.TotalTrades,
		HitRate:         r.Metrics.Combined.HitRate,
		AverageReturn:   r.Metrics.Combined.AverageReturn,
	}
}

// Run simulates series, a map of symbol to its ascending daily bars. Every
// series is validated and every symbol's signals are generated before the
// first simulated day; any failure aborts the run with no partial result.
func (e *Engine) Run(ctx context.Context, series map[string][]domain.Bar) (*Result, error) {
	started := time.Now().UTC()

	r, err := e.prepare(ctx, series)
	if err != nil {
		return nil, err
	}

	cal := util.NewTradingCalendar(series)
	e.log.Info("backtest started",
		"symbols", len(r.symbols),
		"trading_days", cal.Len(),
		"start", cal.First().Format("2006-01-02"),
		"end", cal.Last().Format("2006-01-02"),
	)

	for _, day := range cal.Days() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.stopPass(day)
		r.signalPass(day)
		if e.dailyReturns {
			r.markToMarket(day)
		}
	}

	long, short := r.portfolio.OpenPositionCounts()
	res := &Result{
		RunID:       uuid.NewString(),
		Strategy:    e.source.Name(),
		Config:      e.cfg,
		StartedAt:   started,
		Start:       cal.First(),
		End:         cal.Last(),
		TradingDays: cal.Len(),
		Symbols:     len(r.symbols),
		Metrics:     r.tracker.ComputeMetrics(),
		Portfolio: PortfolioSummary{
			FinalCash:            r.portfolio.Cash(),
			FinalPositions:       r.portfolio.OpenCount(),
			TotalClosedPositions: r.portfolio.ClosedCount(),
			OpenLong:             long,
			OpenShort:            short,
		},
		Daily:       r.tracker.DailySummary(),
		SymbolStats: r.tracker.SymbolStatistics(),
		Trades:      r.tracker.Trades(),
		Returns:     r.tracker.DailyReturns(),
		tracker:     r.tracker,
	}

	e.log.Info("backtest finished",
		"run_id", res.RunID,
		"trades", res.Metrics.Overall.TotalTrades,
		"hit_rate", res.Metrics.Combined.HitRate,
		"avg_return", res.Metrics.Combined.AverageReturn,
		"open_positions", res.Portfolio.FinalPositions,
		"elapsed", time.Since(started).String(),
	)
	return res, nil
}

// ---------------------------------------------------------------------------
// Per-run state
// ---------------------------------------------------------------------------

// run is the mutable state of one Run call. The signal cache is filled once
// in prepare and never regenerated.
type run struct {
	cfg       config.Backtest
	log       *slog.Logger
	symbols   []string                                 // with data, ascending
	bars      map[string]map[time.Time]domain.Bar      // symbol -> day -> bar
	signals   map[string]map[time.Time][]domain.Signal // symbol -> day -> signals
	portfolio *portfolio.Portfolio
	tracker   *performance.Tracker

	lastClose map[string]float64
	equity    float64
}

// prepare validates every series and precomputes every symbol's signals.
// Signal generation is the only concurrent step.
func (e *Engine) prepare(ctx context.Context, series map[string][]domain.Bar) (*run, error) {
	r := &run{
		cfg:       e.cfg,
		log:       e.log,
		bars:      make(map[string]map[time.Time]domain.Bar, len(series)),
		signals:   make(map[string]map[time.Time][]domain.Signal, len(series)),
		portfolio: portfolio.New(e.cfg),
		tracker:   performance.NewTracker(),
		lastClose: make(map[string]float64),
		equity:    e.cfg.InitialCapital,
	}

	for sym, bars := range series {
		if len(bars) == 0 {
			continue
		}
		if err := domain.ValidateBars(bars); err != nil {
			return nil, fmt.Errorf("symbol %s: %w", sym, err)
		}
		if bars[0].Symbol != sym {
			return nil, fmt.Errorf("symbol %s: %w: bars are for %q", sym, domain.ErrInvalidBars, bars[0].Symbol)
		}
		byDay := make(map[time.Time]domain.Bar, len(bars))
		for _, b := range bars {
			byDay[domain.Day(b.Timestamp)] = b
		}
		r.bars[sym] = byDay
		r.symbols = append(r.symbols, sym)
	}
	sort.Strings(r.symbols)

	generated := make([][]domain.Signal, len(r.symbols))
	sem := make(chan struct{}, e.workers)
	g, gctx := errgroup.WithContext(ctx)

	for i, sym := range r.symbols {
		i, sym := i, sym
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := gctx.Err(); err != nil {
				return err
			}
			sigs, err := e.source.GenerateSignals(gctx, series[sym])
			if err != nil {
				return fmt.Errorf("generating signals for %s: %w", sym, err)
			}
			generated[i] = sigs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, sym := range r.symbols {
		sigs := generated[i]
		strategy.SortSignals(sigs)

		byDay := make(map[time.Time][]domain.Signal)
		for _, s := range sigs {
			switch s.Type {
			case domain.SignalBullish, domain.SignalBearish:
			default:
				return nil, fmt.Errorf("symbol %s: signal on %s has unknown type %q",
					sym, s.Date.Format("2006-01-02"), string(s.Type))
			}
			d := domain.Day(s.Date)
			byDay[d] = append(byDay[d], s)
		}
		r.signals[sym] = byDay
		e.log.Debug("signals generated", "symbol", sym, "count", len(sigs))
	}

	return r, nil
}

// stopPass closes every open position whose stop loss or stop win is hit by
// the day's close. Stop loss is checked first.
func (r *run) stopPass(day time.Time) {
	for _, sym := range r.portfolio.OpenSymbols() {
		bar, ok := r.bars[sym][day]
		if !ok {
			continue
		}
		pos, _ := r.portfolio.Position(sym)

		var reason domain.ExitReason
		switch {
		case pos.CheckStopLoss(bar.Close):
			reason = domain.ExitStopLoss
		case pos.CheckStopWin(bar.Close):
			reason = domain.ExitStopWin
		default:
			continue
		}
		r.close(sym, day, bar.Close, reason)
	}
}

// signalPass applies the day's cached signals symbol by symbol. An opposing
// signal only exits; a new position needs a later signal.
func (r *run) signalPass(day time.Time) {
	for _, sym := range r.symbols {
		if _, ok := r.bars[sym][day]; !ok {
			continue
		}
		for _, sig := range r.signals[sym][day] {
			pos, open := r.portfolio.Position(sym)
			switch {
			case open && pos.Direction.Opposes(sig.Type):
				r.close(sym, day, sig.Price, domain.ExitPatternExit)
			case open:
				// Same direction: no pyramiding.
			case sig.Type == domain.SignalBullish:
				if r.portfolio.OpenLong(sym, day, sig.Price, sig.Volume) {
					r.log.Debug("opened long", "symbol", sym, "date", day.Format("2006-01-02"),
						"price", sig.Price, "pattern", sig.Pattern)
				}
			case sig.Type == domain.SignalBearish:
				if r.portfolio.OpenShort(sym, day, sig.Price, sig.Volume) {
					r.log.Debug("opened short", "symbol", sym, "date", day.Format("2006-01-02"),
						"price", sig.Price, "pattern", sig.Pattern)
				}
			}
		}
	}
}

func (r *run) close(sym string, day time.Time, price float64, reason domain.ExitReason) {
	trade, ok := r.portfolio.Close(sym, day, price, reason)
	if !ok {
		return
	}
	r.tracker.AddTrade(trade)
	r.log.Debug("position closed",
		"symbol", sym,
		"direction", string(trade.Direction),
		"reason", string(reason),
		"date", day.Format("2006-01-02"),
		"price", price,
		"return_pct", trade.ReturnPct,
	)
}

// markToMarket records the day's portfolio return. Equity is the initial
// capital plus realised P&L plus open P&L at each symbol's latest close.
func (r *run) markToMarket(day time.Time) {
	for _, sym := range r.symbols {
		if bar, ok := r.bars[sym][day]; ok {
			r.lastClose[sym] = bar.Close
		}
	}

	equity := r.cfg.InitialCapital + r.portfolio.RealizedPnL() + r.portfolio.UnrealizedPnL(r.lastClose)
	var pct float64
	if r.equity > 0 {
		pct = (equity - r.equity) / r.equity * 100
	}
	r.equity = equity
	r.tracker.AddDailyReturn(day, pct)
}
