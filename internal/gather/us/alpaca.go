// Package us gathers daily US equity bars from the Alpaca market-data API.
package us

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/sony/gobreaker"

	"patternbt/internal/config"
	"patternbt/internal/domain"
	"patternbt/internal/gather"
	"patternbt/internal/store"
	"patternbt/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.Gatherer = (*DailyBarGatherer)(nil)

const defaultTripAfter = 5

// FetchFunc fetches daily bars for a batch of symbols over [start, end].
type FetchFunc func(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error)

// ---------------------------------------------------------------------------
// DailyBarGatherer
// ---------------------------------------------------------------------------

// DailyBarGatherer downloads daily OHLCV bars for a configured symbol list
// and writes them to a BarStore. Runs are resumable within an end date and a
// finished run is a no-op until the end date moves.
type DailyBarGatherer struct {
	store       store.BarStore
	symbols     []string
	startDate   string
	endDate     string
	batchSize   int
	maxWorkers  int
	maxAttempts int
	retryDelay  time.Duration
	limiter     *util.RateLimiter
	tripAfter   uint32 // consecutive fetch failures that open the breaker
	coolDown    time.Duration
	progressDir string
	log         *slog.Logger

	// fetch and latestDay are swapped out in tests.
	fetch     FetchFunc
	latestDay func() (time.Time, error)
}

// NewDailyBarGatherer creates a DailyBarGatherer that reads symbols and
// pacing from gc, talks to Alpaca with the credentials in ac, and keeps its
// progress files under progressDir.
func NewDailyBarGatherer(ac config.Alpaca, gc config.GatherConfig, s store.BarStore, symbols []string, progressDir string) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    ac.APIKey,
		APISecret: ac.APISecret,
	}
	if ac.DataURL != "" {
		opts.BaseURL = ac.DataURL
	}
	client := marketdata.NewClient(opts)

	g := &DailyBarGatherer{
		store:       s,
		symbols:     NormalizeSymbols(symbols),
		startDate:   gc.StartDate,
		endDate:     gc.EndDate,
		batchSize:   max(gc.BatchSize, 1),
		maxWorkers:  max(gc.Workers, 1),
		maxAttempts: max(gc.MaxAttempts, 1),
		retryDelay:  time.Second,
		limiter:     util.NewRateLimiter(gc.RateLimitPerMin),
		tripAfter:   defaultTripAfter,
		coolDown:    30 * time.Second,
		progressDir: progressDir,
		log:         slog.Default().With("gatherer", "us-daily"),
	}
	if gc.BreakerFailures > 0 {
		g.tripAfter = uint32(gc.BreakerFailures)
	}
	g.fetch = func(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error) {
		return fetchMultiBars(ctx, client, symbols, start, end)
	}
	g.latestDay = func() (time.Time, error) {
		return LatestFinishedTradingDay(NewCalendarClient(ac.APIKey, ac.APISecret, ac.BaseURL), time.Now())
	}
	return g
}

// ProgressDir returns the default progress directory for a Parquet data root.
func ProgressDir(dataDir string) string {
	return filepath.Join(dataDir, string(domain.MarketUS), ".gather")
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches daily bars for every configured symbol from the start date to
// the end date (the latest finished trading day when unset) and writes them
// to the store. Failed batches are logged and retried on the next run.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		return errors.New("no symbols configured")
	}

	dr, err := gather.ParseDateRange(g.startDate, g.endDate)
	if err != nil {
		return err
	}
	if dr.End.IsZero() {
		if dr.End, err = g.latestDay(); err != nil {
			return fmt.Errorf("determining end date: %w", err)
		}
	}
	endDateStr := dr.End.Format(time.DateOnly)

	tracker, err := newProgressTracker(g.progressDir, endDateStr)
	if err != nil {
		return fmt.Errorf("creating progress tracker: %w", err)
	}
	defer tracker.Close()

	if tracker.IsCompleted() {
		g.log.Info("already completed", "endDate", endDateStr)
		return nil
	}

	var remaining []string
	for _, sym := range g.symbols {
		if !tracker.Done(sym) {
			remaining = append(remaining, sym)
		}
	}

	var batches [][]string
	for i := 0; i < len(remaining); i += g.batchSize {
		batches = append(batches, remaining[i:min(i+g.batchSize, len(remaining))])
	}
	totalBatches := len(batches)

	g.log.Info("starting us-daily",
		"range", dr.String(),
		"total", len(g.symbols),
		"remaining", len(remaining),
		"batches", totalBatches,
	)

	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	breaker := g.newBreaker()

	var (
		wg       sync.WaitGroup
		failed   atomic.Int64
		runStart = time.Now()
	)

	workers := min(g.maxWorkers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batchIdx := range batchCh {
				if ctx.Err() != nil {
					return
				}
				label := fmt.Sprintf("%d/%d", batchIdx+1, totalBatches)
				hits, empty, err := g.gatherBatch(ctx, breaker, tracker, batches[batchIdx], dr)
				if err != nil {
					if ctx.Err() == nil {
						g.log.Error("batch failed", "batch", label, "err", err)
					}
					failed.Add(1)
					continue
				}
				g.log.Info("batch done",
					"batch", label,
					"hits", hits,
					"empty", empty,
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d batches failed; rerun to resume", n, totalBatches)
	}

	if err := tracker.MarkCompleted(); err != nil {
		return fmt.Errorf("marking completed: %w", err)
	}

	fetched, empty := tracker.Counts()
	g.log.Info("complete",
		"endDate", endDateStr,
		"fetched", fetched,
		"empty", empty,
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

// newBreaker returns the circuit breaker shared by one run's workers. Once
// open, remaining batches fail fast instead of retrying against a down API.
func (g *DailyBarGatherer) newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    g.Name(),
		Timeout: g.coolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= g.tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
		},
	})
}

// gatherBatch fetches, stores, and records one batch of symbols.
func (g *DailyBarGatherer) gatherBatch(ctx context.Context, breaker *gobreaker.CircuitBreaker, tracker *progressTracker, batch []string, dr gather.DateRange) (hits, empty int, err error) {
	var bars []domain.Bar
	err = util.Retry(ctx, g.maxAttempts, g.retryDelay, func(attempt int) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		res, ferr := breaker.Execute(func() (interface{}, error) {
			return g.fetch(ctx, batch, dr.Start, dr.End)
		})
		if errors.Is(ferr, gobreaker.ErrOpenState) || errors.Is(ferr, gobreaker.ErrTooManyRequests) {
			return util.Permanent(ferr)
		}
		if ferr == nil {
			bars = res.([]domain.Bar)
		}
		if ferr != nil && attempt < g.maxAttempts {
			g.log.Warn("fetch failed, retrying", "attempt", attempt, "err", ferr)
		}
		return ferr
	})
	if err != nil {
		return 0, 0, err
	}

	requested := make(map[string]struct{}, len(batch))
	for _, sym := range batch {
		requested[sym] = struct{}{}
	}
	hitSet := make(map[string]struct{})
	kept := bars[:0]
	for _, b := range bars {
		if _, ok := requested[b.Symbol]; !ok {
			continue
		}
		hitSet[b.Symbol] = struct{}{}
		kept = append(kept, b)
	}

	var hitSymbols, emptySymbols []string
	for _, sym := range batch {
		if _, ok := hitSet[sym]; ok {
			hitSymbols = append(hitSymbols, sym)
		} else {
			emptySymbols = append(emptySymbols, sym)
		}
	}

	if len(kept) > 0 {
		if err := g.store.WriteBars(ctx, kept); err != nil {
			return 0, 0, fmt.Errorf("writing bars: %w", err)
		}
	}
	if err := tracker.Mark(statusFetched, hitSymbols); err != nil {
		return 0, 0, err
	}
	if err := tracker.Mark(statusEmpty, emptySymbols); err != nil {
		return 0, 0, err
	}
	return len(hitSymbols), len(emptySymbols), nil
}

// fetchMultiBars fetches daily bars for multiple symbols in a single API call.
func fetchMultiBars(ctx context.Context, client *marketdata.Client, symbols []string, start, end time.Time) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	multiBars, err := client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      start,
		End:        end.AddDate(0, 0, 1),
		Adjustment: marketdata.All,
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}
	return convertBars(multiBars), nil
}

// convertBars flattens Alpaca's per-symbol response into domain bars keyed
// by calendar date.
func convertBars(multiBars map[string][]marketdata.Bar) []domain.Bar {
	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  domain.Day(ab.Timestamp),
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars
}
