package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"patternbt/internal/domain"
	"patternbt/internal/performance"
	"patternbt/internal/store"
	"patternbt/internal/strategy"
)

// breakdowner is implemented by detectors that count bars per pattern.
type breakdowner interface {
	Breakdown(bars []domain.Bar) map[string]int
}

// ResultsServer serves the run journal and on-demand signal detection.
type ResultsServer struct {
	journal  store.RunJournal
	bars     store.BarStore
	market   string
	registry *strategy.Registry
	fallback string // strategy used when the request names none
	metrics  *metrics
	log      *slog.Logger
}

// NewResultsServer creates a ResultsServer. bars may be nil, in which case
// the symbol and signal endpoints report 503.
func NewResultsServer(journal store.RunJournal, bars store.BarStore, market string, registry *strategy.Registry, defaultStrategy string, log *slog.Logger) *ResultsServer {
	return &ResultsServer{
		journal:  journal,
		bars:     bars,
		market:   market,
		registry: registry,
		fallback: defaultStrategy,
		metrics:  newMetrics(),
		log:      log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes and the metrics endpoint on the
// given mux.
func (s *ResultsServer) RegisterRoutes(mux *http.ServeMux) {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"GET /api/runs", s.handleRuns},
		{"GET /api/runs/{id}/trades", s.handleTrades},
		{"GET /api/strategies", s.handleStrategies},
		{"GET /api/symbols", s.handleSymbols},
		{"GET /api/signals/{symbol}", s.handleSignals},
	}
	for _, rt := range routes {
		mux.HandleFunc(rt.pattern, s.metrics.instrument(rt.pattern, rt.handler))
	}
	mux.Handle("GET /metrics", s.metrics.handler())
}

// Handler returns an http.Handler with CORS middleware.
func (s *ResultsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, errors.New(key + " must be YYYY-MM-DD")
	}
	return t, nil
}

func (s *ResultsServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.journal.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("listing runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	resp := RunsResponse{Runs: make([]RunJSON, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, toRunJSON(run))
	}
	writeJSON(w, resp)
}

func (s *ResultsServer) handleTrades(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	trades, err := s.journal.ListTrades(r.Context(), id)
	if err != nil {
		s.log.Error("listing trades", "runID", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	resp := TradesResponse{RunID: id, Trades: make([]TradeJSON, 0, len(trades))}
	for _, t := range trades {
		resp.Trades = append(resp.Trades, toTradeJSON(t))
	}
	writeJSON(w, resp)
}

func (s *ResultsServer) handleStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, NamesResponse{Names: s.registry.List()})
}

func (s *ResultsServer) handleSymbols(w http.ResponseWriter, r *http.Request) {
	if s.bars == nil {
		writeError(w, http.StatusServiceUnavailable, "no bar source configured")
		return
	}
	symbols, err := s.bars.ListSymbols(r.Context(), s.market)
	if err != nil {
		s.log.Error("listing symbols", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list symbols")
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, NamesResponse{Names: symbols})
}

func (s *ResultsServer) handleSignals(w http.ResponseWriter, r *http.Request) {
	if s.bars == nil {
		writeError(w, http.StatusServiceUnavailable, "no bar source configured")
		return
	}
	symbol := strings.ToUpper(r.PathValue("symbol"))

	name := r.URL.Query().Get("strategy")
	if name == "" {
		name = s.fallback
	}
	src, ok := s.registry.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown strategy "+strconv.Quote(name))
		return
	}

	start, err := queryDate(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := queryDate(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bars, err := s.bars.ReadBars(r.Context(), symbol, s.market, start, end)
	if err != nil {
		s.log.Error("reading bars", "symbol", symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read bars")
		return
	}
	if len(bars) == 0 {
		writeError(w, http.StatusNotFound, "no bars for "+symbol)
		return
	}
	if err := domain.ValidateBars(bars); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	signals, err := src.GenerateSignals(r.Context(), bars)
	if err != nil {
		s.log.Error("generating signals", "symbol", symbol, "strategy", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate signals")
		return
	}
	strategy.SortSignals(signals)
	s.metrics.signals.WithLabelValues(src.Name()).Add(float64(len(signals)))

	resp := SignalsResponse{
		Symbol:   symbol,
		Strategy: src.Name(),
		Bars:     len(bars),
		Signals:  make([]SignalJSON, 0, len(signals)),
	}
	for _, sig := range signals {
		resp.Signals = append(resp.Signals, toSignalJSON(sig))
	}
	if b, ok := src.(breakdowner); ok {
		resp.Breakdown = b.Breakdown(bars)
	}
	resp.PatternStats = performance.PatternStatistics(bars, signals, performance.DefaultHorizons)
	writeJSON(w, resp)
}
