// Package httpapi serves journaled backtest runs, their trades, and on-demand
// pattern signals as a read-only JSON API.
package httpapi

import (
	"time"

	"patternbt/internal/domain"
	"patternbt/internal/performance"
)

// RunJSON is the JSON representation of a journaled run header.
type RunJSON struct {
	ID              string  `json:"id"`
	Strategy        string  `json:"strategy"`
	StartedAt       string  `json:"startedAt"`
	InitialCapital  float64 `json:"initialCapital"`
	PositionSizePct float64 `json:"positionSizePct"`
	StopLossPct     float64 `json:"stopLossPct"`
	StopWinPct      float64 `json:"stopWinPct"`
	CommissionBps   float64 `json:"commissionBps"`
	Symbols         int     `json:"symbols"`
	TradingDays     int     `json:"tradingDays"`
	TotalTrades     int     `json:"totalTrades"`
	HitRate         float64 `json:"hitRate"`
	AverageReturn   float64 `json:"averageReturn"`
}

// TradeJSON is the JSON representation of a closed trade.
type TradeJSON struct {
	Symbol       string  `json:"symbol"`
	Direction    string  `json:"direction"`
	EntryDate    string  `json:"entryDate"`
	ExitDate     string  `json:"exitDate"`
	EntryPrice   float64 `json:"entryPrice"`
	ExitPrice    float64 `json:"exitPrice"`
	Shares       float64 `json:"shares"`
	EntryValue   float64 `json:"entryValue"`
	ExitValue    float64 `json:"exitValue"`
	Commission   float64 `json:"commission"`
	ReturnAmount float64 `json:"returnAmount"`
	ReturnPct    float64 `json:"returnPct"`
	HoldDays     int     `json:"holdDays"`
	ExitReason   string  `json:"exitReason"`
}

// SignalJSON is the JSON representation of a detected pattern signal.
type SignalJSON struct {
	Date    string  `json:"date"`
	Type    string  `json:"type"`
	Price   float64 `json:"price"`
	Volume  int64   `json:"volume"`
	Pattern string  `json:"pattern,omitempty"`
}

// RunsResponse is the response for GET /api/runs.
type RunsResponse struct {
	Runs []RunJSON `json:"runs"`
}

// TradesResponse is the response for GET /api/runs/{id}/trades.
type TradesResponse struct {
	RunID  string      `json:"runId"`
	Trades []TradeJSON `json:"trades"`
}

// SignalsResponse is the response for GET /api/signals/{symbol}.
type SignalsResponse struct {
	Symbol    string         `json:"symbol"`
	Strategy  string         `json:"strategy"`
	Bars      int            `json:"bars"`
	Signals   []SignalJSON   `json:"signals"`
	Breakdown map[string]int `json:"breakdown,omitempty"`

	PatternStats performance.PatternReport `json:"patternStats"`
}

// NamesResponse lists strategy names or symbols.
type NamesResponse struct {
	Names []string `json:"names"`
}

func toRunJSON(r domain.Run) RunJSON {
	return RunJSON{
		ID:              r.ID,
		Strategy:        r.Strategy,
		StartedAt:       r.StartedAt.UTC().Format(time.RFC3339),
		InitialCapital:  r.InitialCapital,
		PositionSizePct: r.PositionSizePct,
		StopLossPct:     r.StopLossPct,
		StopWinPct:      r.StopWinPct,
		CommissionBps:   r.CommissionBps,
		Symbols:         r.Symbols,
		TradingDays:     r.TradingDays,
		TotalTrades:     r.TotalTrades,
		HitRate:         r.HitRate,
		AverageReturn:   r.AverageReturn,
	}
}

func toTradeJSON(t domain.Trade) TradeJSON {
	return TradeJSON{
		Symbol:       t.Symbol,
		Direction:    string(t.Direction),
		EntryDate:    t.EntryDate.Format(time.DateOnly),
		ExitDate:     t.ExitDate.Format(time.DateOnly),
		EntryPrice:   t.EntryPrice,
		ExitPrice:    t.ExitPrice,
		Shares:       t.Shares,
		EntryValue:   t.EntryValue,
		ExitValue:    t.ExitValue,
		Commission:   t.Commission,
		ReturnAmount: t.ReturnAmount,
		ReturnPct:    t.ReturnPct,
		HoldDays:     t.HoldDays,
		ExitReason:   string(t.ExitReason),
	}
}

func toSignalJSON(s domain.Signal) SignalJSON {
	return SignalJSON{
		Date:    s.Date.Format(time.DateOnly),
		Type:    string(s.Type),
		Price:   s.Price,
		Volume:  s.Volume,
		Pattern: s.Pattern,
	}
}
