package performance

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gocarina/gocsv"

	"patternbt/internal/domain"
)

// Export file names.
const (
	FileAllTrades        = "all_trades.csv"
	FileLongTrades       = "long_trades.csv"
	FileShortTrades      = "short_trades.csv"
	FileDailyReturns     = "daily_returns.csv"
	FileSummaryMetrics   = "summary_metrics.csv"
	FileSymbolStatistics = "symbol_statistics.csv"
)

type tradeRow struct {
	Symbol       string  `csv:"symbol"`
	EntryDate    string  `csv:"entry_date"`
	ExitDate     string  `csv:"exit_date"`
	PositionType string  `csv:"position_type"`
	EntryPrice   float64 `csv:"entry_price"`
	ExitPrice    float64 `csv:"exit_price"`
	Shares       float64 `csv:"shares"`
	EntryValue   float64 `csv:"entry_value"`
	ExitValue    float64 `csv:"exit_value"`
	ReturnPct    float64 `csv:"return_pct"`
	ReturnAmount float64 `csv:"return_amount"`
	HoldDays     int     `csv:"hold_days"`
	ExitReason   string  `csv:"exit_reason"`
	Commission   float64 `csv:"commission"`
}

type dailyRow struct {
	Date      string  `csv:"date"`
	ReturnPct float64 `csv:"daily_return_pct"`
}

type summaryRow struct {
	Metric string `csv:"metric"`
	Value  string `csv:"value"`
}

type symbolRow struct {
	Symbol           string  `csv:"symbol"`
	TotalTrades      int     `csv:"total_trades"`
	ProfitableTrades int     `csv:"profitable_trades"`
	HitRate          float64 `csv:"hit_rate"`
	AverageReturn    float64 `csv:"average_return"`
	TotalReturn      float64 `csv:"total_return"`
	BestTrade        float64 `csv:"best_trade"`
	WorstTrade       float64 `csv:"worst_trade"`
}

func toTradeRow(t domain.Trade) tradeRow {
	return tradeRow{
		Symbol:       t.Symbol,
		EntryDate:    t.EntryDate.Format("2006-01-02"),
		ExitDate:     t.ExitDate.Format("2006-01-02"),
		PositionType: string(t.Direction),
		EntryPrice:   t.EntryPrice,
		ExitPrice:    t.ExitPrice,
		Shares:       t.Shares,
		EntryValue:   t.EntryValue,
		ExitValue:    t.ExitValue,
		ReturnPct:    t.ReturnPct,
		ReturnAmount: t.ReturnAmount,
		HoldDays:     t.HoldDays,
		ExitReason:   string(t.ExitReason),
		Commission:   t.Commission,
	}
}

// SummaryRows flattens m into the (metric, value) table written to
// summary_metrics.csv.
func SummaryRows(m Metrics) [][2]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return [][2]string{
		{"Total Trades", strconv.Itoa(m.Overall.TotalTrades)},
		{"Long Hit Rate (%)", f(m.LongPositions.HitRate)},
		{"Long Average Return (%)", f(m.LongPositions.AverageReturn)},
		{"Long Total Return (%)", f(m.LongPositions.TotalReturn)},
		{"Short Hit Rate (%)", f(m.ShortPositions.HitRate)},
		{"Short Average Return (%)", f(m.ShortPositions.AverageReturn)},
		{"Short Total Return (%)", f(m.ShortPositions.TotalReturn)},
		{"Overall Hit Rate (%)", f(m.Combined.HitRate)},
		{"Overall Average Return (%)", f(m.Combined.AverageReturn)},
	}
}

// Export writes the run's CSV artifacts into dir and returns the names of
// the files it wrote. Each artifact is independent: one with no rows is
// skipped, except the summary, which is always written.
func Export(dir string, t *Tracker, m Metrics) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var written []string
	write := func(name string, rows interface{}) error {
		if err := writeCSV(filepath.Join(dir, name), rows); err != nil {
			return fmt.Errorf("exporting %s: %w", name, err)
		}
		written = append(written, name)
		return nil
	}

	var all, long, short []tradeRow
	for _, tr := range t.trades {
		row := toTradeRow(tr)
		all = append(all, row)
		switch tr.Direction {
		case domain.DirectionLong:
			long = append(long, row)
		case domain.DirectionShort:
			short = append(short, row)
		}
	}

	for _, a := range []struct {
		name string
		rows []tradeRow
	}{
		{FileAllTrades, all},
		{FileLongTrades, long},
		{FileShortTrades, short},
	} {
		if len(a.rows) == 0 {
			continue
		}
		if err := write(a.name, &a.rows); err != nil {
			return written, err
		}
	}

	if len(t.daily) > 0 {
		rows := make([]dailyRow, len(t.daily))
		for i, d := range t.daily {
			rows[i] = dailyRow{Date: d.Date.Format("2006-01-02"), ReturnPct: d.ReturnPct}
		}
		if err := write(FileDailyReturns, &rows); err != nil {
			return written, err
		}
	}

	summary := SummaryRows(m)
	rows := make([]summaryRow, len(summary))
	for i, s := range summary {
		rows[i] = summaryRow{Metric: s[0], Value: s[1]}
	}
	if err := write(FileSummaryMetrics, &rows); err != nil {
		return written, err
	}

	if symStats := t.SymbolStatistics(); len(symStats) > 0 {
		rows := make([]symbolRow, len(symStats))
		for i, s := range symStats {
			rows[i] = symbolRow{
				Symbol:           s.Symbol,
				TotalTrades:      s.TotalTrades,
				ProfitableTrades: s.ProfitableTrades,
				HitRate:          s.HitRate,
				AverageReturn:    s.AverageReturn,
				TotalReturn:      s.TotalReturn,
				BestTrade:        s.BestTrade,
				WorstTrade:       s.WorstTrade,
			}
		}
		if err := write(FileSymbolStatistics, &rows); err != nil {
			return written, err
		}
	}

	return written, nil
}

func writeCSV(path string, rows interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gocsv.MarshalFile(rows, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
