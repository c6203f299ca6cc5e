package store

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"patternbt/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	bp := ps.barPath("aapl", "us", 2024)
	want := filepath.Join("/data", "us", "daily", "AAPL", "2024.parquet")
	if bp != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, want)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Symbol:    "AAPL",
			Timestamp: day(2023, 12, 29),
			Open:      193.9, High: 194.4, Low: 191.7, Close: 192.5,
			Volume: 42000000, TradeCount: 400000, VWAP: 192.9,
		},
		{
			Symbol:    "AAPL",
			Timestamp: day(2024, 1, 2),
			Open:      185.0, High: 186.5, Low: 184.0, Close: 185.5,
			Volume: 50000000, TradeCount: 500000, VWAP: 185.25,
		},
		{
			Symbol:    "AAPL",
			Timestamp: day(2024, 1, 3),
			Open:      185.5, High: 187.0, Low: 185.0, Close: 186.0,
			Volume: 45000000, TradeCount: 450000, VWAP: 185.75,
		},
	}

	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	// Spans both year files.
	got, err := ps.ReadBars(ctx, "AAPL", "us", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if diff := cmp.Diff(bars, got); diff != "" {
		t.Errorf("ReadBars mismatch (-want +got):\n%s", diff)
	}

	// Inclusive on both ends by calendar date.
	got, err = ps.ReadBars(ctx, "AAPL", "us", day(2024, 1, 2), day(2024, 1, 2).Add(time.Hour))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 || got[0].Close != 185.5 {
		t.Errorf("ReadBars(2024-01-02..2024-01-02) = %+v, want the single 185.5 bar", got)
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	first := []domain.Bar{
		{Symbol: "MSFT", Timestamp: day(2024, 3, 1), Open: 400, High: 405, Low: 399, Close: 403, Volume: 30000000},
	}
	if err := ps.WriteBars(ctx, first); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}

	// A new day merges; a repeated day replaces.
	second := []domain.Bar{
		{Symbol: "MSFT", Timestamp: day(2024, 3, 1), Open: 400, High: 406, Low: 399, Close: 404, Volume: 31000000},
		{Symbol: "MSFT", Timestamp: day(2024, 3, 4), Open: 403, High: 410, Low: 402, Close: 408, Volume: 35000000},
	}
	if err := ps.WriteBars(ctx, second); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	got, err := ps.ReadBars(ctx, "MSFT", "us", day(2024, 1, 1), day(2024, 12, 31))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if got[0].Close != 404 {
		t.Errorf("replaced bar Close = %v, want 404", got[0].Close)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "GOOGL", Timestamp: day(2024, 1, 2), Open: 140, High: 141, Low: 139, Close: 140.5, Volume: 20000000},
		{Symbol: "AAPL", Timestamp: day(2024, 1, 2), Open: 185, High: 186, Low: 184, Close: 185.5, Volume: 50000000},
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, "us")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if diff := cmp.Diff([]string{"AAPL", "GOOGL"}, symbols); diff != "" {
		t.Errorf("ListSymbols mismatch (-want +got):\n%s", diff)
	}

	none, err := ps.ListSymbols(ctx, "cn")
	if err != nil || len(none) != 0 {
		t.Errorf("ListSymbols(cn) = %v, %v; want empty, nil", none, err)
	}
}

func TestParquetStoreMissingSymbol(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	got, err := ps.ReadBars(context.Background(), "NOPE", "us", time.Time{}, time.Time{})
	if err != nil || len(got) != 0 {
		t.Errorf("ReadBars(NOPE) = %v, %v; want empty, nil", got, err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestCSVStoreReadSortsAndFilters(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "AAPL_daily.csv"), `date,open,high,low,close,volume
2024-01-03,185.5,187,185,186,45000000.0
2024-01-02,185,186.5,184,185.5,50000000
2024-01-04,186,188,185.5,187.25,41000000
`)

	cs := NewCSVStore(dir)
	ctx := context.Background()

	all, err := cs.ReadBars(ctx, "AAPL", "us", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ReadBars returned %d bars, want 3", len(all))
	}
	if !all[0].Timestamp.Equal(day(2024, 1, 2)) || !all[2].Timestamp.Equal(day(2024, 1, 4)) {
		t.Errorf("bars not sorted by date: %v, %v, %v", all[0].Timestamp, all[1].Timestamp, all[2].Timestamp)
	}
	if all[1].Volume != 45000000 {
		t.Errorf("float volume parsed as %d, want 45000000", all[1].Volume)
	}
	if all[0].Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", all[0].Symbol)
	}

	some, err := cs.ReadBars(ctx, "AAPL", "us", day(2024, 1, 3), time.Time{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(some) != 2 {
		t.Errorf("ReadBars(from 2024-01-03) returned %d bars, want 2", len(some))
	}
}

func TestCSVStoreBlankCellIsMissing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "X_daily.csv"), "date,open,high,low,close,volume\n2024-01-02,10,11,9,,100\n")

	bars, err := NewCSVStore(dir).ReadBars(context.Background(), "X", "", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(bars) != 1 || !math.IsNaN(bars[0].Close) {
		t.Fatalf("blank close = %+v, want NaN", bars)
	}
	if err := domain.ValidateBars(bars); err == nil {
		t.Error("ValidateBars accepted a bar with a missing close")
	}
}

func TestCSVStoreBadDate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "X_daily.csv"), "date,open,high,low,close,volume\nyesterday,10,11,9,10,100\n")

	if _, err := NewCSVStore(dir).ReadBars(context.Background(), "X", "", time.Time{}, time.Time{}); err == nil {
		t.Error("ReadBars accepted an unparseable date")
	}
}

func TestCSVStoreLowercaseFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "aapl_daily.csv"), "date,open,high,low,close,volume\n2024-01-02,185,186.5,184,185.5,50000000\n")
	cs := NewCSVStore(dir)
	ctx := context.Background()

	symbols, err := cs.ListSymbols(ctx, "")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if diff := cmp.Diff([]string{"AAPL"}, symbols); diff != "" {
		t.Errorf("ListSymbols mismatch (-want +got):\n%s", diff)
	}

	series, err := ReadSeries(ctx, cs, "us", symbols, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	if bars := series["AAPL"]; len(bars) != 1 || bars[0].Symbol != "AAPL" || bars[0].Close != 185.5 {
		t.Fatalf("series[AAPL] = %+v, want the one bar from aapl_daily.csv", bars)
	}

	// Writes merge into the existing file rather than creating a second one.
	if err := cs.WriteBars(ctx, []domain.Bar{{Symbol: "AAPL", Timestamp: day(2024, 1, 3), Open: 1, High: 2, Low: 1, Close: 2, Volume: 5}}); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "aapl_daily.csv" {
		t.Errorf("files after write = %v, want only aapl_daily.csv", entries)
	}
	bars, err := cs.ReadBars(ctx, "aapl", "", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(bars) != 2 {
		t.Errorf("ReadBars after merge returned %d bars, want 2", len(bars))
	}
}

func TestCSVStoreMissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "X_daily.csv"), "date,open,high,low,volume\n2024-01-02,10,11,9,100\n")

	_, err := NewCSVStore(dir).ReadBars(context.Background(), "X", "", time.Time{}, time.Time{})
	if !errors.Is(err, domain.ErrInvalidBars) {
		t.Fatalf("ReadBars error = %v, want ErrInvalidBars", err)
	}
	if !strings.Contains(err.Error(), "missing column(s) close") {
		t.Errorf("error %q should name the missing close column", err)
	}
}

func TestCSVStoreExtraColumnsAllowed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "X_daily.csv"), "symbol,date,open,high,low,close,volume,vwap\nX,2024-01-02,10,11,9,10.5,100,10.2\n")

	bars, err := NewCSVStore(dir).ReadBars(context.Background(), "X", "", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(bars) != 1 || bars[0].Close != 10.5 {
		t.Errorf("bars = %+v, want one bar closing at 10.5", bars)
	}
}

func TestCSVStoreWriteRoundTripAndList(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "csv")
	cs := NewCSVStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "MSFT", Timestamp: day(2024, 3, 4), Open: 403, High: 410, Low: 402, Close: 408, Volume: 35000000},
		{Symbol: "MSFT", Timestamp: day(2024, 3, 1), Open: 400, High: 405, Low: 399, Close: 403.25, Volume: 30000000},
		{Symbol: "AAPL", Timestamp: day(2024, 3, 1), Open: 180, High: 181, Low: 179, Close: 180.5, Volume: 1},
	}
	if err := cs.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := cs.ReadBars(ctx, "MSFT", "", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	want := []domain.Bar{bars[1], bars[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	symbols, err := cs.ListSymbols(ctx, "")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if diff := cmp.Diff([]string{"AAPL", "MSFT"}, symbols); diff != "" {
		t.Errorf("ListSymbols mismatch (-want +got):\n%s", diff)
	}
}

func TestReadSeries(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "A_daily.csv"), "date,open,high,low,close,volume\n2024-01-02,1,1,1,1,1\n")

	series, err := ReadSeries(context.Background(), NewCSVStore(dir), "us", []string{"A", "B"}, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	if len(series["A"]) != 1 {
		t.Errorf("series[A] has %d bars, want 1", len(series["A"]))
	}
	if bars, ok := series["B"]; !ok || len(bars) != 0 {
		t.Errorf("series[B] = %v, %v; want present and empty", bars, ok)
	}
}

func TestSQLiteStoreOpen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	}()

	if err := store.db.Ping(); err != nil {
		t.Fatalf("db.Ping() returned error: %v", err)
	}
}

func TestSQLiteJournal(t *testing.T) {
	js, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer js.Close()
	ctx := context.Background()

	older := domain.Run{
		ID: "run-1", Strategy: "engulfing", StartedAt: time.UnixMilli(1_700_000_000_000).UTC(),
		InitialCapital: 1_000_000, PositionSizePct: 0.05, StopLossPct: 0.05, StopWinPct: 0.2,
		CommissionBps: 10, Symbols: 3, TradingDays: 250, TotalTrades: 2, HitRate: 50, AverageReturn: 1.5,
	}
	newer := older
	newer.ID, newer.Strategy = "run-2", "reversal"
	newer.StartedAt = older.StartedAt.Add(time.Hour)

	trades := []domain.Trade{
		{
			Symbol: "AAPL", Direction: domain.DirectionLong,
			EntryDate: day(2024, 1, 2), ExitDate: day(2024, 1, 12),
			EntryPrice: 100, ExitPrice: 94, Shares: 10, EntryValue: 1000, ExitValue: 940,
			Commission: 1, ReturnAmount: -61, ReturnPct: -6.1, HoldDays: 10, ExitReason: domain.ExitStopLoss,
		},
		{
			Symbol: "XYZ", Direction: domain.DirectionShort,
			EntryDate: day(2024, 1, 3), ExitDate: day(2024, 1, 5),
			EntryPrice: 50, ExitPrice: 40, Shares: 20, EntryValue: 1000, ExitValue: 800,
			Commission: 1, ReturnAmount: 199, ReturnPct: 19.9, HoldDays: 2, ExitReason: domain.ExitStopWin,
		},
	}

	if err := js.SaveRun(ctx, older, trades); err != nil {
		t.Fatalf("SaveRun(older): %v", err)
	}
	if err := js.SaveRun(ctx, newer, nil); err != nil {
		t.Fatalf("SaveRun(newer): %v", err)
	}

	runs, err := js.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if diff := cmp.Diff([]domain.Run{newer, older}, runs); diff != "" {
		t.Errorf("ListRuns mismatch (-want +got):\n%s", diff)
	}

	limited, err := js.ListRuns(ctx, 1)
	if err != nil || len(limited) != 1 || limited[0].ID != "run-2" {
		t.Errorf("ListRuns(1) = %v, %v; want [run-2]", limited, err)
	}

	got, err := js.ListTrades(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if diff := cmp.Diff(trades, got); diff != "" {
		t.Errorf("ListTrades mismatch (-want +got):\n%s", diff)
	}

	// Duplicate run IDs roll back without partial trades.
	if err := js.SaveRun(ctx, older, trades); err == nil {
		t.Error("SaveRun with duplicate ID returned nil error")
	}
	got, _ = js.ListTrades(ctx, "run-1")
	if len(got) != len(trades) {
		t.Errorf("ListTrades after failed save = %d trades, want %d", len(got), len(trades))
	}
}
