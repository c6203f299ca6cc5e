package portfolio

import (
	"errors"
	"math"
	"testing"
	"time"

	"patternbt/internal/domain"
)

const tol = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < tol }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestLongStopLossScenario(t *testing.T) {
	pos := &Position{
		Symbol:      "AAPL",
		Direction:   domain.DirectionLong,
		EntryDate:   date(2024, 1, 2),
		EntryPrice:  100,
		Shares:      10,
		EntryValue:  1000,
		StopLossPct: 0.05,
		StopWinPct:  0.20,
	}

	if !pos.CheckStopLoss(94) {
		t.Fatal("CheckStopLoss(94) = false, want true (94 <= 95)")
	}
	if pos.CheckStopWin(94) {
		t.Error("CheckStopWin(94) = true, want false")
	}

	commission := 1000 * 10.0 / 10000
	if err := pos.Close(date(2024, 1, 12), 94, domain.ExitStopLoss, commission); err != nil {
		t.Fatalf("Close: %v", err)
	}

	exit, ok := pos.Exit()
	if !ok {
		t.Fatal("Exit() ok = false after Close")
	}
	if !approx(exit.Value, 940) {
		t.Errorf("exit value = %v, want 940", exit.Value)
	}
	if !approx(exit.Commission, 1) {
		t.Errorf("commission = %v, want 1", exit.Commission)
	}
	if !approx(exit.ReturnAmount, -61) {
		t.Errorf("return amount = %v, want -61", exit.ReturnAmount)
	}
	if !approx(exit.ReturnPct, -6.1) {
		t.Errorf("return pct = %v, want -6.1", exit.ReturnPct)
	}
	if exit.HoldDays != 10 {
		t.Errorf("hold days = %d, want 10", exit.HoldDays)
	}
	if exit.Reason != domain.ExitStopLoss {
		t.Errorf("reason = %q, want %q", exit.Reason, domain.ExitStopLoss)
	}
	if pos.Status() != StatusClosed {
		t.Errorf("status = %q, want %q", pos.Status(), StatusClosed)
	}
}

func TestShortStopLossScenario(t *testing.T) {
	pos := &Position{
		Symbol:      "XYZ",
		Direction:   domain.DirectionShort,
		EntryDate:   date(2024, 1, 2),
		EntryPrice:  50,
		Shares:      20,
		EntryValue:  1000,
		StopLossPct: 0.05,
		StopWinPct:  0.20,
	}

	if !pos.CheckStopLoss(53) {
		t.Fatal("CheckStopLoss(53) = false, want true (53 >= 52.5)")
	}
	if err := pos.Close(date(2024, 1, 3), 53, domain.ExitStopLoss, 1); err != nil {
		t.Fatalf("Close: %v", err)
	}

	trade, ok := pos.Trade()
	if !ok {
		t.Fatal("Trade() ok = false after Close")
	}
	if !approx(trade.ExitValue, 1060) {
		t.Errorf("exit value = %v, want 1060", trade.ExitValue)
	}
	if !approx(trade.ReturnAmount, -61) {
		t.Errorf("return amount = %v, want -61", trade.ReturnAmount)
	}
	if !approx(trade.ReturnPct, -6.1) {
		t.Errorf("return pct = %v, want -6.1", trade.ReturnPct)
	}
	if trade.HoldDays != 1 {
		t.Errorf("hold days = %d, want 1", trade.HoldDays)
	}
}

func TestStopThresholds(t *testing.T) {
	long := &Position{Direction: domain.DirectionLong, EntryPrice: 100, StopLossPct: 0.05, StopWinPct: 0.20}
	short := &Position{Direction: domain.DirectionShort, EntryPrice: 100, StopLossPct: 0.05, StopWinPct: 0.20}

	tests := []struct {
		name     string
		pos      *Position
		price    float64
		wantLoss bool
		wantWin  bool
	}{
		{"long flat", long, 100, false, false},
		{"long at stop loss", long, 95, true, false},
		{"long at stop win", long, 120, false, true},
		{"long just above stop loss", long, 95.01, false, false},
		{"short flat", short, 100, false, false},
		{"short at stop loss", short, 105, true, false},
		{"short at stop win", short, 80, false, true},
		{"short just below stop loss", short, 104.99, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pos.CheckStopLoss(tt.price); got != tt.wantLoss {
				t.Errorf("CheckStopLoss(%v) = %v, want %v", tt.price, got, tt.wantLoss)
			}
			if got := tt.pos.CheckStopWin(tt.price); got != tt.wantWin {
				t.Errorf("CheckStopWin(%v) = %v, want %v", tt.price, got, tt.wantWin)
			}
		})
	}
}

func TestCloseTwiceFails(t *testing.T) {
	pos := &Position{Symbol: "A", Direction: domain.DirectionLong, EntryPrice: 10, Shares: 1, EntryValue: 10}
	if err := pos.Close(date(2024, 1, 2), 11, domain.ExitPatternExit, 0); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	before, _ := pos.Exit()

	err := pos.Close(date(2024, 1, 3), 50, domain.ExitStopWin, 0)
	if !errors.Is(err, ErrPositionClosed) {
		t.Fatalf("second Close error = %v, want ErrPositionClosed", err)
	}
	after, _ := pos.Exit()
	if before != after {
		t.Errorf("exit changed by failed close: %+v -> %+v", before, after)
	}
}

func TestOpenPositionHasNoExit(t *testing.T) {
	pos := &Position{Symbol: "A", Direction: domain.DirectionLong}
	if pos.Status() != StatusOpen {
		t.Errorf("status = %q, want %q", pos.Status(), StatusOpen)
	}
	if _, ok := pos.Exit(); ok {
		t.Error("Exit() ok = true for open position")
	}
	if _, ok := pos.Trade(); ok {
		t.Error("Trade() ok = true for open position")
	}
}

func TestReturnPctIdentity(t *testing.T) {
	for _, dir := range []domain.Direction{domain.DirectionLong, domain.DirectionShort} {
		for _, exitPrice := range []float64{12.5, 37, 41.2, 80} {
			pos := &Position{Symbol: "A", Direction: dir, EntryPrice: 40, Shares: 25, EntryValue: 1000}
			if err := pos.Close(date(2024, 2, 1), exitPrice, domain.ExitPatternExit, 0.7); err != nil {
				t.Fatal(err)
			}
			tr, _ := pos.Trade()
			if !approx(tr.ReturnPct, tr.ReturnAmount/tr.EntryValue*100) {
				t.Errorf("%s @%v: returnPct %v != returnAmount/entryValue*100 %v",
					dir, exitPrice, tr.ReturnPct, tr.ReturnAmount/tr.EntryValue*100)
			}
		}
	}
}
