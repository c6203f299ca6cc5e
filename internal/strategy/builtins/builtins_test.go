package builtins

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"patternbt/internal/domain"
	"patternbt/internal/strategy"
)

// ohlc builds consecutive daily bars for symbol "T" starting 2024-01-01.
func ohlc(rows ...[4]float64) []domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(rows))
	for i, r := range rows {
		bars[i] = domain.Bar{
			Symbol:    "T",
			Timestamp: start.AddDate(0, 0, i),
			Open:      r[0],
			High:      r[1],
			Low:       r[2],
			Close:     r[3],
			Volume:    int64(1000 * (i + 1)),
		}
	}
	return bars
}

type hit struct {
	Index   int
	Type    domain.SignalType
	Pattern string
}

func hits(t *testing.T, src strategy.SignalSource, bars []domain.Bar) []hit {
	t.Helper()
	sigs, err := src.GenerateSignals(context.Background(), bars)
	if err != nil {
		t.Fatalf("GenerateSignals returned error: %v", err)
	}
	var out []hit
	for _, s := range sigs {
		idx := -1
		for i, b := range bars {
			if b.Timestamp.Equal(s.Date) {
				idx = i
			}
		}
		if idx < 0 {
			t.Fatalf("signal dated %v matches no bar", s.Date)
		}
		if s.Price != bars[idx].Close || s.Volume != bars[idx].Volume || s.Symbol != "T" {
			t.Errorf("signal %+v does not carry bar %d close/volume/symbol", s, idx)
		}
		out = append(out, hit{idx, s.Type, s.Pattern})
	}
	return out
}

func TestRegister(t *testing.T) {
	r := strategy.NewRegistry()
	Register(r)
	if diff := cmp.Diff([]string{"engulfing", "reversal"}, r.List()); diff != "" {
		t.Errorf("registered names mismatch (-want +got):\n%s", diff)
	}
}

func TestEngulfing(t *testing.T) {
	tests := []struct {
		name string
		bars []domain.Bar
		want []hit
	}{
		{
			name: "bullish",
			bars: ohlc([4]float64{10, 10.2, 8.8, 9}, [4]float64{8.5, 10.8, 8.4, 10.5}),
			want: []hit{{1, domain.SignalBullish, "bullish_engulfing"}},
		},
		{
			name: "bearish",
			bars: ohlc([4]float64{9, 10.2, 8.8, 10}, [4]float64{10.5, 10.6, 8.2, 8.5}),
			want: []hit{{1, domain.SignalBearish, "bearish_engulfing"}},
		},
		{
			name: "inside bar is not engulfing",
			bars: ohlc([4]float64{10, 10.2, 8.8, 9}, [4]float64{9.2, 9.9, 9.1, 9.8}),
			want: nil,
		},
		{
			name: "single bar",
			bars: ohlc([4]float64{10, 11, 9, 10.5}),
			want: nil,
		},
		{
			name: "nan disables detection",
			bars: ohlc([4]float64{10, 10.2, 8.8, math.NaN()}, [4]float64{8.5, 10.8, 8.4, 10.5}),
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hits(t, NewEngulfing(), tt.bars)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("signals mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// neutral has a large body and no star geometry against the flat bar used
// before it.
var neutral = [4]float64{10.5, 11.1, 10.4, 11}

func TestReversal(t *testing.T) {
	tests := []struct {
		name string
		bars []domain.Bar
		want []hit
	}{
		{
			name: "hammer",
			bars: ohlc([4]float64{10, 10, 10, 10}, [4]float64{9.8, 10, 9, 10}, neutral),
			want: []hit{{1, domain.SignalBullish, PatternHammer}},
		},
		{
			name: "shooting star",
			bars: ohlc([4]float64{10, 10, 10, 10}, [4]float64{10.2, 11, 10, 10}, neutral),
			want: []hit{{1, domain.SignalBearish, PatternShootingStar}},
		},
		{
			name: "doji after decline before rise",
			bars: ohlc([4]float64{11, 11, 11, 11}, [4]float64{10, 10.5, 9.5, 10.02}, neutral),
			want: []hit{{1, domain.SignalBullish, PatternDoji}},
		},
		{
			name: "doji after rise before decline",
			bars: ohlc([4]float64{9, 9, 9, 9}, [4]float64{10, 10.5, 9.5, 10.02}, [4]float64{9.5, 9.6, 8.9, 9}),
			want: []hit{{1, domain.SignalBearish, PatternDoji}},
		},
		{
			name: "doji on last bar has no context",
			bars: ohlc([4]float64{11, 11, 11, 11}, neutral, [4]float64{10, 10.5, 9.5, 10.02}),
			want: nil,
		},
		{
			name: "morning star",
			bars: ohlc([4]float64{12, 12, 10, 10}, [4]float64{9.6, 9.7, 9.4, 9.5}, [4]float64{9.8, 11.6, 9.8, 11.5}),
			want: []hit{{2, domain.SignalBullish, PatternMorningStar}},
		},
		{
			name: "evening star",
			bars: ohlc([4]float64{10, 12, 10, 12}, [4]float64{12.4, 12.6, 12.3, 12.5}, [4]float64{12.2, 12.2, 10.4, 10.5}),
			want: []hit{{2, domain.SignalBearish, PatternEveningStar}},
		},
		{
			name: "morning star overrides shooting star",
			bars: ohlc([4]float64{12, 12, 10, 10}, [4]float64{9.6, 9.7, 9.4, 9.5}, [4]float64{11, 12, 11, 11.2}),
			want: []hit{{2, domain.SignalBullish, PatternMorningStar}},
		},
		{
			name: "two bars is too short",
			bars: ohlc([4]float64{10, 10, 10, 10}, [4]float64{9.8, 10, 9, 10}),
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hits(t, NewReversal(), tt.bars)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("signals mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReversalBreakdown(t *testing.T) {
	bars := ohlc(
		[4]float64{12, 12, 10, 10},
		[4]float64{9.6, 9.7, 9.4, 9.5},
		[4]float64{11, 12, 11, 11.2}, // shooting star shape, completes a morning star
		[4]float64{11, 11, 11, 11},
		[4]float64{10, 10.5, 9.5, 10.02}, // doji
	)

	got := NewReversal().Breakdown(bars)
	want := map[string]int{
		PatternHammer:       0,
		PatternShootingStar: 1,
		PatternDoji:         1,
		PatternMorningStar:  1,
		PatternEveningStar:  0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Breakdown mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateSignalsHonoursCancel(t *testing.T) {
	rows := make([][4]float64, 2048)
	for i := range rows {
		rows[i] = [4]float64{10, 11, 9, 10.5}
	}
	bars := ohlc(rows...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewReversal().GenerateSignals(ctx, bars); err == nil {
		t.Error("Reversal.GenerateSignals on cancelled context returned nil error")
	}
	if _, err := NewEngulfing().GenerateSignals(ctx, bars); err == nil {
		t.Error("Engulfing.GenerateSignals on cancelled context returned nil error")
	}
}
