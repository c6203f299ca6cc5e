package util

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"patternbt/internal/domain"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func(int) error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func(int) error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryPermanent(t *testing.T) {
	sentinel := errors.New("bad request")
	attempts := 0

	err := Retry(context.Background(), 5, 0, func(int) error {
		attempts++
		return Permanent(sentinel)
	})

	if !errors.Is(err, sentinel) {
		t.Fatalf("Retry error = %v, want %v", err, sentinel)
	}
	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, time.Hour, func(int) error { return errors.New("fail") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry error = %v, want context.Canceled", err)
	}
}

func TestRateLimiterFirstTokenImmediate(t *testing.T) {
	rl := NewRateLimiter(60)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first Wait returned %v", err)
	}
}

func TestRateLimiterCancelled(t *testing.T) {
	rl := NewRateLimiter(1) // one per minute
	_ = rl.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("Wait should fail when the next token is past the deadline")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("Wait %d returned %v", i, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait error = %v, want Canceled", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerToText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info", "text")
	logger.Debug("hidden")
	logger.Info("shown", "symbol", "AAPL")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message leaked at info level: %s", out)
	}
	if !strings.Contains(out, "symbol=AAPL") {
		t.Errorf("text output missing attribute: %s", out)
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTradingCalendarUnion(t *testing.T) {
	series := map[string][]domain.Bar{
		"A": {{Symbol: "A", Timestamp: day(2024, 1, 1)}, {Symbol: "A", Timestamp: day(2024, 1, 3)}},
		"B": {{Symbol: "B", Timestamp: day(2024, 1, 2)}, {Symbol: "B", Timestamp: day(2024, 1, 3)}},
		"C": nil,
	}

	cal := NewTradingCalendar(series)
	want := []time.Time{day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 3)}
	got := cal.Days()
	if len(got) != len(want) {
		t.Fatalf("Days() = %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("Days()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if !cal.First().Equal(want[0]) || !cal.Last().Equal(want[2]) {
		t.Errorf("First/Last = %v/%v, want %v/%v", cal.First(), cal.Last(), want[0], want[2])
	}
	if !cal.Contains(day(2024, 1, 2).Add(15 * time.Hour)) {
		t.Error("Contains(2024-01-02 15:00) = false, want true")
	}
	if cal.Contains(day(2024, 1, 4)) {
		t.Error("Contains(2024-01-04) = true, want false")
	}
}

func TestTradingCalendarEmpty(t *testing.T) {
	cal := NewTradingCalendar(nil)
	if cal.Len() != 0 {
		t.Errorf("Len() = %d, want 0", cal.Len())
	}
	if !cal.First().IsZero() || !cal.Last().IsZero() {
		t.Error("expected zero First/Last for empty calendar")
	}
}
