package us

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProgressTrackerMark(t *testing.T) {
	dir := t.TempDir()

	pt, err := newProgressTracker(dir, "2025-02-10")
	if err != nil {
		t.Fatal(err)
	}
	if err := pt.Mark(statusFetched, []string{"AAPL", "MSFT"}); err != nil {
		t.Fatal(err)
	}
	if err := pt.Mark(statusEmpty, []string{"ZZZZ", "AAPL"}); err != nil {
		t.Fatal(err)
	}
	pt.Close()

	// Reload and verify.
	pt2, err := newProgressTracker(dir, "2025-02-10")
	if err != nil {
		t.Fatal(err)
	}
	defer pt2.Close()

	if s, ok := pt2.Status("AAPL"); !ok || s != statusFetched {
		t.Errorf("Status(AAPL) = %q, %v, want fetched (first mark wins)", s, ok)
	}
	if s, _ := pt2.Status("ZZZZ"); s != statusEmpty {
		t.Errorf("Status(ZZZZ) = %q, want empty", s)
	}
	if pt2.Done("NVDA") {
		t.Error("NVDA should not be done")
	}
	if fetched, empty := pt2.Counts(); fetched != 2 || empty != 1 {
		t.Errorf("Counts() = %d, %d, want 2, 1", fetched, empty)
	}
}

func TestProgressTrackerCompleted(t *testing.T) {
	dir := t.TempDir()

	pt, err := newProgressTracker(dir, "2025-02-10")
	if err != nil {
		t.Fatal(err)
	}
	if pt.IsCompleted() {
		t.Error("should not be completed before marking")
	}
	if err := pt.MarkCompleted(); err != nil {
		t.Fatal(err)
	}
	if !pt.IsCompleted() {
		t.Error("should be completed after marking")
	}
	pt.Close()

	next, err := newProgressTracker(dir, "2025-02-11")
	if err != nil {
		t.Fatal(err)
	}
	defer next.Close()
	if next.IsCompleted() {
		t.Error("different end date should not be completed")
	}
}

func TestProgressTrackerDropsStaleLog(t *testing.T) {
	dir := t.TempDir()

	// Simulate a crashed run for an earlier end date.
	stale := filepath.Join(dir, ".gathered-2025-02-07")
	if err := os.WriteFile(stale, []byte("AAPL\tfetched\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	pt, err := newProgressTracker(dir, "2025-02-10")
	if err != nil {
		t.Fatal(err)
	}
	defer pt.Close()

	if pt.Done("AAPL") {
		t.Error("AAPL from a stale end date should not be done")
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale log still present: %v", err)
	}
}

func TestProgressTrackerResume(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, ".gathered-2025-02-10")
	if err := os.WriteFile(path, []byte("XOM\tfetched\nQQQQ\tempty\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	pt, err := newProgressTracker(dir, "2025-02-10")
	if err != nil {
		t.Fatal(err)
	}
	defer pt.Close()

	if !pt.Done("XOM") || !pt.Done("QQQQ") {
		t.Error("entries from the partial run should be loaded")
	}
	if err := pt.Mark(statusFetched, []string{"CVX"}); err != nil {
		t.Fatal(err)
	}
	if !pt.Done("CVX") {
		t.Error("CVX should be done after marking")
	}
}
