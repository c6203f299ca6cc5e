package us

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeSymbols(t *testing.T) {
	got := NormalizeSymbols([]string{" msft", "AAPL", "", "aapl", "brk.b "})
	want := []string{"AAPL", "BRK.B", "MSFT"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NormalizeSymbols() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadCSVSymbols(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "symbols.csv")
	csv := "symbol,description,exchange\nGOOGL,Alphabet,NASDAQ\naapl,Apple,NASDAQ\nGOOGL,Dup,NASDAQ\n"
	if err := os.WriteFile(csvPath, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadCSVSymbols(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"AAPL", "GOOGL"}, got); diff != "" {
		t.Errorf("LoadCSVSymbols() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveSymbols(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "symbols.csv")
	if err := os.WriteFile(csvPath, []byte("symbol\nXOM\nMSFT\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveSymbols([]string{"msft", "AAPL"}, csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"AAPL", "MSFT", "XOM"}, got); diff != "" {
		t.Errorf("ResolveSymbols() mismatch (-want +got):\n%s", diff)
	}

	if _, err := ResolveSymbols(nil, filepath.Join(dir, "missing.csv")); err == nil {
		t.Error("expected error for missing symbols file")
	}
}
