package us

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
)

type symbolRow struct {
	Symbol string `csv:"symbol"`
}

// LoadCSVSymbols reads the "symbol" column from a CSV file with a header row.
// Other columns are ignored.
func LoadCSVSymbols(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV %s: %w", path, err)
	}
	defer f.Close()

	var rows []symbolRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("reading CSV %s: %w", path, err)
	}

	symbols := make([]string, 0, len(rows))
	for _, r := range rows {
		symbols = append(symbols, r.Symbol)
	}
	return NormalizeSymbols(symbols), nil
}

// NormalizeSymbols trims and upper-cases symbols, drops blanks and
// duplicates, and returns them sorted.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ResolveSymbols combines an inline symbol list with the symbols of an
// optional CSV file.
func ResolveSymbols(inline []string, csvPath string) ([]string, error) {
	all := append([]string(nil), inline...)
	if csvPath != "" {
		fromFile, err := LoadCSVSymbols(csvPath)
		if err != nil {
			return nil, err
		}
		all = append(all, fromFile...)
	}
	return NormalizeSymbols(all), nil
}
