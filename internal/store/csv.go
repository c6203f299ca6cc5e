package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"patternbt/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*CSVStore)(nil)

const csvSuffix = "_daily.csv"

// csvColumns are the header names every input file must carry.
var csvColumns = []string{"date", "open", "high", "low", "close", "volume"}

// CSVStore implements BarStore over a flat directory of <SYMBOL>_daily.csv
// files with columns date, open, high, low, close, volume. The market
// argument is ignored: one directory holds one market. Symbols are
// upper-case; file names match them case-insensitively.
type CSVStore struct {
	Dir string
}

// NewCSVStore creates a CSVStore reading and writing files in dir.
func NewCSVStore(dir string) *CSVStore {
	return &CSVStore{Dir: dir}
}

// csvBar is the on-disk row. Fields are strings so that blank cells load as
// missing values instead of failing the whole file.
type csvBar struct {
	Date   string `csv:"date"`
	Open   string `csv:"open"`
	High   string `csv:"high"`
	Low    string `csv:"low"`
	Close  string `csv:"close"`
	Volume string `csv:"volume"`
}

var csvDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
}

func parseCSVDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// parseCSVFloat returns NaN for a blank cell.
func parseCSVFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func (r csvBar) bar(symbol string) (domain.Bar, error) {
	ts, err := parseCSVDate(r.Date)
	if err != nil {
		return domain.Bar{}, err
	}

	var vals [5]float64
	for i, cell := range [...]string{r.Open, r.High, r.Low, r.Close, r.Volume} {
		if vals[i], err = parseCSVFloat(cell); err != nil {
			return domain.Bar{}, fmt.Errorf("%s: %w", r.Date, err)
		}
	}

	// Volume is often written as a float ("1200.0"); a blank volume is -1
	// so validation rejects it.
	volume := int64(-1)
	if !math.IsNaN(vals[4]) {
		volume = int64(vals[4])
	}

	return domain.Bar{
		Symbol:    symbol,
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    volume,
	}, nil
}

func fromBar(b domain.Bar) csvBar {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return csvBar{
		Date:   b.Timestamp.UTC().Format("2006-01-02"),
		Open:   f(b.Open),
		High:   f(b.High),
		Low:    f(b.Low),
		Close:  f(b.Close),
		Volume: strconv.FormatInt(b.Volume, 10),
	}
}

func (s *CSVStore) path(symbol string) string {
	return filepath.Join(s.Dir, strings.ToUpper(symbol)+csvSuffix)
}

// resolve returns the file holding symbol. The canonical upper-case name
// wins; otherwise the first directory entry whose name matches it ignoring
// case. found is false when no file exists.
func (s *CSVStore) resolve(symbol string) (path string, found bool, err error) {
	canonical := s.path(symbol)
	if _, err := os.Stat(canonical); err == nil {
		return canonical, true, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", false, err
	}

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return canonical, false, nil
		}
		return "", false, err
	}
	want := filepath.Base(canonical)
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), want) {
			return filepath.Join(s.Dir, e.Name()), true, nil
		}
	}
	return canonical, false, nil
}

// checkHeader reads the header row of f, reports any required column it
// lacks by name, and rewinds f for the full parse.
func checkHeader(f *os.File) error {
	header, err := csv.NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s is empty", domain.ErrInvalidBars, f.Name())
	}
	if err != nil {
		return fmt.Errorf("reading header of %s: %w", f.Name(), err)
	}

	have := make(map[string]bool, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		have[strings.TrimSpace(h)] = true
	}
	var missing []string
	for _, col := range csvColumns {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s is missing column(s) %s", domain.ErrInvalidBars, f.Name(), strings.Join(missing, ", "))
	}

	_, err = f.Seek(0, io.SeekStart)
	return err
}

// ReadBars loads the symbol's file, sorts it by date and filters it to
// [start, end]. A missing file yields no bars.
func (s *CSVStore) ReadBars(_ context.Context, symbol string, _ string, start, end time.Time) ([]domain.Bar, error) {
	all, err := s.readAll(symbol)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for _, b := range all {
		if inRange(b.Timestamp, start, end) {
			bars = append(bars, b)
		}
	}
	return bars, nil
}

func (s *CSVStore) readAll(symbol string) ([]domain.Bar, error) {
	path, found, err := s.resolve(symbol)
	if err != nil || !found {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := checkHeader(f); err != nil {
		return nil, err
	}
	var rows []csvBar
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.Name(), err)
	}

	bars := make([]domain.Bar, 0, len(rows))
	for i, r := range rows {
		b, err := r.bar(strings.ToUpper(symbol))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", f.Name(), i+1, err)
		}
		bars = append(bars, b)
	}
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

// WriteBars merges bars into each symbol's file by date, replacing rows for
// dates already present.
func (s *CSVStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	bySymbol := make(map[string][]domain.Bar)
	for _, b := range bars {
		sym := strings.ToUpper(b.Symbol)
		bySymbol[sym] = append(bySymbol[sym], b)
	}

	symbols := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		existing, err := s.readAll(sym)
		if err != nil {
			return err
		}

		byDay := make(map[time.Time]domain.Bar, len(existing)+len(bySymbol[sym]))
		for _, b := range existing {
			byDay[domain.Day(b.Timestamp)] = b
		}
		for _, b := range bySymbol[sym] {
			byDay[domain.Day(b.Timestamp)] = b
		}

		rows := make([]csvBar, 0, len(byDay))
		days := make([]time.Time, 0, len(byDay))
		for d := range byDay {
			days = append(days, d)
		}
		sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
		for _, d := range days {
			rows = append(rows, fromBar(byDay[d]))
		}

		path, _, err := s.resolve(sym)
		if err != nil {
			return err
		}
		if err := writeCSV(path, &rows); err != nil {
			return fmt.Errorf("writing %s: %w", sym, err)
		}
	}
	return nil
}

// ListSymbols returns the upper-cased symbols with a *_daily.csv file,
// sorted and deduplicated.
func (s *CSVStore) ListSymbols(_ context.Context, _ string) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	seen := make(map[string]bool)
	var symbols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) <= len(csvSuffix) || !strings.EqualFold(name[len(name)-len(csvSuffix):], csvSuffix) {
			continue
		}
		sym := strings.ToUpper(name[:len(name)-len(csvSuffix)])
		if !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// writeCSV marshals rows (a pointer to a slice of csv-tagged structs) to
// path, truncating any existing file.
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
