package us

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type symbolStatus string

const (
	statusFetched symbolStatus = "fetched"
	statusEmpty   symbolStatus = "empty"
)

// progressTracker records which symbols a gather run has already handled for
// one end date, so a crashed run resumes where it stopped and a finished run
// is a no-op until the end date moves.
//
// Files under dir:
//
//	.gathered-<YYYY-MM-DD>   one "SYMBOL<TAB>status" line per handled symbol
//	.last-completed          end date of the last run that finished
type progressTracker struct {
	mu      sync.Mutex
	dir     string
	endDate string
	done    map[string]symbolStatus
	file    *os.File
	writer  *bufio.Writer
}

// newProgressTracker opens the progress log for endDate, loading entries a
// previous attempt left behind. Logs for other end dates are removed.
func newProgressTracker(dir, endDate string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}

	stale, err := filepath.Glob(filepath.Join(dir, ".gathered-*"))
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, ".gathered-"+endDate)
	for _, p := range stale {
		if p != path {
			os.Remove(p)
		}
	}

	pt := &progressTracker{
		dir:     dir,
		endDate: endDate,
		done:    make(map[string]symbolStatus),
	}

	if data, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			sym, status, ok := strings.Cut(strings.TrimSpace(line), "\t")
			if !ok || sym == "" {
				continue
			}
			pt.done[sym] = symbolStatus(status)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening progress log: %w", err)
	}
	pt.file = f
	pt.writer = bufio.NewWriter(f)
	return pt, nil
}

// Done reports whether symbol was already handled for this end date.
func (p *progressTracker) Done(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.done[symbol]
	return ok
}

// Status returns the recorded status of symbol.
func (p *progressTracker) Status(symbol string) (symbolStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.done[symbol]
	return s, ok
}

// Mark records symbols with the given status and flushes the log.
func (p *progressTracker) Mark(status symbolStatus, symbols []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sym := range symbols {
		if _, ok := p.done[sym]; ok {
			continue
		}
		p.done[sym] = status
		if _, err := fmt.Fprintf(p.writer, "%s\t%s\n", sym, status); err != nil {
			return fmt.Errorf("writing progress log: %w", err)
		}
	}
	return p.writer.Flush()
}

// Counts returns how many symbols were fetched and how many came back empty.
func (p *progressTracker) Counts() (fetched, empty int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.done {
		switch s {
		case statusFetched:
			fetched++
		case statusEmpty:
			empty++
		}
	}
	return fetched, empty
}

// MarkCompleted records the tracker's end date as fully gathered.
func (p *progressTracker) MarkCompleted() error {
	return os.WriteFile(filepath.Join(p.dir, ".last-completed"), []byte(p.endDate), 0o644)
}

// IsCompleted reports whether the last finished run covered this end date.
func (p *progressTracker) IsCompleted() bool {
	data, err := os.ReadFile(filepath.Join(p.dir, ".last-completed"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == p.endDate
}

// Close flushes and closes the progress log.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
