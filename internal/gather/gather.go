// Package gather defines the interface shared by market-data ingestion
// processes.
package gather

import (
	"context"
	"fmt"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run fetches data until the configured range is covered or ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses YYYY-MM-DD bounds. An empty end leaves End zero so
// the caller can resolve it later.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	var err error
	if r.Start, err = time.Parse(time.DateOnly, start); err != nil {
		return DateRange{}, fmt.Errorf("parsing start date %q: %w", start, err)
	}
	if end == "" {
		return r, nil
	}
	if r.End, err = time.Parse(time.DateOnly, end); err != nil {
		return DateRange{}, fmt.Errorf("parsing end date %q: %w", end, err)
	}
	if r.End.Before(r.Start) {
		return DateRange{}, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return r, nil
}

// String formats the range as "start..end".
func (r DateRange) String() string {
	return r.Start.Format(time.DateOnly) + ".." + r.End.Format(time.DateOnly)
}
