// Package strategy defines the SignalSource interface for pattern detectors
// and provides a Registry for looking them up by name.
package strategy

import (
	"context"
	"sort"

	"patternbt/internal/domain"
)

// SignalSource turns one symbol's full daily series into dated directional
// signals.
type SignalSource interface {
	// Name returns the unique identifier for this source.
	Name() string

	// GenerateSignals is called once per symbol per run with the whole
	// ascending series. Signals for dates not present in bars are ignored by
	// the engine.
	GenerateSignals(ctx context.Context, bars []domain.Bar) ([]domain.Signal, error)
}

// SignalFunc is the function form of SignalSource.GenerateSignals.
type SignalFunc func(ctx context.Context, bars []domain.Bar) ([]domain.Signal, error)

type funcSource struct {
	name string
	fn   SignalFunc
}

func (f funcSource) Name() string { return f.name }

func (f funcSource) GenerateSignals(ctx context.Context, bars []domain.Bar) ([]domain.Signal, error) {
	return f.fn(ctx, bars)
}

// Func adapts fn into a SignalSource called name.
func Func(name string, fn SignalFunc) SignalSource {
	return funcSource{name: name, fn: fn}
}

// SortSignals orders signals by date, keeping the source's order for signals
// on the same date.
func SortSignals(signals []domain.Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Date.Before(signals[j].Date)
	})
}

// Registry holds a named collection of signal sources for lookup and
// enumeration.
type Registry struct {
	sources map[string]SignalSource
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]SignalSource),
	}
}

// Register adds a source to the registry, keyed by its Name(). A later
// registration under the same name replaces the earlier one.
func (r *Registry) Register(s SignalSource) {
	r.sources[s.Name()] = s
}

// Get retrieves a source by name. The second return value indicates whether
// the source was found.
func (r *Registry) Get(name string) (SignalSource, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// List returns a sorted slice of all registered source names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
