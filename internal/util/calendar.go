package util

import (
	"sort"
	"time"

	"patternbt/internal/domain"
)

// TradingCalendar is the unified trading-day timeline of a set of series:
// the sorted union of every date any symbol traded on. Symbols keep their
// own gaps; the calendar never forces a shared schedule on them.
type TradingCalendar struct {
	days []time.Time
}

// NewTradingCalendar builds the union timeline of the given per-symbol bar
// series. Empty series contribute nothing.
func NewTradingCalendar(series map[string][]domain.Bar) *TradingCalendar {
	seen := make(map[time.Time]struct{})
	for _, bars := range series {
		for _, b := range bars {
			seen[domain.Day(b.Timestamp)] = struct{}{}
		}
	}

	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return &TradingCalendar{days: days}
}

// Days returns the timeline in ascending order.
func (tc *TradingCalendar) Days() []time.Time {
	out := make([]time.Time, len(tc.days))
	copy(out, tc.days)
	return out
}

// Len returns the number of trading days.
func (tc *TradingCalendar) Len() int { return len(tc.days) }

// First returns the earliest day, or the zero time for an empty calendar.
func (tc *TradingCalendar) First() time.Time {
	if len(tc.days) == 0 {
		return time.Time{}
	}
	return tc.days[0]
}

// Last returns the latest day, or the zero time for an empty calendar.
func (tc *TradingCalendar) Last() time.Time {
	if len(tc.days) == 0 {
		return time.Time{}
	}
	return tc.days[len(tc.days)-1]
}

// Contains reports whether t's calendar date is on the timeline.
func (tc *TradingCalendar) Contains(t time.Time) bool {
	d := domain.Day(t)
	i := sort.Search(len(tc.days), func(i int) bool { return !tc.days[i].Before(d) })
	return i < len(tc.days) && tc.days[i].Equal(d)
}
