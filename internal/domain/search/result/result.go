package result

import "github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"

// Result is a ranked, truncated set of matching records.
type Result struct {
	items   []record.Record
	matched int
}

// New creates a search result. matched is the match count before truncation.
func New(items []record.Record, matched int) Result {
	if matched < len(items) {
		matched = len(items)
	}
	return Result{items: items, matched: matched}
}

// Items returns the records in rank order.
func (r *Result) Items() []record.Record { return r.items }

// MatchedCount returns the number of matches before truncation.
func (r *Result) MatchedCount() int { return r.matched }

// ReturnedCount returns the number of records after truncation.
func (r *Result) ReturnedCount() int { return len(r.items) }

// Truncated reports whether matches were dropped by the limit.
func (r *Result) Truncated() bool { return r.matched > len(r.items) }
