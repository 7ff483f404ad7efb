package search

import (
	"time"

	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/storage"
)

// DefaultThreshold is the default recency cutoff: 2025-01-01T00:00:00Z.
var DefaultThreshold = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// recencyFilter builds the created_date >= threshold filter.
func recencyFilter(thresholdMillis int64) *storage.RecencyFilter {
	return &storage.RecencyFilter{Field: core.FieldCreatedDate, Min: thresholdMillis}
}

// filterRecent keeps matches whose metadata passes the filter, preserving
// order. Records without a usable date are dropped.
func filterRecent(matches []storage.Match, filter *storage.RecencyFilter) ([]storage.Match, int) {
	kept := make([]storage.Match, 0, len(matches))
	for _, m := range matches {
		if filter.Matches(m.Metadata) {
			kept = append(kept, m)
		}
	}
	return kept, len(matches) - len(kept)
}
