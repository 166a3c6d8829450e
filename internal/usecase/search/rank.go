package search

import (
	"cmp"
	"slices"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
)

// rank orders positions by point count descending; ties keep the original
// record order. Unknown counts rank as zero.
func rank(records []record.Record, positions []int) {
	slices.SortFunc(positions, func(a, b int) int {
		if c := cmp.Compare(records[b].RankKey(), records[a].RankKey()); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
}
