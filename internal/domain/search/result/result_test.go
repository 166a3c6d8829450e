package result

import (
	"testing"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
)

func TestNew(t *testing.T) {
	rec := record.Reconstruct("a", "", geo.BBox{West: 0, South: 0, East: 1, North: 1}, "", nil)
	r := New([]record.Record{rec}, 3)

	if r.ReturnedCount() != 1 {
		t.Errorf("ReturnedCount() = %d", r.ReturnedCount())
	}
	if r.MatchedCount() != 3 {
		t.Errorf("MatchedCount() = %d", r.MatchedCount())
	}
	if !r.Truncated() {
		t.Error("expected Truncated()")
	}
	if r.Items()[0].ID() != "a" {
		t.Errorf("Items()[0].ID() = %q", r.Items()[0].ID())
	}
}

func TestNew_MatchedNeverBelowReturned(t *testing.T) {
	rec := record.Reconstruct("a", "", geo.BBox{}, "", nil)
	r := New([]record.Record{rec, rec}, 0)
	if r.MatchedCount() != 2 {
		t.Errorf("MatchedCount() = %d, want 2", r.MatchedCount())
	}
	if r.Truncated() {
		t.Error("unexpected Truncated()")
	}
}
