package record

import (
	"fmt"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
)

// Record is one dataset's normalized catalog entry (immutable value object).
type Record struct {
	id            string
	title         string
	bbox          geo.BBox
	dataURL       string
	pointCount    int64
	hasPointCount bool
}

// New validates and creates a Record.
// An empty title falls back to the id; a nil pointCount means "unknown".
func New(id, title string, bbox geo.BBox, dataURL string, pointCount *int64) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("record ID is required")
	}
	if bbox.West > bbox.East || bbox.South > bbox.North {
		return Record{}, fmt.Errorf("record %q: bbox %s is not ordered", id, bbox)
	}
	if !geo.ValidateCoordinates(bbox.South, bbox.West) || !geo.ValidateCoordinates(bbox.North, bbox.East) {
		return Record{}, fmt.Errorf("record %q: bbox %s out of range", id, bbox)
	}
	if pointCount != nil && *pointCount < 0 {
		return Record{}, fmt.Errorf("record %q: negative point count %d", id, *pointCount)
	}
	return Reconstruct(id, title, bbox, dataURL, pointCount), nil
}

// Reconstruct creates a Record without validation (storage hydration).
func Reconstruct(id, title string, bbox geo.BBox, dataURL string, pointCount *int64) Record {
	if title == "" {
		title = id
	}
	r := Record{id: id, title: title, bbox: bbox, dataURL: dataURL}
	if pointCount != nil {
		r.pointCount = *pointCount
		r.hasPointCount = true
	}
	return r
}

// ID returns the dataset identifier.
func (r *Record) ID() string { return r.id }

// Title returns the human label.
func (r *Record) Title() string { return r.title }

// BBox returns the [west, south, east, north] footprint.
func (r *Record) BBox() geo.BBox { return r.bbox }

// DataURL returns the resolved streamable index URL, possibly empty.
func (r *Record) DataURL() string { return r.dataURL }

// PointCount returns the point count and whether it is known.
func (r *Record) PointCount() (int64, bool) { return r.pointCount, r.hasPointCount }

// RankKey returns the point count used for ranking; unknown counts rank as zero.
func (r *Record) RankKey() int64 {
	if !r.hasPointCount {
		return 0
	}
	return r.pointCount
}
