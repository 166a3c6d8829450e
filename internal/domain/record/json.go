package record

import (
	"encoding/json"
	"fmt"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
)

// wire is the persisted shape shared by the cache entry and the snapshot.
type wire struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	BBox       geo.BBox `json:"bbox"`
	DataURL    string   `json:"dataUrl"`
	PointCount *int64   `json:"pointCount,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	w := wire{ID: r.id, Title: r.title, BBox: r.bbox, DataURL: r.dataURL}
	if r.hasPointCount {
		pc := r.pointCount
		w.PointCount = &pc
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler and re-validates the record.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	rec, err := New(w.ID, w.Title, w.BBox, w.DataURL, w.PointCount)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}
