package search

import (
	"github.com/dhconnelly/rtreego"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
)

// epsilon pads zero-area boxes; the R-tree rejects empty rectangles and its
// intersection test excludes touching edges.
const epsilon = 1e-7

// spatialIndex answers bbox intersection over an immutable record set.
type spatialIndex struct {
	records []record.Record
	byID    map[string]int
	tree    *rtreego.Rtree
	bounds  geo.BBox
}

// indexedRecord wraps a record position for R-tree storage.
type indexedRecord struct {
	pos  int
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (r *indexedRecord) Bounds() rtreego.Rect { return r.rect }

func newSpatialIndex(records []record.Record) *spatialIndex {
	ix := &spatialIndex{
		records: records,
		byID:    make(map[string]int, len(records)),
		tree:    rtreego.NewTree(2, 25, 50),
	}
	for i := range records {
		b := records[i].BBox()
		if i == 0 {
			ix.bounds = b
		} else {
			ix.bounds = ix.bounds.Union(b)
		}
		if _, dup := ix.byID[records[i].ID()]; !dup {
			ix.byID[records[i].ID()] = i
		}
		ix.tree.Insert(&indexedRecord{pos: i, rect: toRect(b, 0)})
	}
	return ix
}

// match returns positions of records whose boxes intersect box (closed intervals).
func (ix *spatialIndex) match(box geo.BBox) []int {
	if len(ix.records) == 0 {
		return nil
	}
	candidates := ix.tree.SearchIntersect(toRect(box, epsilon))
	out := make([]int, 0, len(candidates))
	for _, c := range candidates {
		pos := c.(*indexedRecord).pos
		if ix.records[pos].BBox().Intersects(box) {
			out = append(out, pos)
		}
	}
	return out
}

func (ix *spatialIndex) get(id string) (record.Record, bool) {
	pos, ok := ix.byID[id]
	if !ok {
		return record.Record{}, false
	}
	return ix.records[pos], true
}

// toRect converts a box to an R-tree rectangle grown by pad on every side.
// Each side is at least epsilon long.
func toRect(b geo.BBox, pad float64) rtreego.Rect {
	point := rtreego.Point{b.West - pad, b.South - pad}
	lengths := []float64{
		max(b.Width()+2*pad, epsilon),
		max(b.Height()+2*pad, epsilon),
	}
	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}
