package geo

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain"
)

// Coordinate limits in WGS84 degrees.
const (
	MinLon = -180.0
	MaxLon = 180.0
	MinLat = -90.0
	MaxLat = 90.0
)

// World covers every valid coordinate.
var World = BBox{West: MinLon, South: MinLat, East: MaxLon, North: MaxLat}

// Point is a longitude/latitude pair in degrees.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// BBox is an axis-aligned rectangle, serialized as [west, south, east, north].
// Boxes crossing the antimeridian are not unwrapped.
type BBox struct {
	West  float64
	South float64
	East  float64
	North float64
}

// FromSlice builds a BBox from a 4-element 2D or 6-element 3D box.
// The 3D form [minx, miny, minz, maxx, maxy, maxz] drops the third axis.
// Inverted axes are reordered so that West <= East and South <= North.
func FromSlice(v []float64) (BBox, error) {
	var b BBox
	switch len(v) {
	case 4:
		b = BBox{West: v[0], South: v[1], East: v[2], North: v[3]}
	case 6:
		b = BBox{West: v[0], South: v[1], East: v[3], North: v[4]}
	default:
		return BBox{}, fmt.Errorf("%w: expected 4 or 6 values, got %d", domain.ErrInvalidBBox, len(v))
	}
	for _, c := range b.Slice() {
		if !isFinite(c) {
			return BBox{}, fmt.Errorf("%w: non-finite coordinate", domain.ErrInvalidBBox)
		}
	}
	return b.ordered(), nil
}

// FromGeoJSON builds a BBox from a source document bbox. A west edge in the
// eastern hemisphere with an east edge in the western one crosses the
// antimeridian; a single box cannot express that, so it widens to the full
// longitude range. Other inverted axes are reordered as in FromSlice.
// Coordinates outside WGS84 are clamped.
func FromGeoJSON(v []float64) (BBox, error) {
	b, err := FromSlice(v)
	if err != nil {
		return BBox{}, err
	}
	west, east := v[0], v[2]
	if len(v) == 6 {
		east = v[3]
	}
	if west > 0 && east < 0 {
		b.West, b.East = MinLon, MaxLon
	}
	return b.Clamp(), nil
}

// Parse reads "west,south,east,north". Values are not clamped.
func Parse(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("%w: expected west,south,east,north", domain.ErrInvalidBBox)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("%w: %q: %w", domain.ErrInvalidBBox, p, err)
		}
		v[i] = f
	}
	return BBox{West: v[0], South: v[1], East: v[2], North: v[3]}, nil
}

// FromCorners returns the smallest box containing both points.
func FromCorners(a, b Point) BBox {
	return BBox{
		West:  math.Min(a.Lng, b.Lng),
		South: math.Min(a.Lat, b.Lat),
		East:  math.Max(a.Lng, b.Lng),
		North: math.Max(a.Lat, b.Lat),
	}
}

// Slice returns [west, south, east, north].
func (b BBox) Slice() [4]float64 {
	return [4]float64{b.West, b.South, b.East, b.North}
}

// Width returns the longitudinal extent in degrees.
func (b BBox) Width() float64 { return b.East - b.West }

// Height returns the latitudinal extent in degrees.
func (b BBox) Height() float64 { return b.North - b.South }

// Clamp restricts every coordinate to the valid WGS84 range.
// A non-finite coordinate becomes the permissive bound for its side, so
// malformed input degrades to a whole-world search instead of an error.
// The result always satisfies West <= East and South <= North.
func (b BBox) Clamp() BBox {
	c := BBox{
		West:  clampOr(b.West, MinLon, MaxLon, MinLon),
		South: clampOr(b.South, MinLat, MaxLat, MinLat),
		East:  clampOr(b.East, MinLon, MaxLon, MaxLon),
		North: clampOr(b.North, MinLat, MaxLat, MaxLat),
	}
	return c.ordered()
}

// Intersects reports whether two boxes overlap as closed intervals;
// touching edges count.
func (b BBox) Intersects(other BBox) bool {
	return !(other.East < b.West ||
		other.West > b.East ||
		other.North < b.South ||
		other.South > b.North)
}

// Union returns the smallest box containing both boxes.
func (b BBox) Union(other BBox) BBox {
	return BBox{
		West:  math.Min(b.West, other.West),
		South: math.Min(b.South, other.South),
		East:  math.Max(b.East, other.East),
		North: math.Max(b.North, other.North),
	}
}

// String formats the box as "west,south,east,north".
func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.West, b.South, b.East, b.North)
}

// MarshalJSON encodes the box as a 4-element array.
func (b BBox) MarshalJSON() ([]byte, error) {
	v := b.Slice()
	return json.Marshal(v[:])
}

// UnmarshalJSON accepts a 4- or 6-element array.
func (b *BBox) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidBBox, err)
	}
	parsed, err := FromSlice(v)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ValidateCoordinates checks that latitude is in [-90,90] and longitude in [-180,180].
func ValidateCoordinates(lat, lon float64) bool {
	return lat >= MinLat && lat <= MaxLat && lon >= MinLon && lon <= MaxLon
}

func (b BBox) ordered() BBox {
	if b.West > b.East {
		b.West, b.East = b.East, b.West
	}
	if b.South > b.North {
		b.South, b.North = b.North, b.South
	}
	return b
}

func clampOr(v, lo, hi, fallback float64) float64 {
	if !isFinite(v) {
		return fallback
	}
	return math.Max(lo, math.Min(hi, v))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
