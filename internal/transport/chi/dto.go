package chi

import (
	"time"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/search/result"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/transport/ept"
	interactionuc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/interaction"
	searchuc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/search"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Index    statsResponse     `json:"index"`
	Sessions int               `json:"sessions"`
}

type statsResponse struct {
	Loaded     bool      `json:"loaded"`
	Items      int       `json:"items"`
	Bounds     *geo.BBox `json:"bounds,omitempty"`
	Generation uint64    `json:"generation"`
}

func statsToDTO(st searchuc.Stats) statsResponse {
	return statsResponse{
		Loaded:     st.Loaded,
		Items:      st.Items,
		Bounds:     st.Bounds,
		Generation: st.Generation,
	}
}

type searchResponse struct {
	BBox      geo.BBox        `json:"bbox"`
	Items     []record.Record `json:"items"`
	Matched   int             `json:"matched"`
	Returned  int             `json:"returned"`
	Truncated bool            `json:"truncated"`
}

func resultToDTO(box geo.BBox, res result.Result) searchResponse {
	items := res.Items()
	if items == nil {
		items = []record.Record{}
	}
	return searchResponse{
		BBox:      box,
		Items:     items,
		Matched:   res.MatchedCount(),
		Returned:  res.ReturnedCount(),
		Truncated: res.Truncated(),
	}
}

type dataURLResponse struct {
	ID      string `json:"id"`
	DataURL string `json:"dataUrl"`
}

type sessionResponse struct {
	ID          string              `json:"id"`
	CreatedAt   time.Time           `json:"createdAt"`
	State       interactionuc.State `json:"state"`
	PointClouds []*ept.Handle       `json:"pointClouds"`
}

type sessionSearchRequest struct {
	BBox *geo.BBox `json:"bbox"`
}

type drawRequest struct {
	Lng *float64 `json:"lng"`
	Lat *float64 `json:"lat"`
}

func (d drawRequest) point() (geo.Point, bool) {
	if d.Lng == nil || d.Lat == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lng: *d.Lng, Lat: *d.Lat}, true
}

type drawResponse struct {
	Committed bool                `json:"committed"`
	BBox      *geo.BBox           `json:"bbox,omitempty"`
	State     interactionuc.State `json:"state"`
}

type eventsResponse struct {
	Events []sessionEvent `json:"events"`
	Next   uint64         `json:"next"`
}
