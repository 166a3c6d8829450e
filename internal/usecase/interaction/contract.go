package interaction

import (
	"context"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/search/result"
)

// Searcher runs spatial searches and resolves data URLs.
type Searcher interface {
	Search(ctx context.Context, box geo.BBox, limit int) (result.Result, error)
	ResolveDataURL(r record.Record) (string, error)
}

// Handle is an opaque reference to a point cloud held by the loader.
type Handle = any

// PointCloudLoader is the external visualization component that streams point clouds.
type PointCloudLoader interface {
	Load(ctx context.Context, url string) (Handle, error)
	Unload(ctx context.Context, h Handle) error
	UnloadAll(ctx context.Context) error
}
