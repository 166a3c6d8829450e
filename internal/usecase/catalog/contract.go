package catalog

import (
	"context"
	"time"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/snapshot"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/transport/stac"
)

// Fetcher retrieves catalog and item documents.
type Fetcher interface {
	FetchCatalog(ctx context.Context, catalogURL string) (stac.Catalog, error)
	FetchItem(ctx context.Context, href string) (stac.Item, error)
}

// Cache persists the flattened index.
type Cache interface {
	Read(ctx context.Context) ([]record.Record, bool)
	Write(ctx context.Context, records []record.Record, ttl time.Duration)
}

// SnapshotSource returns the pre-built fallback index.
type SnapshotSource func() (snapshot.Snapshot, error)

// ProgressFunc receives (itemsProcessedSoFar, totalItems) after each batch.
type ProgressFunc func(processed, total int)
