package search

import (
	"context"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
)

// Source provides the initial record set (cache or bundled snapshot).
type Source interface {
	LoadInitial(ctx context.Context) ([]record.Record, error)
}
