// Package app holds composition helpers shared by the server and CLI binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/config"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/db"
	dbFile "github.com/opengeos/maplibre-gl-noaa-lidar/internal/db/file"
	dbMemory "github.com/opengeos/maplibre-gl-noaa-lidar/internal/db/memory"
	dbRedis "github.com/opengeos/maplibre-gl-noaa-lidar/internal/db/redis"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/metrics"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/repository/catalogcache"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/snapshot"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/transport/stac"
	cataloguc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/catalog"
)

// OpenStore creates the cache store selected by cfg.Driver and waits for it to be ready.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (db.Store, error) {
	var (
		store db.Store
		err   error
	)
	switch cfg.Driver {
	case "file":
		store, err = dbFile.NewStore(cfg.Dir)
	case "memory":
		store = dbMemory.NewStore()
	case "redis", "valkey":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", cfg.Driver, err)
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("%s store not ready: %w", cfg.Driver, err)
	}
	return store, nil
}

// Catalog bundles the cache and the loader built on top of it.
type Catalog struct {
	Cache  *catalogcache.Cache
	Loader *cataloguc.Loader
}

// NewCatalog wires the catalog cache, the STAC client and the loader.
// An empty SnapshotPath falls back to the bundled snapshot.
func NewCatalog(cfg config.CatalogConfig, storageCfg config.StorageConfig, store db.KVStore, logger *zap.Logger) Catalog {
	cache := catalogcache.New(store, storageCfg.KeyPrefix, metrics.CatalogCacheTotal, logger)

	source := snapshot.Bundled
	if cfg.SnapshotPath != "" {
		path := cfg.SnapshotPath
		source = func() (snapshot.Snapshot, error) { return snapshot.Load(path) }
	}

	loader := cataloguc.New(
		stac.NewClient(cfg.FetchTimeout()),
		cache,
		source,
		cataloguc.Options{
			CatalogURL: cfg.URL,
			EPTBaseURL: cfg.EPTBaseURL,
			TTL:        cfg.CacheTTL(),
			BatchSize:  cfg.BatchSize,
		},
		logger,
	).WithMetrics(metrics.CatalogRebuildItemsTotal, metrics.CatalogRebuildDuration)

	return Catalog{Cache: cache, Loader: loader}
}
