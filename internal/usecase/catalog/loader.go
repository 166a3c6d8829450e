package catalog

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/transport/stac"
)

// DefaultBatchSize bounds outstanding item requests against the origin.
const DefaultBatchSize = 50

// Options configures a Loader.
type Options struct {
	CatalogURL string
	EPTBaseURL string
	TTL        time.Duration
	BatchSize  int
}

// Loader bootstraps the index from cache or snapshot, and rebuilds it from the network.
type Loader struct {
	fetcher  Fetcher
	cache    Cache
	snapshot SnapshotSource
	opts     Options
	logger   *zap.Logger

	itemsTotal      *prometheus.CounterVec
	rebuildDuration prometheus.Observer
}

// New creates a Loader.
func New(fetcher Fetcher, cache Cache, snapshot SnapshotSource, opts Options, logger *zap.Logger) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Loader{
		fetcher:  fetcher,
		cache:    cache,
		snapshot: snapshot,
		opts:     opts,
		logger:   logger,
	}
}

// WithMetrics attaches rebuild metrics. itemsTotal has label "status" ("ok"/"failed").
func (l *Loader) WithMetrics(itemsTotal *prometheus.CounterVec, rebuildDuration prometheus.Observer) *Loader {
	l.itemsTotal = itemsTotal
	l.rebuildDuration = rebuildDuration
	return l
}

// LoadInitial returns the cached index if fresh, else the bundled snapshot.
// It never touches the network.
func (l *Loader) LoadInitial(ctx context.Context) ([]record.Record, error) {
	if records, ok := l.cache.Read(ctx); ok {
		l.logger.Info("Catalog loaded from cache", zap.Int("items", len(records)))
		return records, nil
	}

	snap, err := l.snapshot()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	l.logger.Info("Catalog loaded from snapshot",
		zap.Int("items", len(snap.Items)),
		zap.Time("generated_at", snap.GeneratedAt),
	)
	return snap.Items, nil
}

// Rebuild fetches the catalog and every linked item document, writes the
// result to the cache and returns it. Item failures are logged and dropped.
// The batches run in sequence; fetches within a batch run concurrently.
func (l *Loader) Rebuild(ctx context.Context, onProgress ProgressFunc) ([]record.Record, error) {
	start := time.Now()

	cat, err := l.fetcher.FetchCatalog(ctx, l.opts.CatalogURL)
	if err != nil {
		return nil, err
	}

	links := cat.ItemLinks()
	total := len(links)
	records := make([]record.Record, 0, total)
	failed := 0

	for from := 0; from < total; from += l.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("rebuild cancelled: %w", err)
		}
		to := min(from+l.opts.BatchSize, total)
		batch, batchFailed, err := l.fetchBatch(ctx, links[from:to])
		if err != nil {
			return nil, err
		}
		records = append(records, batch...)
		failed += batchFailed

		if onProgress != nil {
			onProgress(to, total)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rebuild cancelled: %w", err)
	}
	l.cache.Write(ctx, records, l.opts.TTL)

	if l.rebuildDuration != nil {
		l.rebuildDuration.Observe(time.Since(start).Seconds())
	}
	l.logger.Info("Catalog rebuilt",
		zap.Int("links", total),
		zap.Int("items", len(records)),
		zap.Int("failed", failed),
		zap.Duration("took", time.Since(start)),
	)
	return records, nil
}

// fetchBatch fetches one batch concurrently. Only context cancellation is returned as an error.
func (l *Loader) fetchBatch(ctx context.Context, links []stac.Link) ([]record.Record, int, error) {
	slots := make([]*record.Record, len(links))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(links))
	for i, link := range links {
		g.Go(func() error {
			rec, err := l.fetchRecord(gctx, link.Href)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				l.incItems("failed")
				l.logger.Warn("Skipping catalog item", zap.String("href", link.Href), zap.Error(err))
				return nil
			}
			l.incItems("ok")
			slots[i] = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("rebuild cancelled: %w", err)
	}

	out := make([]record.Record, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, len(slots) - len(out), nil
}

func (l *Loader) fetchRecord(ctx context.Context, href string) (record.Record, error) {
	itemURL, err := stac.ResolveHref(l.opts.CatalogURL, href)
	if err != nil {
		return record.Record{}, &domain.ItemFetchError{Href: href, Err: err}
	}

	item, err := l.fetcher.FetchItem(ctx, itemURL)
	if err != nil {
		return record.Record{}, err
	}

	box, err := geo.FromGeoJSON(item.BBox)
	if err != nil {
		return record.Record{}, &domain.ItemFetchError{Href: itemURL, Err: err}
	}

	dataURL, err := DataURL(l.opts.EPTBaseURL, MissionID(item.ID))
	if err != nil {
		return record.Record{}, &domain.ItemFetchError{Href: itemURL, Err: err}
	}

	rec, err := record.New(item.ID, item.Properties.Title, box, dataURL, item.Properties.PointCount())
	if err != nil {
		return record.Record{}, &domain.ItemFetchError{Href: itemURL, Err: err}
	}
	return rec, nil
}

func (l *Loader) incItems(status string) {
	if l.itemsTotal != nil {
		l.itemsTotal.WithLabelValues(status).Inc()
	}
}

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// MissionID returns the trailing numeric suffix of an item id, or the id itself.
func MissionID(itemID string) string {
	if m := trailingDigits.FindString(itemID); m != "" {
		return m
	}
	return itemID
}

// DataURL joins the EPT base URL with a mission id: <base>/<mission>/ept.json.
func DataURL(eptBaseURL, missionID string) (string, error) {
	u, err := url.JoinPath(eptBaseURL, missionID, "ept.json")
	if err != nil {
		return "", fmt.Errorf("build data url: %w", err)
	}
	return u, nil
}
