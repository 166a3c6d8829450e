package search

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/search/result"
)

// DefaultLimit is the result limit used when the caller passes limit <= 0.
const DefaultLimit = 50

// Stats describes the current in-memory index.
type Stats struct {
	Loaded     bool
	Items      int
	Bounds     *geo.BBox
	Generation uint64
}

// Engine is the spatial search engine. The index is loaded lazily once per
// generation; concurrent loads share one in-flight call and failures are retried
// on the next request.
type Engine struct {
	source       Source
	defaultLimit int
	logger       *zap.Logger

	loads singleflight.Group

	mu         sync.RWMutex
	idx        *spatialIndex
	generation uint64

	searchDuration prometheus.Observer
	searchMatches  prometheus.Observer
	indexSize      prometheus.Gauge
}

// New creates an Engine. defaultLimit <= 0 means DefaultLimit.
func New(source Source, defaultLimit int, logger *zap.Logger) *Engine {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Engine{source: source, defaultLimit: defaultLimit, logger: logger}
}

// WithMetrics attaches search metrics. Any argument may be nil.
func (e *Engine) WithMetrics(duration, matches prometheus.Observer, size prometheus.Gauge) *Engine {
	e.searchDuration = duration
	e.searchMatches = matches
	e.indexSize = size
	return e
}

// Load ensures the index is in memory.
func (e *Engine) Load(ctx context.Context) error {
	_, err := e.index(ctx)
	return err
}

// Search returns records intersecting box, ranked and truncated to limit.
// The box is clamped to valid coordinates first.
func (e *Engine) Search(ctx context.Context, box geo.BBox, limit int) (result.Result, error) {
	ix, err := e.index(ctx)
	if err != nil {
		return result.Result{}, err
	}
	start := time.Now()

	if limit <= 0 {
		limit = e.defaultLimit
	}
	query := box.Clamp()

	positions := ix.match(query)
	rank(ix.records, positions)

	matched := len(positions)
	if len(positions) > limit {
		positions = positions[:limit]
	}
	items := make([]record.Record, len(positions))
	for i, pos := range positions {
		items[i] = ix.records[pos]
	}

	if e.searchDuration != nil {
		e.searchDuration.Observe(time.Since(start).Seconds())
	}
	if e.searchMatches != nil {
		e.searchMatches.Observe(float64(matched))
	}
	e.logger.Debug("Search",
		zap.Stringer("bbox", query),
		zap.Int("matched", matched),
		zap.Int("returned", len(items)),
	)
	return result.New(items, matched), nil
}

// Get returns the record with the given id.
func (e *Engine) Get(ctx context.Context, id string) (record.Record, error) {
	ix, err := e.index(ctx)
	if err != nil {
		return record.Record{}, err
	}
	r, ok := ix.get(id)
	if !ok {
		return record.Record{}, fmt.Errorf("record %q: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

// ResolveDataURL returns the record's data URL or a non-retryable *domain.MissingAssetError.
func (e *Engine) ResolveDataURL(r record.Record) (string, error) {
	if r.DataURL() == "" {
		return "", &domain.MissingAssetError{ID: r.ID()}
	}
	return r.DataURL(), nil
}

// Invalidate drops the in-memory index; the next request reloads it.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.idx = nil
	e.generation++
	e.mu.Unlock()
	e.setSize(0)
}

// Replace swaps in a freshly built record set.
func (e *Engine) Replace(records []record.Record) {
	ix := newSpatialIndex(records)
	e.mu.Lock()
	e.idx = ix
	e.generation++
	e.mu.Unlock()
	e.setSize(len(records))
}

// Stats reports the current index state without triggering a load.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Stats{Generation: e.generation}
	if e.idx == nil {
		return s
	}
	s.Loaded = true
	s.Items = len(e.idx.records)
	if s.Items > 0 {
		b := e.idx.bounds
		s.Bounds = &b
	}
	return s
}

func (e *Engine) index(ctx context.Context) (*spatialIndex, error) {
	e.mu.RLock()
	ix, gen := e.idx, e.generation
	e.mu.RUnlock()
	if ix != nil {
		return ix, nil
	}

	// The shared load outlives any single caller; each caller still honours its own ctx.
	loadCtx := context.WithoutCancel(ctx)
	ch := e.loads.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return e.load(loadCtx, gen)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*spatialIndex), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) load(ctx context.Context, gen uint64) (*spatialIndex, error) {
	records, err := e.source.LoadInitial(ctx)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	ix := newSpatialIndex(records)

	e.mu.Lock()
	if e.generation == gen && e.idx == nil {
		e.idx = ix
	} else if e.idx != nil {
		ix = e.idx
	}
	e.mu.Unlock()

	e.setSize(len(ix.records))
	e.logger.Info("Search index loaded", zap.Int("items", len(ix.records)))
	return ix, nil
}

func (e *Engine) setSize(n int) {
	if e.indexSize != nil {
		e.indexSize.Set(float64(n))
	}
}
