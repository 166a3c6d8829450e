package catalogcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/db"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
)

const entryKey = "catalog"

// store is the consumer interface for the catalog cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// entry is the persisted cache document. Timestamps are epoch milliseconds.
type entry struct {
	Data      []record.Record `json:"data"`
	Timestamp int64           `json:"timestamp"`
	ExpiresAt int64           `json:"expiresAt"`
}

// Cache persists the flattened catalog index with timestamp expiry.
// Store failures are logged and swallowed: the cache is an optimization.
type Cache struct {
	store      store
	key        string
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a catalog cache under keyPrefix.
// cacheTotal is a counter vec with labels "op" and "result", passed explicitly (may be nil).
func New(s store, keyPrefix string, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	return &Cache{
		store:      s,
		key:        keyPrefix + entryKey,
		cacheTotal: cacheTotal,
		logger:     logger,
		now:        time.Now,
	}
}

// Key returns the storage key of the cache entry.
func (c *Cache) Key() string { return c.key }

// Read returns the cached records if a fresh entry exists.
// An expired entry is deleted and reported as absent.
func (c *Cache) Read(ctx context.Context) ([]record.Record, bool) {
	data, err := c.store.Get(ctx, c.key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			c.inc("read", "miss")
		} else {
			c.inc("read", "error")
			c.logger.Warn("Failed to read catalog cache", zap.String("key", c.key), zap.Error(err))
		}
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.inc("read", "error")
		c.logger.Warn("Failed to parse catalog cache", zap.String("key", c.key), zap.Error(err))
		return nil, false
	}

	if c.now().UnixMilli() > e.ExpiresAt {
		c.inc("read", "expired")
		c.logger.Debug("Catalog cache expired",
			zap.Time("expires_at", time.UnixMilli(e.ExpiresAt)),
		)
		c.remove(ctx)
		return nil, false
	}

	c.inc("read", "hit")
	if e.Data == nil {
		e.Data = []record.Record{}
	}
	return e.Data, true
}

// Write stores records with timestamp = now and expiresAt = now + ttl.
// The store also expires the key after ttl; expiresAt stays authoritative.
// Failures mean "caching skipped" and are never returned.
func (c *Cache) Write(ctx context.Context, records []record.Record, ttl time.Duration) {
	now := c.now()
	e := entry{
		Data:      records,
		Timestamp: now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}
	if e.Data == nil {
		e.Data = []record.Record{}
	}

	data, err := json.Marshal(e)
	if err != nil {
		c.inc("write", "error")
		c.logger.Warn("Failed to encode catalog cache, caching skipped", zap.Error(err))
		return
	}
	if err := c.put(ctx, data, ttl); err != nil {
		c.inc("write", "error")
		c.logger.Warn("Failed to write catalog cache, caching skipped",
			zap.String("key", c.key),
			zap.Int("records", len(records)),
			zap.Error(err),
		)
		return
	}
	c.inc("write", "ok")
}

// Clear deletes the cache entry unconditionally.
func (c *Cache) Clear(ctx context.Context) {
	c.remove(ctx)
	c.inc("clear", "ok")
}

func (c *Cache) put(ctx context.Context, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return c.store.Set(ctx, c.key, data)
	}
	return c.store.SetWithTTL(ctx, c.key, data, ttl)
}

func (c *Cache) remove(ctx context.Context) {
	if err := c.store.Del(ctx, c.key); err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		c.logger.Warn("Failed to delete catalog cache", zap.String("key", c.key), zap.Error(err))
	}
}

func (c *Cache) inc(op, result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(op, result).Inc()
	}
}
