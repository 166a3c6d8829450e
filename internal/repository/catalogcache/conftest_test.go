package catalogcache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/db"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
)

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte) error
	ttlFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	delFn func(ctx context.Context, key string) error
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKVStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return nil
}

func (m *mockKVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.ttlFn != nil {
		return m.ttlFn(ctx, key, value, ttl)
	}
	return nil
}

func (m *mockKVStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestCache(t *testing.T) (*Cache, *mockKVStore, *fakeClock) {
	t.Helper()
	ms := &mockKVStore{}
	clock := &fakeClock{t: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)}
	c := New(ms, "noaalidar:", nil, zap.NewNop())
	c.now = clock.Now
	return c, ms, clock
}

func testRecord(t *testing.T, id string) record.Record {
	t.Helper()
	pc := int64(1000)
	r, err := record.New(id, "", geo.BBox{West: -80, South: 32, East: -79, North: 33}, "https://example.com/ept.json", &pc)
	if err != nil {
		t.Fatalf("record.New: %v", err)
	}
	return r
}
