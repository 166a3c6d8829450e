package catalogcache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/db"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/db/memory"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
)

func TestKey(t *testing.T) {
	c, _, _ := newTestCache(t)
	if c.Key() != "noaalidar:catalog" {
		t.Fatalf("unexpected key %q", c.Key())
	}
}

func TestReadWrite_Fresh(t *testing.T) {
	c, ms, clock := newTestCache(t)
	ctx := context.Background()

	var stored []byte
	var storeTTL time.Duration
	ms.ttlFn = func(_ context.Context, _ string, value []byte, ttl time.Duration) error {
		stored = value
		storeTTL = ttl
		return nil
	}
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return stored, nil
	}

	c.Write(ctx, []record.Record{testRecord(t, "a_1"), testRecord(t, "b_2")}, time.Hour)

	if storeTTL != time.Hour {
		t.Errorf("store ttl: got %v, want %v", storeTTL, time.Hour)
	}

	var e entry
	if err := json.Unmarshal(stored, &e); err != nil {
		t.Fatalf("stored entry is not json: %v", err)
	}
	if e.Timestamp != clock.t.UnixMilli() {
		t.Errorf("timestamp: got %d, want %d", e.Timestamp, clock.t.UnixMilli())
	}
	if e.ExpiresAt != clock.t.Add(time.Hour).UnixMilli() {
		t.Errorf("expiresAt: got %d", e.ExpiresAt)
	}

	clock.t = clock.t.Add(time.Hour) // now == expiresAt is still fresh
	records, ok := c.Read(ctx)
	if !ok {
		t.Fatal("expected fresh entry")
	}
	if len(records) != 2 || records[0].ID() != "a_1" {
		t.Fatalf("unexpected records: %v", records)
	}
}

func TestRead_ExpiredRemovesEntry(t *testing.T) {
	store := memory.NewStore()
	c, _, clock := newTestCache(t)
	c.store = store
	ctx := context.Background()

	c.Write(ctx, nil, time.Minute)
	clock.t = clock.t.Add(time.Minute + time.Millisecond)

	if _, ok := c.Read(ctx); ok {
		t.Fatal("expected expired entry to be absent")
	}
	if _, err := store.Get(ctx, c.Key()); !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected entry removed, got err=%v", err)
	}
}

func TestRead_Miss(t *testing.T) {
	c, _, _ := newTestCache(t)
	if _, ok := c.Read(context.Background()); ok {
		t.Fatal("expected miss")
	}
}

func TestRead_StoreError(t *testing.T) {
	c, ms, _ := newTestCache(t)
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, errors.New("connection refused")
	}
	if _, ok := c.Read(context.Background()); ok {
		t.Fatal("expected absent on store error")
	}
}

func TestRead_Corrupt(t *testing.T) {
	c, ms, _ := newTestCache(t)
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return []byte("{not json"), nil
	}
	if _, ok := c.Read(context.Background()); ok {
		t.Fatal("expected absent on corrupt entry")
	}
}

func TestWrite_StoreFailureSwallowed(t *testing.T) {
	c, ms, _ := newTestCache(t)
	var called bool
	ms.ttlFn = func(_ context.Context, _ string, _ []byte, _ time.Duration) error {
		called = true
		return errors.New("quota exceeded")
	}

	c.Write(context.Background(), []record.Record{testRecord(t, "a_1")}, time.Hour)

	if !called {
		t.Fatal("expected SET to be attempted")
	}
}

func TestWrite_NonPositiveTTLSkipsStoreExpiry(t *testing.T) {
	c, ms, _ := newTestCache(t)
	var plain, withTTL bool
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		plain = true
		return nil
	}
	ms.ttlFn = func(_ context.Context, _ string, _ []byte, _ time.Duration) error {
		withTTL = true
		return nil
	}

	c.Write(context.Background(), []record.Record{testRecord(t, "a_1")}, 0)

	if !plain || withTTL {
		t.Fatalf("expected plain SET without store expiry, got set=%v setWithTTL=%v", plain, withTTL)
	}
}

func TestWrite_StoreExpiresKey(t *testing.T) {
	store := memory.NewStore()
	c, _, _ := newTestCache(t)
	c.store = store
	ctx := context.Background()

	c.Write(ctx, []record.Record{testRecord(t, "a_1")}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, err := store.Get(ctx, c.Key()); !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected the store to expire the key, got err=%v", err)
	}
}

func TestClear(t *testing.T) {
	c, ms, _ := newTestCache(t)
	var deleted string
	ms.delFn = func(_ context.Context, key string) error {
		deleted = key
		return errors.New("boom")
	}

	c.Clear(context.Background())

	if deleted != "noaalidar:catalog" {
		t.Fatalf("expected DEL on cache key, got %q", deleted)
	}
}
