package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/snapshot"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/transport/stac"
)

const (
	testCatalogURL = "https://bucket.example.com/stac/catalog.json"
	testEPTBase    = "https://bucket.example.com/entwine/geoid18"
)

// fakeFetcher serves n items at items/item_<i>.json; ids in fail are rejected.
type fakeFetcher struct {
	n          int
	fail       map[int]bool
	boxes      map[int][]float64
	catalogErr error

	mu          sync.Mutex
	fetched     []string
	inFlight    int
	maxInFlight int
}

func (f *fakeFetcher) FetchCatalog(_ context.Context, _ string) (stac.Catalog, error) {
	if f.catalogErr != nil {
		return stac.Catalog{}, f.catalogErr
	}
	cat := stac.Catalog{Links: []stac.Link{{Rel: "self", Href: "catalog.json"}}}
	for i := range f.n {
		rel := stac.RelItem
		if i%2 == 1 {
			rel = stac.RelChild
		}
		cat.Links = append(cat.Links, stac.Link{Rel: rel, Href: fmt.Sprintf("items/item_%d.json", i)})
	}
	return cat, nil
}

func (f *fakeFetcher) FetchItem(_ context.Context, href string) (stac.Item, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, href)
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	time.Sleep(time.Millisecond)

	var i int
	if _, err := fmt.Sscanf(href[strings.LastIndex(href, "/")+1:], "item_%d.json", &i); err != nil {
		return stac.Item{}, &domain.ItemFetchError{Href: href, Err: err}
	}
	if f.fail[i] {
		return stac.Item{}, &domain.ItemFetchError{Href: href, Err: errors.New("status 500")}
	}
	pc := float64(i * 100)
	box := []float64{-80, 32, -79, 33}
	if b, ok := f.boxes[i]; ok {
		box = b
	}
	return stac.Item{
		ID:         fmt.Sprintf("Mission_%d", 1000+i),
		BBox:       box,
		Properties: stac.Properties{Title: fmt.Sprintf("Mission %d", i), PCCount: &pc},
	}, nil
}

type fakeCache struct {
	records []record.Record
	fresh   bool
	writes  int
	ttl     time.Duration
}

func (c *fakeCache) Read(context.Context) ([]record.Record, bool) { return c.records, c.fresh }

func (c *fakeCache) Write(_ context.Context, records []record.Record, ttl time.Duration) {
	c.writes++
	c.records = records
	c.ttl = ttl
}

func testSnapshot(t *testing.T, ids ...string) SnapshotSource {
	t.Helper()
	var items []record.Record
	for _, id := range ids {
		r, err := record.New(id, "", geo.BBox{West: 0, South: 0, East: 1, North: 1}, "https://x/"+id, nil)
		require.NoError(t, err)
		items = append(items, r)
	}
	return func() (snapshot.Snapshot, error) { return snapshot.New(items, time.Now()), nil }
}

func newTestLoader(t *testing.T, f Fetcher, c Cache, batch int) *Loader {
	t.Helper()
	return New(f, c, testSnapshot(t, "snap_1"), Options{
		CatalogURL: testCatalogURL,
		EPTBaseURL: testEPTBase,
		TTL:        24 * time.Hour,
		BatchSize:  batch,
	}, zap.NewNop())
}

func TestRebuild_PartialFailures(t *testing.T) {
	f := &fakeFetcher{n: 120, fail: map[int]bool{3: true, 57: true, 119: true}}
	c := &fakeCache{}
	l := newTestLoader(t, f, c, 50)

	var progress [][2]int
	records, err := l.Rebuild(context.Background(), func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)

	assert.Len(t, records, 117)
	assert.Equal(t, [][2]int{{50, 120}, {100, 120}, {120, 120}}, progress)
	assert.Equal(t, 1, c.writes)
	assert.Len(t, c.records, 117)
	assert.Equal(t, 24*time.Hour, c.ttl)
	assert.LessOrEqual(t, f.maxInFlight, 50)
}

func TestRebuild_ResolvesRecords(t *testing.T) {
	f := &fakeFetcher{n: 2}
	l := newTestLoader(t, f, &fakeCache{}, 50)

	records, err := l.Rebuild(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Contains(t, f.fetched, "https://bucket.example.com/stac/items/item_0.json")

	var found bool
	for _, r := range records {
		if r.ID() == "Mission_1001" {
			found = true
			assert.Equal(t, testEPTBase+"/1001/ept.json", r.DataURL())
			assert.Equal(t, "Mission 1", r.Title())
			pc, ok := r.PointCount()
			assert.True(t, ok)
			assert.Equal(t, int64(100), pc)
		}
	}
	assert.True(t, found)
}

func TestRebuild_CatalogFetchError(t *testing.T) {
	f := &fakeFetcher{catalogErr: &domain.CatalogFetchError{URL: testCatalogURL, StatusCode: 503}}
	c := &fakeCache{}
	l := newTestLoader(t, f, c, 50)

	_, err := l.Rebuild(context.Background(), nil)

	var cfe *domain.CatalogFetchError
	require.ErrorAs(t, err, &cfe)
	assert.Equal(t, 503, cfe.StatusCode)
	assert.Equal(t, 0, c.writes)
}

func TestRebuild_Cancelled(t *testing.T) {
	f := &fakeFetcher{n: 10}
	c := &fakeCache{}
	l := newTestLoader(t, f, c, 5)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := l.Rebuild(ctx, func(int, int) { cancel() })

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.writes)
}

func TestLoadInitial_PrefersFreshCache(t *testing.T) {
	cached, err := record.New("cached_1", "", geo.BBox{East: 1, North: 1}, "u", nil)
	require.NoError(t, err)
	c := &fakeCache{records: []record.Record{cached}, fresh: true}
	l := newTestLoader(t, &fakeFetcher{}, c, 50)

	records, err := l.LoadInitial(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "cached_1", records[0].ID())
}

func TestLoadInitial_FallsBackToSnapshot(t *testing.T) {
	f := &fakeFetcher{}
	l := newTestLoader(t, f, &fakeCache{}, 50)

	records, err := l.LoadInitial(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "snap_1", records[0].ID())
	assert.Empty(t, f.fetched)
}

func TestLoadInitial_CorruptSnapshot(t *testing.T) {
	l := New(&fakeFetcher{}, &fakeCache{}, func() (snapshot.Snapshot, error) {
		return snapshot.Snapshot{}, errors.New("bad json")
	}, Options{}, zap.NewNop())

	_, err := l.LoadInitial(context.Background())
	assert.Error(t, err)
}

func TestMissionID(t *testing.T) {
	tests := map[string]string{
		"2017_SC_Charleston_County_9138": "9138",
		"NOAA-8950":                      "8950",
		"12345":                          "12345",
		"no_digits_here":                 "no_digits_here",
		"v2_final":                       "v2_final",
	}
	for in, want := range tests {
		assert.Equal(t, want, MissionID(in), in)
	}
}

func TestDataURL(t *testing.T) {
	got, err := DataURL("https://bucket.example.com/entwine/geoid18/", "9138")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example.com/entwine/geoid18/9138/ept.json", got)
}

func TestRebuild_KeepsItemsWithEdgeBoxes(t *testing.T) {
	f := &fakeFetcher{n: 3, boxes: map[int][]float64{
		0: {-180.0001, 51, -179, 52},
		1: {172.4, 51.2, -176.1, 52.9},
	}}
	l := newTestLoader(t, f, &fakeCache{}, 10)

	records, err := l.Rebuild(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, records, 3)

	byID := map[string]geo.BBox{}
	for i := range records {
		byID[records[i].ID()] = records[i].BBox()
	}
	assert.Equal(t, geo.BBox{West: -180, South: 51, East: -179, North: 52}, byID["Mission_1000"])
	assert.Equal(t, geo.BBox{West: -180, South: 51.2, East: 180, North: 52.9}, byID["Mission_1001"])
}
