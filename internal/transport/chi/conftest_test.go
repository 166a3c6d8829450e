package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/transport/ept"
	cataloguc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/catalog"
	healthuc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/health"
	interactionuc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/interaction"
	searchuc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/search"
)

// --- Mocks ---

type staticSource struct {
	records []record.Record
	err     error
}

func (s staticSource) LoadInitial(context.Context) ([]record.Record, error) {
	return s.records, s.err
}

// fakeRebuilder reports progress (0, n), signals started, then waits on gate
// or cancellation before finishing.
type fakeRebuilder struct {
	records []record.Record
	err     error
	started chan struct{}
	gate    chan struct{}

	mu    sync.Mutex
	calls int
}

func (f *fakeRebuilder) Rebuild(ctx context.Context, onProgress cataloguc.ProgressFunc) ([]record.Record, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	onProgress(0, len(f.records))
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	onProgress(len(f.records), len(f.records))
	return f.records, nil
}

func (f *fakeRebuilder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCache struct{ cleared int }

func (f *fakeCache) Clear(context.Context) { f.cleared++ }

// fakeLoader hands out *ept.Handle values like the EPT loader, without HTTP.
// URLs in fail are rejected.
type fakeLoader struct {
	fail map[string]bool

	mu      sync.Mutex
	nextID  int
	handles map[string]*ept.Handle
}

func newFakeLoader(fail map[string]bool) *fakeLoader {
	return &fakeLoader{fail: fail, handles: map[string]*ept.Handle{}}
}

func (f *fakeLoader) Load(_ context.Context, url string) (any, error) {
	if f.fail[url] {
		return nil, fmt.Errorf("%w: connection reset", domain.ErrPointCloudLoad)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	h := &ept.Handle{ID: fmt.Sprintf("h%d", f.nextID), URL: url, Points: 100}
	f.handles[h.ID] = h
	return h, nil
}

func (f *fakeLoader) Unload(_ context.Context, h any) error {
	handle, ok := h.(*ept.Handle)
	if !ok {
		return fmt.Errorf("unexpected handle %T", h)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handles, handle.ID)
	return nil
}

func (f *fakeLoader) UnloadAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handles = map[string]*ept.Handle{}
	return nil
}

func (f *fakeLoader) Handles() []*ept.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*ept.Handle, 0, len(f.handles))
	for _, id := range slices.Sorted(maps.Keys(f.handles)) {
		out = append(out, f.handles[id])
	}
	return out
}

// --- Fixtures ---

func mkRecord(t *testing.T, id string, box geo.BBox, url string, points int64) record.Record {
	t.Helper()
	var pc *int64
	if points >= 0 {
		pc = &points
	}
	r, err := record.New(id, strings.ReplaceAll(id, "_", " "), box, url, pc)
	if err != nil {
		t.Fatalf("record.New(%s): %v", id, err)
	}
	return r
}

func testRecords(t *testing.T) []record.Record {
	t.Helper()
	return []record.Record{
		mkRecord(t, "2017_SC_Charleston_County_9138",
			geo.BBox{West: -80.47, South: 32.52, East: -79.72, North: 33.01},
			"https://example.test/ept/9138/ept.json", 4_500_000),
		mkRecord(t, "2019_SC_Coastal_Topobathy_9245",
			geo.BBox{West: -80.9, South: 32.0, East: -79.5, North: 33.3},
			"https://example.test/ept/9245/ept.json", 9_000_000),
		mkRecord(t, "2018_FL_Keys_8890",
			geo.BBox{West: -81.9, South: 24.5, East: -80.2, North: 25.4},
			"https://example.test/ept/8890/ept.json", 1_000_000),
		mkRecord(t, "2016_SC_Folly_Beach_6327",
			geo.BBox{West: -80.0, South: 32.6, East: -79.85, North: 32.7},
			"", -1),
	}
}

type testEnv struct {
	server    *Server
	handler   http.Handler
	engine    *searchuc.Engine
	rebuilder *fakeRebuilder
	cache     *fakeCache
	sessions  *Sessions

	failURL map[string]bool
	mu      sync.Mutex
	loaders []*fakeLoader
}

func newTestEnv(t *testing.T, maxSessions int, apiKeys ...string) *testEnv {
	t.Helper()
	return newTestEnvWithSource(t, staticSource{records: testRecords(t)}, maxSessions, apiKeys...)
}

func newTestEnvWithSource(t *testing.T, src searchuc.Source, maxSessions int, apiKeys ...string) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	env := &testEnv{
		engine:    searchuc.New(src, 0, logger),
		rebuilder: &fakeRebuilder{},
		cache:     &fakeCache{},
		failURL:   map[string]bool{},
	}
	sessions, err := NewSessions(maxSessions, func() (*interactionuc.Machine, PointClouds) {
		loader := newFakeLoader(env.failURL)
		env.mu.Lock()
		env.loaders = append(env.loaders, loader)
		env.mu.Unlock()
		return interactionuc.New(env.engine, loader, interactionuc.Options{SearchOnDraw: true}, logger), loader
	}, logger)
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	env.sessions = sessions

	env.server = NewServer(env.engine, env.rebuilder, env.cache, healthuc.New(nil, env.engine), sessions, logger).
		WithAPIKeys(apiKeys)
	env.handler = env.server.Routes()
	t.Cleanup(env.server.Shutdown)
	return env
}

// loadedCount is the number of point clouds held across every session.
func (e *testEnv) loadedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, l := range e.loaders {
		n += len(l.Handles())
	}
	return n
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status: got %d, want %d (body: %s)", rr.Code, want, rr.Body.String())
	}
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rr, status)
	if got := decode[errorResponse](t, rr).Code; got != code {
		t.Errorf("error code: got %s, want %s", got, code)
	}
}

// wireState mirrors the JSON shape of a session state.
type wireState struct {
	Mode          string            `json:"mode"`
	DrawnBox      []float64         `json:"drawnBox"`
	SearchResults []wireRecord      `json:"searchResults"`
	MatchedCount  int               `json:"matchedCount"`
	SelectedIDs   []string          `json:"selectedIds"`
	IsSearching   bool              `json:"isSearching"`
	SearchError   string            `json:"searchError"`
	LoadedItems   map[string]wireLI `json:"loadedItems"`
}

type wireRecord struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	BBox       []float64 `json:"bbox"`
	DataURL    string    `json:"dataUrl"`
	PointCount *int64    `json:"pointCount"`
}

type wireLI struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type wirePointCloud struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type wireSession struct {
	ID          string           `json:"id"`
	State       wireState        `json:"state"`
	PointClouds []wirePointCloud `json:"pointClouds"`
}

type wireSearch struct {
	BBox      []float64    `json:"bbox"`
	Items     []wireRecord `json:"items"`
	Matched   int          `json:"matched"`
	Returned  int          `json:"returned"`
	Truncated bool         `json:"truncated"`
}

func ids(recs []wireRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
