package ept

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain"
)

// Handle references a loaded point cloud.
type Handle struct {
	ID       string    `json:"id"`
	URL      string    `json:"url"`
	Points   int64     `json:"points"`
	Bounds   []float64 `json:"bounds"`
	DataType string    `json:"dataType"`
	LoadedAt time.Time `json:"loadedAt"`
}

// Loader tracks the point clouds loaded by one session.
type Loader struct {
	client *Client
	logger *zap.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewLoader creates an empty loader backed by client.
func NewLoader(client *Client, logger *zap.Logger) *Loader {
	return &Loader{
		client:  client,
		logger:  logger,
		handles: make(map[string]*Handle),
	}
}

// Load validates the dataset at url and returns a *Handle.
func (l *Loader) Load(ctx context.Context, url string) (any, error) {
	md, err := l.client.FetchMetadata(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPointCloudLoad, err)
	}

	h := &Handle{
		ID:       uuid.NewString(),
		URL:      url,
		Points:   md.Points,
		Bounds:   md.Bounds,
		DataType: md.DataType,
		LoadedAt: time.Now().UTC(),
	}
	l.mu.Lock()
	l.handles[h.ID] = h
	l.mu.Unlock()

	l.logger.Debug("Point cloud loaded",
		zap.String("handle_id", h.ID),
		zap.String("url", url),
		zap.Int64("points", md.Points),
	)
	return h, nil
}

// Unload releases a handle returned by Load.
func (l *Loader) Unload(_ context.Context, h any) error {
	handle, ok := h.(*Handle)
	if !ok || handle == nil {
		return fmt.Errorf("unload: unexpected handle type %T", h)
	}

	l.mu.Lock()
	_, tracked := l.handles[handle.ID]
	delete(l.handles, handle.ID)
	l.mu.Unlock()

	if !tracked {
		return fmt.Errorf("unload: handle %s not loaded", handle.ID)
	}
	return nil
}

// UnloadAll releases every handle.
func (l *Loader) UnloadAll(_ context.Context) error {
	l.mu.Lock()
	n := len(l.handles)
	l.handles = make(map[string]*Handle)
	l.mu.Unlock()

	l.logger.Debug("Point clouds unloaded", zap.Int("count", n))
	return nil
}

// Handles returns the tracked handles ordered by id.
func (l *Loader) Handles() []*Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Handle, 0, len(l.handles))
	for _, id := range slices.Sorted(maps.Keys(l.handles)) {
		out = append(out, l.handles[id])
	}
	return out
}
