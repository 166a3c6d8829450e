package chi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain"
	logpkg "github.com/opengeos/maplibre-gl-noaa-lidar/internal/logger"
	cataloguc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/catalog"
)

// Rebuild job states.
const (
	rebuildIdle      = "idle"
	rebuildRunning   = "running"
	rebuildSucceeded = "succeeded"
	rebuildFailed    = "failed"
)

// rebuildStatus is the state of the latest catalog rebuild.
type rebuildStatus struct {
	State      string     `json:"state"`
	Processed  int        `json:"processed"`
	Total      int        `json:"total"`
	Items      int        `json:"items,omitempty"`
	Generation uint64     `json:"generation,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	DurationMs int64      `json:"durationMs,omitempty"`
}

// rebuildOutcome is what a rebuild run reports back to the job.
type rebuildOutcome struct {
	items      int
	generation uint64
}

type rebuildRun func(ctx context.Context, onProgress cataloguc.ProgressFunc) (rebuildOutcome, error)

// rebuildJob runs catalog rebuilds in the background, at most one at a time,
// detached from the request that started them. stop cancels the running one.
type rebuildJob struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	status rebuildStatus
}

func newRebuildJob() *rebuildJob {
	ctx, cancel := context.WithCancel(context.Background())
	return &rebuildJob{
		ctx:    ctx,
		cancel: cancel,
		status: rebuildStatus{State: rebuildIdle},
	}
}

// start launches run unless a rebuild is already running. It returns the
// status as of launch and whether run was started.
func (j *rebuildJob) start(run rebuildRun) (rebuildStatus, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.State == rebuildRunning {
		return j.status, false
	}
	if j.ctx.Err() != nil {
		return j.status, false
	}

	started := time.Now().UTC()
	j.status = rebuildStatus{State: rebuildRunning, StartedAt: &started}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		out, err := run(j.ctx, j.progress)
		j.finish(started, out, err)
	}()
	return j.status, true
}

func (j *rebuildJob) progress(processed, total int) {
	j.mu.Lock()
	j.status.Processed = processed
	j.status.Total = total
	j.mu.Unlock()
}

func (j *rebuildJob) finish(started time.Time, out rebuildOutcome, err error) {
	finished := time.Now().UTC()

	j.mu.Lock()
	defer j.mu.Unlock()
	j.status.FinishedAt = &finished
	j.status.DurationMs = finished.Sub(started).Milliseconds()
	if err != nil {
		j.status.State = rebuildFailed
		j.status.Error = rebuildErrorMessage(err)
		return
	}
	j.status.State = rebuildSucceeded
	j.status.Items = out.items
	j.status.Generation = out.generation
}

func (j *rebuildJob) snapshot() rebuildStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// wait blocks until the running rebuild, if any, has finished.
func (j *rebuildJob) wait() { j.wg.Wait() }

// stop cancels a running rebuild, refuses new ones and waits.
func (j *rebuildJob) stop() {
	j.mu.Lock()
	j.cancel()
	j.mu.Unlock()
	j.wg.Wait()
}

// rebuildErrorMessage keeps upstream details out of the public status.
func rebuildErrorMessage(err error) string {
	for _, sentinel := range []error{domain.ErrCatalogFetch, context.Canceled, context.DeadlineExceeded} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "rebuild failed"
}

// RebuildCatalog handles POST /v1/catalog/rebuild. The rebuild runs in the
// background; the response is 202 with the initial status, or 409 when one
// is already running.
func (s *Server) RebuildCatalog(w http.ResponseWriter, r *http.Request) {
	logger := logpkg.FromContext(r.Context())

	st, ok := s.rebuilds.start(func(ctx context.Context, onProgress cataloguc.ProgressFunc) (rebuildOutcome, error) {
		records, err := s.rebuilder.Rebuild(ctx, func(processed, total int) {
			onProgress(processed, total)
			logger.Info("Catalog rebuild progress", zap.Int("processed", processed), zap.Int("total", total))
		})
		if err != nil {
			logger.Error("Catalog rebuild failed", zap.Error(err))
			return rebuildOutcome{}, err
		}
		s.engine.Replace(records)
		out := rebuildOutcome{items: len(records), generation: s.engine.Stats().Generation}
		logger.Info("Catalog rebuild complete",
			zap.Int("items", out.items),
			zap.Uint64("generation", out.generation),
		)
		return out, nil
	})
	if !ok {
		writeError(w, http.StatusConflict, codeRebuildRunning, "a catalog rebuild is already running")
		return
	}

	w.Header().Set("Location", "/v1/catalog/rebuild")
	writeJSON(w, http.StatusAccepted, st)
}

// RebuildStatus handles GET /v1/catalog/rebuild.
func (s *Server) RebuildStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.rebuilds.snapshot())
}

// Shutdown cancels a running catalog rebuild and waits for it to return.
func (s *Server) Shutdown() {
	s.rebuilds.stop()
}
