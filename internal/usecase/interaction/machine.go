// Package interaction owns the UI-facing state of a catalog map session:
// searching, box drawing, selection and the point-cloud load lifecycle.
package interaction

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/search/result"
)

// DefaultMinDragDegrees is the drag size below which a release counts as a click.
const DefaultMinDragDegrees = 0.0005

var (
	// ErrNotDrawing signals a drag operation outside drawing mode.
	ErrNotDrawing = errors.New("not in drawing mode")
	// ErrNoDrag signals a drag update or release without a preceding press.
	ErrNoDrag = errors.New("no drag in progress")

	errSuperseded = errors.New("search superseded")
)

// Options configures a Machine.
type Options struct {
	Limit          int     // result limit; <= 0 uses the searcher default
	MinDragDegrees float64 // <= 0 uses DefaultMinDragDegrees
	SearchOnDraw   bool    // run a search when a drawn box is committed
}

// Machine is the interaction state machine. All state changes go through
// update, which emits EventStateChange; listeners run synchronously after the
// lock is released.
type Machine struct {
	searcher Searcher
	loader   PointCloudLoader
	opts     Options
	logger   *zap.Logger
	events   *emitter
	now      func() time.Time

	eventsTotal *prometheus.CounterVec

	mu        sync.Mutex
	st        state
	searchSeq uint64
}

// New creates a Machine in idle mode with empty state.
func New(searcher Searcher, loader PointCloudLoader, opts Options, logger *zap.Logger) *Machine {
	if opts.MinDragDegrees <= 0 {
		opts.MinDragDegrees = DefaultMinDragDegrees
	}
	return &Machine{
		searcher: searcher,
		loader:   loader,
		opts:     opts,
		logger:   logger,
		events:   newEmitter(),
		now:      time.Now,
		st:       newState(),
	}
}

// WithMetrics attaches an events counter with label "kind".
func (m *Machine) WithMetrics(eventsTotal *prometheus.CounterVec) *Machine {
	m.eventsTotal = eventsTotal
	return m
}

// State returns a snapshot of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.snapshot()
}

// Subscribe registers fn for one event kind and returns its unsubscribe func.
func (m *Machine) Subscribe(kind EventKind, fn Listener) func() {
	return m.events.on(kind, fn)
}

// SubscribeAll registers fn for every event kind.
func (m *Machine) SubscribeAll(fn Listener) func() {
	return m.events.onAll(fn)
}

// SearchByBox clears results and selection, runs a search and stores the outcome.
// A search superseded by a newer one does not overwrite state.
func (m *Machine) SearchByBox(ctx context.Context, box geo.BBox) (result.Result, error) {
	var seq uint64
	_ = m.update(func(s *state) ([]Event, error) {
		m.searchSeq++
		seq = m.searchSeq
		s.isSearching = true
		s.results = nil
		s.matched = 0
		s.selected = make(map[string]struct{})
		s.searchError = ""
		return []Event{{Kind: EventSearchStart, BBox: &box}}, nil
	})

	res, err := m.searcher.Search(ctx, box, m.opts.Limit)

	stale := m.update(func(s *state) ([]Event, error) {
		if seq != m.searchSeq {
			return nil, errSuperseded
		}
		s.isSearching = false
		if err != nil {
			s.searchError = err.Error()
			return []Event{{Kind: EventSearchError, BBox: &box, Error: err.Error()}}, nil
		}
		s.results = res.Items()
		s.matched = res.MatchedCount()
		return []Event{{Kind: EventSearchComplete, BBox: &box, Matched: res.MatchedCount()}}, nil
	})
	if stale != nil {
		m.logger.Debug("Dropping superseded search result", zap.Stringer("bbox", box))
	}
	if err != nil {
		return result.Result{}, err
	}
	return res, nil
}

// ClearResults empties results, selection and matched count. Loaded items are
// kept. A search still in flight is superseded and its outcome dropped.
func (m *Machine) ClearResults() {
	_ = m.update(func(s *state) ([]Event, error) {
		m.searchSeq++
		s.isSearching = false
		s.results = nil
		s.matched = 0
		s.selected = make(map[string]struct{})
		s.searchError = ""
		return nil, nil
	})
}

// update is the single merge step: it applies mutate under the lock, then
// emits EventStateChange followed by the events mutate returned. A mutate
// that returns an error must leave the state untouched; nothing is emitted.
func (m *Machine) update(mutate func(s *state) ([]Event, error)) error {
	m.mu.Lock()
	events, err := mutate(&m.st)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	snap := m.st.snapshot()
	m.mu.Unlock()

	m.emit(Event{Kind: EventStateChange}, snap)
	for _, ev := range events {
		m.emit(ev, snap)
	}
	return nil
}

func (m *Machine) emit(ev Event, snap State) {
	ev.At = m.now()
	ev.State = snap
	if m.eventsTotal != nil {
		m.eventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	}
	if ev.Kind != EventStateChange {
		m.logger.Debug("Interaction event",
			zap.String("kind", string(ev.Kind)),
			zap.String("item_id", ev.ItemID),
			zap.String("error", ev.Error),
		)
	}
	m.events.emit(ev)
}
