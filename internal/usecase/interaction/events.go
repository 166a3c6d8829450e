package interaction

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
)

// EventKind enumerates lifecycle events.
type EventKind string

// Event kinds.
const (
	EventSearchStart    EventKind = "searchstart"
	EventSearchComplete EventKind = "searchcomplete"
	EventSearchError    EventKind = "searcherror"
	EventDrawStart      EventKind = "drawstart"
	EventDrawEnd        EventKind = "drawend"
	EventItemLoad       EventKind = "itemload"
	EventItemLoadError  EventKind = "itemloaderror"
	EventItemUnload     EventKind = "itemunload"
	EventStateChange    EventKind = "statechange"
)

// EventKinds lists every kind in declaration order.
var EventKinds = []EventKind{
	EventSearchStart, EventSearchComplete, EventSearchError,
	EventDrawStart, EventDrawEnd,
	EventItemLoad, EventItemLoadError, EventItemUnload,
	EventStateChange,
}

// Event is delivered synchronously to listeners with the state after the change.
type Event struct {
	Kind    EventKind `json:"kind"`
	At      time.Time `json:"at"`
	State   State     `json:"-"`
	BBox    *geo.BBox `json:"bbox,omitempty"`
	ItemID  string    `json:"itemId,omitempty"`
	Matched int       `json:"matched,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Listener receives events.
type Listener func(Event)

// emitter maps event kinds to listeners; all holds catch-all listeners.
type emitter struct {
	mu     sync.RWMutex
	nextID uint64
	byKind map[EventKind]map[uint64]Listener
	all    map[uint64]Listener
}

func newEmitter() *emitter {
	return &emitter{
		byKind: make(map[EventKind]map[uint64]Listener),
		all:    make(map[uint64]Listener),
	}
}

func (e *emitter) on(kind EventKind, fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	if e.byKind[kind] == nil {
		e.byKind[kind] = make(map[uint64]Listener)
	}
	e.byKind[kind][id] = fn
	return func() {
		e.mu.Lock()
		delete(e.byKind[kind], id)
		e.mu.Unlock()
	}
}

func (e *emitter) onAll(fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.all[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.all, id)
		e.mu.Unlock()
	}
}

// emit calls listeners in subscription order, outside the lock.
func (e *emitter) emit(ev Event) {
	type target struct {
		id uint64
		fn Listener
	}

	e.mu.RLock()
	targets := make([]target, 0, len(e.byKind[ev.Kind])+len(e.all))
	for id, fn := range e.byKind[ev.Kind] {
		targets = append(targets, target{id, fn})
	}
	for id, fn := range e.all {
		targets = append(targets, target{id, fn})
	}
	e.mu.RUnlock()

	slices.SortFunc(targets, func(a, b target) int { return cmp.Compare(a.id, b.id) })
	for _, t := range targets {
		t.fn(ev)
	}
}
