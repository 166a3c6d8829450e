package chi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/transport/ept"
	interactionuc "github.com/opengeos/maplibre-gl-noaa-lidar/internal/usecase/interaction"
)

// PointClouds reports the point clouds a session's loader holds open.
type PointClouds interface {
	Handles() []*ept.Handle
}

// MachineFactory builds the state machine for a new session together with
// the loader it drives.
type MachineFactory func() (*interactionuc.Machine, PointClouds)

// sessionEvent is an interaction event tagged with its per-session sequence number.
type sessionEvent struct {
	Seq uint64 `json:"seq"`
	interactionuc.Event
}

// Session is one client's interaction state. Recent events are kept in a
// fixed-size ring for polling clients.
type Session struct {
	ID        string
	CreatedAt time.Time
	Machine   *interactionuc.Machine

	pointClouds PointClouds
	unsubscribe func()

	mu     sync.Mutex
	ring   []sessionEvent
	next   int
	filled bool
	seq    uint64
}

func newSession(id string, m *interactionuc.Machine, pc PointClouds, capacity int) *Session {
	s := &Session{
		ID:          id,
		CreatedAt:   time.Now().UTC(),
		Machine:     m,
		pointClouds: pc,
		ring:        make([]sessionEvent, capacity),
	}
	s.unsubscribe = m.SubscribeAll(s.record)
	return s
}

func (s *Session) record(ev interactionuc.Event) {
	if ev.Kind == interactionuc.EventStateChange {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.ring[s.next] = sessionEvent{Seq: s.seq, Event: ev}
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.filled = true
	}
}

// EventsAfter returns buffered events with a sequence number above after,
// oldest first, and the sequence number to poll from next.
func (s *Session) EventsAfter(after uint64) ([]sessionEvent, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ordered []sessionEvent
	if s.filled {
		ordered = append(ordered, s.ring[s.next:]...)
	}
	ordered = append(ordered, s.ring[:s.next]...)

	out := make([]sessionEvent, 0, len(ordered))
	for _, ev := range ordered {
		if ev.Seq > after {
			out = append(out, ev)
		}
	}
	return out, s.seq
}

// PointClouds returns the handles the session's loader tracks, ordered by id.
func (s *Session) PointClouds() []*ept.Handle {
	if s.pointClouds == nil {
		return []*ept.Handle{}
	}
	return s.pointClouds.Handles()
}

func (s *Session) close(ctx context.Context) error {
	s.unsubscribe()
	return s.Machine.UnloadAll(ctx)
}

// Sessions is a bounded registry of interaction sessions. The least recently
// used session is evicted once the limit is reached; eviction unloads its
// point clouds.
type Sessions struct {
	cache      *lru.Cache[string, *Session]
	newMachine MachineFactory
	logger     *zap.Logger
}

// NewSessions creates a registry holding at most size sessions.
func NewSessions(size int, factory MachineFactory, logger *zap.Logger) (*Sessions, error) {
	s := &Sessions{newMachine: factory, logger: logger}
	c, err := lru.NewWithEvict(size, s.onEvict)
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	s.cache = c
	return s, nil
}

// Create starts a new idle session.
func (s *Sessions) Create() *Session {
	m, pc := s.newMachine()
	sess := newSession(uuid.NewString(), m, pc, sessionEventCapacity)
	s.cache.Add(sess.ID, sess)
	s.logger.Debug("Session created", zap.String("session_id", sess.ID), zap.Int("sessions", s.cache.Len()))
	return sess
}

// Get returns the session and marks it as recently used.
func (s *Sessions) Get(id string) (*Session, error) {
	sess, ok := s.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
	}
	return sess, nil
}

// Delete closes and removes the session.
func (s *Sessions) Delete(id string) error {
	if !s.cache.Remove(id) {
		return fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
	}
	return nil
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int { return s.cache.Len() }

// Close removes every session.
func (s *Sessions) Close() { s.cache.Purge() }

func (s *Sessions) onEvict(id string, sess *Session) {
	if err := sess.close(context.Background()); err != nil {
		s.logger.Warn("Failed to unload session point clouds", zap.String("session_id", id), zap.Error(err))
	}
	s.logger.Debug("Session closed", zap.String("session_id", id))
}
