// Package file implements db.Store on a local directory, one file per key.
// Writes are serialized across processes with an advisory lock file.
package file

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

const lockRetryDelay = 20 * time.Millisecond

// envelope is the on-disk value wrapper. ExpiresAt is unix millis, 0 = never.
type envelope struct {
	ExpiresAt int64  `json:"expiresAt"`
	Value     []byte `json:"value"`
}

// Store keeps values as JSON envelopes under dir.
type Store struct {
	dir   string
	lock  *flock.Flock
	mu    sync.Mutex
	now   func() time.Time
	close sync.Once
}

// NewStore creates the directory if needed and returns a store rooted at it.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, ".lock")),
		now:  time.Now,
	}, nil
}

// Ping checks the directory is still accessible.
func (s *Store) Ping(_ context.Context) error {
	st, err := os.Stat(s.dir)
	if err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	if !st.IsDir() {
		return &db.Error{Op: db.OpPing, Err: fmt.Errorf("%s is not a directory", s.dir)}
	}
	return nil
}

// WaitForReady returns once the directory is accessible or the timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		if err := s.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for store: %w", ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Close releases the lock file handle.
func (s *Store) Close() {
	s.close.Do(func() { _ = s.lock.Close() })
}

// Get retrieves a value by key. Expired values read as missing.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	// flock tracks lock state per handle, so in-process callers are
	// serialized here and only other processes share the read lock.
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx, false); err != nil {
		return nil, err
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: fmt.Errorf("decode %s: %w", key, err)}
	}
	if env.ExpiresAt > 0 && s.now().UnixMilli() > env.ExpiresAt {
		return nil, db.ErrKeyNotFound
	}
	return env.Value, nil
}

// Set stores a value at the given key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.write(ctx, key, envelope{Value: value})
}

// SetWithTTL stores a value that reads as missing after ttl.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.write(ctx, key, envelope{ExpiresAt: s.now().Add(ttl).UnixMilli(), Value: value})
}

// Del removes a key. Removing a missing key is not an error.
func (s *Store) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx, true); err != nil {
		return err
	}
	defer func() { _ = s.lock.Unlock() }()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}

func (s *Store) write(ctx context.Context, key string, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx, true); err != nil {
		return err
	}
	defer func() { _ = s.lock.Unlock() }()

	target := s.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

func (s *Store) acquire(ctx context.Context, exclusive bool) error {
	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return &db.Error{Op: db.OpLock, Err: err}
	}
	if !ok {
		return &db.Error{Op: db.OpLock, Err: fmt.Errorf("lock %s not acquired", s.lock.Path())}
	}
	return nil
}

// path maps a key to a file name; keys may contain ':' and '/'.
func (s *Store) path(key string) string {
	return filepath.Join(s.dir, hex.EncodeToString([]byte(key))+".json")
}
