// Package snapshot reads and writes pre-built catalog index files.
// A snapshot generated at release time is embedded in the binary and used
// when no fresh cache entry exists.
package snapshot

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
)

// FormatVersion is the snapshot schema version written by this package.
const FormatVersion = 1

//go:embed data/catalog.json
var bundled []byte

// Snapshot is a pre-built catalog index.
type Snapshot struct {
	Version     int             `json:"version"`
	GeneratedAt time.Time       `json:"generatedAt"`
	ItemCount   int             `json:"itemCount"`
	Items       []record.Record `json:"items"`
}

// New builds a snapshot of the given records.
func New(items []record.Record, generatedAt time.Time) Snapshot {
	if items == nil {
		items = []record.Record{}
	}
	return Snapshot{
		Version:     FormatVersion,
		GeneratedAt: generatedAt.UTC(),
		ItemCount:   len(items),
		Items:       items,
	}
}

// Bundled parses the snapshot embedded at build time.
func Bundled() (Snapshot, error) {
	s, err := Parse(bundled)
	if err != nil {
		return Snapshot{}, fmt.Errorf("bundled snapshot: %w", err)
	}
	return s, nil
}

// Load reads a snapshot file from disk.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and checks a snapshot document.
func Parse(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version != FormatVersion {
		return Snapshot{}, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	if s.ItemCount != len(s.Items) {
		return Snapshot{}, fmt.Errorf("itemCount %d does not match %d items", s.ItemCount, len(s.Items))
	}
	return s, nil
}

// Write encodes the snapshot as indented JSON.
func Write(w io.Writer, s Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// WriteFile writes the snapshot to path, replacing any existing file atomically.
func WriteFile(path string, s Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if err := Write(tmp, s); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Bounds returns the union of all item boxes. ok is false for an empty snapshot.
func (s Snapshot) Bounds() (bounds geo.BBox, ok bool) {
	for i := range s.Items {
		b := s.Items[i].BBox()
		if !ok {
			bounds, ok = b, true
			continue
		}
		bounds = bounds.Union(b)
	}
	return bounds, ok
}

// PointTotal sums the known point counts.
func (s Snapshot) PointTotal() int64 {
	var total int64
	for i := range s.Items {
		if pc, ok := s.Items[i].PointCount(); ok {
			total += pc
		}
	}
	return total
}
