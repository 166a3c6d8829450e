package interaction

import (
	"maps"
	"slices"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
)

// Mode is the pointer interaction mode.
type Mode string

// Modes.
const (
	ModeIdle    Mode = "idle"
	ModeDrawing Mode = "drawing"
)

// LoadedItem is a point cloud currently held by the loader.
type LoadedItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Handle Handle `json:"handle"`
}

// State is an immutable snapshot of the interaction state.
type State struct {
	Mode          Mode                  `json:"mode"`
	DrawnBox      *geo.BBox             `json:"drawnBox"`
	DraftBox      *geo.BBox             `json:"draftBox,omitempty"`
	SearchResults []record.Record       `json:"searchResults"`
	MatchedCount  int                   `json:"matchedCount"`
	SelectedIDs   []string              `json:"selectedIds"`
	IsSearching   bool                  `json:"isSearching"`
	SearchError   string                `json:"searchError,omitempty"`
	LoadedItems   map[string]LoadedItem `json:"loadedItems"`
}

// IsSelected reports whether id is selected.
func (s State) IsSelected(id string) bool {
	_, ok := slices.BinarySearch(s.SelectedIDs, id)
	return ok
}

// IsLoaded reports whether id has a loaded point cloud.
func (s State) IsLoaded(id string) bool {
	_, ok := s.LoadedItems[id]
	return ok
}

// state is the mutable state owned by the machine.
type state struct {
	mode        Mode
	drawnBox    *geo.BBox
	draftBox    *geo.BBox
	anchor      *geo.Point
	results     []record.Record
	matched     int
	selected    map[string]struct{}
	isSearching bool
	searchError string
	loaded      map[string]LoadedItem
}

func newState() state {
	return state{
		mode:     ModeIdle,
		selected: make(map[string]struct{}),
		loaded:   make(map[string]LoadedItem),
	}
}

func (s *state) snapshot() State {
	out := State{
		Mode:          s.mode,
		DrawnBox:      copyBox(s.drawnBox),
		DraftBox:      copyBox(s.draftBox),
		SearchResults: slices.Clone(s.results),
		MatchedCount:  s.matched,
		SelectedIDs:   slices.Sorted(maps.Keys(s.selected)),
		IsSearching:   s.isSearching,
		SearchError:   s.searchError,
		LoadedItems:   maps.Clone(s.loaded),
	}
	if out.SearchResults == nil {
		out.SearchResults = []record.Record{}
	}
	if out.SelectedIDs == nil {
		out.SelectedIDs = []string{}
	}
	return out
}

func copyBox(b *geo.BBox) *geo.BBox {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}
