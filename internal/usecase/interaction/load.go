package interaction

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/record"
)

// LoadSummary reports the outcome of LoadSelected.
type LoadSummary struct {
	Loaded        []string          `json:"loaded"`
	AlreadyLoaded []string          `json:"alreadyLoaded"`
	Failed        map[string]string `json:"failed"`
	Skipped       []string          `json:"skipped"` // selected but not in the current results
}

// LoadItem resolves the record's data URL, hands it to the loader and records
// the handle. On failure EventItemLoadError fires and no entry is recorded.
// Loading an id that is already loaded calls the loader again and releases
// the handle it replaces.
func (m *Machine) LoadItem(ctx context.Context, r record.Record) (Handle, error) {
	h, err := m.loadItem(ctx, r)
	if err != nil {
		_ = m.update(func(*state) ([]Event, error) {
			return []Event{{Kind: EventItemLoadError, ItemID: r.ID(), Error: err.Error()}}, nil
		})
		return nil, err
	}
	return h, nil
}

func (m *Machine) loadItem(ctx context.Context, r record.Record) (Handle, error) {
	url, err := m.searcher.ResolveDataURL(r)
	if err != nil {
		return nil, err
	}
	h, err := m.loader.Load(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", r.ID(), err)
	}

	item := LoadedItem{ID: r.ID(), Name: r.Title(), URL: url, Handle: h}
	var prev LoadedItem
	var replaced bool
	_ = m.update(func(s *state) ([]Event, error) {
		prev, replaced = s.loaded[item.ID]
		s.loaded[item.ID] = item
		return []Event{{Kind: EventItemLoad, ItemID: item.ID}}, nil
	})

	if replaced {
		if err := m.loader.Unload(ctx, prev.Handle); err != nil {
			m.logger.Warn("Loader failed to release replaced handle", zap.String("item_id", item.ID), zap.Error(err))
		}
	}
	return h, nil
}

// LoadSelected loads every selected record in result rank order, one at a
// time, skipping ids already loaded. Individual failures are recorded in the
// summary and do not stop the batch. Selected ids absent from the current
// results are skipped.
func (m *Machine) LoadSelected(ctx context.Context) LoadSummary {
	m.mu.Lock()
	results := slices.Clone(m.st.results)
	selected := maps.Clone(m.st.selected)
	loaded := maps.Clone(m.st.loaded)
	m.mu.Unlock()

	sum := LoadSummary{Failed: make(map[string]string)}
	for i := range results {
		r := results[i]
		if _, ok := selected[r.ID()]; !ok {
			continue
		}
		delete(selected, r.ID())
		if _, ok := loaded[r.ID()]; ok {
			sum.AlreadyLoaded = append(sum.AlreadyLoaded, r.ID())
			continue
		}
		if ctx.Err() != nil {
			sum.Failed[r.ID()] = ctx.Err().Error()
			continue
		}
		if _, err := m.LoadItem(ctx, r); err != nil {
			m.logger.Warn("Failed to load selected item", zap.String("item_id", r.ID()), zap.Error(err))
			sum.Failed[r.ID()] = err.Error()
			continue
		}
		sum.Loaded = append(sum.Loaded, r.ID())
	}

	for _, id := range slices.Sorted(maps.Keys(selected)) {
		m.logger.Info("Selected item not in current results, skipping", zap.String("item_id", id))
		sum.Skipped = append(sum.Skipped, id)
	}
	return sum
}

// UnloadItem releases the point cloud for id. The entry is removed even if
// the loader reports an error, which is returned.
func (m *Machine) UnloadItem(ctx context.Context, id string) error {
	m.mu.Lock()
	item, ok := m.st.loaded[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("loaded item %q: %w", id, domain.ErrNotFound)
	}

	err := m.loader.Unload(ctx, item.Handle)
	if err != nil {
		m.logger.Warn("Loader failed to unload item", zap.String("item_id", id), zap.Error(err))
	}

	_ = m.update(func(s *state) ([]Event, error) {
		if _, still := s.loaded[id]; !still {
			return nil, domain.ErrNotFound
		}
		delete(s.loaded, id)
		return []Event{{Kind: EventItemUnload, ItemID: id}}, nil
	})
	if err != nil {
		return fmt.Errorf("unload %s: %w", id, err)
	}
	return nil
}

// UnloadAll releases every point cloud and emits one EventItemUnload per id.
func (m *Machine) UnloadAll(ctx context.Context) error {
	err := m.loader.UnloadAll(ctx)
	if err != nil {
		m.logger.Warn("Loader failed to unload all items", zap.Error(err))
	}

	_ = m.update(func(s *state) ([]Event, error) {
		ids := slices.Sorted(maps.Keys(s.loaded))
		events := make([]Event, 0, len(ids))
		for _, id := range ids {
			events = append(events, Event{Kind: EventItemUnload, ItemID: id})
		}
		s.loaded = make(map[string]LoadedItem)
		return events, nil
	})
	if err != nil {
		return fmt.Errorf("unload all: %w", err)
	}
	return nil
}
