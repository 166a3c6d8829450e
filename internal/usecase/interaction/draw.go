package interaction

import (
	"context"
	"fmt"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
)

// StartDrawing enters drawing mode and discards the previous drawn box.
func (m *Machine) StartDrawing() {
	_ = m.update(func(s *state) ([]Event, error) {
		s.mode = ModeDrawing
		s.drawnBox = nil
		s.draftBox = nil
		s.anchor = nil
		return []Event{{Kind: EventDrawStart}}, nil
	})
}

// BeginDrag anchors a rectangle at p.
func (m *Machine) BeginDrag(p geo.Point) error {
	return m.update(func(s *state) ([]Event, error) {
		if s.mode != ModeDrawing {
			return nil, ErrNotDrawing
		}
		anchor := p
		draft := geo.FromCorners(p, p)
		s.anchor = &anchor
		s.draftBox = &draft
		return nil, nil
	})
}

// UpdateDrag moves the free corner of the rectangle being drawn.
func (m *Machine) UpdateDrag(p geo.Point) error {
	return m.update(func(s *state) ([]Event, error) {
		if s.mode != ModeDrawing || s.anchor == nil {
			return nil, ErrNoDrag
		}
		draft := geo.FromCorners(*s.anchor, p)
		s.draftBox = &draft
		return nil, nil
	})
}

// FinishDrawing releases the drag at p and returns to idle mode. A release
// whose width and height are both below the drag threshold is a click: the box
// is discarded and committed is false. Otherwise the box becomes the drawn box,
// EventDrawEnd fires and, if configured, a search runs over it.
func (m *Machine) FinishDrawing(ctx context.Context, p geo.Point) (box geo.BBox, committed bool, err error) {
	err = m.update(func(s *state) ([]Event, error) {
		if s.mode != ModeDrawing || s.anchor == nil {
			return nil, ErrNoDrag
		}
		box = geo.FromCorners(*s.anchor, p)
		s.mode = ModeIdle
		s.anchor = nil
		s.draftBox = nil
		if box.Width() < m.opts.MinDragDegrees && box.Height() < m.opts.MinDragDegrees {
			return nil, nil
		}
		committed = true
		drawn := box
		s.drawnBox = &drawn
		return []Event{{Kind: EventDrawEnd, BBox: &drawn}}, nil
	})
	if err != nil || !committed {
		return box, committed, err
	}

	if m.opts.SearchOnDraw {
		if _, serr := m.SearchByBox(ctx, box); serr != nil {
			return box, true, fmt.Errorf("search drawn box: %w", serr)
		}
	}
	return box, true, nil
}

// StopDrawing leaves drawing mode. It is a no-op when not drawing.
func (m *Machine) StopDrawing() {
	_ = m.update(func(s *state) ([]Event, error) {
		if s.mode != ModeDrawing {
			return nil, ErrNotDrawing
		}
		s.mode = ModeIdle
		s.anchor = nil
		s.draftBox = nil
		return nil, nil
	})
}
