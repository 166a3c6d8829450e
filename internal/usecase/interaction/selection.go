package interaction

// ToggleSelection flips the selection of id. Ids need not be in the results.
func (m *Machine) ToggleSelection(id string) {
	_ = m.update(func(s *state) ([]Event, error) {
		if _, ok := s.selected[id]; ok {
			delete(s.selected, id)
		} else {
			s.selected[id] = struct{}{}
		}
		return nil, nil
	})
}

// Select adds id to the selection.
func (m *Machine) Select(id string) {
	_ = m.update(func(s *state) ([]Event, error) {
		s.selected[id] = struct{}{}
		return nil, nil
	})
}

// Deselect removes id from the selection.
func (m *Machine) Deselect(id string) {
	_ = m.update(func(s *state) ([]Event, error) {
		delete(s.selected, id)
		return nil, nil
	})
}

// SelectAll selects every record in the current results.
func (m *Machine) SelectAll() {
	_ = m.update(func(s *state) ([]Event, error) {
		for i := range s.results {
			s.selected[s.results[i].ID()] = struct{}{}
		}
		return nil, nil
	})
}

// ClearSelection deselects everything.
func (m *Machine) ClearSelection() {
	_ = m.update(func(s *state) ([]Event, error) {
		s.selected = make(map[string]struct{})
		return nil, nil
	})
}
