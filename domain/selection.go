package domain

import "slices"

// Selection is an insertion-ordered set of task ids chosen for batch actions.
type Selection struct {
	ids []string
}

// Toggle adds id when absent and removes it when present. It reports whether
// id is selected afterwards.
func (s *Selection) Toggle(id string) bool {
	if i := slices.Index(s.ids, id); i >= 0 {
		s.ids = slices.Delete(s.ids, i, i+1)
		return false
	}
	s.ids = append(s.ids, id)
	return true
}

func (s *Selection) Contains(id string) bool { return slices.Contains(s.ids, id) }

func (s *Selection) Len() int { return len(s.ids) }

// IDs returns a copy of the selected ids in selection order.
func (s *Selection) IDs() []string { return slices.Clone(s.ids) }

// Retain drops every id for which keep returns false.
func (s *Selection) Retain(keep func(id string) bool) {
	s.ids = slices.DeleteFunc(s.ids, func(id string) bool { return !keep(id) })
}

func (s *Selection) Clear() { s.ids = nil }
