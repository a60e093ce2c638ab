package transfer

import (
	"sort"
)

// Selection is the set of transfer items ticked for a partial decision
type Selection struct {
	ids map[int64]struct{}
}

// NewSelection creates a selection holding the given ids
func NewSelection(ids ...int64) Selection {
	s := Selection{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is selected
func (s Selection) Contains(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of selected ids
func (s Selection) Len() int {
	return len(s.ids)
}

// IDs returns the selected ids in ascending order
func (s Selection) IDs() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Toggle selects or unselects one item. Only pending items can be selected;
// toggling a decided item is a no-op that returns false.
func (s Selection) Toggle(r *Request, id int64) (Selection, bool) {
	it, ok := r.Item(id)
	if !ok || it.Status != ItemPending {
		return s, false
	}
	next := NewSelection(s.IDs()...)
	if next.Contains(id) {
		delete(next.ids, id)
	} else {
		next.ids[id] = struct{}{}
	}
	return next, true
}

// ToggleAllPending switches between "no pending item selected" and "every
// pending item selected". When every pending item is already selected the
// selection is cleared; otherwise it becomes exactly the pending set.
func (s Selection) ToggleAllPending(r *Request) Selection {
	pending := r.PendingItemIDs()
	allSelected := true
	for _, id := range pending {
		if !s.Contains(id) {
			allSelected = false
			break
		}
	}
	if allSelected {
		return NewSelection()
	}
	return NewSelection(pending...)
}
