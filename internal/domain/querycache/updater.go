package querycache

import (
	"time"
)

// Updater describes how an optimistic mutation transforms cached entries.
// List is applied to Paginated entries, Entity to the Single entry of the
// mutated entity. A nil function leaves the matching entries untouched.
type Updater struct {
	List   func(Paginated) Paginated
	Entity func(Single) Single
}

// Apply transforms one entry. Unknown entries always pass through.
func (u Updater) Apply(e Entry) Entry {
	switch v := e.(type) {
	case Paginated:
		if u.List == nil {
			return v
		}
		return u.List(v)
	case Single:
		if u.Entity == nil {
			return v
		}
		return u.Entity(v)
	case Unknown:
		return v
	default:
		return e
	}
}

// IsZero reports whether the updater changes nothing
func (u Updater) IsZero() bool {
	return u.List == nil && u.Entity == nil
}

// NoUpdate leaves every entry unchanged
func NoUpdate() Updater {
	return Updater{}
}

// MapByID returns an updater applying fn to the item with the given id in
// list pages and to the matching single entity
func MapByID(id int64, fn func(Record) Record) Updater {
	return Updater{
		List: func(p Paginated) Paginated {
			out := Paginated{Data: make([]Record, len(p.Data)), Total: p.Total, TotalPages: p.TotalPages}
			for i, r := range p.Data {
				if rid, ok := r.ID(); ok && rid == id {
					out.Data[i] = fn(r.Clone())
					continue
				}
				out.Data[i] = r
			}
			return out
		},
		Entity: func(s Single) Single {
			if rid, ok := s.Record.ID(); ok && rid != id {
				return s
			}
			return Single{Record: fn(s.Record.Clone())}
		},
	}
}

// MergeByID merges patch into the item with the given id and refreshes its
// updated_at field
func MergeByID(id int64, patch Record, now time.Time) Updater {
	return MapByID(id, func(r Record) Record {
		merged := r.Merge(patch)
		merged[IDField] = r[IDField]
		merged[UpdatedAtField] = now.UTC().Format(time.RFC3339)
		return merged
	})
}

// SetFieldByID sets one field of the item with the given id to a fixed value
// and refreshes its updated_at field
func SetFieldByID(id int64, field string, value any, now time.Time) Updater {
	return MergeByID(id, Record{field: value}, now)
}

// ReplaceByID swaps the item carrying rec's id for rec itself. It is the
// reconciliation step after the server returned the canonical entity.
func ReplaceByID(rec Record) Updater {
	id, ok := rec.ID()
	if !ok {
		return NoUpdate()
	}
	return MapByID(id, func(Record) Record {
		return rec.Clone()
	})
}

// RemoveByID drops the item with the given id from list pages and decrements
// their total, never below zero
func RemoveByID(id int64) Updater {
	return Updater{
		List: func(p Paginated) Paginated {
			out := Paginated{Data: make([]Record, 0, len(p.Data)), TotalPages: p.TotalPages}
			for _, r := range p.Data {
				if rid, ok := r.ID(); ok && rid == id {
					continue
				}
				out.Data = append(out.Data, r)
			}
			out.Total = p.Total - 1
			if out.Total < 0 {
				out.Total = 0
			}
			return out
		},
	}
}
