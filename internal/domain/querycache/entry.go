package querycache

import (
	"encoding/json"
	"math"
)

// Entry is the value held by a cache key. It is one of Paginated, Single or
// Unknown; switches over it are expected to cover all three.
type Entry interface {
	isEntry()
}

// Paginated is a list envelope as served by the backend's list endpoints
type Paginated struct {
	Data       []Record `json:"data"`
	Total      int      `json:"total"`
	TotalPages int      `json:"total_pages"`
}

// Single holds one entity
type Single struct {
	Record Record
}

// Unknown holds a payload of any other shape. Optimistic updaters never touch it.
type Unknown struct {
	Raw any
}

func (Paginated) isEntry() {}
func (Single) isEntry()    {}
func (Unknown) isEntry()   {}

// MarshalJSON serialises the entity itself
func (s Single) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Record)
}

// MarshalJSON serialises the raw payload
func (u Unknown) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Raw)
}

// Classify turns a decoded backend payload into an Entry. An object whose
// "data" is an array of objects and whose "total" is a number is Paginated,
// any other object is Single and everything else is Unknown.
func Classify(raw any) Entry {
	obj, ok := asRecord(raw)
	if !ok {
		return Unknown{Raw: raw}
	}
	if page, ok := asPaginated(obj); ok {
		return page
	}
	if _, hasData := obj["data"]; hasData {
		if _, hasTotal := obj["total"]; hasTotal {
			// looks like an envelope but is not a well-formed one
			return Unknown{Raw: raw}
		}
	}
	return Single{Record: obj.Clone()}
}

func asPaginated(obj Record) (Paginated, bool) {
	items, ok := obj["data"].([]any)
	if !ok {
		if recs, isRecs := obj["data"].([]Record); isRecs {
			items = make([]any, len(recs))
			for i, r := range recs {
				items[i] = r
			}
		} else {
			return Paginated{}, false
		}
	}
	total, ok := toNumber(obj["total"])
	if !ok {
		return Paginated{}, false
	}
	data := make([]Record, 0, len(items))
	for _, it := range items {
		rec, ok := asRecord(it)
		if !ok {
			return Paginated{}, false
		}
		data = append(data, rec.Clone())
	}
	pages, _ := toNumber(obj["total_pages"])
	return Paginated{Data: data, Total: int(total), TotalPages: int(pages)}, true
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil && !math.IsNaN(f)
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// CloneEntry returns a deep copy so callers never share maps with the cache
func CloneEntry(e Entry) Entry {
	switch v := e.(type) {
	case Paginated:
		data := make([]Record, len(v.Data))
		for i, r := range v.Data {
			data[i] = r.Clone()
		}
		return Paginated{Data: data, Total: v.Total, TotalPages: v.TotalPages}
	case Single:
		return Single{Record: v.Record.Clone()}
	case Unknown:
		return Unknown{Raw: cloneValue(v.Raw)}
	default:
		return e
	}
}

// FindByID returns the first item of a page with the given id
func (p Paginated) FindByID(id int64) (Record, bool) {
	for _, r := range p.Data {
		if rid, ok := r.ID(); ok && rid == id {
			return r, true
		}
	}
	return nil, false
}
