// Package querycache defines the client-side read cache of backend responses:
// cache keys, the shapes a cached entry can take, mutation snapshots and the
// pure updaters the optimistic mutation protocol applies to cached entries.
package querycache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// IDField is the field holding a record's identifier
const IDField = "id"

// UpdatedAtField is the server-maintained modification timestamp
const UpdatedAtField = "updated_at"

// Record is a JSON object as returned by the backend.
// Numbers are kept as json.Number so integer ids survive a round trip.
type Record map[string]any

// DecodeRecord decodes a JSON object into a Record
func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}

// RecordFrom converts any JSON-serialisable value into a Record
func RecordFrom(v any) (Record, error) {
	if rec, ok := v.(Record); ok {
		return rec.Clone(), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return DecodeRecord(data)
}

// Decode copies the record into out, which must be a pointer
func (r Record) Decode(out any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	return nil
}

// ID returns the record's numeric identifier
func (r Record) ID() (int64, bool) {
	return toInt64(r[IDField])
}

// Int returns an integer field
func (r Record) Int(field string) (int64, bool) {
	return toInt64(r[field])
}

// String returns a string field, or "" when absent or not a string
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Clone returns a deep copy of the record
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge returns a copy of the record with the patch fields applied
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	if out == nil {
		out = make(Record, len(patch))
	}
	for k, v := range patch {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Record:
		return t.Clone()
	case map[string]any:
		return Record(t).Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []Record:
		out := make([]Record, len(t))
		for i, e := range t {
			out[i] = e.Clone()
		}
		return out
	default:
		return v
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	case float64:
		return int64(n), n == float64(int64(n))
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func asRecord(v any) (Record, bool) {
	switch t := v.(type) {
	case Record:
		return t, true
	case map[string]any:
		return Record(t), true
	default:
		return nil, false
	}
}
