package querycache

import (
	"net/url"
	"strconv"
)

// Key identifies one cache entry: a resource tag plus either a parameter set
// (list entries) or a single entity id.
type Key struct {
	Tag    string
	ID     int64
	HasID  bool
	Params string
}

// ListKey returns the key of a list query. Params are encoded canonically
// (sorted by name) so equal parameter sets map to the same entry.
func ListKey(tag string, params url.Values) Key {
	return Key{Tag: tag, Params: params.Encode()}
}

// EntityKey returns the canonical key of a single entity
func EntityKey(tag string, id int64) Key {
	return Key{Tag: tag, ID: id, HasID: true}
}

// IsList reports whether the key addresses a list query
func (k Key) IsList() bool {
	return !k.HasID
}

// Values decodes the list parameters
func (k Key) Values() url.Values {
	v, err := url.ParseQuery(k.Params)
	if err != nil {
		return url.Values{}
	}
	return v
}

func (k Key) String() string {
	if k.HasID {
		return k.Tag + "/" + strconv.FormatInt(k.ID, 10)
	}
	if k.Params == "" {
		return k.Tag + "?"
	}
	return k.Tag + "?" + k.Params
}
