package querycache

// SnapshotKind tells which parts of the cache a snapshot captured
type SnapshotKind int

const (
	SnapshotEmpty SnapshotKind = iota
	SnapshotList
	SnapshotEntity
	SnapshotListAndEntity
)

func (k SnapshotKind) String() string {
	switch k {
	case SnapshotList:
		return "list"
	case SnapshotEntity:
		return "entity"
	case SnapshotListAndEntity:
		return "list+entity"
	default:
		return "empty"
	}
}

// Captured is one cache entry as it was before an optimistic mutation.
// Present is false when the key had no entry; restoring it removes the key.
type Captured struct {
	Key     Key
	Entry   Entry
	Present bool
}

// MutationSnapshot holds every entry an optimistic mutation may touch. It is
// taken right before the optimistic apply, restored when this mutation or
// one overlapping it on the same tag fails, and dropped once no mutation of
// the tag is pending.
type MutationSnapshot struct {
	Tag    string
	Lists  []Captured
	Entity *Captured
}

// Kind reports what the snapshot holds
func (s MutationSnapshot) Kind() SnapshotKind {
	hasLists := len(s.Lists) > 0
	hasEntity := s.Entity != nil && s.Entity.Present
	switch {
	case hasLists && hasEntity:
		return SnapshotListAndEntity
	case hasLists:
		return SnapshotList
	case hasEntity:
		return SnapshotEntity
	default:
		return SnapshotEmpty
	}
}

// Keys lists every key the snapshot covers, lists first
func (s MutationSnapshot) Keys() []Key {
	keys := make([]Key, 0, len(s.Lists)+1)
	for _, c := range s.Lists {
		keys = append(keys, c.Key)
	}
	if s.Entity != nil {
		keys = append(keys, s.Entity.Key)
	}
	return keys
}
