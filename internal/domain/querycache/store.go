package querycache

import (
	"context"
)

// Store is the process-wide read cache. Reads may come from anywhere; only
// the optimistic mutation protocol and completed fetches write to it.
type Store interface {
	// Get returns a copy of the entry stored under key
	Get(key Key) (Entry, bool)

	// Set stores an entry and marks it fresh
	Set(key Key, entry Entry)

	// Remove drops the entry stored under key
	Remove(key Key)

	// ListKeys returns the keys of every list entry cached for tag
	ListKeys(tag string) []Key

	// SetMany replaces each existing entry in keys with updater(entry).
	// Missing keys are skipped.
	SetMany(keys []Key, updater func(Key, Entry) Entry)

	// Snapshot captures every list entry of tag and, when entity is not nil,
	// the entity entry (present or not)
	Snapshot(tag string, entity *Key) MutationSnapshot

	// Restore writes the captured entries back, removing keys that were absent
	Restore(snapshot MutationSnapshot)

	// Invalidate marks every entry of tag stale and schedules a background
	// refetch of keys that have a registered fetcher
	Invalidate(tag string)

	// CancelQueries makes fetches for tag that are already in flight resolve
	// without writing their result
	CancelQueries(ctx context.Context, tag string) error

	// Hold suppresses fetch writes for tag until release is called. The
	// mutation protocol holds a tag for the whole network round trip.
	Hold(tag string) (release func())
}

// Fetcher loads the value of one key from the backend
type Fetcher func(ctx context.Context) (Entry, error)

// Querier serves reads through the cache
type Querier interface {
	// Fetch returns the cached entry when it is fresh, otherwise loads it
	// with fetcher. Concurrent fetches of one key share a single call.
	Fetch(ctx context.Context, key Key, fetcher Fetcher) (Entry, error)
}

// QueryStore is a Store that also serves reads
type QueryStore interface {
	Store
	Querier
}

// InvalidationBroadcaster tells peer processes that a tag changed
type InvalidationBroadcaster interface {
	PublishInvalidation(ctx context.Context, tag string) error
}
