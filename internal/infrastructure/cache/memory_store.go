package cache

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/erp/backoffice/internal/domain/querycache"
	"github.com/erp/backoffice/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Options tunes the in-memory query store
type Options struct {
	// StaleTime is how long a fetched entry is served without refetching
	StaleTime time.Duration
	// GCTime drops entries nobody read or wrote for this long
	GCTime time.Duration
	// GCInterval is how often the cleanup loop runs
	GCInterval time.Duration
	// RefetchOnInvalidate refetches observed keys in the background
	RefetchOnInvalidate bool
	// RefetchTimeout bounds one background refetch
	RefetchTimeout time.Duration
}

// DefaultOptions returns the store defaults
func DefaultOptions() Options {
	return Options{
		StaleTime:           30 * time.Second,
		GCTime:              5 * time.Minute,
		GCInterval:          time.Minute,
		RefetchOnInvalidate: true,
		RefetchTimeout:      10 * time.Second,
	}
}

// storedEntry is one cached value with its bookkeeping
type storedEntry struct {
	entry      querycache.Entry
	fetchedAt  time.Time
	lastAccess time.Time
	stale      bool
}

// tagState tracks fetch cancellation and observers of one tag
type tagState struct {
	generation uint64
	holds      int
	fetchers   map[querycache.Key]querycache.Fetcher
}

// fetchResult is shared between callers joined on one flight
type fetchResult struct {
	entry   querycache.Entry
	written bool
}

// MemoryStore implements querycache.QueryStore with process-local maps.
// Entries are copied on the way in and out so callers never share maps
// with the cache.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[querycache.Key]*storedEntry
	tags    map[string]*tagState

	opts    Options
	flights singleflight.Group
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time

	stopChan  chan struct{}
	loopWG    sync.WaitGroup
	refetchWG sync.WaitGroup
	closeOnce sync.Once
}

// MemoryStoreOption configures a MemoryStore
type MemoryStoreOption func(*MemoryStore)

// WithMetrics records lookups, discarded fetches and refetches
func WithMetrics(m *telemetry.Metrics) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.metrics = m
	}
}

// WithStoreLogger sets the store logger
func WithStoreLogger(logger *zap.Logger) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.logger = logger
	}
}

// WithClock replaces time.Now (for tests)
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a store and starts its cleanup goroutine
func NewMemoryStore(opts Options, options ...MemoryStoreOption) *MemoryStore {
	def := DefaultOptions()
	if opts.GCTime <= 0 {
		opts.GCTime = def.GCTime
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = def.GCInterval
	}
	if opts.RefetchTimeout <= 0 {
		opts.RefetchTimeout = def.RefetchTimeout
	}

	s := &MemoryStore{
		entries:  make(map[querycache.Key]*storedEntry),
		tags:     make(map[string]*tagState),
		opts:     opts,
		logger:   zap.NewNop(),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	for _, o := range options {
		o(s)
	}

	s.loopWG.Add(1)
	go s.cleanupLoop()

	return s
}

// Get returns a copy of the entry stored under key
func (s *MemoryStore) Get(key querycache.Key) (querycache.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	e.lastAccess = s.now()
	return querycache.CloneEntry(e.entry), true
}

// Set stores an entry and marks it fresh
func (s *MemoryStore) Set(key querycache.Key, entry querycache.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, entry)
}

func (s *MemoryStore) setLocked(key querycache.Key, entry querycache.Entry) {
	now := s.now()
	s.entries[key] = &storedEntry{
		entry:      querycache.CloneEntry(entry),
		fetchedAt:  now,
		lastAccess: now,
	}
}

// Remove drops the entry stored under key and forgets its fetcher
func (s *MemoryStore) Remove(key querycache.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
}

func (s *MemoryStore) removeLocked(key querycache.Key) {
	delete(s.entries, key)
	if st, ok := s.tags[key.Tag]; ok {
		delete(st.fetchers, key)
	}
}

// ListKeys returns the keys of every list entry cached for tag
func (s *MemoryStore) ListKeys(tag string) []querycache.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listKeysLocked(tag)
}

func (s *MemoryStore) listKeysLocked(tag string) []querycache.Key {
	var keys []querycache.Key
	for k := range s.entries {
		if k.Tag == tag && k.IsList() {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// SetMany replaces each existing entry in keys with updater(entry)
func (s *MemoryStore) SetMany(keys []querycache.Key, updater func(querycache.Key, querycache.Entry) querycache.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, k := range keys {
		e, ok := s.entries[k]
		if !ok {
			continue
		}
		e.entry = updater(k, e.entry)
		e.lastAccess = now
	}
}

// Snapshot captures every list entry of tag and the entity entry
func (s *MemoryStore) Snapshot(tag string, entity *querycache.Key) querycache.MutationSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := querycache.MutationSnapshot{Tag: tag}
	for _, k := range s.listKeysLocked(tag) {
		snap.Lists = append(snap.Lists, querycache.Captured{
			Key:     k,
			Entry:   querycache.CloneEntry(s.entries[k].entry),
			Present: true,
		})
	}
	if entity != nil {
		c := querycache.Captured{Key: *entity}
		if e, ok := s.entries[*entity]; ok {
			c.Entry = querycache.CloneEntry(e.entry)
			c.Present = true
		}
		snap.Entity = &c
	}
	return snap
}

// Restore writes the captured entries back
func (s *MemoryStore) Restore(snap querycache.MutationSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range snap.Lists {
		s.restoreLocked(c)
	}
	if snap.Entity != nil {
		s.restoreLocked(*snap.Entity)
	}
}

func (s *MemoryStore) restoreLocked(c querycache.Captured) {
	if !c.Present {
		delete(s.entries, c.Key)
		return
	}
	if e, ok := s.entries[c.Key]; ok {
		e.entry = querycache.CloneEntry(c.Entry)
		e.lastAccess = s.now()
		return
	}
	s.setLocked(c.Key, c.Entry)
}

// Invalidate marks every entry of tag stale and refetches observed keys
func (s *MemoryStore) Invalidate(tag string) {
	s.invalidate(tag, false)
}

// InvalidateRemote is Invalidate triggered by a peer instance
func (s *MemoryStore) InvalidateRemote(tag string) {
	s.invalidate(tag, true)
}

func (s *MemoryStore) invalidate(tag string, remote bool) {
	s.mu.Lock()
	type pending struct {
		key     querycache.Key
		fetcher querycache.Fetcher
	}
	var refetch []pending
	st := s.tagLocked(tag)
	for k, e := range s.entries {
		if k.Tag != tag {
			continue
		}
		e.stale = true
		if f, ok := st.fetchers[k]; ok {
			refetch = append(refetch, pending{key: k, fetcher: f})
		}
	}
	s.mu.Unlock()

	s.metrics.Invalidated(tag, remote)
	s.logger.Debug("Cache tag invalidated",
		zap.String("tag", tag),
		zap.Bool("remote", remote),
		zap.Int("refetch", len(refetch)))

	if !s.opts.RefetchOnInvalidate {
		return
	}
	for _, p := range refetch {
		s.refetchWG.Add(1)
		go s.refetch(p.key, p.fetcher)
	}
}

func (s *MemoryStore) refetch(key querycache.Key, fetcher querycache.Fetcher) {
	defer s.refetchWG.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RefetchTimeout)
	defer cancel()

	_, err := s.load(ctx, key, fetcher)
	s.metrics.Refetched(key.Tag, err)
	if err != nil {
		s.logger.Warn("Background refetch failed",
			zap.String("key", key.String()),
			zap.Error(err))
	}
}

// CancelQueries makes in-flight fetches of tag resolve without writing
func (s *MemoryStore) CancelQueries(ctx context.Context, tag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.tagLocked(tag).generation++
	s.mu.Unlock()
	return nil
}

// Hold suppresses fetch writes for tag until release is called
func (s *MemoryStore) Hold(tag string) func() {
	s.mu.Lock()
	s.tagLocked(tag).holds++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.tagLocked(tag).holds--
			s.mu.Unlock()
		})
	}
}

// Fetch serves key from the cache while fresh, otherwise loads it. The
// fetcher is remembered so invalidation can refetch the key.
func (s *MemoryStore) Fetch(ctx context.Context, key querycache.Key, fetcher querycache.Fetcher) (querycache.Entry, error) {
	s.mu.Lock()
	s.tagLocked(key.Tag).fetchers[key] = fetcher
	if e, ok := s.entries[key]; ok && s.freshLocked(e) {
		e.lastAccess = s.now()
		out := querycache.CloneEntry(e.entry)
		s.mu.Unlock()
		s.metrics.CacheLookup(key.Tag, true)
		return out, nil
	}
	s.mu.Unlock()
	s.metrics.CacheLookup(key.Tag, false)

	res, err := s.load(ctx, key, fetcher)
	if err != nil {
		return nil, err
	}
	if !res.written {
		// A mutation owns the tag; its optimistic view wins over the fetch.
		if cached, ok := s.Get(key); ok {
			return cached, nil
		}
	}
	return querycache.CloneEntry(res.entry), nil
}

func (s *MemoryStore) freshLocked(e *storedEntry) bool {
	if e.stale || s.opts.StaleTime <= 0 {
		return false
	}
	return s.now().Sub(e.fetchedAt) < s.opts.StaleTime
}

// load runs fetcher once per key and generation, writing the result only
// if the tag was neither cancelled nor held meanwhile
func (s *MemoryStore) load(ctx context.Context, key querycache.Key, fetcher querycache.Fetcher) (fetchResult, error) {
	s.mu.RLock()
	var gen uint64
	if st, ok := s.tags[key.Tag]; ok {
		gen = st.generation
	}
	s.mu.RUnlock()

	flightKey := key.String() + "#" + strconv.FormatUint(gen, 10)
	v, err, _ := s.flights.Do(flightKey, func() (any, error) {
		entry, err := fetcher(ctx)
		if err != nil {
			return nil, err
		}
		return fetchResult{entry: entry, written: s.commit(key, gen, entry)}, nil
	})
	if err != nil {
		return fetchResult{}, err
	}
	return v.(fetchResult), nil
}

func (s *MemoryStore) commit(key querycache.Key, gen uint64, entry querycache.Entry) bool {
	s.mu.Lock()
	st := s.tagLocked(key.Tag)
	if st.generation != gen || st.holds > 0 {
		s.mu.Unlock()
		s.metrics.FetchDiscarded(key.Tag)
		s.logger.Debug("Discarded superseded fetch", zap.String("key", key.String()))
		return false
	}
	s.setLocked(key, entry)
	s.mu.Unlock()
	return true
}

func (s *MemoryStore) tagLocked(tag string) *tagState {
	st, ok := s.tags[tag]
	if !ok {
		st = &tagState{fetchers: make(map[querycache.Key]querycache.Fetcher)}
		s.tags[tag] = st
	}
	return st
}

// IsStale reports whether key is cached and marked stale
func (s *MemoryStore) IsStale(key querycache.Key) (stale, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return false, false
	}
	return e.stale, true
}

// Wait blocks until every background refetch has finished
func (s *MemoryStore) Wait() {
	s.refetchWG.Wait()
}

// Close stops the cleanup goroutine and waits for refetches.
// Safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.loopWG.Wait()
		s.refetchWG.Wait()
	})
	return nil
}

// cleanupLoop periodically removes idle entries
func (s *MemoryStore) cleanupLoop() {
	defer s.loopWG.Done()

	ticker := time.NewTicker(s.opts.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes entries idle past GCTime. Held tags are left alone.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if st, ok := s.tags[k.Tag]; ok && st.holds > 0 {
			continue
		}
		if now.Sub(e.lastAccess) > s.opts.GCTime {
			s.removeLocked(k)
		}
	}
}

// Size returns the number of entries in the store (for testing/monitoring)
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ensure MemoryStore implements QueryStore
var _ querycache.QueryStore = (*MemoryStore)(nil)
