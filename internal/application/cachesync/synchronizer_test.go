package cachesync

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/backoffice/internal/domain/activity"
	"github.com/erp/backoffice/internal/domain/querycache"
	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/erp/backoffice/internal/infrastructure/apiclient"
	"github.com/erp/backoffice/internal/infrastructure/cache"
	"github.com/erp/backoffice/internal/infrastructure/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetTag = "WIDGET"

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type recordingObserver struct {
	mu          sync.Mutex
	settlements []Settlement
}

func (o *recordingObserver) MutationSettled(_ context.Context, s Settlement) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settlements = append(o.settlements, s)
}

func (o *recordingObserver) all() []Settlement {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Settlement(nil), o.settlements...)
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	tags []string
	err  error
}

func (b *recordingBroadcaster) PublishInvalidation(_ context.Context, tag string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tags = append(b.tags, tag)
	return b.err
}

type fixture struct {
	store       *cache.MemoryStore
	sync        *Synchronizer
	observer    *recordingObserver
	broadcaster *recordingBroadcaster
	ctx         context.Context
	collector   *notify.Collector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	opts := cache.DefaultOptions()
	opts.GCInterval = time.Hour
	store := cache.NewMemoryStore(opts)
	t.Cleanup(func() { _ = store.Close() })

	obs := &recordingObserver{}
	bc := &recordingBroadcaster{}
	s := NewSynchronizer(store, notify.NewRequestNotifier(),
		WithObserver(obs),
		WithBroadcaster(bc),
		WithClock(func() time.Time { return fixedNow }),
	)
	ctx, collector := notify.WithCollector(context.Background())
	return &fixture{store: store, sync: s, observer: obs, broadcaster: bc, ctx: ctx, collector: collector}
}

func record(t *testing.T, raw string) querycache.Record {
	t.Helper()
	rec, err := querycache.DecodeRecord([]byte(raw))
	require.NoError(t, err)
	return rec
}

func page(t *testing.T, total int, items ...string) querycache.Paginated {
	t.Helper()
	p := querycache.Paginated{Total: total, TotalPages: 1}
	for _, it := range items {
		p.Data = append(p.Data, record(t, it))
	}
	return p
}

func listKey(p string) querycache.Key {
	k := querycache.ListKey(widgetTag, nil)
	k.Params = p
	return k
}

func succeedWith(rec querycache.Record) MutationFunc {
	return func(context.Context) (querycache.Record, error) { return rec, nil }
}

func failWith(err error) MutationFunc {
	return func(context.Context) (querycache.Record, error) { return nil, err }
}

func mustGet(t *testing.T, s querycache.Store, k querycache.Key) querycache.Entry {
	t.Helper()
	e, ok := s.Get(k)
	require.True(t, ok, "missing entry %s", k)
	return e
}

func TestScenarioA_UpdateOptimisticThenReconcile(t *testing.T) {
	f := newFixture(t)
	k := listKey("page=1")
	f.store.Set(k, page(t, 1, `{"id":1,"name":"a"}`))

	server := record(t, `{"id":1,"name":"b","updated_at":"2024-01-01"}`)
	mutate := func(context.Context) (querycache.Record, error) {
		optimistic := mustGet(t, f.store, k).(querycache.Paginated)
		assert.Equal(t, 1, optimistic.Total)
		require.Len(t, optimistic.Data, 1)
		assert.Equal(t, "b", optimistic.Data[0].String("name"))
		return server, nil
	}

	got, err := f.sync.Update(f.ctx, widgetTag, 1, querycache.Record{"name": "b"}, mutate,
		Config{Action: "update", SuccessMessage: "updated", FailureMessage: "failed"})
	require.NoError(t, err)
	assert.Equal(t, server, got)

	final := mustGet(t, f.store, k).(querycache.Paginated)
	assert.Equal(t, []querycache.Record{server}, final.Data)
	assert.Equal(t, querycache.Single{Record: server}, mustGet(t, f.store, querycache.EntityKey(widgetTag, 1)))

	notes := f.collector.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.LevelSuccess, notes[0].Level)
}

func TestScenarioA_UpdateFailureReverts(t *testing.T) {
	f := newFixture(t)
	k := listKey("page=1")
	original := page(t, 1, `{"id":1,"name":"a"}`)
	f.store.Set(k, original)

	_, err := f.sync.Update(f.ctx, widgetTag, 1, querycache.Record{"name": "b"},
		failWith(&apiclient.APIError{Status: http.StatusUnprocessableEntity, Code: "VALIDATION_ERROR", Message: "name taken"}),
		Config{Action: "update", SuccessMessage: "updated", FailureMessage: "Failed to update widget"})
	require.Error(t, err)

	var apiErr *apiclient.APIError
	assert.True(t, errors.As(err, &apiErr), "network error stays reachable")
	assert.Equal(t, original, mustGet(t, f.store, k))

	_, ok := f.store.Get(querycache.EntityKey(widgetTag, 1))
	assert.False(t, ok, "entity entry that was absent stays absent")

	stale, ok := f.store.IsStale(k)
	require.True(t, ok)
	assert.True(t, stale, "failed mutations invalidate the tag as well")
	assert.Equal(t, []string{widgetTag}, f.broadcaster.tags)

	notes := f.collector.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.LevelError, notes[0].Level)
	assert.Equal(t, "Failed to update widget", notes[0].Message)
	assert.Equal(t, "name taken", notes[0].Details)

	settled := f.observer.all()
	require.Len(t, settled, 1)
	assert.Equal(t, activity.OutcomeRolledBack, settled[0].Outcome)
}

func TestRollbackRestoresEverySnapshotEntry(t *testing.T) {
	f := newFixture(t)
	p1, p2 := listKey("page=1"), listKey("page=2")
	entity := querycache.EntityKey(widgetTag, 2)
	other := querycache.ListKey("OTHER_KEY", nil)

	f.store.Set(p1, page(t, 3, `{"id":1,"name":"a"}`, `{"id":2,"name":"b"}`))
	f.store.Set(p2, page(t, 3, `{"id":3,"name":"c"}`))
	f.store.Set(entity, querycache.Single{Record: record(t, `{"id":2,"name":"b"}`)})
	f.store.Set(listKey("shape=odd"), querycache.Unknown{Raw: []any{"x"}})
	f.store.Set(other, page(t, 1, `{"id":2,"name":"untouched"}`))

	before := f.store.Snapshot(widgetTag, &entity)
	otherBefore := mustGet(t, f.store, other)

	t.Run("delete", func(t *testing.T) {
		err := f.sync.Delete(f.ctx, widgetTag, 2, failWith(errors.New("boom")), Config{Action: "delete"})
		require.Error(t, err)
		assert.Equal(t, before, f.store.Snapshot(widgetTag, &entity))
	})

	t.Run("set status", func(t *testing.T) {
		_, err := f.sync.SetStatus(f.ctx, widgetTag, 2, "status", "returned", failWith(errors.New("boom")), Config{Action: "return"})
		require.Error(t, err)
		assert.Equal(t, before, f.store.Snapshot(widgetTag, &entity))
	})

	t.Run("update", func(t *testing.T) {
		_, err := f.sync.Update(f.ctx, widgetTag, 2, querycache.Record{"name": "z"}, failWith(errors.New("boom")), Config{Action: "update"})
		require.Error(t, err)
		assert.Equal(t, before, f.store.Snapshot(widgetTag, &entity))
	})

	assert.Equal(t, otherBefore, mustGet(t, f.store, other))
}

func TestReconciliationReplacesItemEverywhere(t *testing.T) {
	f := newFixture(t)
	p1, p2 := listKey("page=1"), listKey("status=active")
	f.store.Set(p1, page(t, 2, `{"id":1,"name":"a"}`, `{"id":2,"name":"b"}`))
	f.store.Set(p2, page(t, 1, `{"id":2,"name":"b"}`))
	f.store.Set(querycache.EntityKey(widgetTag, 2), querycache.Single{Record: record(t, `{"id":2,"name":"b"}`)})

	server := record(t, `{"id":2,"name":"server-name","updated_at":"2024-02-02T00:00:00Z","version":4}`)
	_, err := f.sync.Update(f.ctx, widgetTag, 2, querycache.Record{"name": "client-name"}, succeedWith(server), Config{Action: "update"})
	require.NoError(t, err)

	first := mustGet(t, f.store, p1).(querycache.Paginated)
	item, ok := first.FindByID(2)
	require.True(t, ok)
	assert.Equal(t, server, item)
	assert.Equal(t, "a", first.Data[0].String("name"))

	second := mustGet(t, f.store, p2).(querycache.Paginated)
	assert.Equal(t, server, second.Data[0])
	assert.Equal(t, querycache.Single{Record: server}, mustGet(t, f.store, querycache.EntityKey(widgetTag, 2)))
}

func TestDeleteDecrementsAndRemovesEntity(t *testing.T) {
	f := newFixture(t)
	k := listKey("page=1")
	entity := querycache.EntityKey(widgetTag, 1)
	f.store.Set(k, page(t, 2, `{"id":1}`, `{"id":2}`))
	f.store.Set(listKey("page=9"), page(t, 0))
	f.store.Set(entity, querycache.Single{Record: record(t, `{"id":1}`)})

	err := f.sync.Delete(f.ctx, widgetTag, 1, func(context.Context) (querycache.Record, error) {
		_, present := f.store.Get(entity)
		assert.False(t, present, "entity entry removed optimistically")
		return nil, nil
	}, Config{Action: "delete", SuccessMessage: "deleted"})
	require.NoError(t, err)

	after := mustGet(t, f.store, k).(querycache.Paginated)
	assert.Equal(t, 1, after.Total)
	require.Len(t, after.Data, 1)
	_, stillThere := after.FindByID(1)
	assert.False(t, stillThere)

	empty := mustGet(t, f.store, listKey("page=9")).(querycache.Paginated)
	assert.Equal(t, 0, empty.Total, "total never drops below zero")

	_, ok := f.store.Get(entity)
	assert.False(t, ok)
}

func TestCreateSeedsEntityEntry(t *testing.T) {
	f := newFixture(t)
	k := listKey("page=1")
	original := page(t, 1, `{"id":1}`)
	f.store.Set(k, original)

	created := record(t, `{"id":5,"name":"new"}`)
	got, err := f.sync.Create(f.ctx, widgetTag, func(context.Context) (querycache.Record, error) {
		assert.Equal(t, original, mustGet(t, f.store, k), "no optimistic change on create")
		return created, nil
	}, Config{Action: "create"})
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, querycache.Single{Record: created}, mustGet(t, f.store, querycache.EntityKey(widgetTag, 5)))

	stale, ok := f.store.IsStale(k)
	require.True(t, ok)
	assert.True(t, stale, "lists are invalidated so the new item shows up on refetch")
}

func TestSettleInvalidatesAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	k := listKey("page=1")
	f.store.Set(k, page(t, 1, `{"id":1}`))
	f.broadcaster.err = errors.New("redis down")

	_, err := f.sync.SetStatus(f.ctx, widgetTag, 1, "status", "lost", succeedWith(nil),
		Config{Action: "mark-lost", AlsoInvalidate: []string{"CLOTHES_KEY"}})
	require.NoError(t, err, "broadcast failures never fail the mutation")

	assert.Equal(t, []string{widgetTag, "CLOTHES_KEY"}, f.broadcaster.tags)
	stale, _ := f.store.IsStale(k)
	assert.True(t, stale)

	// without a server entity the optimistic status stays until the refetch
	item, _ := mustGet(t, f.store, k).(querycache.Paginated).FindByID(1)
	assert.Equal(t, "lost", item.String("status"))
	assert.Equal(t, fixedNow.Format(time.RFC3339), item.String(querycache.UpdatedAtField))

	settled := f.observer.all()
	require.Len(t, settled, 1)
	assert.Equal(t, activity.OutcomeSuccess, settled[0].Outcome)
	assert.Equal(t, int64(1), settled[0].EntityID)
}

func TestInFlightFetchCannotOverwriteMutation(t *testing.T) {
	f := newFixture(t)
	k := listKey("page=1")
	f.store.Set(k, page(t, 1, `{"id":1,"name":"a"}`))
	// mark stale so the next Fetch goes to the network
	f.store.Invalidate(widgetTag)

	var calls atomic.Int32
	entered := make(chan struct{})
	proceed := make(chan struct{})
	fetchDone := make(chan struct{})
	go func() {
		defer close(fetchDone)
		_, _ = f.store.Fetch(context.Background(), k, func(context.Context) (querycache.Entry, error) {
			if calls.Add(1) > 1 {
				// refetch after settle sees the committed change
				return page(t, 1, `{"id":1,"name":"b"}`), nil
			}
			close(entered)
			<-proceed
			return page(t, 1, `{"id":1,"name":"stale-from-server"}`), nil
		})
	}()
	<-entered

	server := record(t, `{"id":1,"name":"b"}`)
	_, err := f.sync.Update(f.ctx, widgetTag, 1, querycache.Record{"name": "b"}, func(context.Context) (querycache.Record, error) {
		close(proceed)
		<-fetchDone
		return server, nil
	}, Config{Action: "update"})
	require.NoError(t, err)
	f.store.Wait()

	item, ok := mustGet(t, f.store, k).(querycache.Paginated).FindByID(1)
	require.True(t, ok)
	assert.Equal(t, "b", item.String("name"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestConcurrentMutationsOnOneTag(t *testing.T) {
	f := newFixture(t)
	k := listKey("page=1")
	f.store.Set(k, page(t, 20,
		`{"id":1}`, `{"id":2}`, `{"id":3}`, `{"id":4}`, `{"id":5}`,
		`{"id":6}`, `{"id":7}`, `{"id":8}`, `{"id":9}`, `{"id":10}`))

	var wg sync.WaitGroup
	for id := int64(1); id <= 10; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_ = f.sync.Delete(f.ctx, widgetTag, id, succeedWith(nil), Config{Action: "delete"})
		}(id)
	}
	wg.Wait()

	after := mustGet(t, f.store, k).(querycache.Paginated)
	assert.Empty(t, after.Data)
	assert.Equal(t, 10, after.Total)
	assert.Len(t, f.observer.all(), 10)
}

func itemName(t *testing.T, s querycache.Store, k querycache.Key, id int64) string {
	t.Helper()
	item, ok := mustGet(t, s, k).(querycache.Paginated).FindByID(id)
	require.True(t, ok, "item %d missing", id)
	return item.String("name")
}

func TestOverlappingFailuresRestoreOriginal(t *testing.T) {
	f := newFixture(t)
	k := listKey("page=1")
	original := page(t, 2, `{"id":1,"name":"a"}`, `{"id":2,"name":"b"}`)
	f.store.Set(k, original)

	applied := make(chan struct{})
	fail := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := f.sync.Update(f.ctx, widgetTag, 1, querycache.Record{"name": "x"}, func(context.Context) (querycache.Record, error) {
			close(applied)
			<-fail
			return nil, errors.New("first failed")
		}, Config{Action: "update"})
		done <- err
	}()
	<-applied

	_, err := f.sync.Update(f.ctx, widgetTag, 2, querycache.Record{"name": "y"}, func(context.Context) (querycache.Record, error) {
		assert.Equal(t, "x", itemName(t, f.store, k, 1))
		close(fail)
		assert.Error(t, <-done)
		assert.Equal(t, "a", itemName(t, f.store, k, 1), "first change rolled back")
		assert.Equal(t, "y", itemName(t, f.store, k, 2), "pending change kept")
		return nil, errors.New("second failed")
	}, Config{Action: "update"})
	require.Error(t, err)

	assert.Equal(t, original, mustGet(t, f.store, k))
	for _, id := range []int64{1, 2} {
		_, ok := f.store.Get(querycache.EntityKey(widgetTag, id))
		assert.False(t, ok)
	}
}

func TestOverlappingFailureKeepsPendingAndReconciledChanges(t *testing.T) {
	f := newFixture(t)
	k := listKey("page=1")
	f.store.Set(k, page(t, 3, `{"id":1,"name":"a"}`, `{"id":2,"name":"b"}`, `{"id":3,"name":"c"}`))

	applied := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan error, 1)
	server := record(t, `{"id":1,"name":"x-server"}`)
	go func() {
		_, err := f.sync.Update(f.ctx, widgetTag, 1, querycache.Record{"name": "x"}, func(context.Context) (querycache.Record, error) {
			close(applied)
			<-proceed
			return server, nil
		}, Config{Action: "update"})
		done <- err
	}()
	<-applied

	_, err := f.sync.Update(f.ctx, widgetTag, 2, querycache.Record{"name": "y"},
		failWith(errors.New("second failed")), Config{Action: "update"})
	require.Error(t, err)
	assert.Equal(t, "x", itemName(t, f.store, k, 1), "pending prediction survives the rollback")
	assert.Equal(t, "b", itemName(t, f.store, k, 2))

	close(proceed)
	require.NoError(t, <-done)

	err = f.sync.Delete(f.ctx, widgetTag, 3, failWith(errors.New("third failed")), Config{Action: "delete"})
	require.Error(t, err)

	after := mustGet(t, f.store, k).(querycache.Paginated)
	assert.Equal(t, 3, after.Total)
	assert.Equal(t, "x-server", itemName(t, f.store, k, 1))
	assert.Equal(t, "b", itemName(t, f.store, k, 2))
	assert.Equal(t, "c", itemName(t, f.store, k, 3))
	assert.Equal(t, querycache.Single{Record: server}, mustGet(t, f.store, querycache.EntityKey(widgetTag, 1)))
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	k := listKey("page=1")
	original := page(t, 1, `{"id":1}`)
	f.store.Set(k, original)

	err := f.sync.Reject(f.ctx, widgetTag, Config{Action: "approve-partial", EntityID: 1, HasEntity: true, FailureMessage: "Choose at least one item"}, shared.ErrEmptySelection)
	assert.ErrorIs(t, err, shared.ErrEmptySelection)

	assert.Equal(t, original, mustGet(t, f.store, k))
	stale, _ := f.store.IsStale(k)
	assert.False(t, stale, "rejections never touch the cache")
	assert.Empty(t, f.broadcaster.tags)

	settled := f.observer.all()
	require.Len(t, settled, 1)
	assert.Equal(t, activity.OutcomeRejected, settled[0].Outcome)
	require.Len(t, f.collector.Notifications(), 1)
}

func TestPerform_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	called := false
	_, err := f.sync.Perform(ctx, widgetTag, func(context.Context) (querycache.Record, error) {
		called = true
		return nil, nil
	}, querycache.NoUpdate(), Config{Action: "create"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestErrorDetails(t *testing.T) {
	assert.Empty(t, ErrorDetails(nil))
	assert.Equal(t, "name taken", ErrorDetails(&apiclient.APIError{Status: 422, Message: "name taken"}))
	assert.Equal(t, "Choose at least one item", ErrorDetails(shared.ErrEmptySelection))
}
