// Package cachesync keeps the query cache consistent with the backend while
// mutations are in flight. Every mutation follows the same protocol: cancel
// fetches of the tag, snapshot, apply optimistically, call the backend, then
// reconcile with the server entity or roll back, and finally invalidate.
package cachesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/backoffice/internal/domain/activity"
	"github.com/erp/backoffice/internal/domain/querycache"
	"github.com/erp/backoffice/internal/infrastructure/apiclient"
	"github.com/erp/backoffice/internal/infrastructure/logger"
	"github.com/erp/backoffice/internal/infrastructure/notify"
	"github.com/erp/backoffice/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MutationFunc performs the network mutation and returns the server's
// canonical entity, or nil when the response carries none
type MutationFunc func(ctx context.Context) (querycache.Record, error)

// Config describes one mutation
type Config struct {
	// EntityID is the mutated entity; it is ignored unless HasEntity is set
	EntityID  int64
	HasEntity bool

	// UpdateEntity applies the updater to the entity entry as well as the lists
	UpdateEntity bool

	// Remove deletes the entity: list items are dropped by the updater and
	// the entity entry is removed outright
	Remove bool

	// Action names the mutation in logs, metrics and the activity journal
	Action string

	// SuccessMessage and FailureMessage are shown to the user. An empty
	// SuccessMessage sends no success notification.
	SuccessMessage string
	FailureMessage string

	// AlsoInvalidate lists further tags whose data the mutation changes
	AlsoInvalidate []string
}

func (c Config) entityKey(tag string) *querycache.Key {
	if !c.HasEntity {
		return nil
	}
	k := querycache.EntityKey(tag, c.EntityID)
	return &k
}

// Settlement is the outcome of one mutation
type Settlement struct {
	Tag       string
	Action    string
	EntityID  int64
	HasEntity bool
	Outcome   activity.Outcome
	Err       error
	Duration  time.Duration
}

// SettleObserver is told about every settled or rejected mutation
type SettleObserver interface {
	MutationSettled(ctx context.Context, s Settlement)
}

// Synchronizer runs mutations against a query store
type Synchronizer struct {
	store       querycache.Store
	notifier    notify.Notifier
	broadcaster querycache.InvalidationBroadcaster
	observers   []SettleObserver
	metrics     *telemetry.Metrics
	logger      *zap.Logger
	now         func() time.Time

	mu   sync.Mutex
	tags map[string]*tagState
}

// tagState serialises the synchronous phases of the mutations of one tag.
// window holds every mutation since the tag last had none pending.
type tagState struct {
	mu     sync.Mutex
	window []*inflight
}

// inflight is one mutation of the window
type inflight struct {
	snap      querycache.MutationSnapshot
	entityKey *querycache.Key
	updater   querycache.Updater
	cfg       Config
	settled   bool
	failed    bool
	rec       querycache.Record
}

// closeWindow forgets the window once no mutation in it is pending
func (st *tagState) closeWindow() {
	for _, op := range st.window {
		if !op.settled {
			return
		}
	}
	st.window = nil
}

// Option configures a Synchronizer
type Option func(*Synchronizer)

// WithBroadcaster announces settled tags to peer instances
func WithBroadcaster(b querycache.InvalidationBroadcaster) Option {
	return func(s *Synchronizer) {
		s.broadcaster = b
	}
}

// WithObserver adds a settle observer
func WithObserver(o SettleObserver) Option {
	return func(s *Synchronizer) {
		s.observers = append(s.observers, o)
	}
}

// WithMetrics records mutation outcomes
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Synchronizer) {
		s.metrics = m
	}
}

// WithLogger sets the fallback logger used outside requests
func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = l
	}
}

// WithClock overrides the clock used for updated_at and durations
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// NewSynchronizer creates a Synchronizer
func NewSynchronizer(store querycache.Store, notifier notify.Notifier, opts ...Option) *Synchronizer {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	s := &Synchronizer{
		store:    store,
		notifier: notifier,
		logger:   zap.NewNop(),
		now:      time.Now,
		tags:     make(map[string]*tagState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the synchronizer's clock reading
func (s *Synchronizer) Now() time.Time {
	return s.now()
}

func (s *Synchronizer) stateFor(tag string) *tagState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tags[tag]
	if !ok {
		st = &tagState{}
		s.tags[tag] = st
	}
	return st
}

func (s *Synchronizer) log(ctx context.Context) *zap.Logger {
	if logger.HasLogger(ctx) {
		return logger.L(ctx)
	}
	return s.logger
}

// Perform runs one optimistic mutation on tag. On success the returned
// record is the server entity; on failure the cache is back to its state
// before the call and the error wraps the network error.
func (s *Synchronizer) Perform(ctx context.Context, tag string, mutate MutationFunc, updater querycache.Updater, cfg Config) (querycache.Record, error) {
	start := s.now()
	ctx, span := telemetry.StartSpan(ctx, "cachesync.Perform",
		attribute.String("cache.tag", tag),
		attribute.String("mutation.action", cfg.Action),
	)
	defer span.End()

	st := s.stateFor(tag)
	st.mu.Lock()

	if err := s.store.CancelQueries(ctx, tag); err != nil {
		st.mu.Unlock()
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("cancelling queries for %s: %w", tag, err)
	}
	release := s.store.Hold(tag)

	entityKey := cfg.entityKey(tag)
	snap := s.store.Snapshot(tag, entityKey)
	telemetry.AddEvent(span, "snapshot", "kind", snap.Kind().String(), "lists", len(snap.Lists))

	op := &inflight{snap: snap, entityKey: entityKey, updater: updater, cfg: cfg}
	st.window = append(st.window, op)
	s.applyOptimistic(op)
	st.mu.Unlock()

	rec, err := mutate(ctx)

	st.mu.Lock()
	op.settled, op.rec = true, rec
	if err != nil {
		op.failed = true
		s.rollback(tag, st.window)
	} else {
		s.reconcile(tag, rec, cfg)
	}
	st.closeWindow()
	release()
	st.mu.Unlock()

	outcome := activity.OutcomeSuccess
	if err != nil {
		outcome = activity.OutcomeRolledBack
		telemetry.RecordError(span, err)
		s.notifier.NotifyError(ctx, cfg.FailureMessage, ErrorDetails(err))
		s.log(ctx).Warn("Mutation rolled back",
			zap.String("tag", tag),
			zap.String("action", cfg.Action),
			zap.String("snapshot", snap.Kind().String()),
			zap.Error(err))
	} else if cfg.SuccessMessage != "" {
		s.notifier.NotifySuccess(ctx, cfg.SuccessMessage)
	}

	s.settle(ctx, tag, cfg, outcome, err, s.now().Sub(start))

	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", cfg.Action, tag, err)
	}
	return rec, nil
}

// applyOptimistic writes the predicted state. List updaters only ever see
// Paginated entries and the entity updater only the entity entry.
func (s *Synchronizer) applyOptimistic(op *inflight) {
	updater, entityKey, cfg := op.updater, op.entityKey, op.cfg
	if updater.List != nil && len(op.snap.Lists) > 0 {
		lists := querycache.Updater{List: updater.List}
		keys := make([]querycache.Key, len(op.snap.Lists))
		for i, c := range op.snap.Lists {
			keys[i] = c.Key
		}
		s.store.SetMany(keys, func(_ querycache.Key, e querycache.Entry) querycache.Entry {
			return lists.Apply(e)
		})
	}

	if entityKey == nil {
		return
	}
	switch {
	case cfg.Remove:
		s.store.Remove(*entityKey)
	case cfg.UpdateEntity && updater.Entity != nil:
		entity := querycache.Updater{Entity: updater.Entity}
		s.store.SetMany([]querycache.Key{*entityKey}, func(_ querycache.Key, e querycache.Entry) querycache.Entry {
			return entity.Apply(e)
		})
	}
}

// rollback brings the tag back to its state before the oldest mutation of
// the window, then replays every mutation of the window that has not failed,
// in start order. A snapshot taken while an earlier mutation was pending
// holds that mutation's prediction.
func (s *Synchronizer) rollback(tag string, window []*inflight) {
	for i := len(window) - 1; i >= 0; i-- {
		s.store.Restore(window[i].snap)
	}
	for _, op := range window {
		if op.failed {
			continue
		}
		s.applyOptimistic(op)
		if op.settled {
			s.reconcile(tag, op.rec, op.cfg)
		}
	}
}

// reconcile replaces the optimistic prediction with the server entity
func (s *Synchronizer) reconcile(tag string, rec querycache.Record, cfg Config) {
	if rec == nil || cfg.Remove {
		return
	}
	id, ok := rec.ID()
	if !ok {
		return
	}
	replace := querycache.ReplaceByID(rec)
	s.store.SetMany(s.store.ListKeys(tag), func(_ querycache.Key, e querycache.Entry) querycache.Entry {
		return querycache.Updater{List: replace.List}.Apply(e)
	})
	s.store.Set(querycache.EntityKey(tag, id), querycache.Single{Record: rec.Clone()})
}

// settle invalidates the mutated tags locally and on peer instances and
// reports the outcome
func (s *Synchronizer) settle(ctx context.Context, tag string, cfg Config, outcome activity.Outcome, err error, d time.Duration) {
	tags := append([]string{tag}, cfg.AlsoInvalidate...)
	for _, t := range tags {
		s.store.Invalidate(t)
		if s.broadcaster == nil {
			continue
		}
		if perr := s.broadcaster.PublishInvalidation(context.WithoutCancel(ctx), t); perr != nil {
			s.log(ctx).Warn("Failed to broadcast cache invalidation", zap.String("tag", t), zap.Error(perr))
		}
	}

	s.metrics.MutationSettled(tag, cfg.Action, string(outcome), d)
	s.observe(ctx, Settlement{
		Tag:       tag,
		Action:    cfg.Action,
		EntityID:  cfg.EntityID,
		HasEntity: cfg.HasEntity,
		Outcome:   outcome,
		Err:       err,
		Duration:  d,
	})
}

func (s *Synchronizer) observe(ctx context.Context, st Settlement) {
	for _, o := range s.observers {
		o.MutationSettled(ctx, st)
	}
}

// Reject reports a mutation refused before it reached the cache or the
// network, typically a failed precondition. The cache is not touched.
func (s *Synchronizer) Reject(ctx context.Context, tag string, cfg Config, err error) error {
	s.notifier.NotifyError(ctx, cfg.FailureMessage, ErrorDetails(err))
	s.metrics.MutationSettled(tag, cfg.Action, string(activity.OutcomeRejected), 0)
	s.observe(ctx, Settlement{
		Tag:       tag,
		Action:    cfg.Action,
		EntityID:  cfg.EntityID,
		HasEntity: cfg.HasEntity,
		Outcome:   activity.OutcomeRejected,
		Err:       err,
	})
	return err
}

// ErrorDetails extracts the message worth showing the user from err
func ErrorDetails(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
