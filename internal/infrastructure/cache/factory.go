package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/backoffice/internal/domain/querycache"
	"github.com/erp/backoffice/internal/infrastructure/config"
	"github.com/erp/backoffice/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Factory builds the query store and the invalidation broadcaster from
// configuration
type Factory struct {
	cacheConfig           config.CacheConfig
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	metrics               *telemetry.Metrics
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory and what it builds
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithFactoryMetrics sets the metrics recorded by the built store
func WithFactoryMetrics(m *telemetry.Metrics) FactoryOption {
	return func(f *Factory) {
		f.metrics = m
	}
}

// WithInMemoryFallback controls whether a Redis outage degrades to
// single-instance invalidation. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(cacheCfg config.CacheConfig, redisCfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		cacheConfig:           cacheCfg,
		redisConfig:           redisCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Layer is the cache a process runs with: the local store plus the channel
// that keeps peer instances in sync
type Layer struct {
	Store       *MemoryStore
	Broadcaster querycache.InvalidationBroadcaster

	invalidator *RedisInvalidator
	logger      *zap.Logger
}

// Distributed reports whether invalidations reach other instances
func (l *Layer) Distributed() bool {
	return l.invalidator != nil
}

// Start subscribes to peer invalidations in the background. It is a no-op
// for single-instance layers.
func (l *Layer) Start(ctx context.Context) {
	if l.invalidator == nil {
		return
	}
	go func() {
		err := l.invalidator.Subscribe(ctx, l.Store.InvalidateRemote)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error("Cache invalidation subscription ended", zap.Error(err))
		}
	}()
}

// Close stops the subscription and the store
func (l *Layer) Close() error {
	var errs []error
	if l.invalidator != nil {
		errs = append(errs, l.invalidator.Close())
	}
	errs = append(errs, l.Store.Close())
	return errors.Join(errs...)
}

// CreateStore creates the in-memory query store
func (f *Factory) CreateStore() *MemoryStore {
	return NewMemoryStore(Options{
		StaleTime:           f.cacheConfig.StaleTime,
		GCTime:              f.cacheConfig.GCTime,
		GCInterval:          f.cacheConfig.GCInterval,
		RefetchOnInvalidate: f.cacheConfig.RefetchOnInvalidate,
		RefetchTimeout:      f.cacheConfig.RefetchTimeout,
	}, WithMetrics(f.metrics), WithStoreLogger(f.logger.Named("querycache")))
}

// CreateInvalidator connects the Redis Pub/Sub invalidator
func (f *Factory) CreateInvalidator() (*RedisInvalidator, error) {
	inv, err := NewRedisInvalidator(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	},
		WithInvalidatorChannel(f.redisConfig.InvalidationChannel),
		WithInvalidatorLogger(f.logger.Named("invalidation")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis invalidator: %w", err)
	}
	return inv, nil
}

// CreateLayer builds the store and tries Redis for cross-instance
// invalidation, falling back to local-only invalidation when allowed
func (f *Factory) CreateLayer() (*Layer, error) {
	layer := &Layer{
		Store:       f.CreateStore(),
		Broadcaster: NopBroadcaster{},
		logger:      f.logger,
	}

	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, cache invalidation is local to this instance")
		return layer, nil
	}

	inv, err := f.CreateInvalidator()
	if err == nil {
		f.logger.Info("Using Redis cache invalidation",
			zap.String("channel", f.redisConfig.InvalidationChannel),
			zap.String("origin", inv.Origin()))
		layer.invalidator = inv
		layer.Broadcaster = inv
		return layer, nil
	}

	if !f.allowInMemoryFallback {
		_ = layer.Store.Close()
		return nil, fmt.Errorf("Redis required for cache invalidation but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, cache invalidation is local to this instance. "+
		"Other instances may serve stale data until their entries go stale.",
		zap.Error(err),
	)
	return layer, nil
}
