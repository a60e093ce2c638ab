package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/erp/backoffice/internal/domain/querycache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultInvalidationChannel is the Pub/Sub channel shared by all instances
	DefaultInvalidationChannel = "backoffice:cache:invalidate"

	defaultCloseTimeout = 5 * time.Second
)

// InvalidationMessage announces that a tag changed on one instance
type InvalidationMessage struct {
	Tag       string `json:"tag"`
	Origin    string `json:"origin"`
	Timestamp int64  `json:"timestamp"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// RedisInvalidator spreads tag invalidations between instances over Redis
// Pub/Sub. Messages published by this instance are ignored on receipt.
type RedisInvalidator struct {
	client     *redis.Client
	ownsClient bool
	channel    string
	origin     string
	logger     *zap.Logger
	cancelFn   context.CancelFunc
	doneCh     chan struct{}
	doneOnce   sync.Once
	mu         sync.Mutex
	isRunning  bool
}

// RedisInvalidatorOption is a functional option for configuring the invalidator
type RedisInvalidatorOption func(*RedisInvalidator)

// WithInvalidatorChannel sets the Pub/Sub channel name
func WithInvalidatorChannel(channel string) RedisInvalidatorOption {
	return func(i *RedisInvalidator) {
		i.channel = channel
	}
}

// WithInvalidatorLogger sets the logger for the invalidator
func WithInvalidatorLogger(logger *zap.Logger) RedisInvalidatorOption {
	return func(i *RedisInvalidator) {
		i.logger = logger
	}
}

// WithOrigin sets the instance id stamped on published messages
func WithOrigin(origin string) RedisInvalidatorOption {
	return func(i *RedisInvalidator) {
		i.origin = origin
	}
}

// NewRedisInvalidator connects to Redis and creates an invalidator that owns
// the client
func NewRedisInvalidator(cfg RedisConfig, opts ...RedisInvalidatorOption) (*RedisInvalidator, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	i := NewRedisInvalidatorWithClient(client, opts...)
	i.ownsClient = true
	return i, nil
}

// NewRedisInvalidatorWithClient creates an invalidator with an existing client.
// The caller keeps ownership of the client.
func NewRedisInvalidatorWithClient(client *redis.Client, opts ...RedisInvalidatorOption) *RedisInvalidator {
	i := &RedisInvalidator{
		client:  client,
		channel: DefaultInvalidationChannel,
		origin:  uuid.NewString(),
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Origin returns the instance id stamped on published messages
func (i *RedisInvalidator) Origin() string {
	return i.origin
}

// PublishInvalidation tells peer instances that tag changed
func (i *RedisInvalidator) PublishInvalidation(ctx context.Context, tag string) error {
	data, err := json.Marshal(InvalidationMessage{
		Tag:       tag,
		Origin:    i.origin,
		Timestamp: time.Now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		i.logger.Error("Failed to publish cache invalidation",
			zap.String("channel", i.channel),
			zap.String("tag", tag),
			zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	i.logger.Debug("Published cache invalidation",
		zap.String("tag", tag),
		zap.String("channel", i.channel))
	return nil
}

// Subscribe listens for invalidations from other instances and calls
// onInvalidate with each foreign tag. It blocks until ctx is cancelled or
// Close is called.
func (i *RedisInvalidator) Subscribe(ctx context.Context, onInvalidate func(tag string)) error {
	i.mu.Lock()
	if i.isRunning {
		i.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	i.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	i.cancelFn = cancel
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		i.isRunning = false
		i.mu.Unlock()
		i.markDone()
	}()

	pubsub := i.client.Subscribe(subCtx, i.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	i.logger.Info("Subscribed to cache invalidation channel",
		zap.String("channel", i.channel),
		zap.String("origin", i.origin))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			i.logger.Info("Cache invalidation subscription stopped")
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				i.logger.Warn("Cache invalidation channel closed")
				return nil
			}
			i.handle(msg.Payload, onInvalidate)
		}
	}
}

// handle decodes one payload and dispatches foreign tags
func (i *RedisInvalidator) handle(payload string, onInvalidate func(tag string)) bool {
	var m InvalidationMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		i.logger.Error("Failed to unmarshal cache invalidation",
			zap.String("payload", payload),
			zap.Error(err))
		return false
	}
	if m.Origin == i.origin || m.Tag == "" {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("Panic in cache invalidation callback", zap.Any("panic", r))
		}
	}()
	onInvalidate(m.Tag)
	return true
}

func (i *RedisInvalidator) markDone() {
	i.doneOnce.Do(func() {
		close(i.doneCh)
	})
}

// Close stops the subscription and releases the client if owned
func (i *RedisInvalidator) Close() error {
	i.mu.Lock()
	cancelFn := i.cancelFn
	i.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-i.doneCh:
		case <-time.After(defaultCloseTimeout):
			i.logger.Warn("Timeout waiting for subscription to stop")
		}
	}

	if i.ownsClient {
		return i.client.Close()
	}
	return nil
}

// NopBroadcaster drops invalidations; used for single-instance deployments
type NopBroadcaster struct{}

// PublishInvalidation does nothing
func (NopBroadcaster) PublishInvalidation(context.Context, string) error { return nil }

var (
	_ querycache.InvalidationBroadcaster = (*RedisInvalidator)(nil)
	_ querycache.InvalidationBroadcaster = NopBroadcaster{}
)
