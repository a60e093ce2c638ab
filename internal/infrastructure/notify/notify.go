// Package notify delivers user-facing success and error notifications for
// mutations. Delivery is fire-and-forget: a notifier never fails its caller.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/erp/backoffice/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Level is the severity of a notification
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is one message shown to the user
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Time    time.Time `json:"time"`
}

// Notifier is the notification sink used by the mutation protocol
type Notifier interface {
	NotifySuccess(ctx context.Context, msg string)
	NotifyError(ctx context.Context, msg, details string)
}

// LogNotifier writes notifications to the request logger
type LogNotifier struct {
	base *zap.Logger
}

// NewLogNotifier creates a notifier that logs through base, or through the
// request logger when the context carries one
func NewLogNotifier(base *zap.Logger) *LogNotifier {
	if base == nil {
		base = zap.NewNop()
	}
	return &LogNotifier{base: base}
}

func (n *LogNotifier) log(ctx context.Context) *zap.Logger {
	if logger.HasLogger(ctx) {
		return logger.L(ctx)
	}
	return n.base
}

// NotifySuccess implements Notifier
func (n *LogNotifier) NotifySuccess(ctx context.Context, msg string) {
	n.log(ctx).Info("Notification", zap.String("level", string(LevelSuccess)), zap.String("message", msg))
}

// NotifyError implements Notifier
func (n *LogNotifier) NotifyError(ctx context.Context, msg, details string) {
	n.log(ctx).Warn("Notification",
		zap.String("level", string(LevelError)),
		zap.String("message", msg),
		zap.String("details", details))
}

// Collector gathers the notifications raised while serving one request so
// they can be returned with the response
type Collector struct {
	mu    sync.Mutex
	items []Notification
}

// Add appends a notification
func (c *Collector) Add(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, n)
}

// Notifications returns the collected notifications in order
func (c *Collector) Notifications() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.items))
	copy(out, c.items)
	return out
}

type collectorKey struct{}

// WithCollector attaches a fresh collector to ctx
func WithCollector(ctx context.Context) (context.Context, *Collector) {
	c := &Collector{}
	return context.WithValue(ctx, collectorKey{}, c), c
}

// CollectorFrom returns the collector attached to ctx, or nil
func CollectorFrom(ctx context.Context) *Collector {
	c, _ := ctx.Value(collectorKey{}).(*Collector)
	return c
}

// RequestNotifier adds notifications to the collector of the current request.
// Outside a request it does nothing.
type RequestNotifier struct {
	now func() time.Time
}

// NewRequestNotifier creates a RequestNotifier
func NewRequestNotifier() *RequestNotifier {
	return &RequestNotifier{now: time.Now}
}

// NotifySuccess implements Notifier
func (n *RequestNotifier) NotifySuccess(ctx context.Context, msg string) {
	if c := CollectorFrom(ctx); c != nil {
		c.Add(Notification{Level: LevelSuccess, Message: msg, Time: n.now()})
	}
}

// NotifyError implements Notifier
func (n *RequestNotifier) NotifyError(ctx context.Context, msg, details string) {
	if c := CollectorFrom(ctx); c != nil {
		c.Add(Notification{Level: LevelError, Message: msg, Details: details, Time: n.now()})
	}
}

// Multi fans a notification out to several notifiers
type Multi []Notifier

// NotifySuccess implements Notifier
func (m Multi) NotifySuccess(ctx context.Context, msg string) {
	for _, n := range m {
		n.NotifySuccess(ctx, msg)
	}
}

// NotifyError implements Notifier
func (m Multi) NotifyError(ctx context.Context, msg, details string) {
	for _, n := range m {
		n.NotifyError(ctx, msg, details)
	}
}

// Nop discards every notification
type Nop struct{}

// NotifySuccess implements Notifier
func (Nop) NotifySuccess(context.Context, string) {}

// NotifyError implements Notifier
func (Nop) NotifyError(context.Context, string, string) {}
