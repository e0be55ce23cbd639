// Package notify delivers order status events to external consumers.
// Delivery is best-effort and must never block or fail the trading pipeline.
package notify

import (
	"context"
	"time"

	"github.com/mselser95/dex-router/pkg/types"
	"go.uber.org/zap"
)

// EventType identifies what happened.
type EventType string

const (
	EventOrderStatusChanged EventType = "ORDER_STATUS_CHANGED"
)

// Event is the payload emitted on every order status change.
type Event struct {
	Type      EventType         `json:"type"`
	OrderID   string            `json:"order_id"`
	UserID    string            `json:"user_id"`
	OldStatus types.OrderStatus `json:"old_status"`
	NewStatus types.OrderStatus `json:"new_status"`
	Detail    string            `json:"detail,omitempty"`
	At        time.Time         `json:"at"`
}

// Notifier is the interface for event consumers. Implementations must return
// quickly; slow delivery belongs in a goroutine inside the implementation.
type Notifier interface {
	Emit(ctx context.Context, event Event)
}

// LogNotifier writes events to the structured log. It is always registered so
// an order trail exists even with no external consumer configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Emit logs the event.
func (n *LogNotifier) Emit(_ context.Context, event Event) {
	EventsEmittedTotal.WithLabelValues("log").Inc()

	n.logger.Info("order-status-changed",
		zap.String("order_id", event.OrderID),
		zap.String("user_id", event.UserID),
		zap.String("old_status", string(event.OldStatus)),
		zap.String("new_status", string(event.NewStatus)),
		zap.String("detail", event.Detail))
}

// MultiNotifier fans an event out to several notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier combines notifiers into one.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Emit delivers the event to every registered notifier.
func (n *MultiNotifier) Emit(ctx context.Context, event Event) {
	for _, notifier := range n.notifiers {
		notifier.Emit(ctx, event)
	}
}
