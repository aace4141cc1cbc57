package service

import (
	"sync/atomic"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/app/port"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"
)

type handlerRef struct {
	fn port.NotificationHandler
}

// NotificationBus delivers lifecycle notifications to at most one handler.
// Delivery is synchronous, in-process and best effort.
type NotificationBus struct {
	handler atomic.Pointer[handlerRef]
	logger  port.Logger
}

var _ port.NotificationPublisher = (*NotificationBus)(nil)

// NewNotificationBus creates a bus with no handler.
func NewNotificationBus(l port.Logger) *NotificationBus {
	return &NotificationBus{logger: l.With("component", "NotificationBus")}
}

// SetHandler replaces the registered handler. A nil handler clears it.
func (b *NotificationBus) SetHandler(fn port.NotificationHandler) {
	if fn == nil {
		b.handler.Store(nil)
		return
	}
	b.handler.Store(&handlerRef{fn: fn})
}

// Publish invokes the handler, or logs and drops the event when none is set.
func (b *NotificationBus) Publish(event entity.TransactionNotification) {
	ref := b.handler.Load()
	if ref == nil {
		b.logger.Debug("No notification handler registered, dropping event",
			"tx_identifier", event.TxIdentifier, "status", event.Status)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Notification handler panicked", "status", event.Status, "panic", r)
		}
	}()
	ref.fn(event)
}
