package websocket

import (
	"context"
	"log/slog"

	"socialhub/internal/microservices/http-api/models"
)

// Publisher fans a frame out to every connection of a user. The local
// Registry and the RedisRelay both implement it.
type Publisher interface {
	Publish(ctx context.Context, userID string, frame []byte) error
}

// UnreadCounter is the slice of the notification store the dispatcher reads
type UnreadCounter interface {
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// Dispatcher turns committed notification mutations into push events. Every
// mutation is followed by unread-count-updated carrying a fresh store count.
type Dispatcher struct {
	publisher Publisher
	counter   UnreadCounter
	logger    *slog.Logger
}

func NewDispatcher(publisher Publisher, counter UnreadCounter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{publisher: publisher, counter: counter, logger: logger}
}

func (d *Dispatcher) NotificationCreated(ctx context.Context, notification *models.Notification) {
	d.emit(ctx, notification.UserID, NewNotificationEvent(notification))
	d.emitUnreadCount(ctx, notification.UserID)
}

func (d *Dispatcher) NotificationRead(ctx context.Context, userID string, notificationID int64) {
	d.emit(ctx, userID, NewNotificationRead(notificationID))
	d.emitUnreadCount(ctx, userID)
}

func (d *Dispatcher) NotificationDeleted(ctx context.Context, userID string, notificationID int64) {
	d.emit(ctx, userID, NewNotificationDeleted(notificationID))
	d.emitUnreadCount(ctx, userID)
}

func (d *Dispatcher) AllNotificationsRead(ctx context.Context, userID string) {
	d.emit(ctx, userID, NewAllNotificationsRead())
	d.emitUnreadCount(ctx, userID)
}

func (d *Dispatcher) emitUnreadCount(ctx context.Context, userID string) {
	count, err := d.counter.CountUnread(ctx, userID)
	if err != nil {
		// clients converge on the next mutation or poll
		d.logger.Error("unread_count_failed", "user_id", userID, "error", err)
		return
	}
	d.emit(ctx, userID, NewUnreadCount(count))
}

func (d *Dispatcher) emit(ctx context.Context, userID string, env *Envelope) {
	frame, err := env.ToJSON()
	if err != nil {
		return
	}
	if err := d.publisher.Publish(ctx, userID, frame); err != nil {
		d.logger.Error("event_publish_failed", "user_id", userID, "type", env.Type, "error", err)
		return
	}
	d.logger.Debug("event_dispatched", "user_id", userID, "type", env.Type)
}
