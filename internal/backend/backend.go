package backend

import (
	"context"

	"wamda.app/notifier/internal/entity"
)

// ChannelStatus mirrors the realtime transport's connection transitions.
type ChannelStatus string

const (
	StatusSubscribed ChannelStatus = "subscribed"
	StatusError      ChannelStatus = "error"
	StatusTimedOut   ChannelStatus = "timed_out"
	StatusClosed     ChannelStatus = "closed"
)

// Store is the durable side of the notification backend.
type Store interface {
	// RecentNotifications returns the newest notifications for a recipient,
	// newest first, each with its actor profile attached when one exists.
	RecentNotifications(ctx context.Context, recipientID int64, limit int) ([]entity.Notification, error)
	// NotificationsPage returns a limit/offset window for the REST surface.
	NotificationsPage(ctx context.Context, recipientID int64, limit, offset int) ([]entity.Notification, error)
	// MarkRead flips is_read for exactly the given ids, scoped to the
	// recipient so one user can never touch another user's rows.
	MarkRead(ctx context.Context, recipientID int64, ids []int64) error
	// MarkAllRead flips is_read for every unread row of the recipient.
	MarkAllRead(ctx context.Context, recipientID int64) error
	CountUnread(ctx context.Context, recipientID int64) (int64, error)
	// ActorProfile looks up a single actor projection.
	ActorProfile(ctx context.Context, actorID int64) (*entity.ActorProfile, error)
	// CreateNotification inserts a row and fans it out to the recipient's
	// realtime channel.
	CreateNotification(ctx context.Context, n *entity.Notification) error
}

// InsertHandler receives one decoded row per insert event, in delivery order.
type InsertHandler func(entity.Notification)

// StatusHandler receives channel lifecycle transitions. The error is non-nil
// only for StatusError.
type StatusHandler func(status ChannelStatus, cause error)

// Subscription is a live insert-event stream. Close must be idempotent.
type Subscription interface {
	Close() error
}

// Realtime opens insert-event subscriptions scoped to one recipient.
type Realtime interface {
	SubscribeInserts(ctx context.Context, recipientID int64, onInsert InsertHandler, onStatus StatusHandler) (Subscription, error)
}
