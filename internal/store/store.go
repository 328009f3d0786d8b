package store

import (
	"context"
	"errors"
	"time"

	"regwatch/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// SnapshotStore persists registry snapshots. Snapshots are append-only;
// the only mutation is retention pruning.
type SnapshotStore interface {
	// PutSnapshot durably stores a snapshot.
	PutSnapshot(ctx context.Context, snap *model.Snapshot) error

	// GetSnapshot returns the snapshot with the given id, or ErrNotFound.
	GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error)

	// LatestSnapshot returns the most recent snapshot, or ErrNotFound
	// when none has been stored yet.
	LatestSnapshot(ctx context.Context) (*model.Snapshot, error)

	// DeleteSnapshotsBefore prunes snapshots older than cutoff and
	// returns how many were removed.
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SubscriptionStore provides read access to subscriptions and their
// channels, plus the narrow stat-update contract the dispatcher needs.
type SubscriptionStore interface {
	// PutSubscription stores or replaces a subscription and its channels.
	PutSubscription(ctx context.Context, sub *model.Subscription) error

	// ListActiveSubscriptions returns every subscription with status
	// active, channels attached.
	ListActiveSubscriptions(ctx context.Context) ([]*model.Subscription, error)

	// GetChannels returns the channels of one subscription.
	GetChannels(ctx context.Context, subscriptionID string) ([]*model.Channel, error)

	// RecordChannelSuccess bumps the channel's success stats.
	RecordChannelSuccess(ctx context.Context, channelID string, at time.Time) error

	// RecordChannelFailure bumps the channel's failure stats and records
	// the last error text.
	RecordChannelFailure(ctx context.Context, channelID string, at time.Time, errText string) error
}

// ChangeStore is the change-history collaborator: append detected
// changes, read them back by detection time.
type ChangeStore interface {
	// PutChanges appends a batch of detected changes.
	PutChanges(ctx context.Context, changes []*model.Change) error

	// ChangesSince returns changes with DetectedAt >= since, oldest
	// first, capped at limit (0 means no cap).
	ChangesSince(ctx context.Context, since time.Time, limit int) ([]*model.Change, error)
}

// NotificationStore records delivery attempts.
type NotificationStore interface {
	// PutNotification stores a new delivery record.
	PutNotification(ctx context.Context, n *model.Notification) error

	// UpdateNotification replaces the stored record with n (matched by ID).
	UpdateNotification(ctx context.Context, n *model.Notification) error

	// ListNotifications returns delivery records for a subscription,
	// newest first, capped at limit (0 means no cap).
	ListNotifications(ctx context.Context, subscriptionID string, limit int) ([]*model.Notification, error)
}

// Store is the full storage contract the engine runs against.
type Store interface {
	SnapshotStore
	SubscriptionStore
	ChangeStore
	NotificationStore

	// Close releases underlying resources.
	Close() error
}
