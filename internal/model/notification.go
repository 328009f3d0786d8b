package model

import "time"

// NotificationStatus is the delivery state of one notification record.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification is one delivery attempt record for a (change, subscription,
// channel) tuple. It starts pending, and becomes sent on success or failed
// once the retry budget is exhausted; both are terminal.
type Notification struct {
	ID             string             `json:"id"`
	SubscriptionID string             `json:"subscription_id"`
	ChannelID      string             `json:"channel_id"`
	ChangeID       string             `json:"change_id"`
	Status         NotificationStatus `json:"status"`
	Attempts       int                `json:"attempts"`
	NextRetry      time.Time          `json:"next_retry,omitzero"`
	SentAt         time.Time          `json:"sent_at,omitzero"`
	Error          string             `json:"error,omitempty"`
	CreatedAt      time.Time          `json:"created_at,omitzero"`
}
