package model

import "time"

// SubscriptionStatus is the lifecycle state of a subscription. The engine
// only reads it; lifecycle management belongs to the subscriber-facing
// layer.
type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionPaused  SubscriptionStatus = "paused"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// SubscriptionFilter selects which changes a subscription cares about.
// Populated fields are ANDed together; values within a field are ORed.
// An empty field imposes no constraint.
type SubscriptionFilter struct {
	// Namespaces are glob patterns matched against the server name.
	// Supported grammar: "*" matches anything, "prefix/*" matches the
	// prefix plus anything after the slash, a trailing "*" matches by
	// prefix, and a pattern without "*" is an exact match.
	Namespaces []string `json:"namespaces,omitempty"`
	// Keywords are case-insensitive substrings matched against
	// "name + ' ' + description".
	Keywords []string `json:"keywords,omitempty"`
	// Servers are exact server names.
	Servers []string `json:"servers,omitempty"`
	// ChangeTypes restricts the change classification; empty means all.
	ChangeTypes []ChangeType `json:"change_types,omitempty"`
	// PackageTypes restricts to servers publishing a package under one of
	// these registry types (case-insensitive), e.g. "npm".
	PackageTypes []string `json:"package_types,omitempty"`
}

// Subscription is one subscriber's standing interest in registry changes,
// fanned out to one or more channels.
type Subscription struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	Filter            SubscriptionFilter `json:"filter"`
	Channels          []*Channel         `json:"channels,omitempty"`
	Status            SubscriptionStatus `json:"status"`
	NotificationCount int                `json:"notification_count"`
	LastReset         time.Time          `json:"last_reset,omitzero"`
	LastNotified      time.Time          `json:"last_notified,omitzero"`
	CreatedAt         time.Time          `json:"created_at,omitzero"`
}

// ChannelType identifies a notification destination kind.
type ChannelType string

const (
	ChannelDiscord  ChannelType = "discord"
	ChannelSlack    ChannelType = "slack"
	ChannelEmail    ChannelType = "email"
	ChannelWebhook  ChannelType = "webhook"
	ChannelRSS      ChannelType = "rss"
	ChannelTelegram ChannelType = "telegram"
	ChannelTeams    ChannelType = "teams"
)

// DigestFrequency is a channel's batching preference. Immediate channels
// receive one payload per change; digest channels receive one batched
// payload per window.
type DigestFrequency string

const (
	FrequencyImmediate DigestFrequency = "immediate"
	FrequencyHourly    DigestFrequency = "hourly"
	FrequencyDaily     DigestFrequency = "daily"
	FrequencyWeekly    DigestFrequency = "weekly"
)

// Window returns the collection window for a digest frequency, or 0 for
// immediate delivery.
func (f DigestFrequency) Window() time.Duration {
	switch f {
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// ChannelConfig is the channel-specific delivery configuration. Exactly
// which fields matter depends on the channel type; senders validate what
// they need.
type ChannelConfig struct {
	// WebhookURL is the destination for webhook, discord, slack and teams
	// channels.
	WebhookURL string `json:"webhook_url,omitempty"`
	// EmailAddress is the recipient for email channels.
	EmailAddress string `json:"email_address,omitempty"`
	// ChatID is the destination chat for telegram channels.
	ChatID int64 `json:"chat_id,omitempty"`
	// Frequency selects immediate delivery or a digest window. Empty
	// means immediate.
	Frequency DigestFrequency `json:"frequency,omitempty"`
}

// EffectiveFrequency normalizes an unset frequency to immediate.
func (c ChannelConfig) EffectiveFrequency() DigestFrequency {
	if c.Frequency == "" {
		return FrequencyImmediate
	}
	return c.Frequency
}

// Channel is one configured destination of a subscription, with its
// delivery bookkeeping. Stats are updated by the dispatcher through the
// store, never concurrently in place.
type Channel struct {
	ID             string        `json:"id"`
	SubscriptionID string        `json:"subscription_id"`
	Type           ChannelType   `json:"type"`
	Config         ChannelConfig `json:"config"`
	Enabled        bool          `json:"enabled"`
	SuccessCount   int           `json:"success_count"`
	FailureCount   int           `json:"failure_count"`
	LastSuccess    time.Time     `json:"last_success,omitzero"`
	LastFailure    time.Time     `json:"last_failure,omitzero"`
	LastError      string        `json:"last_error,omitempty"`
}
