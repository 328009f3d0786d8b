package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"regwatch/internal/model"
)

// ChatWebhookSender posts a text message to a chat service's incoming
// webhook. The services differ only in the JSON envelope field, so one
// implementation covers slack, discord and teams.
type ChatWebhookSender struct {
	client *http.Client
	field  string
}

// NewSlackSender builds a sender for Slack incoming webhooks.
func NewSlackSender(timeout time.Duration) *ChatWebhookSender {
	return newChatSender(timeout, "text")
}

// NewDiscordSender builds a sender for Discord webhooks.
func NewDiscordSender(timeout time.Duration) *ChatWebhookSender {
	return newChatSender(timeout, "content")
}

// NewTeamsSender builds a sender for Microsoft Teams incoming webhooks.
func NewTeamsSender(timeout time.Duration) *ChatWebhookSender {
	return newChatSender(timeout, "text")
}

func newChatSender(timeout time.Duration, field string) *ChatWebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ChatWebhookSender{client: &http.Client{Timeout: timeout}, field: field}
}

var _ Sender = (*ChatWebhookSender)(nil)

func (c *ChatWebhookSender) Send(ctx context.Context, ch *model.Channel, p *Payload) error {
	if ch.Config.WebhookURL == "" {
		return errors.New("chat channel has no webhook url configured")
	}
	text := p.Title
	if p.Summary != "" {
		text += "\n" + p.Summary
	}
	body, err := json.Marshal(map[string]string{c.field: text})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return postJSON(ctx, c.client, ch.Config.WebhookURL, body)
}
