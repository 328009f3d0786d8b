package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"regwatch/internal/model"
)

// WebhookSender POSTs the payload as JSON to the channel's webhook URL.
// The wire shape is the Payload struct itself; subscribers integrate
// against its documented field names.
type WebhookSender struct {
	client *http.Client
}

// NewWebhookSender returns a webhook sender with the given request
// timeout (a zero timeout means 10s).
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{client: &http.Client{Timeout: timeout}}
}

var _ Sender = (*WebhookSender)(nil)

func (w *WebhookSender) Send(ctx context.Context, ch *model.Channel, p *Payload) error {
	if ch.Config.WebhookURL == "" {
		return errors.New("webhook channel has no url configured")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return postJSON(ctx, w.client, ch.Config.WebhookURL, body)
}

// postJSON performs the POST shared by all webhook-style senders and
// normalizes non-2xx responses into errors.
func postJSON(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
