package sender

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"regwatch/internal/model"
)

func testChange() *model.Change {
	return &model.Change{
		ID:         "c1",
		ServerName: "io.github.acme/search",
		ChangeType: model.ChangeTypeNew,
		NewVersion: "1.0.0",
		Server:     &model.Server{Name: "io.github.acme/search", Description: "search tool"},
	}
}

func TestWebhookSenderPostsPayload(t *testing.T) {
	var got Payload
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewWebhookSender(time.Second)
	ch := &model.Channel{Type: model.ChannelWebhook, Config: model.ChannelConfig{WebhookURL: srv.URL}}
	if err := s.Send(context.Background(), ch, NewChangePayload(testChange())); err != nil {
		t.Fatalf("send: %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("expected json content type, got %q", contentType)
	}
	if got.Kind != KindChange {
		t.Errorf("expected change kind on the wire, got %s", got.Kind)
	}
	if got.Change == nil || got.Change.ServerName != "io.github.acme/search" {
		t.Errorf("change lost on the wire: %+v", got.Change)
	}
}

func TestWebhookSenderNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhookSender(time.Second)
	ch := &model.Channel{Type: model.ChannelWebhook, Config: model.ChannelConfig{WebhookURL: srv.URL}}
	err := s.Send(context.Background(), ch, NewChangePayload(testChange()))
	if err == nil {
		t.Fatal("expected error on 502 response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error should name the status, got %v", err)
	}
}

func TestWebhookSenderMissingURL(t *testing.T) {
	s := NewWebhookSender(time.Second)
	ch := &model.Channel{Type: model.ChannelWebhook}
	if err := s.Send(context.Background(), ch, NewChangePayload(testChange())); err == nil {
		t.Fatal("expected error for channel without url")
	}
}

func TestWebhookSenderHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel the request context.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	s := NewWebhookSender(time.Minute)
	ch := &model.Channel{Type: model.ChannelWebhook, Config: model.ChannelConfig{WebhookURL: srv.URL}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Send(ctx, ch, NewChangePayload(testChange())); err == nil {
		t.Fatal("expected context cancellation to abort the send")
	}
}

func TestChatSendersEnvelope(t *testing.T) {
	tests := []struct {
		name  string
		build func(time.Duration) *ChatWebhookSender
		field string
	}{
		{"slack", NewSlackSender, "text"},
		{"discord", NewDiscordSender, "content"},
		{"teams", NewTeamsSender, "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
					t.Errorf("decode body: %v", err)
				}
			}))
			defer srv.Close()

			s := tt.build(time.Second)
			ch := &model.Channel{Config: model.ChannelConfig{WebhookURL: srv.URL}}
			if err := s.Send(context.Background(), ch, NewChangePayload(testChange())); err != nil {
				t.Fatalf("send: %v", err)
			}

			text, ok := got[tt.field]
			if !ok {
				t.Fatalf("expected %q envelope field, got %v", tt.field, got)
			}
			if !strings.Contains(text, "[new] io.github.acme/search 1.0.0") {
				t.Errorf("message must carry the title, got %q", text)
			}
			if !strings.Contains(text, "search tool") {
				t.Errorf("message must carry the summary, got %q", text)
			}
		})
	}
}
