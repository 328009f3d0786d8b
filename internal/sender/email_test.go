package sender

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"regwatch/internal/model"
)

func TestEmailSenderBuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	s := NewEmailSender(SMTPConfig{Addr: "smtp.example.com:587", From: "regwatch@example.com"})
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	ch := &model.Channel{Type: model.ChannelEmail, Config: model.ChannelConfig{EmailAddress: "ops@example.com"}}
	if err := s.Send(context.Background(), ch, NewChangePayload(testChange())); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotAddr != "smtp.example.com:587" || gotFrom != "regwatch@example.com" {
		t.Errorf("wrong smtp endpoint: %s from %s", gotAddr, gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "ops@example.com" {
		t.Errorf("wrong recipient: %v", gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: [new] io.github.acme/search 1.0.0\r\n") {
		t.Errorf("subject missing from message:\n%s", msg)
	}
	if !strings.Contains(msg, "search tool") {
		t.Errorf("body missing from message:\n%s", msg)
	}
}

func TestEmailSenderUnconfigured(t *testing.T) {
	s := NewEmailSender(SMTPConfig{})
	ch := &model.Channel{Type: model.ChannelEmail, Config: model.ChannelConfig{EmailAddress: "ops@example.com"}}
	if err := s.Send(context.Background(), ch, NewChangePayload(testChange())); err == nil {
		t.Fatal("expected error when smtp is not configured")
	}

	s = NewEmailSender(SMTPConfig{Addr: "smtp.example.com:587", From: "a@b"})
	ch = &model.Channel{Type: model.ChannelEmail}
	if err := s.Send(context.Background(), ch, NewChangePayload(testChange())); err == nil {
		t.Fatal("expected error when channel has no address")
	}
}

func TestEmailSenderPropagatesFailure(t *testing.T) {
	s := NewEmailSender(SMTPConfig{Addr: "smtp.example.com:587", From: "a@b"})
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("relay refused")
	}
	ch := &model.Channel{Type: model.ChannelEmail, Config: model.ChannelConfig{EmailAddress: "ops@example.com"}}
	err := s.Send(context.Background(), ch, NewChangePayload(testChange()))
	if err == nil || !strings.Contains(err.Error(), "relay refused") {
		t.Fatalf("expected relay error, got %v", err)
	}
}

func TestRegistryFor(t *testing.T) {
	r := Registry{model.ChannelWebhook: NewWebhookSender(0)}
	if _, err := r.For(model.ChannelWebhook); err != nil {
		t.Fatalf("registered type must resolve: %v", err)
	}
	if _, err := r.For(model.ChannelRSS); !errors.Is(err, ErrNoSender) {
		t.Fatalf("unregistered type must return ErrNoSender, got %v", err)
	}
}
