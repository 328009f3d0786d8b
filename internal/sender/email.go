package sender

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"regwatch/internal/model"
)

// SMTPConfig holds the outbound mail settings shared by all email
// channels.
type SMTPConfig struct {
	Addr     string `json:"addr" yaml:"addr"` // host:port
	From     string `json:"from" yaml:"from"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// EmailSender delivers payloads as plain-text mail over SMTP. Rendering
// richer bodies (HTML templates) belongs to a mail-presentation layer,
// not here.
type EmailSender struct {
	cfg SMTPConfig
	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSender builds an SMTP-backed email sender.
func NewEmailSender(cfg SMTPConfig) *EmailSender {
	return &EmailSender{cfg: cfg, send: smtp.SendMail}
}

var _ Sender = (*EmailSender)(nil)

func (e *EmailSender) Send(ctx context.Context, ch *model.Channel, p *Payload) error {
	if ch.Config.EmailAddress == "" {
		return errors.New("email channel has no address configured")
	}
	if e.cfg.Addr == "" || e.cfg.From == "" {
		return errors.New("smtp is not configured")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", ch.Config.EmailAddress)
	fmt.Fprintf(&b, "Subject: %s\r\n", p.Title)
	b.WriteString("\r\n")
	b.WriteString(p.Summary)
	b.WriteString("\r\n")

	var auth smtp.Auth
	if e.cfg.Username != "" {
		host := e.cfg.Addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, host)
	}

	done := make(chan error, 1)
	go func() {
		done <- e.send(e.cfg.Addr, auth, e.cfg.From, []string{ch.Config.EmailAddress}, []byte(b.String()))
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		return nil
	}
}
