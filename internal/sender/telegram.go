package sender

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"regwatch/internal/model"
)

// TelegramSender delivers payloads as Telegram messages through a bot.
// The bot is used for outbound sends only; no update polling is started.
type TelegramSender struct {
	bot *tele.Bot
}

// NewTelegramSender builds a Telegram sender from a bot token.
func NewTelegramSender(token string) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	bot, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramSender{bot: bot}, nil
}

var _ Sender = (*TelegramSender)(nil)

func (t *TelegramSender) Send(ctx context.Context, ch *model.Channel, p *Payload) error {
	if ch.Config.ChatID == 0 {
		return errors.New("telegram channel has no chat id configured")
	}
	text := p.Title
	if p.Summary != "" {
		text += "\n" + p.Summary
	}

	// telebot sends have no context support; run the send on the side so
	// a dispatcher timeout still unblocks the caller.
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(&tele.Chat{ID: ch.Config.ChatID}, text)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
		return nil
	}
}
