package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const maxMessageLength = 4096

// Telegram posts alerts to a single chat.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram verifies the bot token and returns a notifier for chatID.
func NewTelegram(token string, chatID int64, timeout time.Duration) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("create bot API client: %w", err)
	}
	return &Telegram{api: api, chatID: chatID}, nil
}

// Name is the bot's username.
func (t *Telegram) Name() string {
	return t.api.Self.UserName
}

// NotifySupport sends the alert. The bot API has no context support, so ctx
// only guards against starting a send after cancellation.
func (t *Telegram) NotifySupport(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := FormatAlert(alert)
	text = truncateUTF8(text, maxMessageLength)
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
