// Package notify delivers operational alerts to the ops Telegram chat.
package notify

import (
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends alert messages to a fixed chat. A zero-value or
// unconfigured Telegram silently drops alerts, so callers never have to
// branch on whether alerting is enabled.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram creates the notifier. An empty token disables it.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return &Telegram{}, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Alert sends one message. Delivery failures are logged, not returned:
// alerting must never fail the job that raised the alert.
func (t *Telegram) Alert(msg string) {
	if t == nil || t.bot == nil {
		return
	}
	m := tgbotapi.NewMessage(t.chatID, msg)
	if _, err := t.bot.Send(m); err != nil {
		log.Printf("notify: telegram send failed: %v", err)
	}
}
