package notify

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// sender is the slice of *tgbotapi.BotAPI the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier delivers reminders as chat messages from a bot.
type TelegramNotifier struct {
	bot    sender
	chatID int64
	logger *log.Logger
}

// TelegramTimeout bounds every Bot API round trip, login included.
const TelegramTimeout = 10 * time.Second

// NewTelegramNotifier authenticates the bot token against the Bot API.
func NewTelegramNotifier(token string, chatID int64, logger *log.Logger) (*TelegramNotifier, error) {
	return dialTelegram(token, tgbotapi.APIEndpoint, TelegramTimeout, chatID, logger)
}

func dialTelegram(token, endpoint string, timeout time.Duration, chatID int64, logger *log.Logger) (*TelegramNotifier, error) {
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return newTelegramNotifier(bot, chatID, logger), nil
}

func newTelegramNotifier(bot sender, chatID int64, logger *log.Logger) *TelegramNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, logger: logger}
}

// Show sends "title\nbody". Delivery errors are logged; reminders never block the scheduler on them.
func (n *TelegramNotifier) Show(title, body string) {
	msg := tgbotapi.NewMessage(n.chatID, FormatMessage(title, body))
	if _, err := n.bot.Send(msg); err != nil {
		logJSON(n.logger, map[string]any{
			"ts":      time.Now().UTC().Format(time.RFC3339Nano),
			"level":   "error",
			"msg":     "telegram_send_failed",
			"chat_id": n.chatID,
			"error":   err.Error(),
		})
	}
}

func FormatMessage(title, body string) string {
	switch {
	case title == "":
		return body
	case body == "":
		return title
	default:
		return "⏰ " + title + "\n" + body
	}
}
