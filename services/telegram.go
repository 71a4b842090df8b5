package services

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"

	"meetinglight/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// messageSender is the subset of tgbotapi.BotAPI used by TelegramNotifier
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends connection status messages to a Telegram chat
type TelegramNotifier struct {
	bot    messageSender
	chatID int64
	host   string
	logger *zap.Logger
}

// NewTelegramNotifier authorizes the bot. The token is verified against
// the Telegram API, so this fails when the API is unreachable.
func NewTelegramNotifier(token, chatID, host string, logger *zap.Logger) (*TelegramNotifier, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: notifyTimeout})
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))
	return newTelegramNotifier(bot, id, host, logger), nil
}

func newTelegramNotifier(bot messageSender, chatID int64, host string, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:    bot,
		chatID: chatID,
		host:   host,
		logger: logger,
	}
}

func (ts *TelegramNotifier) Name() string {
	return "telegram"
}

func (ts *TelegramNotifier) NotifyConnection(ctx context.Context, event models.ConnectionStatusEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(ts.chatID, ts.formatConnectionMessage(event))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	// Send takes no context; the HTTP client timeout ends an abandoned call.
	result := make(chan error, 1)
	go func() {
		_, err := ts.bot.Send(msg)
		result <- err
	}()

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("error sending telegram message: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("error sending telegram message: %w", ctx.Err())
	}

	ts.logger.Info("Sent connection notification",
		zap.String("notifier", ts.Name()),
		zap.Bool("connected", event.Connected))
	return nil
}

// formatConnectionMessage renders a short HTML message for one event
func (ts *TelegramNotifier) formatConnectionMessage(event models.ConnectionStatusEvent) string {
	var sb strings.Builder

	status := "🔴"
	if event.Connected {
		status = "🟢"
	}

	sb.WriteString(fmt.Sprintf("%s <b>HA-MeetingLight</b>\n\n", status))
	sb.WriteString(fmt.Sprintf("💻 <b>Host:</b> %s\n", html.EscapeString(ts.host)))
	sb.WriteString(fmt.Sprintf("📡 %s\n", html.EscapeString(event.Message)))
	sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s", event.Timestamp.Format("2006-01-02 15:04:05")))

	return sb.String()
}
