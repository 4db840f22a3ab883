package ioc

import (
	"log/slog"
	"os"

	"github.com/xwjdsh/polymonitor/internal/config"
	"github.com/xwjdsh/polymonitor/internal/service/notification"
)

// InitNotifier builds the Telegram notifier, falling back to console logging
// when no credentials are configured. Environment variables win over the
// config file so tokens can stay out of it.
func InitNotifier(cfg config.TelegramConfig) notification.Service {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		token = cfg.BotToken
	}
	chatID := os.Getenv("TELEGRAM_CHAT_ID")
	if chatID == "" {
		chatID = cfg.ChatID
	}

	if token == "" || chatID == "" {
		slog.Warn("telegram not configured, notifications will only be logged")
		return notification.NewConsole()
	}

	svc, err := notification.NewTelegramService(token, chatID)
	if err != nil {
		slog.Error("failed to init telegram, falling back to console", "error", err)
		return notification.NewConsole()
	}
	slog.Info("telegram notifications enabled")
	return svc
}
