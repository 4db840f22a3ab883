package notification

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// TelegramService sends messages to a single chat via a Telegram bot.
type TelegramService struct {
	bot    *bot.Bot
	chatID string
}

func NewTelegramService(token, chatID string) (*TelegramService, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, err
	}
	return &TelegramService{bot: b, chatID: chatID}, nil
}

func (s *TelegramService) SendText(ctx context.Context, body string) error {
	slog.Info("notification", "body", body)
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      body,
		ParseMode: models.ParseModeMarkdown,
	})
	return err
}

func (s *TelegramService) SendHTML(ctx context.Context, body string) error {
	slog.Info("notification", "body", body)
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      body,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: bot.True(),
		},
	})
	return err
}
