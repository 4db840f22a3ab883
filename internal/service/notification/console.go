package notification

import (
	"context"
	"log/slog"
)

// consoleService logs messages instead of delivering them. It is the fallback
// when Telegram is not configured.
type consoleService struct{}

func NewConsole() Service {
	return consoleService{}
}

func (consoleService) SendText(ctx context.Context, body string) error {
	slog.Info("notification", "body", body)
	return nil
}

func (consoleService) SendHTML(ctx context.Context, body string) error {
	slog.Info("notification", "body", body)
	return nil
}
