// Package monitor holds the three stateful monitors: price, position changes
// and account activity. Each one is a schedule.Task that fetches fresh data,
// diffs it against the state kept from the previous tick and sends alerts for
// what changed.
package monitor

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/xwjdsh/polymonitor/internal/entity"
	"github.com/xwjdsh/polymonitor/internal/repo"
	"github.com/xwjdsh/polymonitor/internal/service/notification"
)

type options struct {
	notifier notification.Service
	alerts   repo.AlertRepo
}

type Option func(*options)

func WithNotifier(notifier notification.Service) Option {
	return func(o *options) {
		o.notifier = notifier
	}
}

func WithAlertRepo(alerts repo.AlertRepo) Option {
	return func(o *options) {
		o.alerts = alerts
	}
}

func newOptions(opts ...Option) options {
	o := options{
		notifier: notification.NewConsole(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// notifyText and notifyHTML contain delivery failures: a monitor must never
// crash because a message did not go out.
func (o options) notifyText(ctx context.Context, body string) {
	if err := o.notifier.SendText(ctx, body); err != nil {
		slog.Error("failed to send notification", "error", err)
	}
}

func (o options) notifyHTML(ctx context.Context, body string) {
	if err := o.notifier.SendHTML(ctx, body); err != nil {
		slog.Error("failed to send notification", "error", err)
	}
}

func (o options) record(ctx context.Context, monitor, key, title, message string, value float64) {
	if o.alerts == nil {
		return
	}
	_, err := o.alerts.Create(ctx, entity.Alert{
		Monitor: monitor,
		Key:     key,
		Title:   title,
		Message: message,
		Value:   decimal.NewFromFloat(value),
	})
	if err != nil {
		slog.Error("failed to record alert", "monitor", monitor, "error", err)
	}
}

func shortAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:10]
}
