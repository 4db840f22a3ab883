package notification

import "context"

// Service delivers alert messages to the user. Delivery failures are the
// implementation's problem to report; monitors log and move on.
type Service interface {
	// SendText sends a Markdown-formatted message.
	SendText(ctx context.Context, body string) error
	// SendHTML sends an HTML-formatted message.
	SendHTML(ctx context.Context, body string) error
}
