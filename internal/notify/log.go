// Package notify implements the notification sink port. Sinks are fire
// and forget: delivery failures are logged and never block or fail the
// calling operation.
package notify

import (
	"context"
	"log/slog"

	"arcpay/internal/domain"
	"arcpay/internal/ports"
)

// LogNotifier writes notifications to the structured log. It is the
// development default and the fallback wrapped around other sinks.
type LogNotifier struct {
	logger *slog.Logger
}

var _ ports.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, event domain.Notification) {
	n.logger.InfoContext(ctx, "notification",
		"channel", event.Channel,
		"kind", event.Kind,
		"owner", event.OwnerRef,
		"payment_id", event.PaymentID,
		"message", event.Message,
	)
}
