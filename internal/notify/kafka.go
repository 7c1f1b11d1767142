package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"arcpay/internal/domain"
	"arcpay/internal/ports"
)

// KafkaNotifier publishes payment events to a topic for downstream
// delivery (email, SMS, operator dashboards). Produce is asynchronous; a
// failed delivery is logged, never surfaced to the caller.
type KafkaNotifier struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

var _ ports.Notifier = (*KafkaNotifier)(nil)

func NewKafkaNotifier(brokers []string, topic string, logger *slog.Logger) (*KafkaNotifier, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaNotifier{client: client, topic: topic, logger: logger}, nil
}

func (n *KafkaNotifier) Notify(ctx context.Context, event domain.Notification) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.ErrorContext(ctx, "encode notification", "error", err)
		return
	}
	record := &kgo.Record{
		Key:   []byte(event.OwnerRef),
		Value: payload,
	}
	n.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			n.logger.Error("publish notification",
				"kind", event.Kind,
				"payment_id", event.PaymentID,
				"error", err,
			)
		}
	})
}

// Close flushes pending records and releases the client.
func (n *KafkaNotifier) Close(ctx context.Context) error {
	if err := n.client.Flush(ctx); err != nil {
		return err
	}
	n.client.Close()
	return nil
}
