package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Handler processes one raw event envelope. Errors are logged and the message
// is not redelivered; notification delivery is best-effort by contract.
type Handler func(ctx context.Context, raw []byte)

// KafkaConsumer streams raw event envelopes from the topic into a Handler.
type KafkaConsumer struct {
	client *kgo.Client
	logger *slog.Logger
}

func NewKafkaConsumer(brokers []string, topic, group string, logger *slog.Logger) (*KafkaConsumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumerGroup(group),
	)
	if err != nil {
		return nil, fmt.Errorf("build kafka consumer: %w", err)
	}
	return &KafkaConsumer{client: client, logger: logger}, nil
}

// Run polls until the context is cancelled.
func (c *KafkaConsumer) Run(ctx context.Context, handle Handler) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("event fetch failed", "topic", topic, "partition", partition, "error", err)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			handle(ctx, record.Value)
		})
	}
}
