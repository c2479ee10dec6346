package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher hands a committed-transition event to the outbound stream.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// KafkaPublisher produces events to a Kafka topic. Produce is asynchronous;
// delivery failures are logged by the callback and do not surface to the
// transition that emitted the event.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("build kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic, logger: logger}, nil
}

// EnsureTopic creates the event topic if it does not already exist.
func (p *KafkaPublisher) EnsureTopic(ctx context.Context) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopic(ctx, 1, 1, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", p.topic, resp.Err)
	}
	return nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(event.RegistrationID.String()),
		Value: value,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("event publish failed",
				"event_id", event.ID,
				"type", event.Type,
				"error", err,
			)
		}
	})
	return nil
}

// Close flushes outstanding produces and releases the client.
func (p *KafkaPublisher) Close() {
	_ = p.client.Flush(context.Background())
	p.client.Close()
}

// MemoryPublisher keeps events in memory and feeds an optional channel. It
// backs tests and deployments running without a broker.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	feed   chan Event
}

// NewMemoryPublisher builds a publisher buffering up to size events for a
// downstream consumer. Publish never blocks: when the feed is full the event
// is counted as dropped by the consumer's absence, matching the best-effort
// contract.
func NewMemoryPublisher(size int) *MemoryPublisher {
	return &MemoryPublisher{feed: make(chan Event, size)}
}

func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	select {
	case p.feed <- event:
	default:
	}
	return nil
}

// Feed exposes the consumer channel.
func (p *MemoryPublisher) Feed() <-chan Event {
	return p.feed
}

// Events returns a snapshot of everything published.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
