// Package events publishes lifecycle domain events to Kafka. Publishing is
// strictly best effort: the lifecycle transaction has already committed when
// an event is emitted, so delivery failures are logged and dropped, never
// surfaced to the caller.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewPublisher connects to the given brokers. An empty broker list returns a
// nil publisher, which is valid: every method on a nil Publisher is a no-op,
// so event publishing is optional without call-site checks.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchMaxBytes(1<<20),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

// Emit publishes one event keyed by application id. Fire and forget.
func (p *Publisher) Emit(ctx context.Context, event string, payload map[string]any) {
	if p == nil {
		return
	}
	body, err := json.Marshal(struct {
		Event   string         `json:"event"`
		At      time.Time      `json:"at"`
		Payload map[string]any `json:"payload"`
	}{Event: event, At: time.Now().UTC(), Payload: payload})
	if err != nil {
		p.logger.ErrorContext(ctx, "event payload not serializable", "event", event, "error", err)
		return
	}

	var key []byte
	if id, ok := payload["application_id"].(int64); ok {
		key = []byte(strconv.FormatInt(id, 10))
	}
	p.client.Produce(ctx, &kgo.Record{Topic: p.topic, Key: key, Value: body}, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("event publish failed", "event", event, "topic", r.Topic, "error", err)
		}
	})
}

// Close flushes buffered records and releases the client.
func (p *Publisher) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.client.Flush(ctx); err != nil {
		return err
	}
	p.client.Close()
	return nil
}
