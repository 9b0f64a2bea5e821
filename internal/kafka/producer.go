// Package kafka publishes exchange events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/efreitasn/exchangecore/internal/events"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes events keyed by ticker, so every event of one
// instrument lands on the same partition in order.
type Producer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewProducer creates an asynchronous producer. Delivery failures are
// logged.
func NewProducer(brokers []string, topic string, logger *slog.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
			BatchTimeout: 10 * time.Millisecond,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					logger.Error("kafka delivery failed", "messages", len(msgs), "error", err)
				}
			},
		},
		logger: logger,
	}
}

// Send publishes one event.
func (p *Producer) Send(ctx context.Context, ev events.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Symbol),
		Value: value,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Kind)},
		},
	})
}

// Handler adapts the producer to the event bus.
func (p *Producer) Handler() events.Handler {
	return func(ctx context.Context, ev events.Event) {
		if err := p.Send(ctx, ev); err != nil {
			p.logger.Error("kafka publish", "event_id", ev.ID, "kind", ev.Kind, "error", err)
		}
	}
}

// Close flushes pending messages.
func (p *Producer) Close() error {
	return p.writer.Close()
}
