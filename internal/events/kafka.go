// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shopsphere/shopsphere-api/internal/model"
)

const TopicOrderEvents = "order-events"

type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaPublisher returns an asynchronous publisher. Writes are batched in
// the background; delivery failures are logged from the completion callback.
func NewKafkaPublisher(brokers []string, log *zap.Logger) *KafkaPublisher {
	p := &KafkaPublisher{log: log}
	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  TopicOrderEvents,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           50 * time.Millisecond,
		MaxAttempts:            3,
		WriteTimeout:           5 * time.Second,
		Completion:             p.completed,
	}
	return p
}

// Publish queues the event keyed by order id, so one order's events stay on
// one partition in order. It does not wait for the broker.
func (p *KafkaPublisher) Publish(ctx context.Context, event model.OrderEvent) error {
	msg, err := newMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) completed(messages []kafka.Message, err error) {
	for _, msg := range messages {
		fields := []zap.Field{zap.String("type", eventType(msg)), zap.String("order_id", string(msg.Key))}
		if err != nil {
			p.log.Warn("failed to publish order event", append(fields, zap.Error(err))...)
			continue
		}
		p.log.Debug("order event published", fields...)
	}
}

func eventType(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == "event-type" {
			return string(h.Value)
		}
	}
	return ""
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func newMessage(event model.OrderEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal order event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.OrderID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}, nil
}
