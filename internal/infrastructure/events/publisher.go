// internal/infrastructure/events/publisher.go
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/outbox"
)

// Publisher delivers outbox events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, e outbox.Event) error
	Close() error
}

// MessageWriter is the part of kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a kafka topic keyed by aggregate id so
// events for one order stay ordered
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaPublisher creates a publisher for the given brokers and topic
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return &KafkaPublisher{writer: w}
}

// NewKafkaPublisherWithWriter wraps an existing writer
func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e outbox.Event) error {
	msg := kafka.Message{
		Key:   []byte(e.AggregateID),
		Value: e.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
			{Key: "event_id", Value: []byte(fmt.Sprintf("%d", e.ID))},
		},
		Time: e.CreatedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event %d: %w", e.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher logs events instead of shipping them. Used when no broker
// is configured.
type LogPublisher struct {
	log logrus.FieldLogger
}

// NewLogPublisher creates a new log publisher
func NewLogPublisher(log logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, e outbox.Event) error {
	p.log.WithFields(logrus.Fields{
		"event_id":     e.ID,
		"event_type":   e.EventType,
		"aggregate_id": e.AggregateID,
		"payload":      string(e.Payload),
	}).Info("Event published")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// NewPublisher picks kafka when brokers are configured
func NewPublisher(cfg config.KafkaConfig, log logrus.FieldLogger) Publisher {
	if len(cfg.Brokers) == 0 {
		log.Info("No kafka brokers configured, events will be logged")
		return NewLogPublisher(log)
	}
	log.WithFields(logrus.Fields{"brokers": cfg.Brokers, "topic": cfg.Topic}).Info("Publishing events to kafka")
	return NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}
