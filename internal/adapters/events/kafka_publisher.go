package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kevin07696/bakery-service/internal/domain/ports"
)

// messageWriter is the part of kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes change events to a Kafka topic, keyed by reference
// so every event for one payment lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	logger ports.Logger
}

// ParseBrokers splits a comma-separated host:port list
func ParseBrokers(bootstrap string) []string {
	var brokers []string
	for _, addr := range strings.Split(bootstrap, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			brokers = append(brokers, addr)
		}
	}
	return brokers
}

// NewKafkaPublisher creates a synchronous writer requiring acks from all in-sync replicas
func NewKafkaPublisher(brokers []string, topic string, logger ports.Logger) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}, logger)
}

func newKafkaPublisher(w messageWriter, logger ports.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger}
}

// Publish encodes the event as JSON and writes it
func (p *KafkaPublisher) Publish(ctx context.Context, event ports.ChangeEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Reference),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
		Time: event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write change event %s: %w", event.ID, err)
	}

	p.logger.Debug("Change event published",
		ports.String("event_id", event.ID),
		ports.String("type", event.Type),
		ports.String("reference", event.Reference),
	)
	return nil
}

// Close flushes pending writes and releases connections
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
