// Package producer ships login events to Kafka for downstream risk and
// analytics consumers.
package producer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lanstar128/jjds-auth-service/internal/telemetry"
)

// KafkaProducer writes login events to a Kafka topic as JSON.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer builds a producer for the given brokers and topic.
// Returns nil (no producer, no error) when brokers or topic are unset so
// callers can treat Kafka as optional.
func NewKafkaProducer(brokers []string, topic string) (*KafkaProducer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaProducer{writer: writer}, nil
}

// Emit writes the event keyed by user id so one user's events stay ordered
// within a partition.
func (p *KafkaProducer) Emit(ctx context.Context, event *telemetry.Event) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	var key []byte
	if event.UserID != 0 {
		key = []byte(strconv.FormatInt(event.UserID, 10))
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   key,
		Value: payload,
	})
}

// Close closes the underlying writer. Safe on a nil producer.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
