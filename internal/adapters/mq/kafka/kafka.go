// Package kafka connects the service to Kafka: tracking events come in on one
// topic and alert changes go out on another.
package kafka

import (
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/shipwatch/internal/domain/model"
)

// ErrInvalidMessage marks a message that can never be processed.
var ErrInvalidMessage = errors.New("invalid kafka message")

// EventBatch is the payload of the events topic.
type EventBatch struct {
	ShipmentID string        `json:"shipment_id"`
	Events     []model.Event `json:"events"`
}

// NewReader creates a consumer-group reader for topic.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        time.Second,
	})
}

// NewWriter creates a synchronous writer for topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 250 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}
