package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/pkg/metrics"
)

// Writer is the subset of *kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes alerts keyed by shipment ID, so all changes of one
// shipment land on the same partition in order.
type Producer struct {
	writer Writer
}

// NewProducer wraps w.
func NewProducer(w Writer) *Producer {
	return &Producer{writer: w}
}

// PublishAlert writes a as JSON, with the step list omitted.
func (p *Producer) PublishAlert(ctx context.Context, a model.Alert) error {
	a.Steps = nil
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", a.ShipmentID, err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(a.ShipmentID),
		Value: body,
		Time:  a.ComputedAt,
		Headers: []kafka.Header{
			{Key: "severity", Value: []byte(a.Severity)},
			{Key: "status", Value: []byte(a.Status)},
		},
	})
	if err != nil {
		metrics.RecordKafkaMessage("out", "error")
		return fmt.Errorf("publish alert %s: %w", a.ShipmentID, err)
	}
	metrics.RecordKafkaMessage("out", "ok")
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error { return p.writer.Close() }
