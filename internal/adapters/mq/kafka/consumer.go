package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"github.com/okian/shipwatch/internal/adapters/repository"
	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/pkg/logger"
	"github.com/okian/shipwatch/pkg/metrics"
)

const (
	defaultMaxRetries   = 5
	defaultInitialDelay = 200 * time.Millisecond
	fetchErrorPause     = 500 * time.Millisecond
)

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Ingester accepts the events of one shipment.
type Ingester interface {
	IngestEvents(ctx context.Context, shipmentID string, events []model.Event) (int, error)
}

// Consumer feeds event batches from Kafka into an Ingester. A message is
// committed once it was ingested or proven unprocessable; transient failures
// are retried with exponential backoff.
type Consumer struct {
	reader       Reader
	ingester     Ingester
	maxRetries   uint64
	initialDelay time.Duration
	permanent    func(error) bool
	logger       logger.Logger
}

// NewConsumer creates a consumer reading from r.
func NewConsumer(r Reader, ing Ingester, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:       r,
		ingester:     ing,
		maxRetries:   defaultMaxRetries,
		initialDelay: defaultInitialDelay,
		permanent:    defaultPermanent,
		logger:       logger.Get().Named("kafka-consumer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultPermanent(err error) bool {
	return errors.Is(err, ErrInvalidMessage) || errors.Is(err, repository.ErrNotFound)
}

// Run consumes until ctx is canceled and then closes the reader.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn(context.Background(), "closing kafka reader", logger.Error(err))
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.RecordKafkaMessage("in", "fetch_error")
			c.logger.Error(ctx, "fetch message", logger.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchErrorPause):
			}
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Skipped: committing a later offset of the partition commits this
			// one too. Only a restart before that commit redelivers it.
			metrics.RecordKafkaMessage("in", "error")
			c.logger.Error(ctx, "skipping message after failed ingest",
				logger.Int64("offset", msg.Offset),
				logger.Int("partition", msg.Partition),
				logger.Error(err))
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error(ctx, "commit message", logger.Int64("offset", msg.Offset), logger.Error(err))
		}
	}
}

// handle returns nil when the message may be committed.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	batch, err := decodeBatch(msg)
	if err != nil {
		metrics.RecordKafkaMessage("in", "invalid")
		c.logger.Warn(ctx, "dropping undecodable message", logger.Int64("offset", msg.Offset), logger.Error(err))
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	var added int
	err = backoff.Retry(func() error {
		n, err := c.ingester.IngestEvents(ctx, batch.ShipmentID, batch.Events)
		if err != nil {
			if c.permanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		added = n
		return nil
	}, policy)

	switch {
	case err == nil:
		metrics.RecordKafkaMessage("in", "ok")
		c.logger.Debug(ctx, "ingested batch",
			logger.String("shipment_id", batch.ShipmentID),
			logger.Int("events", len(batch.Events)),
			logger.Int("added", added))
		return nil
	case c.permanent(err):
		metrics.RecordKafkaMessage("in", "rejected")
		c.logger.Warn(ctx, "dropping rejected batch", logger.String("shipment_id", batch.ShipmentID), logger.Error(err))
		return nil
	default:
		return err
	}
}

func decodeBatch(msg kafka.Message) (EventBatch, error) {
	var b EventBatch
	if err := json.Unmarshal(msg.Value, &b); err != nil {
		return b, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if b.ShipmentID == "" && len(msg.Key) > 0 {
		b.ShipmentID = string(msg.Key)
	}
	if b.ShipmentID == "" {
		return b, fmt.Errorf("%w: missing shipment_id", ErrInvalidMessage)
	}
	return b, nil
}
