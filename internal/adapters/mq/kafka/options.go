package kafka

import (
	"time"

	"github.com/okian/shipwatch/pkg/logger"
)

// ConsumerOption applies a configuration option to the Consumer.
type ConsumerOption func(*Consumer)

// WithRetries sets how often a failing batch is retried and the first delay.
func WithRetries(maxRetries uint64, initialDelay time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.maxRetries = maxRetries
		if initialDelay > 0 {
			c.initialDelay = initialDelay
		}
	}
}

// WithPermanent classifies ingest errors that must not be retried.
func WithPermanent(fn func(error) bool) ConsumerOption {
	return func(c *Consumer) {
		if fn != nil {
			c.permanent = fn
		}
	}
}

// WithLogger sets the consumer logger.
func WithLogger(l logger.Logger) ConsumerOption {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}
