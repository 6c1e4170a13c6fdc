package worker

import (
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/okian/shipwatch/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// withActiveCounter shares the busy-worker gauge across a pool.
func withActiveCounter(c *atomic.Int64) Option {
	return func(w *InMemoryWorker) {
		if c != nil {
			w.active = c
		}
	}
}

// ProcessorOption applies a configuration option to the Processor.
type ProcessorOption func(*Processor)

// WithBoard updates the risk board after every recompute.
func WithBoard(b Board) ProcessorOption {
	return func(p *Processor) {
		if b != nil {
			p.board = b
		}
	}
}

// WithCache writes recomputed alerts through to the cache.
func WithCache(c Cache) ProcessorOption {
	return func(p *Processor) {
		if c != nil {
			p.cache = c
		}
	}
}

// WithPublisher announces severity and status changes.
func WithPublisher(pub Publisher) ProcessorOption {
	return func(p *Processor) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// WithClock sets the time source of "now".
func WithClock(c clockz.Clock) ProcessorOption {
	return func(p *Processor) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithComputeTimeout bounds one recompute.
func WithComputeTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithProcessorLogger sets the processor logger.
func WithProcessorLogger(l logger.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}
