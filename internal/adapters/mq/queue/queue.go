// Package queue carries recompute jobs from ingestion to the worker pool.
//
// Jobs are coalesced per shipment: while a shipment waits in the queue a
// second Enqueue for it is accepted without adding another job.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/shipwatch/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Trigger names what caused a recompute.
type Trigger string

const (
	TriggerEvents   Trigger = "events"
	TriggerShipment Trigger = "shipment"
	TriggerRefresh  Trigger = "refresh"
)

// Job asks for the alert of one shipment to be recomputed.
type Job struct {
	ShipmentID string
	Trigger    Trigger
	EnqueuedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job to the queue.
	// Returns false if the queue is full or closed and the job was not accepted.
	Enqueue(ctx context.Context, j Job) bool

	// Dequeue returns a channel that will receive jobs as they become available.
	// The channel will be closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Job

	// Acquire and Release bracket the processing of a received job.
	Acquire(j Job)
	Release(j Job)

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu       sync.Mutex
	pending  map[string]struct{}
	inflight int
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}
	if _, ok := q.pending[j.ShipmentID]; ok {
		return true
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now()
	}

	select {
	case q.jobs <- j:
		q.pending[j.ShipmentID] = struct{}{}
		metrics.RecordQueueEnqueue()
		q.updateGauges()
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns the channel consumers read jobs from. It is closed by Close.
// Every received job must be passed to Acquire before it is processed and to
// Release afterwards.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Job {
	return q.jobs
}

// Acquire marks j as taken by a consumer. The shipment leaves the pending set,
// so events arriving during its computation schedule a fresh job.
func (q *InMemoryQueue) Acquire(j Job) {
	q.mu.Lock()
	delete(q.pending, j.ShipmentID)
	q.inflight++
	q.mu.Unlock()

	metrics.RecordQueueDequeue()
	metrics.RecordQueueWait(float64(time.Since(j.EnqueuedAt).Milliseconds()))
	q.updateGauges()
}

// Release marks an acquired job as finished.
func (q *InMemoryQueue) Release(Job) {
	q.mu.Lock()
	if q.inflight > 0 {
		q.inflight--
	}
	q.mu.Unlock()
}

// InFlight returns the number of acquired jobs not yet released.
func (q *InMemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inflight
}

func (q *InMemoryQueue) updateGauges() {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.jobs)
}

// Capacity returns the configured capacity.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close gracefully shuts down the queue. Queued jobs are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
