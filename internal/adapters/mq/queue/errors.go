package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	// ErrBackpressure is returned by producers when Enqueue rejects a job.
	ErrBackpressure = errors.New("recompute queue full")
)
