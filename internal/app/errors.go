package service

import (
	"errors"

	"github.com/okian/shipwatch/internal/adapters/mq/queue"
	"github.com/okian/shipwatch/internal/adapters/repository"
)

// Sentinel kinds for service errors. Store lookups surface repository.ErrNotFound.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotStarted   = errors.New("service not started")
	ErrNotFound     = repository.ErrNotFound
	ErrBackpressure = queue.ErrBackpressure
)
