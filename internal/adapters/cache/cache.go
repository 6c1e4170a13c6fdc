// Package cache keeps recently computed alerts close to the API.
package cache

import (
	"context"
	"errors"

	"github.com/okian/shipwatch/internal/domain/model"
)

// Sentinel kinds for cache errors.
var (
	// ErrMiss is returned by Get when the alert is not cached.
	ErrMiss = errors.New("alert not cached")
	// ErrCacheUnavailable is returned while the backend is failing.
	ErrCacheUnavailable = errors.New("alert cache unavailable")
)

// AlertCache stores the latest alert per shipment. Callers treat every error
// as a miss; the store stays the source of truth.
type AlertCache interface {
	Get(ctx context.Context, shipmentID string) (model.Alert, error)
	Set(ctx context.Context, a model.Alert) error
	Invalidate(ctx context.Context, shipmentID string) error
}

// Noop is used when no cache backend is configured.
type Noop struct{}

var _ AlertCache = Noop{}

func (Noop) Get(context.Context, string) (model.Alert, error) { return model.Alert{}, ErrMiss }
func (Noop) Set(context.Context, model.Alert) error { return nil }
func (Noop) Invalidate(context.Context, string) error { return nil }
