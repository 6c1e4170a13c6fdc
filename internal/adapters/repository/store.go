// Package repository persists shipments, tracking events and alerts, and keeps
// the in-memory risk board.
package repository

import (
	"context"
	"time"

	"github.com/okian/shipwatch/internal/domain/model"
)

// AlertFilter selects alerts for ListAlerts. Zero fields match everything.
type AlertFilter struct {
	Severity     model.Severity
	Status       model.Status
	Owner        string
	Acknowledged *bool
	Limit        int
}

// Store provides read/write access to shipments, their events and alerts.
type Store interface {
	// PutShipment inserts or replaces a shipment plan and marks its stored
	// alert stale.
	PutShipment(ctx context.Context, s model.ShipmentRecord) error
	// GetShipment returns ErrNotFound if the shipment is unknown.
	GetShipment(ctx context.Context, shipmentID string) (model.ShipmentRecord, error)
	ListShipmentIDs(ctx context.Context) ([]string, error)

	// AppendEvents stores events of a known shipment, skipping ones already
	// stored under the same key. Returns the number of new events. The stored
	// alert is marked stale when at least one event is new.
	AppendEvents(ctx context.Context, shipmentID string, events []model.Event) (int, error)
	// Events returns the stored events in arrival order.
	Events(ctx context.Context, shipmentID string) ([]model.Event, error)

	// SaveAlert upserts the latest alert of a shipment. An acknowledgement
	// survives only while the severity is unchanged.
	SaveAlert(ctx context.Context, a model.Alert) error
	// GetAlert returns ErrNotFound if no alert was computed yet.
	GetAlert(ctx context.Context, shipmentID string) (model.Alert, error)
	// ListAlerts returns matching alerts by risk score desc, shipment ID asc.
	ListAlerts(ctx context.Context, f AlertFilter) ([]model.Alert, error)
	// Acknowledge marks the stored alert as acknowledged at the given time.
	Acknowledge(ctx context.Context, shipmentID string, at time.Time) (model.Alert, error)
	// StaleAlertIDs lists shipments whose alert is missing or marked stale,
	// plus open ones whose alert was computed before olderThan.
	StaleAlertIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error)

	Close() error
}
