package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/okian/shipwatch/internal/adapters/repository"
	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/pkg/logger"
	"github.com/okian/shipwatch/pkg/metrics"
)

const defaultComputeTimeout = 2 * time.Second

// Store is the part of the repository a recompute needs.
type Store interface {
	GetShipment(ctx context.Context, shipmentID string) (model.ShipmentRecord, error)
	Events(ctx context.Context, shipmentID string) ([]model.Event, error)
	GetAlert(ctx context.Context, shipmentID string) (model.Alert, error)
	SaveAlert(ctx context.Context, a model.Alert) error
}

// Computer builds an alert from a shipment and its events.
type Computer interface {
	Compute(s model.ShipmentRecord, events []model.Event, now time.Time) model.Alert
}

// Board ranks open shipments.
type Board interface {
	Upsert(a model.Alert)
}

// Cache keeps the latest alert close to readers.
type Cache interface {
	Set(ctx context.Context, a model.Alert) error
}

// Publisher announces alerts whose severity or status changed.
type Publisher interface {
	PublishAlert(ctx context.Context, a model.Alert) error
}

// Processor recomputes and stores the alert of one shipment.
type Processor struct {
	store     Store
	engine    Computer
	board     Board
	cache     Cache
	publisher Publisher
	clock     clockz.Clock
	timeout   time.Duration
	logger    logger.Logger
}

// NewProcessor creates a processor over store and engine. Board, cache and
// publisher are optional.
func NewProcessor(store Store, engine Computer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:   store,
		engine:  engine,
		clock:   clockz.RealClock,
		timeout: defaultComputeTimeout,
		logger:  logger.Get().Named("processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process recomputes the alert of shipmentID with the clock's current time.
// Store failures abort the job; cache and publish failures are logged only.
func (p *Processor) Process(ctx context.Context, shipmentID string) (model.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	s, err := p.store.GetShipment(ctx, shipmentID)
	if err != nil {
		return model.Alert{}, fmt.Errorf("load shipment %s: %w", shipmentID, err)
	}
	events, err := p.store.Events(ctx, shipmentID)
	if err != nil {
		return model.Alert{}, fmt.Errorf("load events %s: %w", shipmentID, err)
	}

	a := p.engine.Compute(s, events, p.clock.Now())
	if err := ctx.Err(); err != nil {
		return model.Alert{}, fmt.Errorf("compute %s: %w", shipmentID, err)
	}

	prev, err := p.store.GetAlert(ctx, shipmentID)
	hadPrev := err == nil
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return model.Alert{}, fmt.Errorf("load previous alert %s: %w", shipmentID, err)
	}
	if err := p.store.SaveAlert(ctx, a); err != nil {
		return model.Alert{}, fmt.Errorf("save alert %s: %w", shipmentID, err)
	}
	// the store keeps an acknowledgement while the severity holds
	if hadPrev && prev.Severity == a.Severity {
		a.AcknowledgedAt = prev.AcknowledgedAt
	}

	metrics.RecordAlertComputed(string(a.Status), string(a.Severity), float64(time.Since(start).Milliseconds()))
	if a.Status == model.StatusCanceled && (!hadPrev || prev.Status != model.StatusCanceled) {
		metrics.RecordCancellation()
		p.logger.Warn(ctx, "shipment canceled",
			logger.String("shipment_id", shipmentID),
			logger.String("stage", a.CurrentStage))
	}

	if p.board != nil {
		p.board.Upsert(a)
	}
	if p.cache != nil {
		if err := p.cache.Set(ctx, a); err != nil {
			p.logger.Debug(ctx, "alert cache write failed", logger.String("shipment_id", shipmentID), logger.Error(err))
		}
	}
	if p.publisher != nil && (!hadPrev || prev.Severity != a.Severity || prev.Status != a.Status) {
		if err := p.publisher.PublishAlert(ctx, a); err != nil {
			metrics.RecordErrorByComponent("worker", "publish_error")
			p.logger.Error(ctx, "publish alert failed", logger.String("shipment_id", shipmentID), logger.Error(err))
		}
	}
	return a, nil
}
