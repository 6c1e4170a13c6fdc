// Package service wires storage, the recompute pipeline and the alert engine
// into the operations the HTTP API and the Kafka consumer call.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/okian/shipwatch/internal/adapters/cache"
	"github.com/okian/shipwatch/internal/adapters/mq/queue"
	"github.com/okian/shipwatch/internal/adapters/mq/worker"
	"github.com/okian/shipwatch/internal/adapters/repository"
	"github.com/okian/shipwatch/internal/domain/dedupe"
	"github.com/okian/shipwatch/internal/domain/engine"
	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/internal/domain/types"
	"github.com/okian/shipwatch/pkg/logger"
	"github.com/okian/shipwatch/pkg/metrics"
)

const (
	defaultListLimit   = 50
	shutdownTimeout    = 10 * time.Second
	refreshBatchFactor = 2
)

// Service implements the API dependencies for the alerting system.
type Service struct {
	mu sync.RWMutex

	store     repository.Store
	cache     cache.AlertCache
	engine    *engine.Engine
	publisher worker.Publisher
	clock     clockz.Clock

	board     *repository.RiskBoard
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	processor *worker.Processor
	pool      *worker.Pool

	workerCount     int
	queueSize       int
	dedupeSize      int
	maxListLimit    int
	staleness       time.Duration
	refreshInterval time.Duration
	computeTimeout  time.Duration

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service over store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		cache:           cache.Noop{},
		clock:           clockz.RealClock,
		workerCount:     runtime.NumCPU() * 2,
		queueSize:       10_000,
		dedupeSize:      500_000,
		maxListLimit:    500,
		staleness:       15 * time.Minute,
		refreshInterval: time.Minute,
		computeTimeout:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = engine.New()
	}
	return s
}

// Start initializes the pipeline, rebuilds the risk board from stored alerts
// and starts the workers and the refresh sweep.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting shipwatch service...")

	s.board = repository.NewRiskBoard()
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.processor = worker.NewProcessor(s.store, s.engine,
		worker.WithBoard(s.board),
		worker.WithCache(s.cache),
		worker.WithPublisher(s.publisher),
		worker.WithClock(s.clock),
		worker.WithComputeTimeout(s.computeTimeout),
	)

	if err := s.warmBoard(ctx); err != nil {
		return fmt.Errorf("rebuild risk board: %w", err)
	}

	s.pool = worker.NewPool(s.workerCount, s.queue, s.processor)
	s.pool.Start(ctx)

	s.stopCh = make(chan struct{})
	if s.refreshInterval > 0 {
		s.wg.Add(1)
		go s.refreshLoop(ctx)
	}

	s.started = true
	s.logger.Info(ctx, "shipwatch service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("riskBoard", s.board.Count()),
		logger.Duration("refreshInterval", s.refreshInterval),
	)
	return nil
}

func (s *Service) warmBoard(ctx context.Context) error {
	for _, st := range []model.Status{model.StatusInProgress, model.StatusFuture} {
		alerts, err := s.store.ListAlerts(ctx, repository.AlertFilter{Status: st, Limit: math.MaxInt32})
		if err != nil {
			return err
		}
		for _, a := range alerts {
			s.board.Upsert(a)
		}
	}
	metrics.UpdateRiskBoardSize(s.board.Count())
	return nil
}

func (s *Service) refreshLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.clock.After(s.refreshInterval):
			if n, err := s.Refresh(ctx); err != nil {
				s.logger.Warn(ctx, "refresh sweep", logger.Int("enqueued", n), logger.Error(err))
			} else if n > 0 {
				s.logger.Debug(ctx, "refresh sweep", logger.Int("enqueued", n))
			}
		}
	}
}

// Stop stops the sweep and drains the recompute queue.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	stopCh, pool := s.stopCh, s.pool
	s.mu.Unlock()

	s.logger.Info(context.Background(), "stopping shipwatch service...")
	close(stopCh)
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.logger.Info(context.Background(), "shipwatch service stopped")
}

// running returns the pipeline parts under the read lock.
func (s *Service) running() (*queue.InMemoryQueue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.queue, nil
}

func (s *Service) enqueue(ctx context.Context, shipmentID string, trigger queue.Trigger) error {
	q, err := s.running()
	if err != nil {
		return err
	}
	if !q.Enqueue(ctx, queue.Job{ShipmentID: shipmentID, Trigger: trigger, EnqueuedAt: s.clock.Now()}) {
		return fmt.Errorf("%w: shipment %s", ErrBackpressure, shipmentID)
	}
	return nil
}

// UpsertShipment stores a shipment plan and schedules its alert.
func (s *Service) UpsertShipment(ctx context.Context, sh model.ShipmentRecord) error {
	sh, err := normalizeShipment(sh)
	if err != nil {
		return err
	}
	if _, err := s.running(); err != nil {
		return err
	}
	if err := s.store.PutShipment(ctx, sh); err != nil {
		return err
	}
	s.invalidate(ctx, sh.ShipmentID)
	return s.enqueue(ctx, sh.ShipmentID, queue.TriggerShipment)
}

// IngestEvents stores new tracking events of a known shipment and schedules
// a recompute. Replayed events are skipped; the result counts the new ones.
// On backpressure the events stay stored and may be resubmitted.
func (s *Service) IngestEvents(ctx context.Context, shipmentID string, events []model.Event) (int, error) {
	if shipmentID == "" {
		return 0, fmt.Errorf("%w: empty shipment_id", ErrInvalidInput)
	}
	for i, e := range events {
		if e.Timestamp.IsZero() || e.Stage == "" {
			metrics.RecordEventRejected()
			return 0, fmt.Errorf("%w: event %d needs timestamp and stage", ErrInvalidInput, i)
		}
	}
	if _, err := s.running(); err != nil {
		return 0, err
	}

	fresh := make([]model.Event, 0, len(events))
	keys := make([]string, 0, len(events))
	for _, e := range events {
		k := dedupe.Key(shipmentID, e)
		if s.deduper.SeenAndRecord(ctx, k) {
			metrics.RecordEventDuplicate()
			continue
		}
		fresh = append(fresh, e)
		keys = append(keys, k)
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	forget := func() {
		for _, k := range keys {
			s.deduper.Unrecord(ctx, k)
		}
	}

	added, err := s.store.AppendEvents(ctx, shipmentID, fresh)
	if err != nil {
		forget()
		return 0, err
	}
	metrics.RecordEventsIngested(added)
	s.invalidate(ctx, shipmentID)

	if err := s.enqueue(ctx, shipmentID, queue.TriggerEvents); err != nil {
		forget()
		return added, err
	}
	return len(fresh), nil
}

func (s *Service) invalidate(ctx context.Context, shipmentID string) {
	if err := s.cache.Invalidate(ctx, shipmentID); err != nil {
		s.logger.Debug(ctx, "cache invalidate failed", logger.String("shipment_id", shipmentID), logger.Error(err))
	}
}

// Alert returns the current alert of a shipment: from the cache or the store
// while it is younger than the staleness window, otherwise freshly computed.
func (s *Service) Alert(ctx context.Context, shipmentID string) (model.Alert, error) {
	if _, err := s.running(); err != nil {
		return model.Alert{}, err
	}
	now := s.clock.Now()

	if a, err := s.cache.Get(ctx, shipmentID); err == nil && s.fresh(a, now) {
		return a, nil
	}
	a, err := s.store.GetAlert(ctx, shipmentID)
	switch {
	case err == nil && s.fresh(a, now):
		if err := s.cache.Set(ctx, a); err != nil {
			s.logger.Debug(ctx, "cache fill failed", logger.String("shipment_id", shipmentID), logger.Error(err))
		}
		return a, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return model.Alert{}, err
	}
	return s.processor.Process(ctx, shipmentID)
}

// fresh reports whether a was computed within the staleness window from the
// current plan and events. Terminal alerts do not age.
func (s *Service) fresh(a model.Alert, now time.Time) bool {
	if a.Stale {
		return false
	}
	if a.Status.Terminal() {
		return true
	}
	age := now.Sub(a.ComputedAt)
	return age >= 0 && age < s.staleness
}

// ListAlerts returns stored alerts matching f, riskiest first.
func (s *Service) ListAlerts(ctx context.Context, f repository.AlertFilter) ([]model.Alert, error) {
	f.Limit = s.clampLimit(f.Limit)
	alerts, err := s.store.ListAlerts(ctx, f)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	return alerts, nil
}

// Acknowledge marks a shipment's alert as seen by an operator.
func (s *Service) Acknowledge(ctx context.Context, shipmentID string) (model.Alert, error) {
	a, err := s.store.Acknowledge(ctx, shipmentID, s.clock.Now())
	if err != nil {
		return model.Alert{}, err
	}
	s.invalidate(ctx, shipmentID)
	return a, nil
}

// TopRisk returns the n riskiest open shipments.
func (s *Service) TopRisk(_ context.Context, n int) ([]types.RiskEntry, error) {
	if _, err := s.running(); err != nil {
		return nil, err
	}
	return s.board.TopN(s.clampLimit(n))
}

// RiskRank returns the board position of one shipment.
func (s *Service) RiskRank(_ context.Context, shipmentID string) (types.RiskEntry, error) {
	if _, err := s.running(); err != nil {
		return types.RiskEntry{}, err
	}
	return s.board.Rank(shipmentID)
}

// Refresh enqueues shipments whose alert is missing or older than the
// staleness window. It stops at the first rejected job.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	q, err := s.running()
	if err != nil {
		return 0, err
	}
	room := q.Capacity() - q.Len(ctx)
	if room <= 0 {
		return 0, nil
	}
	ids, err := s.store.StaleAlertIDs(ctx, s.clock.Now().Add(-s.staleness), min(room*refreshBatchFactor, q.Capacity()))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if err := s.enqueue(ctx, id, queue.TriggerRefresh); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *Service) clampLimit(n int) int {
	if n <= 0 {
		return min(defaultListLimit, s.maxListLimit)
	}
	return min(n, s.maxListLimit)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"dedupeSize":      s.dedupeSize,
		"alertStaleness":  s.staleness.String(),
		"refreshInterval": s.refreshInterval.String(),
	}
	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["inFlight"] = s.queue.InFlight()
		stats["riskBoardSize"] = s.board.Count()
		stats["dedupeEntries"] = s.deduper.Size()
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}

// normalizeShipment checks the required fields and canonicalizes the mode.
func normalizeShipment(sh model.ShipmentRecord) (model.ShipmentRecord, error) {
	switch {
	case sh.ShipmentID == "":
		return sh, fmt.Errorf("%w: empty shipment_id", ErrInvalidInput)
	case sh.OrderDate.IsZero():
		return sh, fmt.Errorf("%w: order_date is required", ErrInvalidInput)
	case sh.ExpectedDelivery.IsZero():
		return sh, fmt.Errorf("%w: expected_delivery is required", ErrInvalidInput)
	}
	mode, err := model.ParseMode(string(sh.Mode))
	if err != nil {
		return sh, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	sh.Mode = mode
	return sh, nil
}
