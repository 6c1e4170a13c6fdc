// Package simulate drives a running shipwatch service with generated
// shipments and checks the alerts and the risk board it produces.
package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/okian/shipwatch/pkg/logger"
)

const (
	directoryPermission = 0750
	filePermission      = 0600
	settlePollInterval  = 200 * time.Millisecond
)

// ErrViolations is returned when the service broke at least one checked rule.
var ErrViolations = errors.New("verification failed")

// Run executes a complete simulation against cfg.BaseURL.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	log := logger.Get().Named("simulate")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting shipwatch simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("shipments", cfg.Shipments),
		logger.Int("workers", cfg.Workers),
		logger.Float64("rate", cfg.Rate),
		logger.Any("seed", cfg.Seed))

	var backpressured atomic.Int64
	client := NewClient(cfg)
	client.backpressured = func() { backpressured.Add(1) }

	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockz.RealClock
	}
	scenarios, err := NewGenerator(cfg.Seed, clock.Now()).Generate(cfg.Shipments)
	if err != nil {
		return stats, fmt.Errorf("scenario generation failed: %w", err)
	}
	stats.ShipmentsGenerated = len(scenarios)

	submitted := submit(ctx, cfg, client, scenarios, stats, log)
	stats.Backpressured = int(backpressured.Load())

	if err := settle(ctx, client, cfg.Settle); err != nil {
		log.Warn(ctx, "recompute queue did not drain", logger.Error(err))
	}

	alerts := fetchAlerts(ctx, cfg, client, submitted, stats, log)
	board, err := client.RiskBoard(ctx, cfg.TopN)
	if err != nil {
		return stats, fmt.Errorf("risk board retrieval failed: %w", err)
	}
	stats.BoardEntries = len(board)

	byID := make(map[string]Alert, len(alerts))
	for _, sc := range submitted {
		a, ok := alerts[sc.Shipment.ShipmentID]
		if !ok {
			continue
		}
		byID[a.ShipmentID] = a
		stats.Violations = append(stats.Violations, VerifyAlert(sc, a)...)
	}
	stats.Violations = append(stats.Violations, VerifyBoard(board, byID)...)

	if cfg.OutputFile != "" {
		if err := saveScenarios(cfg.OutputFile, scenarios); err != nil {
			log.Warn(ctx, "failed to save scenarios", logger.Error(err))
		} else {
			log.Info(ctx, "scenarios saved", logger.String("file", cfg.OutputFile))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logSummary(ctx, log, stats, cfg.Verbose)

	if len(stats.Violations) > 0 {
		return stats, fmt.Errorf("%w: %d violations", ErrViolations, len(stats.Violations))
	}
	return stats, nil
}

// submit posts every scenario through a pool of workers and returns the
// scenarios whose plan was accepted.
func submit(ctx context.Context, cfg Config, client *Client, scenarios []Scenario, stats *Stats, log logger.Logger) []Scenario {
	var (
		accepted  atomic.Int64
		duplicate atomic.Int64
		mu        sync.Mutex
		ok        = make([]Scenario, 0, len(scenarios))
		failed    int
	)

	work := make(chan Scenario, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < max(1, cfg.Workers); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sc := range work {
				err := submitOne(ctx, client, sc, &accepted, &duplicate)
				mu.Lock()
				if err != nil {
					failed++
				} else {
					ok = append(ok, sc)
				}
				mu.Unlock()
				if err != nil {
					log.Warn(ctx, "shipment submission failed",
						logger.String("shipment_id", sc.Shipment.ShipmentID), logger.Error(err))
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, sc := range scenarios {
			select {
			case <-ctx.Done():
				return
			case work <- sc:
			}
		}
	}()
	wg.Wait()

	stats.ShipmentsSubmitted = len(ok)
	stats.ShipmentsFailed = failed
	stats.EventsAccepted = int(accepted.Load())
	stats.EventsDuplicate = int(duplicate.Load())
	log.Info(ctx, "submission completed",
		logger.Int("shipments", len(ok)),
		logger.Int("failed", failed),
		logger.Int("eventsAccepted", stats.EventsAccepted),
		logger.Int("eventsDuplicate", stats.EventsDuplicate))
	return ok
}

func submitOne(ctx context.Context, client *Client, sc Scenario, accepted, duplicate *atomic.Int64) error {
	if err := client.UpsertShipment(ctx, sc.Shipment); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	for _, batch := range [][]Event{sc.Events, sc.Replays} {
		if len(batch) == 0 {
			continue
		}
		n, dup, err := client.IngestEvents(ctx, sc.Shipment.ShipmentID, batch)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		accepted.Add(int64(n))
		duplicate.Add(int64(dup))
	}
	return nil
}

// settle waits until the service reports no queued and no running recomputes.
func settle(ctx context.Context, client *Client, limit time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	ticker := time.NewTicker(settlePollInterval)
	defer ticker.Stop()
	for {
		stats, err := client.Stats(ctx)
		if err == nil && idle(stats) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func idle(stats map[string]any) bool {
	queued, ok := stats["queueLength"].(float64)
	if !ok || queued != 0 {
		return false
	}
	running, _ := stats["inFlight"].(float64)
	return running == 0
}

func fetchAlerts(ctx context.Context, cfg Config, client *Client, scenarios []Scenario, stats *Stats, log logger.Logger) map[string]Alert {
	var (
		mu     sync.Mutex
		alerts = make(map[string]Alert, len(scenarios))
		wg     sync.WaitGroup
	)
	ids := make(chan string, cfg.Workers*2)
	for i := 0; i < max(1, cfg.Workers); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				a, err := client.Alert(ctx, id)
				if err != nil {
					log.Warn(ctx, "alert retrieval failed", logger.String("shipment_id", id), logger.Error(err))
					continue
				}
				mu.Lock()
				alerts[id] = a
				mu.Unlock()
			}
		}()
	}
	for _, sc := range scenarios {
		ids <- sc.Shipment.ShipmentID
	}
	close(ids)
	wg.Wait()

	stats.AlertsRetrieved = len(alerts)
	return alerts
}

func saveScenarios(path string, scenarios []Scenario) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(scenarios, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, filePermission)
}

func logSummary(ctx context.Context, log logger.Logger, stats *Stats, verbose bool) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.ShipmentsSubmitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("shipmentsGenerated", stats.ShipmentsGenerated),
		logger.Int("shipmentsSubmitted", stats.ShipmentsSubmitted),
		logger.Int("shipmentsFailed", stats.ShipmentsFailed),
		logger.Int("eventsAccepted", stats.EventsAccepted),
		logger.Int("eventsDuplicate", stats.EventsDuplicate),
		logger.Int("backpressured", stats.Backpressured),
		logger.Int("alertsRetrieved", stats.AlertsRetrieved),
		logger.Int("boardEntries", stats.BoardEntries),
		logger.Int("violations", len(stats.Violations)),
		logger.Duration("duration", stats.Duration),
		logger.Float64("shipmentsPerSecond", perSecond))
	if !verbose {
		return
	}
	for _, v := range stats.Violations {
		log.Warn(ctx, "violation", logger.String("detail", v))
	}
}
