package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/okian/shipwatch/internal/adapters/cache"
	"github.com/okian/shipwatch/internal/adapters/http/api"
	"github.com/okian/shipwatch/internal/adapters/http/swagger"
	shipkafka "github.com/okian/shipwatch/internal/adapters/mq/kafka"
	"github.com/okian/shipwatch/internal/adapters/repository"
	service "github.com/okian/shipwatch/internal/app"
	"github.com/okian/shipwatch/internal/config"
	"github.com/okian/shipwatch/internal/domain/engine"
	"github.com/okian/shipwatch/internal/domain/geo"
	"github.com/okian/shipwatch/internal/domain/scoring"
	"github.com/okian/shipwatch/internal/domain/timeline"
	"github.com/okian/shipwatch/pkg/logger"
	"github.com/okian/shipwatch/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// custom system metrics replace the default collectors
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "shipwatch stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

// run wires every component from cfg and serves until ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	opts := []service.Option{
		service.WithEngine(eng),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithMaxListLimit(cfg.MaxListLimit),
		service.WithAlertStaleness(time.Duration(cfg.AlertStalenessMinutes) * time.Minute),
		service.WithRefreshInterval(time.Duration(cfg.RefreshIntervalSeconds) * time.Second),
		service.WithComputeTimeout(time.Duration(cfg.ComputeTimeoutMS) * time.Millisecond),
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		opts = append(opts, service.WithCache(cache.NewRedis(rdb,
			cache.WithTTL(time.Duration(cfg.AlertStalenessMinutes)*time.Minute))))
		log.Info(ctx, "alert cache enabled", logger.String("redis_addr", cfg.RedisAddr))
	}

	brokers := cfg.Brokers()
	if len(brokers) > 0 && cfg.KafkaAlertsTopic != "" {
		producer := shipkafka.NewProducer(shipkafka.NewWriter(brokers, cfg.KafkaAlertsTopic))
		defer func() { _ = producer.Close() }()
		opts = append(opts, service.WithPublisher(producer))
	}

	svc := service.New(store, opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	if len(brokers) > 0 {
		consumer := shipkafka.NewConsumer(
			shipkafka.NewReader(brokers, cfg.KafkaEventsTopic, cfg.KafkaGroup),
			svc,
			shipkafka.WithPermanent(permanentIngestError),
		)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error(ctx, "kafka consumer stopped", logger.Error(err))
			}
		}()
		log.Info(ctx, "kafka ingestion enabled",
			logger.String("topic", cfg.KafkaEventsTopic),
			logger.String("group", cfg.KafkaGroup))
	}

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, svc, cfg.MaxListLimit),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// buildEngine applies the risk, lifecycle and city settings of cfg.
func buildEngine(cfg *config.Config) (*engine.Engine, error) {
	tiers, err := scoring.ParseScheme(cfg.SeverityScheme)
	if err != nil {
		return nil, err
	}
	opts := []engine.Option{
		engine.WithScorer(scoring.NewScorer(scoring.WithPolicy(cfg.Risk), scoring.WithTiers(tiers))),
		engine.WithRules(cfg.Lifecycle),
	}
	if cfg.CitiesFile != "" {
		cities, err := geo.LoadFile(cfg.CitiesFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithCities(geo.NewTable(geo.WithCities(cities))))
	}
	if cfg.JitterSeed != 0 {
		opts = append(opts, engine.WithJitter(timeline.NewSeededJitter(cfg.JitterSeed)))
	}
	return engine.New(opts...), nil
}

func openStore(ctx context.Context, cfg *config.Config) (*repository.SQLStore, error) {
	target := cfg.DBPath
	if cfg.DBDriver == config.DriverPostgres {
		target = cfg.DBDSN
	}
	return repository.Open(ctx, cfg.DBDriver, target)
}

// newHandler registers the business API and the API reference.
func newHandler(ctx context.Context, svc *service.Service, maxListLimit int) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, maxListLimit).Register(ctx, mux)
	return api.RecoverMiddleware(mux)
}

// permanentIngestError reports Kafka messages that no retry can fix.
func permanentIngestError(err error) bool {
	return errors.Is(err, shipkafka.ErrInvalidMessage) ||
		errors.Is(err, service.ErrInvalidInput) ||
		errors.Is(err, service.ErrNotFound)
}

func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
