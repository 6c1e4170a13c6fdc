// Package metrics provides Prometheus metrics for the shipwatch service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Risk engine
	alertsComputed   *prometheus.CounterVec
	alertsBySeverity *prometheus.CounterVec
	computeLatency   prometheus.Histogram
	cancellations    prometheus.Counter
	riskBoardSize    prometheus.Gauge
	shipmentsTotal   prometheus.Gauge

	// Ingestion
	eventsIngested  prometheus.Counter
	eventsDuplicate prometheus.Counter
	eventsRejected  prometheus.Counter

	// Alert cache
	cacheRequests     *prometheus.CounterVec
	cacheBreakerState prometheus.Gauge

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	queueWaitLatency   prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActive            prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Kafka
	kafkaMessages *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "shipwatch",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.alertsComputed = m.counterVec("alerts_computed_total", "Alerts computed by resulting status", "status")
	m.alertsBySeverity = m.counterVec("alerts_severity_total", "Alerts computed by resulting severity", "severity")
	m.computeLatency = m.histogram("compute_latency_milliseconds", "Time to compute one alert in milliseconds", m.histogramBuckets)
	m.cancellations = m.counter("cancellations_total", "Shipments declared lost or canceled")
	m.riskBoardSize = m.gauge("riskboard_size", "Shipments ranked on the risk board")
	m.shipmentsTotal = m.gauge("shipments_total", "Shipments known to the store")

	m.eventsIngested = m.counter("events_ingested_total", "Tracking events accepted")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Tracking events dropped as duplicates")
	m.eventsRejected = m.counter("events_rejected_total", "Tracking events rejected as invalid")

	m.cacheRequests = m.counterVec("alert_cache_requests_total", "Alert cache lookups by result", "result")
	m.cacheBreakerState = m.gauge("alert_cache_breaker_state", "Alert cache circuit breaker state (0 closed, 1 half-open, 2 open)")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Store operation latency in milliseconds", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Store operation errors", "op")

	m.queueSize = m.gauge("queue_size", "Recompute jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (size / capacity)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Recompute jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Recompute jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Recompute jobs rejected by a full or closed queue")
	m.queueWaitLatency = m.histogram("queue_wait_latency_milliseconds", "Time jobs spend queued in milliseconds", m.histogramBuckets)

	m.workerCount = m.gauge("worker_count", "Configured recompute workers")
	m.workerActive = m.gauge("worker_active_count", "Workers currently processing a job")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Job processing latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Jobs that failed")

	m.kafkaMessages = m.counterVec("kafka_messages_total", "Kafka messages by direction and result", "direction", "result")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordAlertComputed counts one computed alert and its compute time.
func RecordAlertComputed(status, severity string, latencyMs float64) {
	globalManager.alertsComputed.WithLabelValues(status).Inc()
	globalManager.alertsBySeverity.WithLabelValues(severity).Inc()
	globalManager.computeLatency.Observe(latencyMs)
}

// RecordCancellation counts a shipment newly declared lost.
func RecordCancellation() { globalManager.cancellations.Inc() }

// UpdateRiskBoardSize sets the number of ranked shipments.
func UpdateRiskBoardSize(n int) { globalManager.riskBoardSize.Set(float64(n)) }

// UpdateShipmentsTotal sets the number of stored shipments.
func UpdateShipmentsTotal(n int) { globalManager.shipmentsTotal.Set(float64(n)) }

// RecordEventsIngested counts accepted events.
func RecordEventsIngested(n int) { globalManager.eventsIngested.Add(float64(n)) }

// RecordEventDuplicate counts one duplicate event.
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }

// RecordEventRejected counts one invalid event.
func RecordEventRejected() { globalManager.eventsRejected.Inc() }

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// RecordCacheLookup counts an alert cache lookup with its result.
func RecordCacheLookup(result string) { globalManager.cacheRequests.WithLabelValues(result).Inc() }

// UpdateCacheBreakerState sets the circuit breaker state gauge.
func UpdateCacheBreakerState(state int) { globalManager.cacheBreakerState.Set(float64(state)) }

// RecordStoreOp observes a store operation and counts it as failed when err is set.
func RecordStoreOp(op string, latencyMs float64, err error) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
	if err != nil {
		globalManager.storeErrors.WithLabelValues(op).Inc()
	}
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordQueueWait records how long a job waited in the queue.
func RecordQueueWait(latencyMs float64) { globalManager.queueWaitLatency.Observe(latencyMs) }

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActive.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordKafkaMessage counts a consumed ("in") or produced ("out") message.
func RecordKafkaMessage(direction, result string) {
	globalManager.kafkaMessages.WithLabelValues(direction, result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
