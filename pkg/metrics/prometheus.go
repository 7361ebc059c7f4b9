// Package metrics provides Prometheus metrics for the finishline recognition service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Fusion metrics
	fusionPasses       prometheus.Counter
	fusionErrors       prometheus.Counter
	fusionLatency      prometheus.Histogram
	recognitions       *prometheus.CounterVec
	imagesByStatus     *prometheus.CounterVec
	queueItemsCreated  prometheus.Counter
	detectionCalls     *prometheus.CounterVec
	detectionLatency   *prometheus.HistogramVec
	bibDetections      prometheus.Counter
	bibStartListMisses prometheus.Counter

	// Review metrics
	claims             *prometheus.CounterVec
	decisions          *prometheus.CounterVec
	claimsReleased     prometheus.Counter
	itemsPurged        prometheus.Counter
	reviewQueueItems   *prometheus.GaugeVec
	notifications      *prometheus.CounterVec
	notificationErrors *prometheus.CounterVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository metrics
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Job queue metrics
	jobsDuplicate          prometheus.Counter
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter
	workerRetryCount        prometheus.Counter

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "finishline",
		subsystem:        "recognition",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogram(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.fusionPasses = auto.NewCounter(m.counter("fusion_passes_total", "Fusion passes completed"))
	m.fusionErrors = auto.NewCounter(m.counter("fusion_errors_total", "Fusion passes that failed"))
	m.fusionLatency = auto.NewHistogram(m.histogram("fusion_latency_milliseconds", "End-to-end fusion pass latency in milliseconds"))
	m.recognitions = auto.NewCounterVec(
		m.counter("recognitions_total", "Recognitions produced by classification"),
		[]string{"classification"},
	)
	m.imagesByStatus = auto.NewCounterVec(
		m.counter("images_total", "Images summarized by resulting recognition status"),
		[]string{"status"},
	)
	m.queueItemsCreated = auto.NewCounter(m.counter("queue_items_created_total", "Validation queue items inserted"))
	m.detectionCalls = auto.NewCounterVec(
		m.counter("detection_calls_total", "Detection service calls by operation and outcome"),
		[]string{"operation", "outcome"},
	)
	m.detectionLatency = auto.NewHistogramVec(
		m.histogram("detection_latency_milliseconds", "Detection service call latency in milliseconds"),
		[]string{"operation"},
	)
	m.bibDetections = auto.NewCounter(m.counter("bib_detections_total", "Bib numbers extracted from OCR output"))
	m.bibStartListMisses = auto.NewCounter(m.counter("bib_start_list_misses_total", "Bib numbers with no start list entry"))

	m.claims = auto.NewCounterVec(
		m.counter("claims_total", "Claim attempts by outcome"),
		[]string{"outcome"},
	)
	m.decisions = auto.NewCounterVec(
		m.counter("decisions_total", "Reviewer decisions by kind and outcome"),
		[]string{"decision", "outcome"},
	)
	m.claimsReleased = auto.NewCounter(m.counter("claims_released_total", "Expired claims returned to PENDING by the sweeper"))
	m.itemsPurged = auto.NewCounter(m.counter("items_purged_total", "Resolved queue items removed by retention"))
	m.reviewQueueItems = auto.NewGaugeVec(
		m.gauge("review_queue_items", "Validation queue items by status"),
		[]string{"status"},
	)
	m.notifications = auto.NewCounterVec(
		m.counter("notifications_total", "Status change notifications delivered by channel"),
		[]string{"channel"},
	)
	m.notificationErrors = auto.NewCounterVec(
		m.counter("notification_errors_total", "Status change notifications that failed by channel"),
		[]string{"channel"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counter("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogram("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)

	m.repositoryUpdateLatency = auto.NewHistogram(m.histogram("repository_update_latency_milliseconds", "Repository write latency in milliseconds"))
	m.repositoryQueryLatency = auto.NewHistogram(m.histogram("repository_query_latency_milliseconds", "Repository read latency in milliseconds"))

	m.jobsDuplicate = auto.NewCounter(m.counter("jobs_duplicate_total", "Fusion jobs dropped as duplicates"))
	m.queueSize = auto.NewGauge(m.gauge("job_queue_size", "Fusion jobs waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gauge("job_queue_capacity", "Maximum fusion job queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gauge("job_queue_utilization_ratio", "Job queue utilization ratio (size / capacity)"))
	m.queueEnqueueRate = auto.NewCounter(m.counter("job_queue_enqueue_total", "Fusion jobs enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counter("job_queue_dequeue_total", "Fusion jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counter("job_queue_enqueue_errors_total", "Fusion jobs rejected by a full or closed queue"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogram("job_queue_wait_milliseconds", "Time a job spent queued in milliseconds"))

	m.workerCount = auto.NewGauge(m.gauge("worker_count", "Configured fusion workers"))
	m.workerActiveCount = auto.NewGauge(m.gauge("worker_active_count", "Workers currently processing a job"))
	m.workerIdleCount = auto.NewGauge(m.gauge("worker_idle_count", "Workers waiting for a job"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogram("worker_processing_latency_milliseconds", "Worker job processing latency in milliseconds"))
	m.workerErrorRate = auto.NewCounter(m.counter("worker_errors_total", "Jobs that failed after all retries"))
	m.workerRetryCount = auto.NewCounter(m.counter("worker_retries_total", "Job retry attempts"))

	m.errorRateByComponent = auto.NewCounterVec(
		m.counter("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counter("errors_by_endpoint_total", "Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gauge("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gauge("system_goroutine_count", "Number of goroutines"))
	gc := m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds")
	gc.Buckets = []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}
	m.systemGCPauseTime = auto.NewHistogram(gc)
}

// Fusion metrics functions.

// RecordFusionPass records a completed fusion pass and its latency.
func RecordFusionPass(latencyMs float64) {
	globalManager.fusionPasses.Inc()
	globalManager.fusionLatency.Observe(latencyMs)
}

// RecordFusionError increments the failed fusion pass counter.
func RecordFusionError() {
	globalManager.fusionErrors.Inc()
}

// RecordRecognitions adds n recognitions with the given classification.
func RecordRecognitions(classification string, n int) {
	if n <= 0 {
		return
	}
	globalManager.recognitions.WithLabelValues(classification).Add(float64(n))
}

// RecordImageStatus counts an image summarized with status.
func RecordImageStatus(status string) {
	globalManager.imagesByStatus.WithLabelValues(status).Inc()
}

// RecordQueueItemsCreated adds n newly inserted validation queue items.
func RecordQueueItemsCreated(n int) {
	if n <= 0 {
		return
	}
	globalManager.queueItemsCreated.Add(float64(n))
}

// RecordDetectionCall records one detection service call.
func RecordDetectionCall(operation, outcome string, latencyMs float64) {
	globalManager.detectionCalls.WithLabelValues(operation, outcome).Inc()
	globalManager.detectionLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordBibDetections adds n extracted bib numbers.
func RecordBibDetections(n int) {
	if n <= 0 {
		return
	}
	globalManager.bibDetections.Add(float64(n))
}

// RecordBibStartListMiss increments the unmatched bib counter.
func RecordBibStartListMiss() {
	globalManager.bibStartListMisses.Inc()
}

// Review metrics functions.

// RecordClaim counts a claim attempt by outcome.
func RecordClaim(outcome string) {
	globalManager.claims.WithLabelValues(outcome).Inc()
}

// RecordDecision counts an approve, reject or reassign by outcome.
func RecordDecision(decision, outcome string) {
	globalManager.decisions.WithLabelValues(decision, outcome).Inc()
}

// RecordClaimsReleased adds n claims released by the sweeper.
func RecordClaimsReleased(n int) {
	if n <= 0 {
		return
	}
	globalManager.claimsReleased.Add(float64(n))
}

// RecordItemsPurged adds n items removed by retention.
func RecordItemsPurged(n int) {
	if n <= 0 {
		return
	}
	globalManager.itemsPurged.Add(float64(n))
}

// UpdateReviewQueueItems sets the number of queue items in status.
func UpdateReviewQueueItems(status string, count int) {
	globalManager.reviewQueueItems.WithLabelValues(status).Set(float64(count))
}

// RecordNotification counts a delivered notification.
func RecordNotification(channel string) {
	globalManager.notifications.WithLabelValues(channel).Inc()
}

// RecordNotificationError counts a failed notification.
func RecordNotificationError(channel string) {
	globalManager.notificationErrors.WithLabelValues(channel).Inc()
}

// HTTP metrics functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Repository metrics functions.

// RecordRepositoryUpdateLatency records repository write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository read latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// Job queue metrics functions.

// RecordJobDuplicate increments the duplicate job counter.
func RecordJobDuplicate() {
	globalManager.jobsDuplicate.Inc()
}

// UpdateQueueSize sets the current job queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum job queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the job queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records how long a job waited in the queue.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker metrics functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordWorkerRetry increments the worker retry counter.
func RecordWorkerRetry() {
	globalManager.workerRetryCount.Inc()
}

// Error metrics functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System metrics functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
