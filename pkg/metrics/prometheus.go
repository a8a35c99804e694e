// Package metrics provides Prometheus metrics for the match analysis pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Upload and form metrics
	uploadsAccepted     *prometheus.CounterVec
	uploadsRejected     *prometheus.CounterVec
	uploadsTypeMismatch *prometheus.CounterVec
	submissions         *prometheus.CounterVec
	validationFailures  *prometheus.CounterVec

	// Analysis metrics
	analysisDuration  *prometheus.HistogramVec
	analysisResults   *prometheus.CounterVec
	analysisFallbacks prometheus.Counter
	analysisInFlight  prometheus.Gauge

	// Confirmation and auth metrics
	confirmations *prometheus.CounterVec
	logins        *prometheus.CounterVec

	// Pipeline runs by stage
	runs *prometheus.GaugeVec

	// Outbound backend calls
	backendRequests        *prometheus.CounterVec
	backendRequestDuration *prometheus.HistogramVec

	// HTTP server metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue and worker metrics
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueRejected     prometheus.Counter
	workerCount       prometheus.Gauge
	workerErrors      prometheus.Counter
	errorsByComponent *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "spinta",
		subsystem:        "coach",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for all collectors
	m.uploadsAccepted = m.counterVec("uploads_accepted_total", "Attachments accepted into a form slot", "slot")
	m.uploadsRejected = m.counterVec("uploads_rejected_total", "Attachments rejected by the upload validator", "slot", "reason")
	m.uploadsTypeMismatch = m.counterVec("uploads_type_mismatch_total", "Accepted attachments whose type is outside the advisory accept list", "slot")
	m.submissions = m.counterVec("submissions_total", "Match form submissions by outcome", "result")
	m.validationFailures = m.counterVec("validation_failures_total", "Field validation failures by field", "field")

	m.analysisDuration = m.histogramVec("analysis_duration_milliseconds", "Wall time of an analysis including the minimum display period",
		[]float64{10, 100, 500, 1000, 2500, 5000, 7500, 10000, 30000, 60000}, "provider")
	m.analysisResults = m.counterVec("analysis_results_total", "Analysis runs by provider and outcome", "provider", "result")
	m.analysisFallbacks = m.counter("analysis_fallbacks_total", "Fallback artifact loads that degraded to an empty event list")
	m.analysisInFlight = m.gauge("analysis_in_flight", "Analyses currently running")

	m.confirmations = m.counterVec("confirmations_total", "Confirmation submissions by outcome", "result")
	m.logins = m.counterVec("logins_total", "Login attempts by outcome", "result")
	m.runs = m.gaugeVec("runs", "Pipeline runs held in the run store by stage", "stage")

	m.backendRequests = m.counterVec("backend_requests_total", "Outbound backend requests", "call", "status_code")
	m.backendRequestDuration = m.histogramVec("backend_request_duration_milliseconds", "Outbound backend request latency",
		m.histogramBuckets, "call", "status_code")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		m.histogramBuckets, "endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Analysis jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum analysis queue capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Analysis jobs enqueued")
	m.queueRejected = m.counter("queue_rejected_total", "Analysis jobs rejected by a full or closed queue")
	m.workerCount = m.gauge("worker_count", "Analysis workers running")
	m.workerErrors = m.counter("worker_errors_total", "Analysis jobs that ended in an error")
	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// RecordUploadAccepted counts an accepted attachment for a form slot.
func RecordUploadAccepted(slot string) {
	globalManager.uploadsAccepted.WithLabelValues(slot).Inc()
}

// RecordUploadRejected counts a rejected attachment.
func RecordUploadRejected(slot, reason string) {
	globalManager.uploadsRejected.WithLabelValues(slot, reason).Inc()
}

// RecordUploadTypeMismatch counts an accepted attachment outside the accept list.
func RecordUploadTypeMismatch(slot string) {
	globalManager.uploadsTypeMismatch.WithLabelValues(slot).Inc()
}

// RecordSubmission counts a form submission ("accepted" or "invalid").
func RecordSubmission(result string) {
	globalManager.submissions.WithLabelValues(result).Inc()
}

// RecordValidationFailure counts a failing field.
func RecordValidationFailure(field string) {
	globalManager.validationFailures.WithLabelValues(field).Inc()
}

// RecordAnalysis observes one finished analysis.
func RecordAnalysis(provider, result string, durationMs float64) {
	globalManager.analysisResults.WithLabelValues(provider, result).Inc()
	globalManager.analysisDuration.WithLabelValues(provider).Observe(durationMs)
}

// RecordAnalysisFallback counts a degraded fallback artifact load.
func RecordAnalysisFallback() {
	globalManager.analysisFallbacks.Inc()
}

// AddAnalysisInFlight adjusts the running-analysis gauge by delta.
func AddAnalysisInFlight(delta int) {
	globalManager.analysisInFlight.Add(float64(delta))
}

// RecordConfirmation counts a confirmation attempt.
func RecordConfirmation(result string) {
	globalManager.confirmations.WithLabelValues(result).Inc()
}

// RecordLogin counts a login attempt.
func RecordLogin(result string) {
	globalManager.logins.WithLabelValues(result).Inc()
}

// UpdateRuns sets the number of stored runs in a stage.
func UpdateRuns(stage string, count int) {
	globalManager.runs.WithLabelValues(stage).Set(float64(count))
}

// RecordBackendRequest observes one outbound backend call.
func RecordBackendRequest(call, statusCode string, durationMs float64) {
	globalManager.backendRequests.WithLabelValues(call, statusCode).Inc()
	globalManager.backendRequestDuration.WithLabelValues(call, statusCode).Observe(durationMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueRejected increments the rejected enqueue counter.
func RecordQueueRejected() {
	globalManager.queueRejected.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
