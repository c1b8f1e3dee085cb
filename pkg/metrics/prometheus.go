// Package metrics provides Prometheus metrics for the panel scoring service.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	constLabels    prometheus.Labels
	registry       prometheus.Registerer

	// Scoring
	evaluationsSubmitted *prometheus.CounterVec
	evaluationsDuplicate prometheus.Counter
	overallScore         prometheus.Histogram
	undefinedScores      prometheus.Counter
	agreementScore       prometheus.Histogram
	escalations          prometheus.Counter
	decisions            *prometheus.CounterVec
	competencyUpdates    *prometheus.CounterVec
	applicationsTracked  prometheus.Gauge

	// Summary recompute
	recomputeLatency prometheus.Histogram
	recomputeErrors  prometheus.Counter

	// Repository
	repositoryLatency *prometheus.HistogramVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by package-level recorders

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // avoids default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "panel",
		subsystem:      "scoring",
		latencyBuckets: prometheus.DefBuckets,
		registry:       prometheus.DefaultRegisterer,
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.evaluationsSubmitted = m.counterVec("evaluations_submitted_total",
		"Evaluations accepted, by source (human, ai) and stage", "source", "stage")
	m.evaluationsDuplicate = m.counter("evaluations_duplicate_total",
		"Evaluation submissions rejected as duplicates of an earlier submission_id")
	m.overallScore = m.histogram("overall_score",
		"Distribution of derived evaluation overall scores", prometheus.LinearBuckets(0, 1, 11))
	m.undefinedScores = m.counter("overall_score_undefined_total",
		"Evaluations submitted without any criteria scores")
	m.agreementScore = m.histogram("agreement_score",
		"Distribution of consensus agreement scores (0-100)", prometheus.LinearBuckets(0, 10, 11))
	m.escalations = m.counter("consensus_escalations_total",
		"Applications classified as needing a human consensus decision")
	m.decisions = m.counterVec("consensus_decisions_total",
		"Consensus decisions recorded, by final decision", "decision")
	m.competencyUpdates = m.counterVec("competency_updates_total",
		"Competency entries processed by bulk updates, by outcome", "outcome")
	m.applicationsTracked = m.gauge("applications_tracked",
		"Applications present in the summary index")

	m.recomputeLatency = m.histogram("recompute_latency_milliseconds",
		"Latency of recomputing one application summary", m.latencyBuckets)
	m.recomputeErrors = m.counter("recompute_errors_total",
		"Application summary recomputations that failed")

	m.repositoryLatency = m.histogramVec("repository_latency_milliseconds",
		"Repository operation latency in milliseconds", m.latencyBuckets, "backend", "op")

	m.queueSize = m.gauge("queue_size", "Current number of queued recompute jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum recompute queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (size / capacity)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Recompute jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Recompute jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Recompute jobs rejected by the queue")

	m.workerCount = m.gauge("worker_count", "Number of recompute workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Worker job processing latency in milliseconds", m.latencyBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Worker job failures")

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by endpoint, method and status code", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.latencyBuckets, "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and error type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Errors by endpoint, method and error type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordEvaluationSubmitted counts an accepted evaluation.
func RecordEvaluationSubmitted(source, stage string) {
	globalManager.evaluationsSubmitted.WithLabelValues(source, stage).Inc()
}

// RecordEvaluationDuplicate counts a duplicate submission.
func RecordEvaluationDuplicate() {
	globalManager.evaluationsDuplicate.Inc()
}

// RecordOverallScore observes a derived overall score.
func RecordOverallScore(score float64) {
	globalManager.overallScore.Observe(score)
}

// RecordUndefinedScore counts an evaluation without criteria scores.
func RecordUndefinedScore() {
	globalManager.undefinedScores.Inc()
}

// RecordAgreement observes a consensus agreement score.
func RecordAgreement(score float64) {
	globalManager.agreementScore.Observe(score)
}

// RecordEscalation counts an application escalated to human consensus.
func RecordEscalation() {
	globalManager.escalations.Inc()
}

// RecordDecision counts a recorded consensus decision.
func RecordDecision(decision string) {
	globalManager.decisions.WithLabelValues(decision).Inc()
}

// RecordCompetencyUpdate counts one processed competency entry.
func RecordCompetencyUpdate(outcome string) {
	globalManager.competencyUpdates.WithLabelValues(outcome).Inc()
}

// UpdateApplicationsTracked sets the number of indexed applications.
func UpdateApplicationsTracked(count int) {
	globalManager.applicationsTracked.Set(float64(count))
}

// RecordRecomputeLatency observes summary recompute latency.
func RecordRecomputeLatency(latencyMs float64) {
	globalManager.recomputeLatency.Observe(latencyMs)
}

// RecordRecomputeError counts a failed recompute.
func RecordRecomputeError() {
	globalManager.recomputeErrors.Inc()
}

// RecordRepositoryLatency observes a repository operation.
func RecordRepositoryLatency(backend, op string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
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

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap memory usage in bytes.
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

// RegisterCollector adds an extra collector (build info, pool stats) to the service registry.
// Registering the same collector twice is not an error.
func RegisterCollector(c prometheus.Collector) error {
	if err := customRegistry.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrRegister, err)
	}
	return nil
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
