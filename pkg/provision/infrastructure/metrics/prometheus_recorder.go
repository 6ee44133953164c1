package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	metrics "github.com/tigerroll/provisioner/pkg/provision/core/metrics"
	logger "github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Batch Metrics
	batchStartCounter    *prometheus.CounterVec
	batchStatusCounter   *prometheus.CounterVec
	batchDurationSeconds *prometheus.HistogramVec

	// Item Metrics
	itemOutcomeCounter *prometheus.CounterVec
	itemRetryCounter   *prometheus.CounterVec

	operationDurationSeconds *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a PrometheusRecorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		batchStartCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provision_batch_runs_started_total",
			Help: "Total number of batch runs started, including retries.",
		}, []string{"kind"}),
		batchStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provision_batch_runs_total",
			Help: "Total number of finished batch runs by final status.",
		}, []string{"kind", "status"}),
		batchDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provision_batch_duration_seconds",
			Help:    "Duration of batch runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "status"}),
		itemOutcomeCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provision_items_total",
			Help: "Total items finished by status and error code.",
		}, []string{"kind", "status", "error_code"}),
		itemRetryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provision_item_retries_total",
			Help: "Total connector call retries by error kind.",
		}, []string{"kind", "reason"}),
		operationDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provision_operation_duration_seconds",
			Help:    "Duration of individual provisioning operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name", "kind", "status"}),
	}

	registry.MustRegister(
		r.batchStartCounter,
		r.batchStatusCounter,
		r.batchDurationSeconds,
		r.itemOutcomeCounter,
		r.itemRetryCounter,
		r.operationDurationSeconds,
	)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordBatchStart records the start of a batch run.
func (r *PrometheusRecorder) RecordBatchStart(ctx context.Context, op *model.BatchOperation) {
	r.batchStartCounter.WithLabelValues(string(op.Kind)).Inc()
	logger.Debugf("Metrics: batch %s (%s) started.", op.ID, op.Kind)
}

// RecordBatchEnd records the final status and the duration of the run.
func (r *PrometheusRecorder) RecordBatchEnd(ctx context.Context, op *model.BatchOperation) {
	r.batchStatusCounter.WithLabelValues(string(op.Kind), op.Status.String()).Inc()
	if op.StartedAt == nil || op.CompletedAt == nil {
		return
	}
	duration := op.CompletedAt.Sub(*op.StartedAt).Seconds()
	r.batchDurationSeconds.WithLabelValues(string(op.Kind), op.Status.String()).Observe(duration)
	logger.Debugf("Metrics: batch %s ended with %s. Duration: %.3fs", op.ID, op.Status, duration)
}

// RecordItemEnd counts a terminal item.
func (r *PrometheusRecorder) RecordItemEnd(ctx context.Context, kind model.BatchKind, status model.ItemStatus, errorCode string) {
	r.itemOutcomeCounter.WithLabelValues(string(kind), string(status), errorCode).Inc()
}

// RecordItemRetry counts one retry.
func (r *PrometheusRecorder) RecordItemRetry(ctx context.Context, kind model.BatchKind, reason string) {
	r.itemRetryCounter.WithLabelValues(string(kind), reason).Inc()
}

// RecordDuration observes an operation duration. Only the "kind" and "status" tags are kept as labels.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDurationSeconds.WithLabelValues(name, tags["kind"], tags["status"]).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
