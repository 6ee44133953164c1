package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	metrics "github.com/tigerroll/provisioner/pkg/provision/core/metrics"
)

// OTelMetricRecorder records provisioning metrics through an OpenTelemetry meter,
// for export over OTLP.
type OTelMetricRecorder struct {
	batchStarted      metric.Int64Counter
	batchFinished     metric.Int64Counter
	batchDuration     metric.Float64Histogram
	itemOutcome       metric.Int64Counter
	itemRetry         metric.Int64Counter
	operationDuration metric.Float64Histogram
}

// NewOTelMetricRecorder creates the instruments on a meter obtained from mp.
func NewOTelMetricRecorder(mp metric.MeterProvider) (*OTelMetricRecorder, error) {
	meter := mp.Meter(InstrumentationName)
	r := &OTelMetricRecorder{}
	var err error

	if r.batchStarted, err = meter.Int64Counter("provision.batch.runs.started",
		metric.WithDescription("Batch runs started, including retries.")); err != nil {
		return nil, fmt.Errorf("failed to create batch start counter: %w", err)
	}
	if r.batchFinished, err = meter.Int64Counter("provision.batch.runs",
		metric.WithDescription("Finished batch runs by final status.")); err != nil {
		return nil, fmt.Errorf("failed to create batch status counter: %w", err)
	}
	if r.batchDuration, err = meter.Float64Histogram("provision.batch.duration",
		metric.WithDescription("Duration of batch runs."), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create batch duration histogram: %w", err)
	}
	if r.itemOutcome, err = meter.Int64Counter("provision.items",
		metric.WithDescription("Items finished by status and error code.")); err != nil {
		return nil, fmt.Errorf("failed to create item counter: %w", err)
	}
	if r.itemRetry, err = meter.Int64Counter("provision.item.retries",
		metric.WithDescription("Connector call retries by error kind.")); err != nil {
		return nil, fmt.Errorf("failed to create retry counter: %w", err)
	}
	if r.operationDuration, err = meter.Float64Histogram("provision.operation.duration",
		metric.WithDescription("Duration of individual provisioning operations."), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create operation duration histogram: %w", err)
	}
	return r, nil
}

func (r *OTelMetricRecorder) RecordBatchStart(ctx context.Context, op *model.BatchOperation) {
	r.batchStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(op.Kind))))
}

func (r *OTelMetricRecorder) RecordBatchEnd(ctx context.Context, op *model.BatchOperation) {
	attrs := metric.WithAttributes(
		attribute.String("kind", string(op.Kind)),
		attribute.String("status", op.Status.String()),
	)
	r.batchFinished.Add(ctx, 1, attrs)
	if op.StartedAt != nil && op.CompletedAt != nil {
		r.batchDuration.Record(ctx, op.CompletedAt.Sub(*op.StartedAt).Seconds(), attrs)
	}
}

func (r *OTelMetricRecorder) RecordItemEnd(ctx context.Context, kind model.BatchKind, status model.ItemStatus, errorCode string) {
	r.itemOutcome.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("status", string(status)),
		attribute.String("error_code", errorCode),
	))
}

func (r *OTelMetricRecorder) RecordItemRetry(ctx context.Context, kind model.BatchKind, reason string) {
	r.itemRetry.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("reason", reason),
	))
}

// RecordDuration keeps every tag as an attribute, unlike the Prometheus recorder.
func (r *OTelMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("name", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OTelMetricRecorder)(nil)

// CompositeRecorder fans every call out to several recorders.
type CompositeRecorder struct {
	recorders []metrics.MetricRecorder
}

// NewCompositeRecorder creates a recorder that forwards to all of recorders in order.
func NewCompositeRecorder(recorders ...metrics.MetricRecorder) *CompositeRecorder {
	return &CompositeRecorder{recorders: recorders}
}

func (c *CompositeRecorder) RecordBatchStart(ctx context.Context, op *model.BatchOperation) {
	for _, r := range c.recorders {
		r.RecordBatchStart(ctx, op)
	}
}

func (c *CompositeRecorder) RecordBatchEnd(ctx context.Context, op *model.BatchOperation) {
	for _, r := range c.recorders {
		r.RecordBatchEnd(ctx, op)
	}
}

func (c *CompositeRecorder) RecordItemEnd(ctx context.Context, kind model.BatchKind, status model.ItemStatus, errorCode string) {
	for _, r := range c.recorders {
		r.RecordItemEnd(ctx, kind, status, errorCode)
	}
}

func (c *CompositeRecorder) RecordItemRetry(ctx context.Context, kind model.BatchKind, reason string) {
	for _, r := range c.recorders {
		r.RecordItemRetry(ctx, kind, reason)
	}
}

func (c *CompositeRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	for _, r := range c.recorders {
		r.RecordDuration(ctx, name, duration, tags)
	}
}

var _ metrics.MetricRecorder = (*CompositeRecorder)(nil)
