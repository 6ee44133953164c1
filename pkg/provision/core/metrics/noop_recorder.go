package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordBatchStart(ctx context.Context, op *model.BatchOperation) {}
func (r *NoOpMetricRecorder) RecordBatchEnd(ctx context.Context, op *model.BatchOperation)   {}
func (r *NoOpMetricRecorder) RecordItemEnd(ctx context.Context, kind model.BatchKind, status model.ItemStatus, errorCode string) {
}
func (r *NoOpMetricRecorder) RecordItemRetry(ctx context.Context, kind model.BatchKind, reason string) {
}
func (r *NoOpMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartBatchSpan(ctx context.Context, op *model.BatchOperation) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartItemSpan(ctx context.Context, item *model.BatchItem) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

var _ Tracer = (*NoOpTracer)(nil)
