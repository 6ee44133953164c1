package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	metrics "github.com/tigerroll/provisioner/pkg/provision/core/metrics"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
	logger "github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// InstrumentationName is the tracer and meter name used by the provisioning engine.
const InstrumentationName = "github.com/tigerroll/provisioner/pkg/provision"

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer from the given provider.
func NewOpenTelemetryTracer(tp trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: tp.Tracer(InstrumentationName)}
}

// StartBatchSpan starts a new span for a batch run.
func (t *OpenTelemetryTracer) StartBatchSpan(ctx context.Context, op *model.BatchOperation) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "batch."+string(op.Kind),
		trace.WithAttributes(
			attribute.String("batch.id", op.ID),
			attribute.String("batch.kind", string(op.Kind)),
			attribute.Int("batch.total_items", op.TotalItems),
		),
	)
	logger.Debugf("Tracer: started span for batch '%s'", op.ID)
	return ctx, func() {
		span.SetAttributes(
			attribute.String("batch.status", op.Status.String()),
			attribute.Int("batch.successful_items", op.SuccessfulItems),
			attribute.Int("batch.failed_items", op.FailedItems),
			attribute.Int("batch.skipped_items", op.SkippedItems),
		)
		if op.Status == model.BatchStatusFailed {
			span.SetStatus(codes.Error, "all items failed")
		}
		span.End()
	}
}

// StartItemSpan starts a child span for one item.
func (t *OpenTelemetryTracer) StartItemSpan(ctx context.Context, item *model.BatchItem) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "batch.item",
		trace.WithAttributes(
			attribute.String("batch.id", item.BatchID),
			attribute.Int("item.index", item.Index),
		),
	)
	return ctx, func() {
		span.SetAttributes(
			attribute.String("item.status", string(item.Status)),
			attribute.Int("item.attempts", item.Attempts),
		)
		span.End()
	}
}

// RecordError records an error on the span in ctx and marks the span failed.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	attrs := []attribute.KeyValue{attribute.String("module", module)}
	if be, ok := exception.AsBatchError(err); ok {
		attrs = append(attrs,
			attribute.String("error.kind", string(be.Kind)),
			attribute.Bool("error.retryable", be.IsRetryable()),
		)
	}
	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent adds an event to the span in ctx.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

func toAttributes(m map[string]interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return attrs
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
