package metrics

import (
	"context"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
)

// Tracer is an abstract interface for distributed tracing of batch runs.
type Tracer interface {
	// StartBatchSpan starts a span covering one batch run.
	//
	// Returns: A context with the new span set, and a function to end the span.
	StartBatchSpan(ctx context.Context, op *model.BatchOperation) (context.Context, func())

	// StartItemSpan starts a child span for one item pipeline.
	//
	// Returns: A context with the new span set, and a function to end the span.
	StartItemSpan(ctx context.Context, item *model.BatchItem) (context.Context, func())

	// RecordError records an error in the current span.
	//
	// module: The component where the error occurred (e.g., "connector", "ledger").
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records an event in the current span.
	//
	// attributes: e.g. `map[string]interface{}{"attempt": 2, "kind": "NETWORK_ERROR"}`
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
