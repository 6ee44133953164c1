package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
)

// MetricRecorder is an abstract interface for recording provisioning metrics.
// It lets the executor report to Prometheus, OpenTelemetry or nothing at all.
type MetricRecorder interface {
	// RecordBatchStart records that a batch run started.
	//
	// ctx: The context for the operation.
	// op: The batch that started.
	RecordBatchStart(ctx context.Context, op *model.BatchOperation)

	// RecordBatchEnd records the final state of a batch run.
	//
	// ctx: The context for the operation.
	// op: The batch with recomputed aggregates and its derived status.
	RecordBatchEnd(ctx context.Context, op *model.BatchOperation)

	// RecordItemEnd records the terminal state of one item.
	//
	// ctx: The context for the operation.
	// kind: The batch kind the item belongs to.
	// status: The item's terminal status.
	// errorCode: The classified error kind, empty on success.
	RecordItemEnd(ctx context.Context, kind model.BatchKind, status model.ItemStatus, errorCode string)

	// RecordItemRetry records one retry of an item's connector call.
	//
	// ctx: The context for the operation.
	// kind: The batch kind the item belongs to.
	// reason: The classified error kind that caused the retry.
	RecordItemRetry(ctx context.Context, kind model.BatchKind, reason string)

	// RecordDuration records the execution time of a specific operation.
	//
	// ctx: The context for the operation.
	// name: The name of the duration to record (e.g., "item", "identity_create").
	// duration: The length of the duration to record.
	// tags: Additional labels, e.g. `{"kind": "create_accounts", "status": "success"}`.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
