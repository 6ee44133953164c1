package ports

import (
	"context"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
)

// Notifier is an abstract interface for notifying external systems about batch results.
type Notifier interface {
	// NotifyBatchCompletion is called once per finished batch run with its failed items.
	NotifyBatchCompletion(ctx context.Context, op *model.BatchOperation, failed []*model.BatchItem)
}
