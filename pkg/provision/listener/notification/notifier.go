package notification

import (
	"context"
	"fmt"
	"strings"

	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	repository "github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
	"github.com/tigerroll/provisioner/pkg/provision/core/ports"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// maxListedFailures bounds how many failed items a summary names individually.
const maxListedFailures = 5

// LoggingNotifier is a Notifier that only logs a completion summary.
type LoggingNotifier struct{}

// NewLoggingNotifier creates a new instance of LoggingNotifier.
func NewLoggingNotifier() ports.Notifier {
	logger.Infof("Notification: Initializing Logging Notifier.")
	return &LoggingNotifier{}
}

// NotifyBatchCompletion logs one line per batch, listing the first failed items.
func (n *LoggingNotifier) NotifyBatchCompletion(ctx context.Context, op *model.BatchOperation, failed []*model.BatchItem) {
	message := Summary(op, failed)
	if op.Status == model.BatchStatusCompleted {
		logger.Infof(message)
	} else {
		logger.Warnf(message)
	}
}

var _ ports.Notifier = (*LoggingNotifier)(nil)

// Summary renders a one-line batch completion message.
func Summary(op *model.BatchOperation, failed []*model.BatchItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch Notification: Batch %s (%s) finished with Status: %s. Successful: %d/%d, Failed: %d, Skipped: %d",
		op.ID, op.Kind, op.Status, op.SuccessfulItems, op.TotalItems, op.FailedItems, op.SkippedItems)
	if op.StartedAt != nil && op.CompletedAt != nil {
		fmt.Fprintf(&b, ", Duration: %s", op.CompletedAt.Sub(*op.StartedAt))
	}
	for i, it := range failed {
		if i == maxListedFailures {
			fmt.Fprintf(&b, " ... and %d more", len(failed)-maxListedFailures)
			break
		}
		fmt.Fprintf(&b, " [#%d %s]", it.Index, it.ErrorCode)
	}
	return b.String()
}

// NotificationListener is a BatchListener that hands finished batches and their
// failed items to a Notifier.
type NotificationListener struct {
	notifier ports.Notifier
	repo     repository.BatchRepository
}

// NewNotificationListener creates a new instance of NotificationListener.
func NewNotificationListener(notifier ports.Notifier, repo repository.BatchRepository) port.BatchListener {
	return &NotificationListener{notifier: notifier, repo: repo}
}

// BeforeBatch exists to satisfy BatchListener requirements but does nothing.
func (l *NotificationListener) BeforeBatch(ctx context.Context, op *model.BatchOperation) {}

// AfterBatch loads the failed items and notifies. A ledger read error still
// produces a notification, without item details.
func (l *NotificationListener) AfterBatch(ctx context.Context, op *model.BatchOperation) {
	var failed []*model.BatchItem
	if op.FailedItems > 0 {
		items, err := l.repo.FindItemsByStatus(ctx, op.ID, model.ItemStatusFailed)
		if err != nil {
			logger.Warnf("Notification: failed to load failed items of batch %s: %v", op.ID, err)
		} else {
			failed = items
		}
	}
	l.notifier.NotifyBatchCompletion(ctx, op, failed)
}

var _ port.BatchListener = (*NotificationListener)(nil)
