package logging

import (
	"context"

	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	logger "github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// --- Batch Listener ---

type LoggingBatchListener struct{}

func NewLoggingBatchListener() port.BatchListener {
	return &LoggingBatchListener{}
}

func (l *LoggingBatchListener) BeforeBatch(ctx context.Context, op *model.BatchOperation) {
	logger.Infof("BatchListener: BeforeBatch - ID: %s, Kind: %s, Items: %d, Input: %+v", op.ID, op.Kind, op.TotalItems, op.InputSnapshot)
}

func (l *LoggingBatchListener) AfterBatch(ctx context.Context, op *model.BatchOperation) {
	logger.Infof("BatchListener: AfterBatch - ID: %s, Status: %s, Successful: %d, Failed: %d, Skipped: %d",
		op.ID, op.Status, op.SuccessfulItems, op.FailedItems, op.SkippedItems)
}

var _ port.BatchListener = (*LoggingBatchListener)(nil)

// --- Item Listener ---

type LoggingItemListener struct{}

func NewLoggingItemListener() port.ItemListener {
	return &LoggingItemListener{}
}

func (l *LoggingItemListener) AfterItem(ctx context.Context, op *model.BatchOperation, item *model.BatchItem) {
	switch item.Status {
	case model.ItemStatusSuccess:
		logger.Debugf("ItemListener: AfterItem - Batch: %s, Index: %d, Status: %s, Attempts: %d", op.ID, item.Index, item.Status, item.Attempts)
	default:
		logger.Debugf("ItemListener: AfterItem - Batch: %s, Index: %d, Status: %s, Code: %s", op.ID, item.Index, item.Status, item.ErrorCode)
	}
}

func (l *LoggingItemListener) OnItemRetry(ctx context.Context, op *model.BatchOperation, item *model.BatchItem, attempt int, err error) {
	logger.Warnf("ItemListener: OnItemRetry - Batch: %s, Index: %d, Attempt: %d failed, retrying: %v", op.ID, item.Index, attempt, err)
}

var _ port.ItemListener = (*LoggingItemListener)(nil)
