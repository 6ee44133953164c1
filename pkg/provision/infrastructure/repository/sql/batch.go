package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	repository "github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
)

// --- BatchOperation implementation ---

func (r *SQLRepository) CreateBatch(ctx context.Context, op *model.BatchOperation, items []*model.BatchItem) error {
	const opName = "SQLRepository.CreateBatch"
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}

	entities := make([]*BatchItemEntity, len(items))
	for i, it := range items {
		entities[i] = fromDomainItem(it)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(fromDomainBatch(op)).Error; err != nil {
			return err
		}
		if len(entities) == 0 {
			return nil
		}
		return tx.Create(&entities).Error
	})
	if err != nil {
		return dbError(opName, fmt.Sprintf("failed to create batch (ID: %s)", op.ID), err)
	}
	return nil
}

func (r *SQLRepository) FindBatchByID(ctx context.Context, id string) (*model.BatchOperation, error) {
	const opName = "SQLRepository.FindBatchByID"
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}
	return findBatch(db, opName, id)
}

func findBatch(db *gorm.DB, opName, id string) (*model.BatchOperation, error) {
	var entity BatchOperationEntity
	err := db.Where("id = ?", id).Take(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrBatchNotFound
	}
	if err != nil {
		return nil, dbError(opName, fmt.Sprintf("failed to find batch (ID: %s)", id), err)
	}
	return toDomainBatch(&entity), nil
}

func (r *SQLRepository) ListBatches(ctx context.Context, limit int) ([]*model.BatchOperation, error) {
	const opName = "SQLRepository.ListBatches"
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var entities []BatchOperationEntity
	if err := query.Find(&entities).Error; err != nil {
		return nil, dbError(opName, "failed to list batches", err)
	}

	out := make([]*model.BatchOperation, len(entities))
	for i := range entities {
		out[i] = toDomainBatch(&entities[i])
	}
	return out, nil
}

func (r *SQLRepository) UpdateBatch(ctx context.Context, op *model.BatchOperation) error {
	const opName = "SQLRepository.UpdateBatch"
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}

	res := db.Model(&BatchOperationEntity{}).Where("id = ?", op.ID).Updates(map[string]interface{}{
		"status":           string(op.Status),
		"total_items":      op.TotalItems,
		"processed_items":  op.ProcessedItems,
		"successful_items": op.SuccessfulItems,
		"failed_items":     op.FailedItems,
		"skipped_items":    op.SkippedItems,
		"started_at":       op.StartedAt,
		"completed_at":     op.CompletedAt,
		"last_updated":     op.LastUpdated.UTC(),
	})
	if res.Error != nil {
		return dbError(opName, fmt.Sprintf("failed to update batch (ID: %s)", op.ID), res.Error)
	}
	if res.RowsAffected == 0 {
		return r.ensureBatch(db, opName, op.ID)
	}
	return nil
}

// ensureBatch distinguishes a missing batch from an update that changed nothing.
// MySQL reports matched-but-unchanged rows as unaffected.
func (r *SQLRepository) ensureBatch(db *gorm.DB, opName, id string) error {
	_, err := findBatch(db, opName, id)
	return err
}

// --- BatchItem implementation ---

func (r *SQLRepository) FindItems(ctx context.Context, batchID string) ([]*model.BatchItem, error) {
	return r.FindItemsByStatus(ctx, batchID)
}

func (r *SQLRepository) FindItemsByStatus(ctx context.Context, batchID string, statuses ...model.ItemStatus) ([]*model.BatchItem, error) {
	const opName = "SQLRepository.FindItemsByStatus"
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.ensureBatch(db, opName, batchID); err != nil {
		return nil, err
	}

	query := db.Where("batch_id = ?", batchID)
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		query = query.Where("status IN ?", names)
	}

	var entities []BatchItemEntity
	if err := query.Order("item_index ASC").Find(&entities).Error; err != nil {
		return nil, dbError(opName, fmt.Sprintf("failed to find items of batch %s", batchID), err)
	}

	out := make([]*model.BatchItem, len(entities))
	for i := range entities {
		out[i] = toDomainItem(&entities[i])
	}
	return out, nil
}

func (r *SQLRepository) UpdateItem(ctx context.Context, item *model.BatchItem) error {
	const opName = "SQLRepository.UpdateItem"
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}

	res := db.Model(&BatchItemEntity{}).
		Where("batch_id = ? AND item_index = ?", item.BatchID, item.Index).
		Updates(map[string]interface{}{
			"status":        string(item.Status),
			"result_data":   item.ResultData,
			"error_message": item.ErrorMessage,
			"error_code":    item.ErrorCode,
			"attempts":      item.Attempts,
			"started_at":    item.StartedAt,
			"completed_at":  item.CompletedAt,
		})
	if res.Error != nil {
		return dbError(opName, fmt.Sprintf("failed to update item %d of batch %s", item.Index, item.BatchID), res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.Model(&BatchItemEntity{}).Where("batch_id = ? AND item_index = ?", item.BatchID, item.Index).Count(&count).Error; err != nil {
			return dbError(opName, "failed to check item existence", err)
		}
		if count == 0 {
			return repository.ErrItemNotFound
		}
	}
	return nil
}

// IncrementOutcome applies "column = column + 1" in a single UPDATE, so concurrent workers
// never read-modify-write the aggregates.
func (r *SQLRepository) IncrementOutcome(ctx context.Context, batchID string, status model.ItemStatus) error {
	const opName = "SQLRepository.IncrementOutcome"
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{"last_updated": time.Now().UTC()}
	switch status {
	case model.ItemStatusSuccess:
		updates["successful_items"] = gorm.Expr("successful_items + ?", 1)
		updates["processed_items"] = gorm.Expr("processed_items + ?", 1)
	case model.ItemStatusFailed:
		updates["failed_items"] = gorm.Expr("failed_items + ?", 1)
		updates["processed_items"] = gorm.Expr("processed_items + ?", 1)
	case model.ItemStatusSkipped:
		updates["skipped_items"] = gorm.Expr("skipped_items + ?", 1)
	default:
		return fmt.Errorf("cannot increment aggregate for non-terminal status %q", status)
	}

	res := db.Model(&BatchOperationEntity{}).Where("id = ?", batchID).Updates(updates)
	if res.Error != nil {
		return dbError(opName, fmt.Sprintf("failed to increment %s count of batch %s", status, batchID), res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrBatchNotFound
	}
	return nil
}

type statusCount struct {
	Status string
	N      int
}

// RecomputeAggregates recounts the item rows inside one transaction and stores the result.
func (r *SQLRepository) RecomputeAggregates(ctx context.Context, batchID string) (*model.BatchOperation, error) {
	const opName = "SQLRepository.RecomputeAggregates"
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}

	var out *model.BatchOperation
	err = db.Transaction(func(tx *gorm.DB) error {
		op, err := findBatch(tx, opName, batchID)
		if err != nil {
			return err
		}

		var rows []statusCount
		if err := tx.Model(&BatchItemEntity{}).
			Select("status, COUNT(*) AS n").
			Where("batch_id = ?", batchID).
			Group("status").
			Scan(&rows).Error; err != nil {
			return err
		}

		var counts model.ItemCounts
		for _, row := range rows {
			counts.Total += row.N
			counts.AddN(model.ItemStatus(row.Status), row.N)
		}
		op.ApplyCounts(counts)
		op.LastUpdated = time.Now().UTC()

		if err := tx.Model(&BatchOperationEntity{}).Where("id = ?", batchID).Updates(map[string]interface{}{
			"total_items":      op.TotalItems,
			"processed_items":  op.ProcessedItems,
			"successful_items": op.SuccessfulItems,
			"failed_items":     op.FailedItems,
			"skipped_items":    op.SkippedItems,
			"last_updated":     op.LastUpdated,
		}).Error; err != nil {
			return err
		}
		out = op
		return nil
	})
	if errors.Is(err, repository.ErrBatchNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, dbError(opName, fmt.Sprintf("failed to recompute aggregates of batch %s", batchID), err)
	}
	return out, nil
}
