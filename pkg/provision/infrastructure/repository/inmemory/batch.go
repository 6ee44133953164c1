package inmemory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	"github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
)

// CreateBatch persists a new batch and its items.
// It returns an error if a batch with the same ID already exists.
func (r *Repository) CreateBatch(ctx context.Context, op *model.BatchOperation, items []*model.BatchItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.batches[op.ID]; exists {
		return fmt.Errorf("batch with ID %s already exists", op.ID)
	}
	r.batches[op.ID] = cloneBatch(op)

	stored := make([]*model.BatchItem, len(items))
	for i, it := range items {
		stored[i] = cloneItem(it)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Index < stored[j].Index })
	r.items[op.ID] = stored
	return nil
}

// FindBatchByID finds a batch by its ID.
func (r *Repository) FindBatchByID(ctx context.Context, id string) (*model.BatchOperation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.batches[id]
	if !ok {
		return nil, repository.ErrBatchNotFound
	}
	return cloneBatch(b), nil
}

// ListBatches returns up to limit batches, newest first. A non-positive limit returns all.
func (r *Repository) ListBatches(ctx context.Context, limit int) ([]*model.BatchOperation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.BatchOperation, 0, len(r.batches))
	for _, b := range r.batches {
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[j].CreatedAt.Before(out[i].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateBatch replaces the stored batch.
func (r *Repository) UpdateBatch(ctx context.Context, op *model.BatchOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.batches[op.ID]; !exists {
		return repository.ErrBatchNotFound
	}
	r.batches[op.ID] = cloneBatch(op)
	return nil
}

// FindItems returns every item of the batch ordered by index.
func (r *Repository) FindItems(ctx context.Context, batchID string) ([]*model.BatchItem, error) {
	return r.FindItemsByStatus(ctx, batchID)
}

// FindItemsByStatus returns the batch items whose status is one of statuses.
// With no statuses every item is returned.
func (r *Repository) FindItemsByStatus(ctx context.Context, batchID string, statuses ...model.ItemStatus) ([]*model.BatchItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.batches[batchID]; !ok {
		return nil, repository.ErrBatchNotFound
	}

	want := make(map[model.ItemStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	var out []*model.BatchItem
	for _, it := range r.items[batchID] {
		if len(want) == 0 || want[it.Status] {
			out = append(out, cloneItem(it))
		}
	}
	return out, nil
}

// UpdateItem replaces the stored item with the same batch and index.
func (r *Repository) UpdateItem(ctx context.Context, item *model.BatchItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, it := range r.items[item.BatchID] {
		if it.Index == item.Index {
			r.items[item.BatchID][i] = cloneItem(item)
			return nil
		}
	}
	return repository.ErrItemNotFound
}

// IncrementOutcome bumps the aggregate matching status under the write lock.
func (r *Repository) IncrementOutcome(ctx context.Context, batchID string, status model.ItemStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.batches[batchID]
	if !ok {
		return repository.ErrBatchNotFound
	}
	switch status {
	case model.ItemStatusSuccess:
		b.SuccessfulItems++
		b.ProcessedItems++
	case model.ItemStatusFailed:
		b.FailedItems++
		b.ProcessedItems++
	case model.ItemStatusSkipped:
		b.SkippedItems++
	default:
		return fmt.Errorf("cannot increment aggregate for non-terminal status %q", status)
	}
	b.LastUpdated = time.Now()
	return nil
}

// RecomputeAggregates recounts items and stores the result on the batch.
func (r *Repository) RecomputeAggregates(ctx context.Context, batchID string) (*model.BatchOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.batches[batchID]
	if !ok {
		return nil, repository.ErrBatchNotFound
	}
	b.ApplyCounts(model.CountItems(r.items[batchID]))
	b.LastUpdated = time.Now()
	return cloneBatch(b), nil
}
