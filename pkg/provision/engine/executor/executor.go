// Package executor runs provisioning batches.
//
// A batch is persisted with all of its items before any external call is made.
// Items are then drained by a bounded worker pool; each item moves through
// processing -> prepare -> connector call (with retries) -> commit and ends in
// success, failed or skipped. Aggregates are incremented atomically per item and
// recomputed from the item rows once the run ends.
package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	config "github.com/tigerroll/provisioner/pkg/provision/core/config"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	repository "github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
	metrics "github.com/tigerroll/provisioner/pkg/provision/core/metrics"
	"github.com/tigerroll/provisioner/pkg/provision/engine/retry"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

const moduleName = "executor"

// BatchResult is a batch with its items ordered by index.
type BatchResult struct {
	Batch *model.BatchOperation
	Items []*model.BatchItem
}

// Executor submits and runs batches.
type Executor struct {
	repo         repository.BatchRepository
	handlers     map[model.BatchKind]port.ItemHandler
	cfg          *config.BatchConfig
	orchestrator *retry.Orchestrator
	recorder     metrics.MetricRecorder
	tracer       metrics.Tracer

	batchListeners []port.BatchListener
	itemListeners  []port.ItemListener

	// running holds the cancel functions of batches currently executing.
	running map[string]context.CancelFunc
	mu      sync.Mutex

	now func() time.Time
}

// NewExecutor creates an Executor. handlers are indexed by their Kind.
func NewExecutor(
	repo repository.BatchRepository,
	cfg *config.BatchConfig,
	handlers []port.ItemHandler,
	recorder metrics.MetricRecorder,
	tracer metrics.Tracer,
) *Executor {
	byKind := make(map[model.BatchKind]port.ItemHandler, len(handlers))
	for _, h := range handlers {
		byKind[h.Kind()] = h
	}
	return &Executor{
		repo:         repo,
		handlers:     byKind,
		cfg:          cfg,
		orchestrator: retry.NewOrchestrator(retry.NewRetryPolicyFromConfig(cfg)),
		recorder:     recorder,
		tracer:       tracer,
		running:      make(map[string]context.CancelFunc),
		now:          time.Now,
	}
}

// AddBatchListener registers a listener notified before and after every batch run.
func (e *Executor) AddBatchListener(l port.BatchListener) {
	e.batchListeners = append(e.batchListeners, l)
}

// AddItemListener registers a listener notified of item outcomes and retries.
func (e *Executor) AddItemListener(l port.ItemListener) {
	e.itemListeners = append(e.itemListeners, l)
}

// MaxBatchSize returns the effective size limit.
func (e *Executor) MaxBatchSize() int {
	if e.cfg.MaxBatchSize < 1 || e.cfg.MaxBatchSize > config.HardMaxBatchSize {
		return config.HardMaxBatchSize
	}
	return e.cfg.MaxBatchSize
}

func (e *Executor) concurrency() int {
	k := e.cfg.MaxConcurrency
	if k < 1 {
		return 1
	}
	if k > config.HardMaxConcurrency {
		return config.HardMaxConcurrency
	}
	return k
}

// Submit validates the batch, persists it with one pending item per entry of
// itemData and runs it to completion. Structurally invalid input is rejected
// before anything is written. Item failures never make Submit fail.
func (e *Executor) Submit(ctx context.Context, kind model.BatchKind, itemData []model.Properties, snapshot model.Properties) (*BatchResult, error) {
	if len(itemData) == 0 {
		return nil, exception.NewBatchError(moduleName, exception.KindEmptyBatch, "batch has no items", nil)
	}
	if limit := e.MaxBatchSize(); len(itemData) > limit {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindBatchSizeExceeded,
			"batch has %d items, the limit is %d", len(itemData), limit)
	}
	handler, ok := e.handlers[kind]
	if !ok {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindConfiguration, "no item handler registered for batch kind %s", kind)
	}

	op := model.NewBatchOperation(kind, len(itemData), snapshot, e.now())
	items := make([]*model.BatchItem, len(itemData))
	for i, data := range itemData {
		items[i] = model.NewBatchItem(op.ID, i, data)
	}
	if err := e.repo.CreateBatch(ctx, op, items); err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to persist batch", err)
	}
	logger.Infof("Batch %s (%s) created with %d items.", op.ID, kind, len(items))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.claim(op.ID, cancel)
	defer e.unregister(op.ID)
	return e.run(runCtx, op, handler, items)
}

// RetryFailedBatchItems replays the failed items of a finished batch, and its
// skipped items too when includeSkipped is set. Items left pending or processing
// by an interrupted run or a lost ledger write are replayed as well. Items keep
// their index and successful items are left untouched. Retrying a batch with
// nothing to replay returns its current state.
func (e *Executor) RetryFailedBatchItems(ctx context.Context, batchID string, includeSkipped bool) (*BatchResult, error) {
	op, err := e.repo.FindBatchByID(ctx, batchID)
	if err != nil {
		return nil, notFoundOrDatabase(batchID, err)
	}
	if op.Status == model.BatchStatusInProgress {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindBatchInProgress,
			"batch %s is still in progress; abandon it first if no process is running it", batchID)
	}
	handler, ok := e.handlers[op.Kind]
	if !ok {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindConfiguration, "no item handler registered for batch kind %s", op.Kind)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !e.claim(batchID, cancel) {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindBatchInProgress, "batch %s is still in progress", batchID)
	}
	defer e.unregister(batchID)

	statuses := []model.ItemStatus{model.ItemStatusFailed, model.ItemStatusPending, model.ItemStatusProcessing}
	if includeSkipped {
		statuses = append(statuses, model.ItemStatusSkipped)
	}
	items, err := e.repo.FindItemsByStatus(ctx, batchID, statuses...)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to load items to retry", err)
	}
	if len(items) == 0 {
		logger.Infof("Batch %s has no items to retry.", batchID)
		return e.GetBatch(ctx, batchID)
	}

	// Items go back to pending first so the live counters never count them twice.
	for _, it := range items {
		it.Status = model.ItemStatusPending
		if err := e.repo.UpdateItem(ctx, it); err != nil {
			return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to reset item for retry", err)
		}
	}
	if op, err = e.repo.RecomputeAggregates(ctx, batchID); err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to recompute aggregates", err)
	}
	logger.Infof("Retrying %d items of batch %s.", len(items), batchID)

	return e.run(runCtx, op, handler, items)
}

// AbandonBatch closes a batch that is stored as in progress but is not running in
// this process, typically after the process running it was killed. Items that never
// started end skipped, items caught in flight end failed, and the final status is
// derived from the item rows. The batch can then be retried.
func (e *Executor) AbandonBatch(ctx context.Context, batchID string) (*BatchResult, error) {
	op, err := e.repo.FindBatchByID(ctx, batchID)
	if err != nil {
		return nil, notFoundOrDatabase(batchID, err)
	}
	if op.Status != model.BatchStatusInProgress && op.Status != model.BatchStatusPending {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindValidation,
			"batch %s is already %s and cannot be abandoned", batchID, op.Status)
	}

	// Holding the claim keeps a retry in this process from starting meanwhile.
	if !e.claim(batchID, func() {}) {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindBatchInProgress,
			"batch %s is running in this process; stop it instead", batchID)
	}
	defer e.unregister(batchID)

	stranded, err := e.repo.FindItemsByStatus(ctx, batchID, model.ItemStatusPending, model.ItemStatusProcessing)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to load unfinished items", err)
	}
	now := e.now()
	for _, it := range stranded {
		if it.Status == model.ItemStatusPending {
			it.MarkSkipped(string(exception.KindCancelled), "batch abandoned before the item started", now)
		} else {
			it.MarkFailed(string(exception.KindCancelled), "batch abandoned while the item was running", it.Attempts, now)
		}
		if err := e.repo.UpdateItem(ctx, it); err != nil {
			return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to close unfinished item", err)
		}
	}

	final, err := e.repo.RecomputeAggregates(ctx, batchID)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to recompute aggregates", err)
	}
	final.Finish(now)
	if err := e.repo.UpdateBatch(ctx, final); err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to finalize batch", err)
	}
	logger.Warnf("Batch %s abandoned with %d unfinished items: status=%s successful=%d failed=%d skipped=%d",
		batchID, len(stranded), final.Status, final.SuccessfulItems, final.FailedItems, final.SkippedItems)
	return e.GetBatch(ctx, batchID)
}

// GetBatch returns the batch and all of its items.
func (e *Executor) GetBatch(ctx context.Context, batchID string) (*BatchResult, error) {
	op, err := e.repo.FindBatchByID(ctx, batchID)
	if err != nil {
		return nil, notFoundOrDatabase(batchID, err)
	}
	items, err := e.repo.FindItems(ctx, batchID)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to load batch items", err)
	}
	return &BatchResult{Batch: op, Items: items}, nil
}

// Stop cancels a running batch. Items that have not started yet end as skipped.
// It reports whether the batch was running.
func (e *Executor) Stop(batchID string) bool {
	e.mu.Lock()
	cancel, ok := e.running[batchID]
	e.mu.Unlock()
	if ok {
		logger.Infof("Stopping batch %s.", batchID)
		cancel()
	}
	return ok
}

// claim registers cancel for batchID unless the batch already runs in this process.
func (e *Executor) claim(batchID string, cancel context.CancelFunc) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.running[batchID]; ok {
		return false
	}
	e.running[batchID] = cancel
	logger.Debugf("Registered CancelFunc for batch %s.", batchID)
	return true
}

func (e *Executor) unregister(batchID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, batchID)
}

// run drives items through the pipeline and finalizes the batch.
// The caller has claimed op.ID; cancelling ctx stops the run.
func (e *Executor) run(ctx context.Context, op *model.BatchOperation, handler port.ItemHandler, items []*model.BatchItem) (*BatchResult, error) {
	runCtx, endSpan := e.tracer.StartBatchSpan(ctx, op)
	defer endSpan()

	// Ledger writes must land even after the run is cancelled.
	ledgerCtx := context.WithoutCancel(runCtx)

	started := e.now()
	op.Start(started)
	if err := e.repo.UpdateBatch(ledgerCtx, op); err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to mark batch in progress", err)
	}
	e.recorder.RecordBatchStart(runCtx, op)
	for _, l := range e.batchListeners {
		l.BeforeBatch(runCtx, op)
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency())
	for _, item := range items {
		if runCtx.Err() != nil {
			e.skip(ledgerCtx, op, item)
			continue
		}
		g.Go(func() error {
			if runCtx.Err() != nil {
				e.skip(ledgerCtx, op, item)
				return nil
			}
			e.processItem(runCtx, op, handler, item)
			return nil
		})
	}
	_ = g.Wait()

	final, err := e.repo.RecomputeAggregates(ledgerCtx, op.ID)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to recompute aggregates", err)
	}
	if unfinished := final.TotalItems - final.ProcessedItems - final.SkippedItems; unfinished > 0 {
		logger.Warnf("Batch %s has %d item(s) whose outcome was not recorded; retry the batch to replay them.", op.ID, unfinished)
	}
	final.Finish(e.now())
	if err := e.repo.UpdateBatch(ledgerCtx, final); err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to finalize batch", err)
	}
	*op = *final

	e.recorder.RecordBatchEnd(ledgerCtx, op)
	e.recorder.RecordDuration(ledgerCtx, "batch", e.now().Sub(started), map[string]string{"kind": string(op.Kind), "status": string(op.Status)})
	for _, l := range e.batchListeners {
		l.AfterBatch(ledgerCtx, op)
	}
	logger.Infof("Batch %s finished: status=%s total=%d successful=%d failed=%d skipped=%d",
		op.ID, op.Status, op.TotalItems, op.SuccessfulItems, op.FailedItems, op.SkippedItems)

	stored, err := e.repo.FindItems(ledgerCtx, op.ID)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to load batch items", err)
	}
	return &BatchResult{Batch: op, Items: stored}, nil
}

// processItem runs one item to a terminal state.
func (e *Executor) processItem(ctx context.Context, op *model.BatchOperation, handler port.ItemHandler, item *model.BatchItem) {
	ctx, endSpan := e.tracer.StartItemSpan(ctx, item)
	defer endSpan()
	// Same span, no cancellation.
	ledgerCtx := context.WithoutCancel(ctx)
	started := e.now()

	item.MarkProcessing(started)
	if err := e.repo.UpdateItem(ledgerCtx, item); err != nil {
		e.fail(ledgerCtx, op, item, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to mark item processing", err), 0)
		return
	}

	task, err := handler.Prepare(ctx, item)
	if err != nil {
		e.fail(ledgerCtx, op, item, exception.Classify(err), 0)
		return
	}

	attempts, callErr := e.orchestrator.Execute(ctx, task.Call, func(attempt int, be *exception.BatchError) {
		e.recorder.RecordItemRetry(ctx, op.Kind, string(be.Kind))
		e.tracer.RecordEvent(ctx, "item.retry", map[string]interface{}{"attempt": attempt, "kind": string(be.Kind)})
		for _, l := range e.itemListeners {
			l.OnItemRetry(ctx, op, item, attempt, be)
		}
	})
	if callErr != nil {
		e.fail(ledgerCtx, op, item, callErr, attempts)
		return
	}

	// The external side effect happened; persist it regardless of cancellation.
	result, err := task.Commit(ledgerCtx)
	if err != nil {
		// Whatever the handler managed to record stays on the item for a later retry.
		if result != nil {
			item.ResultData = result
		}
		e.fail(ledgerCtx, op, item, exception.Classify(err), attempts)
		return
	}

	item.MarkSuccess(result, attempts, e.now())
	e.finish(ledgerCtx, op, item)
	e.recorder.RecordDuration(ledgerCtx, "item", e.now().Sub(started), map[string]string{"kind": string(op.Kind), "status": string(item.Status)})
}

func (e *Executor) fail(ledgerCtx context.Context, op *model.BatchOperation, item *model.BatchItem, be *exception.BatchError, attempts int) {
	logger.Warnf("Batch %s item %d failed after %d attempt(s): %s: %s", op.ID, item.Index, attempts, be.Kind, be.Message)
	e.tracer.RecordError(ledgerCtx, moduleName, be)
	item.MarkFailed(string(be.Kind), be.Message, attempts, e.now())
	e.finish(ledgerCtx, op, item)
}

func (e *Executor) skip(ledgerCtx context.Context, op *model.BatchOperation, item *model.BatchItem) {
	item.MarkSkipped(string(exception.KindCancelled), "batch cancelled before the item started", e.now())
	e.finish(ledgerCtx, op, item)
}

// finish persists the terminal item row and bumps the matching aggregate.
// The row write is retried like a connector call. When it still fails the counter
// is left alone: the row keeps its non-terminal status, the batch cannot end
// completed, and a retry of the batch replays the item.
func (e *Executor) finish(ledgerCtx context.Context, op *model.BatchOperation, item *model.BatchItem) {
	attempts, werr := e.orchestrator.Execute(ledgerCtx, func(ctx context.Context) error {
		if err := e.repo.UpdateItem(ctx, item); err != nil {
			return exception.NewBatchError(moduleName, exception.KindDatabase, "failed to persist item", err)
		}
		return nil
	}, nil)
	if werr != nil {
		logger.Errorf("Failed to persist %s item %d of batch %s after %d attempt(s): %v", item.Status, item.Index, op.ID, attempts, werr)
		e.tracer.RecordError(ledgerCtx, moduleName, werr)
	} else if err := e.repo.IncrementOutcome(ledgerCtx, op.ID, item.Status); err != nil {
		logger.Errorf("Failed to increment %s counter of batch %s: %v", item.Status, op.ID, err)
	}
	e.recorder.RecordItemEnd(ledgerCtx, op.Kind, item.Status, item.ErrorCode)
	for _, l := range e.itemListeners {
		l.AfterItem(ledgerCtx, op, item)
	}
}

func notFoundOrDatabase(batchID string, err error) error {
	if errors.Is(err, repository.ErrBatchNotFound) {
		return exception.NewBatchErrorf(moduleName, exception.KindBatchNotFound, "batch %s not found", batchID, err)
	}
	return exception.NewBatchError(moduleName, exception.KindDatabase, "failed to load batch", err)
}
