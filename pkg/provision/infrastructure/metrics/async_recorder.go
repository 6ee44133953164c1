package metrics

import (
	"context"
	"sync"
	"time"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	metrics "github.com/tigerroll/provisioner/pkg/provision/core/metrics"
	logger "github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// MetricEvent is a metric call queued for asynchronous recording.
type MetricEvent struct {
	Type      string
	Batch     *model.BatchOperation // copy taken when the event was queued
	Kind      model.BatchKind
	Status    model.ItemStatus
	ErrorCode string
	Reason    string
	Name      string
	Duration  time.Duration
	Tags      map[string]string
}

// Metric event type constants
const (
	MetricEventTypeBatchStart     = "batch_start"
	MetricEventTypeBatchEnd       = "batch_end"
	MetricEventTypeItemEnd        = "item_end"
	MetricEventTypeItemRetry      = "item_retry"
	MetricEventTypeRecordDuration = "record_duration"
)

// AsyncMetricRecorder pushes metric calls to a channel and records them in a
// separate goroutine, so a slow exporter never stalls item workers.
type AsyncMetricRecorder struct {
	eventQueue   chan MetricEvent
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder
}

// NewAsyncMetricRecorder creates an asynchronous recorder.
// A bufferSize of 0 or less uses a default of 100.
func NewAsyncMetricRecorder(bufferSize int, syncRec metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	r := &AsyncMetricRecorder{
		eventQueue:   make(chan MetricEvent, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: syncRec,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: Worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			r.processEvent(event)
		case <-r.stopCh:
			// Drain whatever is still queued before exiting.
			remaining := len(r.eventQueue)
			for i := 0; i < remaining; i++ {
				r.processEvent(<-r.eventQueue)
			}
			logger.Debugf("AsyncMetricRecorder: Worker goroutine stopped. Processed %d remaining events.", remaining)
			return
		}
	}
}

func (r *AsyncMetricRecorder) processEvent(event MetricEvent) {
	// The originating context may be cancelled long before the event is processed.
	ctx := context.Background()
	switch event.Type {
	case MetricEventTypeBatchStart:
		r.syncRecorder.RecordBatchStart(ctx, event.Batch)
	case MetricEventTypeBatchEnd:
		r.syncRecorder.RecordBatchEnd(ctx, event.Batch)
	case MetricEventTypeItemEnd:
		r.syncRecorder.RecordItemEnd(ctx, event.Kind, event.Status, event.ErrorCode)
	case MetricEventTypeItemRetry:
		r.syncRecorder.RecordItemRetry(ctx, event.Kind, event.Reason)
	case MetricEventTypeRecordDuration:
		r.syncRecorder.RecordDuration(ctx, event.Name, event.Duration, event.Tags)
	default:
		logger.Warnf("AsyncMetricRecorder: Unknown metric event type: %s", event.Type)
	}
}

// Close stops the worker after it has processed every queued event. It is safe to call twice.
func (r *AsyncMetricRecorder) Close() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
		logger.Debugf("AsyncMetricRecorder: Shutdown complete.")
	})
}

func (r *AsyncMetricRecorder) sendEvent(event MetricEvent) {
	select {
	case r.eventQueue <- event:
	default:
		logger.Warnf("AsyncMetricRecorder: Event queue is full (type: %s). Event discarded.", event.Type)
	}
}

func (r *AsyncMetricRecorder) RecordBatchStart(ctx context.Context, op *model.BatchOperation) {
	cp := *op
	r.sendEvent(MetricEvent{Type: MetricEventTypeBatchStart, Batch: &cp})
}

func (r *AsyncMetricRecorder) RecordBatchEnd(ctx context.Context, op *model.BatchOperation) {
	cp := *op
	r.sendEvent(MetricEvent{Type: MetricEventTypeBatchEnd, Batch: &cp})
}

func (r *AsyncMetricRecorder) RecordItemEnd(ctx context.Context, kind model.BatchKind, status model.ItemStatus, errorCode string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeItemEnd, Kind: kind, Status: status, ErrorCode: errorCode})
}

func (r *AsyncMetricRecorder) RecordItemRetry(ctx context.Context, kind model.BatchKind, reason string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeItemRetry, Kind: kind, Reason: reason})
}

func (r *AsyncMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRecordDuration, Name: name, Duration: duration, Tags: tags})
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)
