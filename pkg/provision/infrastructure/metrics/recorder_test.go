package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	config "github.com/tigerroll/provisioner/pkg/provision/core/config"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	coremetrics "github.com/tigerroll/provisioner/pkg/provision/core/metrics"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
)

func finishedBatch() *model.BatchOperation {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	return &model.BatchOperation{
		ID:              "b-1",
		Kind:            model.BatchKindCreateAccounts,
		Status:          model.BatchStatusPartial,
		TotalItems:      3,
		SuccessfulItems: 2,
		FailedItems:     1,
		ProcessedItems:  3,
		StartedAt:       &start,
		CompletedAt:     &end,
	}
}

func TestPrometheusRecorder(t *testing.T) {
	r := NewPrometheusRecorder()
	ctx := context.Background()
	op := finishedBatch()

	r.RecordBatchStart(ctx, op)
	r.RecordItemEnd(ctx, op.Kind, model.ItemStatusSuccess, "")
	r.RecordItemEnd(ctx, op.Kind, model.ItemStatusSuccess, "")
	r.RecordItemEnd(ctx, op.Kind, model.ItemStatusFailed, "USER_ALREADY_EXISTS")
	r.RecordItemRetry(ctx, op.Kind, "NETWORK_ERROR")
	r.RecordBatchEnd(ctx, op)
	r.RecordDuration(ctx, "item", 20*time.Millisecond, map[string]string{"kind": "create_accounts", "status": "success", "ignored": "x"})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.batchStartCounter.WithLabelValues("create_accounts")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.batchStatusCounter.WithLabelValues("create_accounts", "partial")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.itemOutcomeCounter.WithLabelValues("create_accounts", "success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.itemOutcomeCounter.WithLabelValues("create_accounts", "failed", "USER_ALREADY_EXISTS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.itemRetryCounter.WithLabelValues("create_accounts", "NETWORK_ERROR")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.batchDurationSeconds))
	assert.Equal(t, 1, testutil.CollectAndCount(r.operationDurationSeconds))
}

func TestPrometheusRecorder_BatchEndWithoutTimestamps(t *testing.T) {
	r := NewPrometheusRecorder()
	op := finishedBatch()
	op.StartedAt = nil

	r.RecordBatchEnd(context.Background(), op)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.batchStatusCounter.WithLabelValues("create_accounts", "partial")))
	assert.Equal(t, 0, testutil.CollectAndCount(r.batchDurationSeconds))
}

func TestServer_ServesRegistry(t *testing.T) {
	r := NewPrometheusRecorder()
	r.RecordItemRetry(context.Background(), model.BatchKindConnectWarmup, "RATE_LIMIT_ERROR")

	srv := httptest.NewServer(NewServer(":0", r.GetRegistry()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `provision_item_retries_total{kind="connect_warmup",reason="RATE_LIMIT_ERROR"} 1`)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestOpenTelemetryTracer_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := NewOpenTelemetryTracer(tp)

	op := finishedBatch()
	op.Status = model.BatchStatusInProgress
	item := &model.BatchItem{BatchID: op.ID, Index: 2}

	ctx, endBatch := tracer.StartBatchSpan(context.Background(), op)
	itemCtx, endItem := tracer.StartItemSpan(ctx, item)
	tracer.RecordEvent(itemCtx, "item.retry", map[string]interface{}{"attempt": 1, "kind": "NETWORK_ERROR", "delay": 2 * time.Second})
	tracer.RecordError(itemCtx, "executor", exception.NewBatchError("executor", exception.KindUserAlreadyExists, "exists", nil))
	item.Status = model.ItemStatusFailed
	item.Attempts = 1
	endItem()
	op.Status = model.BatchStatusFailed
	endBatch()

	spans := sr.Ended()
	require.Len(t, spans, 2)

	itemSpan, batchSpan := spans[0], spans[1]
	assert.Equal(t, "batch.item", itemSpan.Name())
	assert.Equal(t, "batch.create_accounts", batchSpan.Name())
	assert.Equal(t, batchSpan.SpanContext().SpanID(), itemSpan.Parent().SpanID())

	assert.Equal(t, codes.Error, itemSpan.Status().Code)
	assert.Contains(t, itemSpan.Attributes(), attribute.String("item.status", "failed"))
	assert.Contains(t, itemSpan.Attributes(), attribute.Int("item.index", 2))

	var names []string
	for _, ev := range itemSpan.Events() {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "item.retry")
	assert.Contains(t, names, "exception")

	assert.Equal(t, codes.Error, batchSpan.Status().Code)
	assert.Contains(t, batchSpan.Attributes(), attribute.String("batch.status", "failed"))
}

func TestOpenTelemetryTracer_RecordErrorNil(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tracer := NewOpenTelemetryTracer(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))

	ctx, end := tracer.StartItemSpan(context.Background(), &model.BatchItem{BatchID: "b"})
	tracer.RecordError(ctx, "executor", nil)
	end()

	require.Len(t, sr.Ended(), 1)
	assert.Equal(t, codes.Unset, sr.Ended()[0].Status().Code)
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}

func TestOTelMetricRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := NewOTelMetricRecorder(mp)
	require.NoError(t, err)

	ctx := context.Background()
	op := finishedBatch()
	r.RecordBatchStart(ctx, op)
	r.RecordItemEnd(ctx, op.Kind, model.ItemStatusSuccess, "")
	r.RecordItemEnd(ctx, op.Kind, model.ItemStatusFailed, "NETWORK_ERROR")
	r.RecordItemRetry(ctx, op.Kind, "NETWORK_ERROR")
	r.RecordItemRetry(ctx, op.Kind, "NETWORK_ERROR")
	r.RecordBatchEnd(ctx, op)
	r.RecordDuration(ctx, "batch", time.Second, map[string]string{"kind": "create_accounts"})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(1), sumOf(t, rm, "provision.batch.runs.started"))
	assert.Equal(t, int64(1), sumOf(t, rm, "provision.batch.runs"))
	assert.Equal(t, int64(2), sumOf(t, rm, "provision.items"))
	assert.Equal(t, int64(2), sumOf(t, rm, "provision.item.retries"))
}

type countingRecorder struct {
	coremetrics.NoOpMetricRecorder
	itemEnds int
	retries  int
	starts   []model.BatchStatus
}

func (c *countingRecorder) RecordBatchStart(ctx context.Context, op *model.BatchOperation) {
	c.starts = append(c.starts, op.Status)
}
func (c *countingRecorder) RecordItemEnd(ctx context.Context, kind model.BatchKind, status model.ItemStatus, errorCode string) {
	c.itemEnds++
}
func (c *countingRecorder) RecordItemRetry(ctx context.Context, kind model.BatchKind, reason string) {
	c.retries++
}

func TestCompositeRecorder_FansOut(t *testing.T) {
	a, b := &countingRecorder{}, &countingRecorder{}
	c := NewCompositeRecorder(a, b)

	c.RecordItemEnd(context.Background(), model.BatchKindConnectWarmup, model.ItemStatusSuccess, "")
	c.RecordItemRetry(context.Background(), model.BatchKindConnectWarmup, "RATE_LIMIT_ERROR")

	assert.Equal(t, 1, a.itemEnds)
	assert.Equal(t, 1, b.itemEnds)
	assert.Equal(t, 1, a.retries)
	assert.Equal(t, 1, b.retries)
}

func TestAsyncMetricRecorder_DrainsOnClose(t *testing.T) {
	target := &countingRecorder{}
	r := NewAsyncMetricRecorder(50, target)

	op := finishedBatch()
	op.Status = model.BatchStatusInProgress
	r.RecordBatchStart(context.Background(), op)
	// The queued event holds a copy, so later mutation is not observed.
	op.Status = model.BatchStatusCompleted
	for i := 0; i < 10; i++ {
		r.RecordItemEnd(context.Background(), op.Kind, model.ItemStatusSuccess, "")
	}
	r.Close()
	r.Close()

	assert.Equal(t, 10, target.itemEnds)
	assert.Equal(t, []model.BatchStatus{model.BatchStatusInProgress}, target.starts)
}

func tracingDisabled() config.TracingConfig {
	return config.NewConfig().Provisioner.Tracing
}

func TestNewTelemetry_Disabled(t *testing.T) {
	tel, err := NewTelemetry(context.Background(), tracingDisabled())
	require.NoError(t, err)
	assert.Nil(t, tel.TracerProvider)
	assert.Nil(t, tel.MeterProvider)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewTelemetry_Enabled(t *testing.T) {
	for _, proto := range []string{"http", "grpc"} {
		t.Run(proto, func(t *testing.T) {
			cfg := tracingDisabled()
			cfg.Enabled = true
			cfg.Protocol = proto
			cfg.OTLPEndpoint = "127.0.0.1:4318"
			cfg.Insecure = true
			cfg.ExportMetrics = true

			tel, err := NewTelemetry(context.Background(), cfg)
			require.NoError(t, err)
			require.NotNil(t, tel.TracerProvider)
			require.NotNil(t, tel.MeterProvider)

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			// No collector is listening; only the provider wiring is under test.
			_ = tel.Shutdown(ctx)
		})
	}
}
