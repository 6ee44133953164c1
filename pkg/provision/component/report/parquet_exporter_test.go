package report_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	parquetlocal "github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/tigerroll/provisioner/pkg/provision/adapter/storage"
	"github.com/tigerroll/provisioner/pkg/provision/adapter/storage/local"
	"github.com/tigerroll/provisioner/pkg/provision/component/report"
	config "github.com/tigerroll/provisioner/pkg/provision/core/config"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
)

func newExporter(t *testing.T, compression string) (*report.ParquetReportExporter, string) {
	t.Helper()
	base := t.TempDir()
	cfg := config.NewConfig()
	cfg.Provisioner.StorageConfigs = map[string]interface{}{
		"reports": map[string]interface{}{"type": "local", "base_dir": base},
	}
	cfg.Provisioner.Report.OutputBaseDir = "provisioning"
	cfg.Provisioner.Report.Compression = compression

	resolver := storage.NewConnectionResolver(storage.ResolverParams{
		Providers: []storage.StorageProvider{local.NewLocalProvider(cfg)},
		Cfg:       cfg,
	})
	return report.NewParquetReportExporter(resolver, "reports", cfg.Provisioner.Report), base
}

func sampleBatch() (*model.BatchOperation, []*model.BatchItem) {
	created := time.Date(2026, 4, 5, 23, 30, 0, 0, time.UTC)
	op := model.NewBatchOperation(model.BatchKindCreateAccounts, 3, nil, created)
	op.Status = model.BatchStatusPartial

	started := created.Add(time.Second)
	done := started.Add(time.Second)
	items := []*model.BatchItem{
		{BatchID: op.ID, Index: 0, Status: model.ItemStatusSuccess, Attempts: 1, ResultData: model.Properties{"external_id": "ext-0"}, StartedAt: &started, CompletedAt: &done},
		{BatchID: op.ID, Index: 1, Status: model.ItemStatusFailed, Attempts: 3, ErrorCode: "NETWORK_ERROR", ErrorMessage: "timeout", StartedAt: &started, CompletedAt: &done},
		{BatchID: op.ID, Index: 2, Status: model.ItemStatusSkipped, ErrorCode: "CANCELLED"},
	}
	return op, items
}

func TestParquetReportExporter_Export(t *testing.T) {
	exporter, base := newExporter(t, "SNAPPY")
	op, items := sampleBatch()

	objectName, err := exporter.Export(context.Background(), op, items)
	require.NoError(t, err)
	assert.Equal(t, "provisioning/dt=2026-04-05/batch_"+op.ID+".parquet", objectName)

	fr, err := parquetlocal.NewLocalFileReader(filepath.Join(base, filepath.FromSlash(objectName)))
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(report.ItemReportRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.Equal(t, int64(3), pr.GetNumRows())
	rows := make([]report.ItemReportRow, 3)
	require.NoError(t, pr.Read(&rows))

	assert.Equal(t, int32(0), rows[0].ItemIndex)
	require.NotNil(t, rows[0].ExternalID)
	assert.Equal(t, "ext-0", *rows[0].ExternalID)
	assert.Nil(t, rows[0].ErrorCode)

	assert.Equal(t, "failed", rows[1].Status)
	require.NotNil(t, rows[1].ErrorCode)
	assert.Equal(t, "NETWORK_ERROR", *rows[1].ErrorCode)
	assert.Equal(t, int32(3), rows[1].Attempts)
	require.NotNil(t, rows[1].StartedAt)
	assert.Equal(t, items[1].StartedAt.UnixMilli(), *rows[1].StartedAt)

	assert.Nil(t, rows[2].StartedAt)
	assert.Equal(t, "partial", rows[2].BatchStatus)
}

func TestParquetReportExporter_Compression(t *testing.T) {
	for _, c := range []string{"GZIP", "UNCOMPRESSED", "none", ""} {
		t.Run(c, func(t *testing.T) {
			exporter, _ := newExporter(t, c)
			op, items := sampleBatch()
			_, err := exporter.Export(context.Background(), op, items)
			assert.NoError(t, err)
		})
	}

	exporter, _ := newExporter(t, "BROTLI9000")
	op, items := sampleBatch()
	_, err := exporter.Export(context.Background(), op, items)
	assert.True(t, exception.HasKind(err, exception.KindConfiguration))
}

func TestParquetReportExporter_UnknownStorage(t *testing.T) {
	exporter := report.NewParquetReportExporter(
		storage.NewConnectionResolver(storage.ResolverParams{Cfg: config.NewConfig()}),
		"reports", config.NewConfig().Provisioner.Report)
	op, items := sampleBatch()

	_, err := exporter.Export(context.Background(), op, items)
	assert.True(t, exception.HasKind(err, exception.KindConfiguration))
}
