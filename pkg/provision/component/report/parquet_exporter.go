// Package report exports batch ledgers as Parquet files.
package report

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/provisioner/pkg/provision/adapter/storage"
	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	config "github.com/tigerroll/provisioner/pkg/provision/core/config"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

const moduleName = "report"

// ItemReportRow is one Parquet row per batch item.
type ItemReportRow struct {
	BatchID      string  `parquet:"name=batch_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	BatchKind    string  `parquet:"name=batch_kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	BatchStatus  string  `parquet:"name=batch_status, type=BYTE_ARRAY, convertedtype=UTF8"`
	ItemIndex    int32   `parquet:"name=item_index, type=INT32"`
	Status       string  `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	ErrorCode    *string `parquet:"name=error_code, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ErrorMessage *string `parquet:"name=error_message, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ExternalID   *string `parquet:"name=external_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Attempts     int32   `parquet:"name=attempts, type=INT32"`
	StartedAt    *int64  `parquet:"name=started_at, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"`
	CompletedAt  *int64  `parquet:"name=completed_at, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"`
}

// ParquetReportExporter writes one Parquet file per batch to a named storage connection.
// Files land at <output_base_dir>/dt=YYYY-MM-DD/batch_<id>.parquet, partitioned by
// the batch creation date in UTC. Exporting a batch again overwrites its file.
type ParquetReportExporter struct {
	resolver   storage.StorageConnectionResolver
	storageRef string
	cfg        config.ReportConfig
}

// NewParquetReportExporter creates an exporter writing through storageRef.
func NewParquetReportExporter(resolver storage.StorageConnectionResolver, storageRef string, cfg config.ReportConfig) *ParquetReportExporter {
	return &ParquetReportExporter{resolver: resolver, storageRef: storageRef, cfg: cfg}
}

// ObjectName returns the object the report of op is written to.
func (e *ParquetReportExporter) ObjectName(op *model.BatchOperation) string {
	partition := "dt=" + op.CreatedAt.UTC().Format("2006-01-02")
	return path.Join(e.cfg.OutputBaseDir, partition, fmt.Sprintf("batch_%s.parquet", op.ID))
}

// Export renders items into a Parquet file and uploads it.
func (e *ParquetReportExporter) Export(ctx context.Context, op *model.BatchOperation, items []*model.BatchItem) (string, error) {
	codec, err := compressionCodec(e.cfg.Compression)
	if err != nil {
		return "", exception.NewBatchError(moduleName, exception.KindConfiguration, "invalid report compression", err)
	}

	buf := new(bytes.Buffer)
	if err := writeRows(buf, codec, toRows(op, items)); err != nil {
		return "", exception.NewBatchError(moduleName, exception.KindUnknown, "failed to render parquet report", err)
	}

	conn, err := e.resolver.ResolveStorageConnection(ctx, e.storageRef)
	if err != nil {
		return "", exception.NewBatchError(moduleName, exception.KindConfiguration,
			fmt.Sprintf("failed to resolve storage connection '%s'", e.storageRef), err)
	}

	objectName := e.ObjectName(op)
	size := buf.Len()
	if err := conn.Upload(ctx, "", objectName, buf, "application/octet-stream"); err != nil {
		return "", exception.NewBatchError(moduleName, exception.KindNetwork,
			fmt.Sprintf("failed to upload report to '%s'", objectName), err)
	}
	logger.Infof("Report for batch %s (%d items, %d bytes) written to %s:%s", op.ID, len(items), size, e.storageRef, objectName)
	return objectName, nil
}

func writeRows(buf *bytes.Buffer, codec parquet.CompressionCodec, rows []ItemReportRow) (err error) {
	rowGroup := int64(len(rows))
	if rowGroup == 0 {
		rowGroup = 1
	}
	pw, err := writer.NewParquetWriterFromWriter(buf, new(ItemReportRow), rowGroup)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = codec

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	// WriteStop can panic on malformed schemas.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked during WriteStop: %v", r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

func toRows(op *model.BatchOperation, items []*model.BatchItem) []ItemReportRow {
	rows := make([]ItemReportRow, 0, len(items))
	for _, it := range items {
		row := ItemReportRow{
			BatchID:      op.ID,
			BatchKind:    string(op.Kind),
			BatchStatus:  op.Status.String(),
			ItemIndex:    int32(it.Index),
			Status:       string(it.Status),
			ErrorCode:    optionalString(it.ErrorCode),
			ErrorMessage: optionalString(it.ErrorMessage),
			Attempts:     int32(it.Attempts),
			StartedAt:    optionalMillis(it.StartedAt),
			CompletedAt:  optionalMillis(it.CompletedAt),
		}
		if id, ok := it.ResultData["external_id"].(string); ok {
			row.ExternalID = optionalString(id)
		}
		rows = append(rows, row)
	}
	return rows
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// compressionCodec maps a configured compression name to a Parquet codec.
func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "SNAPPY", "":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "ZSTD":
		return parquet.CompressionCodec_ZSTD, nil
	case "NONE", "UNCOMPRESSED":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", name)
	}
}

var _ port.ReportExporter = (*ParquetReportExporter)(nil)
