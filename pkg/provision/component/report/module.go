package report

import (
	"go.uber.org/fx"

	"github.com/tigerroll/provisioner/pkg/provision/adapter/storage"
	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	config "github.com/tigerroll/provisioner/pkg/provision/core/config"
)

// NewParquetReportExporterFromConfig builds the exporter for the configured report storage.
func NewParquetReportExporterFromConfig(resolver storage.StorageConnectionResolver, cfg *config.Config) port.ReportExporter {
	return NewParquetReportExporter(resolver, cfg.Provisioner.Infrastructure.ReportStorageRef, cfg.Provisioner.Report)
}

// Module provides the batch report exporter.
var Module = fx.Options(
	fx.Provide(NewParquetReportExporterFromConfig),
)
