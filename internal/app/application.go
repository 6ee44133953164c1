// Package app assembles the provisioner container and runs one command against it.
package app

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/provisioner/pkg/provision/adapter/database/gorm"
	"github.com/tigerroll/provisioner/pkg/provision/adapter/database/gorm/mysql"
	"github.com/tigerroll/provisioner/pkg/provision/adapter/database/gorm/postgres"
	"github.com/tigerroll/provisioner/pkg/provision/adapter/database/gorm/sqlite"
	"github.com/tigerroll/provisioner/pkg/provision/adapter/storage"
	"github.com/tigerroll/provisioner/pkg/provision/adapter/storage/gcs"
	"github.com/tigerroll/provisioner/pkg/provision/adapter/storage/local"
	"github.com/tigerroll/provisioner/pkg/provision/component/report"
	"github.com/tigerroll/provisioner/pkg/provision/connector/identity"
	"github.com/tigerroll/provisioner/pkg/provision/connector/warmup"
	usecase "github.com/tigerroll/provisioner/pkg/provision/core/application/usecase"
	config "github.com/tigerroll/provisioner/pkg/provision/core/config"
	metrics "github.com/tigerroll/provisioner/pkg/provision/core/metrics"
	"github.com/tigerroll/provisioner/pkg/provision/engine/executor"
	"github.com/tigerroll/provisioner/pkg/provision/engine/handler"
	googleIdentity "github.com/tigerroll/provisioner/pkg/provision/infrastructure/identity/google"
	metricsInfra "github.com/tigerroll/provisioner/pkg/provision/infrastructure/metrics"
	sqlRepo "github.com/tigerroll/provisioner/pkg/provision/infrastructure/repository/sql"
	"github.com/tigerroll/provisioner/pkg/provision/infrastructure/secret"
	"github.com/tigerroll/provisioner/pkg/provision/infrastructure/warmup/rest"
	"github.com/tigerroll/provisioner/pkg/provision/listener"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// stopTimeout bounds lifecycle shutdown after a command returns.
const stopTimeout = 15 * time.Second

// Params are the command-line inputs of the container.
type Params struct {
	EmbeddedConfig config.EmbeddedConfig
	// ConfigFilePath replaces the embedded configuration when set.
	ConfigFilePath string
	EnvFilePath    string
}

// Options returns every module of the provisioner.
func Options(p Params) []fx.Option {
	var options []fx.Option

	options = append(options, fx.Supply(
		p.EmbeddedConfig,
		fx.Annotate(p.EnvFilePath, fx.ResultTags(`name:"envFilePath"`)),
		fx.Annotate(p.ConfigFilePath, fx.ResultTags(`name:"configFilePath"`)),
	))
	options = append(options, logger.Module)
	options = append(options, config.Module)

	// Ledger
	options = append(options, gorm.Module)
	options = append(options, sqlite.Module, postgres.Module, mysql.Module)
	options = append(options, sqlRepo.Module)

	// Report storage
	options = append(options, storage.Module)
	options = append(options, local.Module, gcs.Module)
	options = append(options, report.Module)

	// Observability: no-op defaults, decorated when enabled.
	options = append(options, metrics.Module)
	options = append(options, metricsInfra.Module)

	// External systems
	options = append(options, googleIdentity.Module)
	options = append(options, rest.Module)
	options = append(options, secret.Module)
	options = append(options, identity.Module, warmup.Module)

	options = append(options, handler.Module)
	options = append(options, listener.Module)
	options = append(options, executor.Module)
	options = append(options, usecase.Module)

	return options
}

// Run starts the container, hands the ProvisioningService to fn and stops the
// container once fn returns. Ledger migrations run during start.
func Run(ctx context.Context, p Params, fn func(ctx context.Context, svc usecase.ProvisioningService) error) error {
	var svc usecase.ProvisioningService
	fxApp := fx.New(append(Options(p), fx.Populate(&svc))...)
	if err := fxApp.Err(); err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(ctx, fxApp.StartTimeout())
	defer cancelStart()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
		defer cancelStop()
		if err := fxApp.Stop(stopCtx); err != nil {
			logger.Errorf("Failed to stop application cleanly: %v", err)
		}
	}()

	return fn(ctx, svc)
}
