package sql

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/provisioner/pkg/provision/adapter/database"
	"github.com/tigerroll/provisioner/pkg/provision/adapter/database/migration"
	config "github.com/tigerroll/provisioner/pkg/provision/core/config"
	repository "github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
	"github.com/tigerroll/provisioner/pkg/provision/infrastructure/repository/sql/migrations"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// RepositoryParams defines the dependencies of the SQL repositories.
type RepositoryParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Resolver  database.DBConnectionResolver
	Cfg       *config.Config
}

// NewLedgerRepository creates the repository on the configured ledger connection and
// applies pending schema migrations when the application starts.
func NewLedgerRepository(p RepositoryParams) *SQLRepository {
	dbName := p.Cfg.Provisioner.Infrastructure.LedgerDBRef
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return MigrateLedger(ctx, p.Resolver, dbName)
		},
	})
	return NewSQLRepository(p.Resolver, dbName)
}

// MigrateLedger applies the embedded ledger schema to the dbName connection.
func MigrateLedger(ctx context.Context, resolver database.DBConnectionResolver, dbName string) error {
	conn, err := resolver.ResolveDBConnection(ctx, dbName)
	if err != nil {
		return fmt.Errorf("failed to resolve ledger connection '%s': %w", dbName, err)
	}
	path, err := migrations.Path(conn.Type())
	if err != nil {
		return err
	}
	logger.Debugf("Migrating ledger '%s' from %s migrations", dbName, path)
	return migration.NewMigrator(conn).Up(ctx, migrations.FS, path, migrations.Table)
}

// Module provides the SQL-backed BatchRepository, MappingRepository and MailboxRepository.
var Module = fx.Options(
	fx.Provide(
		NewLedgerRepository,
		func(r *SQLRepository) repository.BatchRepository { return r },
		func(r *SQLRepository) repository.MappingRepository { return r.Mappings() },
		func(r *SQLRepository) repository.MailboxRepository { return r.Mailboxes() },
	),
)
