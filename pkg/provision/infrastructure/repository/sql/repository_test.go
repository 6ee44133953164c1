package sql_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tigerroll/provisioner/pkg/provision/adapter/database"
	gormadapter "github.com/tigerroll/provisioner/pkg/provision/adapter/database/gorm"
	"github.com/tigerroll/provisioner/pkg/provision/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/provisioner/pkg/provision/core/config"
	reposql "github.com/tigerroll/provisioner/pkg/provision/infrastructure/repository/sql"
	"github.com/tigerroll/provisioner/pkg/provision/test"
)

// newSQLiteResolver opens a migrated ledger in a fresh SQLite file.
func newSQLiteResolver(t *testing.T) database.DBConnectionResolver {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Provisioner.AdaptorConfigs = map[string]interface{}{
		"ledger": map[string]interface{}{
			"type":     "sqlite",
			"database": filepath.Join(t.TempDir(), "ledger.db"),
		},
	}
	resolver := gormadapter.NewGormDBConnectionResolver(gormadapter.ResolverParams{
		DBProviders: []database.DBProvider{sqlite.NewProvider(cfg)},
		Cfg:         cfg,
	})
	t.Cleanup(func() { _ = resolver.CloseAll() })

	require.NoError(t, reposql.MigrateLedger(context.Background(), resolver, "ledger"))
	return resolver
}

func TestSQLRepositoryContract_SQLite(t *testing.T) {
	test.RunRepositoryContract(t, func(t *testing.T) test.Repositories {
		r := reposql.NewSQLRepository(newSQLiteResolver(t), "ledger")
		return test.Repositories{Batches: r, Mappings: r.Mappings(), Mailboxes: r.Mailboxes()}
	})
}

func TestMigrateLedger_Idempotent(t *testing.T) {
	resolver := newSQLiteResolver(t)
	require.NoError(t, reposql.MigrateLedger(context.Background(), resolver, "ledger"))
}
