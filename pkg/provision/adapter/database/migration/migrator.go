// Package migration applies embedded SQL schema migrations with golang-migrate.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/provisioner/pkg/provision/adapter/database"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// Migrator applies the migrations found under a directory of an fs.FS.
type Migrator interface {
	// Up applies all pending migrations. tableName tracks the applied versions.
	Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	// Version returns the current schema version and whether it is dirty.
	Version(ctx context.Context, migrationFS fs.FS, path string, tableName string) (uint, bool, error)
}

type migratorImpl struct {
	dbConn database.DBConnection
	dbType string
}

// NewMigrator creates a Migrator bound to dbConn.
func NewMigrator(dbConn database.DBConnection) Migrator {
	return &migratorImpl{
		dbConn: dbConn,
		dbType: dbConn.Type(),
	}
}

// getDatabaseDriver returns the golang-migrate driver matching the connection type.
func (m *migratorImpl) getDatabaseDriver(sqlDB *sql.DB, tableName string) (migratedb.Driver, error) {
	switch m.dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: tableName})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

// withInstance builds a migrate instance and runs fn with it.
// Only the source driver is closed afterwards: closing the database driver would close
// the shared connection pool the repositories keep using.
func (m *migratorImpl) withInstance(migrationFS fs.FS, path, tableName string, fn func(*migrate.Migrate) error) error {
	sqlDB, err := m.dbConn.GetSQLDB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	defer func() {
		if closeErr := sourceDriver.Close(); closeErr != nil {
			logger.Warnf("Failed to close migration source %s: %v", path, closeErr)
		}
	}()

	dbDriver, err := m.getDatabaseDriver(sqlDB, tableName)
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return fn(mInstance)
}

func (m *migratorImpl) Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	logger.Infof("Applying migrations (DB: %s, Path: %s, Table: %s)", m.dbConn.Name(), path, tableName)

	return m.withInstance(migrationFS, path, tableName, func(mInstance *migrate.Migrate) error {
		upErr := mInstance.Up()
		if errors.Is(upErr, migrate.ErrNoChange) {
			logger.Debugf("Schema of '%s' is up to date.", m.dbConn.Name())
			return nil
		}
		if upErr != nil {
			if version, dirty, versionErr := mInstance.Version(); versionErr == nil {
				logger.Errorf("Migration stopped at version %d (dirty: %t)", version, dirty)
			}
			return fmt.Errorf("migration failed (DB: %s, Path: %s): %w", m.dbType, path, upErr)
		}
		logger.Infof("Migrations applied to '%s'.", m.dbConn.Name())
		return nil
	})
}

func (m *migratorImpl) Version(ctx context.Context, migrationFS fs.FS, path string, tableName string) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := m.withInstance(migrationFS, path, tableName, func(mInstance *migrate.Migrate) error {
		var vErr error
		version, dirty, vErr = mInstance.Version()
		if errors.Is(vErr, migrate.ErrNilVersion) {
			return nil
		}
		return vErr
	})
	return version, dirty, err
}
