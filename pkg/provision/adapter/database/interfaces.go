// Package database defines the connection abstractions shared by the ledger repositories
// and the schema migrator.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/provisioner/pkg/provision/adapter/database/config"

	"gorm.io/gorm"
)

// DBProviderGroup is the Fx group tag under which every dialect provider is registered.
const DBProviderGroup = "db_providers"

// DBConnection is one named, pooled database connection.
type DBConnection interface {
	// Name returns the connection name used in the configuration.
	Name() string
	// Type returns the database type ("sqlite", "postgres", "mysql").
	Type() string
	// Config returns the settings the connection was opened with.
	Config() dbconfig.DatabaseConfig
	// GormDB returns the GORM handle.
	GormDB() *gorm.DB
	// GetSQLDB returns the underlying *sql.DB.
	GetSQLDB() (*sql.DB, error)
	// RefreshConnection pings the database.
	RefreshConnection(ctx context.Context) error
	// Close releases the pool.
	Close() error
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	// Type returns the database type this provider handles.
	Type() string
	// GetConnection returns the cached connection or opens it.
	GetConnection(name string) (DBConnection, error)
	// ForceReconnect closes and reopens a connection.
	ForceReconnect(name string) (DBConnection, error)
	// CloseAll closes every connection opened by the provider.
	CloseAll() error
}

// DBConnectionResolver finds the provider for a named connection and returns a healthy connection.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}
