// Package sqlite provides a GORM DBProvider implementation for SQLite databases.
package sqlite

import (
	"errors"
	"strings"

	"github.com/tigerroll/provisioner/pkg/provision/adapter/database"
	dbconfig "github.com/tigerroll/provisioner/pkg/provision/adapter/database/config"
	gormadapter "github.com/tigerroll/provisioner/pkg/provision/adapter/database/gorm"
	config "github.com/tigerroll/provisioner/pkg/provision/core/config"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// defaultDSNOptions makes concurrent writers wait for the lock and enforces foreign keys.
const defaultDSNOptions = "_busy_timeout=5000&_foreign_keys=on"

func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// SQLiteDBProvider implements database.DBProvider for SQLite connections.
type SQLiteDBProvider struct {
	*gormadapter.BaseProvider
}

// ConnectionString returns the file path with the default driver options appended
// unless the path already carries a query string.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	if strings.Contains(c.Database, "?") {
		return c.Database
	}
	return c.Database + "?" + defaultDSNOptions
}

// NewProvider creates a new database.DBProvider for SQLite.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &SQLiteDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "sqlite")}
}
