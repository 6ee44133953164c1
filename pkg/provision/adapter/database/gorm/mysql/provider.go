// Package mysql provides a GORM DBProvider implementation for MySQL databases.
package mysql

import (
	"fmt"

	"github.com/tigerroll/provisioner/pkg/provision/adapter/database"
	dbconfig "github.com/tigerroll/provisioner/pkg/provision/adapter/database/config"
	gormadapter "github.com/tigerroll/provisioner/pkg/provision/adapter/database/gorm"
	config "github.com/tigerroll/provisioner/pkg/provision/core/config"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func init() {
	gormadapter.RegisterDialector("mysql", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// MySQLDBProvider implements database.DBProvider for MySQL connections.
type MySQLDBProvider struct {
	*gormadapter.BaseProvider
}

// ConnectionString generates the go-sql-driver DSN. Timestamps are parsed as UTC and
// multi-statement execution is enabled for migration files.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	auth := ""
	if c.User != "" {
		auth = c.User
		if c.Password != "" {
			auth += ":" + c.Password
		}
		auth += "@"
	}
	return fmt.Sprintf("%stcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&multiStatements=true", auth, c.Host, c.Port, c.Database)
}

// NewProvider creates a new database.DBProvider for MySQL.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &MySQLDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "mysql")}
}
