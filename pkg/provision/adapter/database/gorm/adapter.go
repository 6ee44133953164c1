package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tigerroll/provisioner/pkg/provision/adapter/database"
	dbconfig "github.com/tigerroll/provisioner/pkg/provision/adapter/database/config"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"

	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// NewGormLogger creates a gorm logger.Interface for the configured level.
// Unknown or empty levels are silent.
func NewGormLogger(level string) gorm_logger.Interface {
	var gormLevel gorm_logger.LogLevel
	switch strings.ToUpper(level) {
	case "ERROR":
		gormLevel = gorm_logger.Error
	case "WARN":
		gormLevel = gorm_logger.Warn
	case "INFO":
		gormLevel = gorm_logger.Info
	default:
		gormLevel = gorm_logger.Silent
	}

	return gorm_logger.New(
		NewGormWriter(),
		gorm_logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// GormWriter redirects GORM log output to the application logger.
// SQL traces go to DEBUG, everything else to INFO.
type GormWriter struct{}

// NewGormWriter creates a new instance of GormWriter.
func NewGormWriter() *GormWriter {
	return &GormWriter{}
}

// Printf implements the gorm logger.Writer interface.
func (w *GormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if isSQLTrace(msg) {
		logger.Debugf("[GORM] %s", msg)
		return
	}
	logger.Infof("[GORM] %s", msg)
}

func isSQLTrace(msg string) bool {
	if !strings.Contains(msg, "[") || !strings.Contains(msg, "]") {
		return false
	}
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.Contains(msg, verb) {
			return true
		}
	}
	return false
}

// GormDBAdapter implements database.DBConnection.
type GormDBAdapter struct {
	db    *gorm.DB
	sqlDB *sql.DB
	cfg   dbconfig.DatabaseConfig
	name  string
}

// NewGormDBAdapter wraps an open GORM handle.
func NewGormDBAdapter(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) (database.DBConnection, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB for '%s': %w", name, err)
	}
	return &GormDBAdapter{db: db, sqlDB: sqlDB, cfg: cfg, name: name}, nil
}

// Name returns the connection name.
func (a *GormDBAdapter) Name() string { return a.name }

// Type returns the database type.
func (a *GormDBAdapter) Type() string { return a.cfg.Type }

// Config returns the connection settings.
func (a *GormDBAdapter) Config() dbconfig.DatabaseConfig { return a.cfg }

// GormDB returns the GORM handle.
func (a *GormDBAdapter) GormDB() *gorm.DB { return a.db }

// GetSQLDB returns the underlying *sql.DB.
func (a *GormDBAdapter) GetSQLDB() (*sql.DB, error) {
	if a.sqlDB == nil {
		return nil, fmt.Errorf("connection '%s' has no underlying *sql.DB", a.name)
	}
	return a.sqlDB, nil
}

// RefreshConnection pings the database.
func (a *GormDBAdapter) RefreshConnection(ctx context.Context) error {
	if err := a.sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping connection '%s': %w", a.name, err)
	}
	return nil
}

// Close closes the pool.
func (a *GormDBAdapter) Close() error {
	logger.Debugf("Closing DB connection: %s", a.name)
	return a.sqlDB.Close()
}
