package config

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type"`                // Database type (e.g., "postgres", "mysql", "sqlite").
	Host     string     `yaml:"host"`                // Database host address.
	Port     int        `yaml:"port"`                // Database port number.
	Database string     `yaml:"database"`            // Database name, or the file path for SQLite.
	User     string     `yaml:"user"`                // Database user.
	Password string     `yaml:"password"`            // Database password.
	Sslmode  string     `yaml:"sslmode"`             // SSL mode for PostgreSQL connections.
	LogLevel string     `yaml:"log_level,omitempty"` // GORM log level: SILENT, ERROR, WARN or INFO.
	Pool     PoolConfig `yaml:"pool"`                // Connection pool settings.
}
