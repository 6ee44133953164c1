package config

// Package config provides structures and utilities for managing application configuration.

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

const (
	// HardMaxBatchSize is the largest batch the executor ever accepts, whatever is configured.
	HardMaxBatchSize = 20
	// HardMaxConcurrency bounds the worker pool size.
	HardMaxConcurrency = 20
)

// ItemRetryConfig holds item-level retry configuration.
type ItemRetryConfig struct {
	MaxAttempts     int      `yaml:"max_attempts"`     // MaxAttempts is the maximum number of connector attempts per item.
	InitialInterval int      `yaml:"initial_interval"` // InitialInterval is the fixed delay between attempts in milliseconds.
	RetryableKinds  []string `yaml:"retryable_kinds"`  // RetryableKinds widens retryability to additional error kinds.
}

// BatchConfig holds configuration specific to the batch executor.
type BatchConfig struct {
	// MaxConcurrency is the worker pool size K.
	MaxConcurrency int `yaml:"max_concurrency"`
	// MaxBatchSize is the largest accepted batch. It can only lower HardMaxBatchSize.
	MaxBatchSize int `yaml:"max_batch_size"`
	// ItemRetry is the item-level retry configuration.
	ItemRetry ItemRetryConfig `yaml:"item_retry"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// InfrastructureConfig holds logical dependency settings for infrastructure components.
type InfrastructureConfig struct {
	// LedgerDBRef is the name of the database connection that stores batches and mappings.
	LedgerDBRef string `yaml:"ledger_db_ref"`
	// ReportStorageRef is the name of the storage connection that receives batch reports.
	ReportStorageRef string `yaml:"report_storage_ref"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedParameterKeys lists key fragments whose values are masked in input snapshots and logs.
	MaskedParameterKeys []string `yaml:"masked_parameter_keys"`
	// SecretKey is the base64 encoded 32 byte key used to seal passwords.
	SecretKey string `yaml:"secret_key"`
}

// GoogleIdentityConfig configures the Google Workspace Directory API client.
type GoogleIdentityConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	AdminSubject    string `yaml:"admin_subject"`
	CustomerID      string `yaml:"customer_id"`
	OrgUnitPath     string `yaml:"org_unit_path"`
}

// IdentityConfig selects and configures the identity provider.
type IdentityConfig struct {
	// Provider is "google" or "none".
	Provider string               `yaml:"provider"`
	Google   GoogleIdentityConfig `yaml:"google"`
}

// WarmupServiceConfig configures the warmup service REST client.
type WarmupServiceConfig struct {
	APIEndpoint       string  `yaml:"api_endpoint"`
	APIKey            string  `yaml:"api_key"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
}

// ReportConfig configures batch report export.
type ReportConfig struct {
	OutputBaseDir string `yaml:"output_base_dir"`
	// Compression is one of "SNAPPY", "GZIP", "ZSTD", "UNCOMPRESSED".
	Compression string `yaml:"compression"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
	// AsyncBufferSize queues metric calls on a background goroutine when greater than 0.
	AsyncBufferSize int `yaml:"async_buffer_size"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	// Protocol is "http" or "grpc".
	Protocol string `yaml:"protocol"`
	Insecure bool   `yaml:"insecure"`
	// ExportMetrics also pushes provisioning metrics over OTLP.
	ExportMetrics bool `yaml:"export_metrics"`
}

// ProvisionerConfig holds all configuration under the "provisioner" top-level key.
type ProvisionerConfig struct {
	Batch          BatchConfig          `yaml:"batch"`
	System         SystemConfig         `yaml:"system"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	Security       SecurityConfig       `yaml:"security"`
	Identity       IdentityConfig       `yaml:"identity"`
	Warmup         WarmupServiceConfig  `yaml:"warmup"`
	Report         ReportConfig         `yaml:"report"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Tracing        TracingConfig        `yaml:"tracing"`
	// AdaptorConfigs holds named database connection settings.
	AdaptorConfigs map[string]interface{} `yaml:"database"`
	// StorageConfigs holds named storage connection settings.
	StorageConfigs map[string]interface{} `yaml:"storage"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Provisioner ProvisionerConfig `yaml:"provisioner"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Provisioner: ProvisionerConfig{
			Batch: BatchConfig{
				MaxConcurrency: 5,
				MaxBatchSize:   HardMaxBatchSize,
				ItemRetry: ItemRetryConfig{
					MaxAttempts:     3,
					InitialInterval: 2000,
				},
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Infrastructure: InfrastructureConfig{
				LedgerDBRef:      "ledger",
				ReportStorageRef: "reports",
			},
			Security: SecurityConfig{
				MaskedParameterKeys: []string{"password", "api_key", "secret", "token"},
			},
			Identity: IdentityConfig{Provider: "google"},
			Warmup: WarmupServiceConfig{
				RequestsPerSecond: 5,
				Burst:             5,
				TimeoutSeconds:    30,
			},
			Report: ReportConfig{
				OutputBaseDir: "reports",
				Compression:   "SNAPPY",
			},
			Metrics: MetricsConfig{ListenAddress: ":9090"},
			Tracing: TracingConfig{ServiceName: "provisioner", Protocol: "http"},
		},
	}
}
