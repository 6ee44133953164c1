package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
provisioner:
  batch:
    max_concurrency: 4
    item_retry:
      max_attempts: 5
      retryable_kinds: [API_ERROR]
  warmup:
    api_endpoint: ${TEST_WARMUP_ENDPOINT}
  database:
    ledger:
      type: sqlite
      database: /tmp/ledger.db
`

func TestLoadConfig_DefaultsYAMLAndExpansion(t *testing.T) {
	t.Setenv("TEST_WARMUP_ENDPOINT", "https://warmup.example.com/api")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"), []byte(sampleYAML))
	require.NoError(t, err)

	p := cfg.Provisioner
	assert.Equal(t, 4, p.Batch.MaxConcurrency)
	assert.Equal(t, HardMaxBatchSize, p.Batch.MaxBatchSize, "default kept when absent from YAML")
	assert.Equal(t, 5, p.Batch.ItemRetry.MaxAttempts)
	assert.Equal(t, 2000, p.Batch.ItemRetry.InitialInterval)
	assert.Equal(t, []string{"API_ERROR"}, p.Batch.ItemRetry.RetryableKinds)
	assert.Equal(t, "https://warmup.example.com/api", p.Warmup.APIEndpoint)
	assert.Equal(t, "sqlite", p.AdaptorConfigs["ledger"].(map[string]interface{})["type"])
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PROVISIONER_BATCH_MAX_CONCURRENCY", "2")
	t.Setenv("PROVISIONER_SYSTEM_LOGGING_LEVEL", "DEBUG")
	t.Setenv("PROVISIONER_SECURITY_MASKED_PARAMETER_KEYS", "password, pin")
	t.Setenv("PROVISIONER_DATABASE_LEDGER_DATABASE", "/var/lib/ledger.db")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"), []byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Provisioner.Batch.MaxConcurrency)
	assert.Equal(t, "DEBUG", cfg.Provisioner.System.Logging.Level)
	assert.Equal(t, []string{"password", "pin"}, cfg.Provisioner.Security.MaskedParameterKeys)
	ledger := cfg.Provisioner.AdaptorConfigs["ledger"].(map[string]interface{})
	assert.Equal(t, "/var/lib/ledger.db", ledger["database"])
	assert.Equal(t, "sqlite", ledger["type"])
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PROVISIONER_WARMUP_API_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("PROVISIONER_WARMUP_API_KEY") })

	cfg, err := LoadConfig(envFile, []byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Provisioner.Warmup.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"concurrency zero", func(c *Config) { c.Provisioner.Batch.MaxConcurrency = 0 }},
		{"concurrency above cap", func(c *Config) { c.Provisioner.Batch.MaxConcurrency = HardMaxConcurrency + 1 }},
		{"batch size above cap", func(c *Config) { c.Provisioner.Batch.MaxBatchSize = HardMaxBatchSize + 1 }},
		{"no attempts", func(c *Config) { c.Provisioner.Batch.ItemRetry.MaxAttempts = 0 }},
		{"negative delay", func(c *Config) { c.Provisioner.Batch.ItemRetry.InitialInterval = -1 }},
		{"unknown kind", func(c *Config) { c.Provisioner.Batch.ItemRetry.RetryableKinds = []string{"NOPE"} }},
	}

	assert.NoError(t, Validate(NewConfig()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, exception.HasKind(err, exception.KindConfiguration))
		})
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig("", []byte("provisioner: [unclosed"))
	require.Error(t, err)
	assert.True(t, exception.HasKind(err, exception.KindConfiguration))
}

func TestSetField_IgnoresUnsupportedSlices(t *testing.T) {
	var ints []int
	v := reflect.ValueOf(&ints).Elem()
	assert.NoError(t, setField(v, "1,2"))
	assert.Nil(t, ints)
}
