package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"

	"go.uber.org/fx"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig      // EmbeddedConfig contains the raw bytes of the default configuration file.
	Expander       EnvironmentExpander // Expander resolves ${VAR} placeholders before parsing.
	EnvFilePath    string              `name:"envFilePath" optional:"true"`    // EnvFilePath is the path to the .env file, if any.
	ConfigFilePath string              `name:"configFilePath" optional:"true"` // ConfigFilePath replaces the embedded configuration when set.
}

// loadConfig loads configuration from YAML bytes and environment variables.
// Precedence, lowest first: NewConfig defaults, YAML, environment variables.
//
// Parameters:
//
//	envFilePath: The path to the .env file. Empty means ".env" in the working directory.
//	raw: The configuration YAML.
//	expander: Resolves environment placeholders in raw. May be nil.
//
// Returns:
//
//	A pointer to the loaded Config and an error if loading fails.
func loadConfig(envFilePath string, raw []byte, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	if expander != nil {
		expanded, err := expander.Expand(raw)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, exception.KindConfiguration, "failed to expand environment placeholders", err)
		}
		raw = expanded
	}

	// YAML is decoded on top of the defaults; keys absent from the file keep their default.
	cfg := NewConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindConfiguration, "failed to unmarshal config", err)
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindConfiguration, "failed to load config from environment variables", err)
	}
	return cfg, nil
}

// LoadConfig loads configuration from YAML bytes, the .env file and environment variables,
// then validates it.
func LoadConfig(envFilePath string, raw []byte) (*Config, error) {
	cfg, err := loadConfig(envFilePath, raw, NewOsEnvironmentExpander())
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads and provides *Config.
// It also sets the global logger level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	raw := []byte(params.EmbeddedConfig)
	if params.ConfigFilePath != "" {
		data, err := os.ReadFile(params.ConfigFilePath)
		if err != nil {
			return nil, exception.NewBatchErrorf(moduleName, exception.KindConfiguration, "failed to read config file %s", params.ConfigFilePath, err)
		}
		raw = data
	}

	cfg, err := loadConfig(params.EnvFilePath, raw, params.Expander)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.Provisioner.System.Logging.Level)
	logger.Debugf("Log level set to: %s", cfg.Provisioner.System.Logging.Level)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and that configured retryable kinds exist in the error registry.
func Validate(cfg *Config) error {
	b := cfg.Provisioner.Batch
	if b.MaxConcurrency < 1 || b.MaxConcurrency > HardMaxConcurrency {
		return exception.NewBatchErrorf(moduleName, exception.KindConfiguration,
			"batch.max_concurrency must be between 1 and %d, got %d", HardMaxConcurrency, b.MaxConcurrency)
	}
	if b.MaxBatchSize < 1 || b.MaxBatchSize > HardMaxBatchSize {
		return exception.NewBatchErrorf(moduleName, exception.KindConfiguration,
			"batch.max_batch_size must be between 1 and %d, got %d", HardMaxBatchSize, b.MaxBatchSize)
	}
	if b.ItemRetry.MaxAttempts < 1 {
		return exception.NewBatchErrorf(moduleName, exception.KindConfiguration,
			"batch.item_retry.max_attempts must be at least 1, got %d", b.ItemRetry.MaxAttempts)
	}
	if b.ItemRetry.InitialInterval < 0 {
		return exception.NewBatchErrorf(moduleName, exception.KindConfiguration,
			"batch.item_retry.initial_interval must not be negative, got %d", b.ItemRetry.InitialInterval)
	}
	if err := checkErrorKinds(b.ItemRetry.RetryableKinds, "ItemRetry"); err != nil {
		return exception.NewBatchError(moduleName, exception.KindConfiguration, "failed to validate configured retryable kinds", err)
	}
	return nil
}

// checkErrorKinds validates that all names are registered in the exception registry.
func checkErrorKinds(names []string, configType string) error {
	for _, name := range names {
		if !exception.IsErrorTypeRegistered(name) {
			return fmt.Errorf("%s configuration references unknown error kind: '%s'", configType, name)
		}
	}
	return nil
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name, so
// provisioner.batch.max_concurrency is overridden by PROVISIONER_BATCH_MAX_CONCURRENCY.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		if field.Kind() == reflect.Map {
			if err := loadMapFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadMapFromEnv overrides entries of a map[string]interface{} holding named connection
// settings. DATABASE_LEDGER_HOST=db sets key "host" of the "ledger" entry.
// Connection names must not contain underscores.
func loadMapFromEnv(mapField reflect.Value, prefix string) error {
	if mapField.Type().Key().Kind() != reflect.String || mapField.Type().Elem().Kind() != reflect.Interface {
		return nil
	}

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(parts) != 2 {
			continue
		}
		keyAndField := strings.SplitN(parts[0], "_", 2)
		if len(keyAndField) != 2 {
			continue
		}
		entryName := strings.ToLower(keyAndField[0])
		fieldName := strings.ToLower(keyAndField[1])

		if mapField.IsNil() {
			mapField.Set(reflect.MakeMap(mapField.Type()))
		}

		entry := map[string]interface{}{}
		if existing := mapField.MapIndex(reflect.ValueOf(entryName)); existing.IsValid() {
			if m, ok := existing.Interface().(map[string]interface{}); ok {
				entry = m
			}
		}
		entry[fieldName] = parts[1]
		mapField.SetMapIndex(reflect.ValueOf(entryName), reflect.ValueOf(entry))
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
// It handles string, int, float, bool and comma separated []string values.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
