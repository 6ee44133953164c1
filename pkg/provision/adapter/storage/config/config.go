package config

import (
	"fmt"

	coreConfig "github.com/tigerroll/provisioner/pkg/provision/core/config"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/configbinder"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // Type of storage ("local" or "gcs").
	BucketName      string `yaml:"bucket_name"`      // Default bucket name for operations.
	CredentialsFile string `yaml:"credentials_file"` // Path to a service account key for GCS. Empty uses application default credentials.
	BaseDir         string `yaml:"base_dir"`         // Base directory for local file system operations.
}

// Decode reads the named entry of the "storage" configuration section.
func Decode(cfg *coreConfig.Config, name string) (StorageConfig, error) {
	var sc StorageConfig
	raw, ok := cfg.Provisioner.StorageConfigs[name]
	if !ok {
		return sc, fmt.Errorf("storage configuration '%s' not found in provisioner.storage configs", name)
	}
	props, ok := raw.(map[string]interface{})
	if !ok {
		return sc, fmt.Errorf("invalid storage configuration format for '%s': expected map[string]interface{} but got %T", name, raw)
	}
	if err := configbinder.BindProperties(props, &sc); err != nil {
		return sc, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	return sc, nil
}
