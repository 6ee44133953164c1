package storage

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	storageConfig "github.com/tigerroll/provisioner/pkg/provision/adapter/storage/config"
	coreConfig "github.com/tigerroll/provisioner/pkg/provision/core/config"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// ConnectionFactory opens one connection from its decoded configuration.
type ConnectionFactory func(cfg storageConfig.StorageConfig, name string) (StorageConnection, error)

// BaseProvider caches connections of one storage type and creates them with a factory.
type BaseProvider struct {
	cfg         *coreConfig.Config
	storageType string
	factory     ConnectionFactory
	connections map[string]StorageConnection
	mu          sync.RWMutex
}

// NewBaseProvider creates a provider for storageType.
func NewBaseProvider(cfg *coreConfig.Config, storageType string, factory ConnectionFactory) *BaseProvider {
	return &BaseProvider{
		cfg:         cfg,
		storageType: storageType,
		factory:     factory,
		connections: make(map[string]StorageConnection),
	}
}

// Type returns the storage type handled by this provider.
func (p *BaseProvider) Type() string {
	return p.storageType
}

// GetConnection retrieves a StorageConnection by name, creating it if needed.
func (p *BaseProvider) GetConnection(name string) (StorageConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring lock
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}
	return p.createAndStoreConnection(name)
}

func (p *BaseProvider) createAndStoreConnection(name string) (StorageConnection, error) {
	sc, err := storageConfig.Decode(p.cfg, name)
	if err != nil {
		return nil, err
	}
	if sc.Type != p.storageType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, p.storageType, sc.Type)
	}
	conn, err := p.factory(sc, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage connection '%s': %w", p.storageType, name, err)
	}
	p.connections[name] = conn
	logger.Debugf("Created new %s storage connection '%s'.", p.storageType, name)
	return conn, nil
}

// ForceReconnect closes the existing connection, if any, and creates a new one.
func (p *BaseProvider) ForceReconnect(name string) (StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[name]; ok {
		if err := conn.Close(); err != nil {
			logger.Warnf("Failed to gracefully close %s storage connection '%s' during force reconnect: %v", p.storageType, name, err)
		}
		delete(p.connections, name)
	}
	logger.Debugf("Forcing reconnect for %s storage connection '%s'.", p.storageType, name)
	return p.createAndStoreConnection(name)
}

// CloseAll closes all connections managed by this provider.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close %s storage connection '%s': %w", p.storageType, name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}
