package storage

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	storageConfig "github.com/tigerroll/provisioner/pkg/provision/adapter/storage/config"
	coreConfig "github.com/tigerroll/provisioner/pkg/provision/core/config"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// ResolverParams defines the dependencies for NewConnectionResolver.
type ResolverParams struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
	Cfg       *coreConfig.Config
}

// ConnectionResolver picks the provider matching a connection's configured type.
type ConnectionResolver struct {
	providers map[string]StorageProvider
	cfg       *coreConfig.Config
}

// NewConnectionResolver creates a ConnectionResolver over the grouped providers.
func NewConnectionResolver(p ResolverParams) *ConnectionResolver {
	providers := make(map[string]StorageProvider, len(p.Providers))
	for _, sp := range p.Providers {
		providers[sp.Type()] = sp
	}
	return &ConnectionResolver{providers: providers, cfg: p.Cfg}
}

// ResolveStorageConnection resolves a StorageConnection by name.
func (r *ConnectionResolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	sc, err := storageConfig.Decode(r.cfg, name)
	if err != nil {
		return nil, err
	}
	provider, ok := r.providers[sc.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider found for type '%s' (connection '%s')", sc.Type, name)
	}
	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage connection '%s' from provider '%s': %w", name, sc.Type, err)
	}
	return conn, nil
}

// CloseAll closes the connections of every provider.
func (r *ConnectionResolver) CloseAll() {
	for t, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			logger.Warnf("Failed to close %s storage connections: %v", t, err)
		}
	}
}

var _ StorageConnectionResolver = (*ConnectionResolver)(nil)
