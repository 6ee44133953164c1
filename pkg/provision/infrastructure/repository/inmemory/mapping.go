package inmemory

import (
	"context"

	"github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	"github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
)

// MappingRepository exposes the mapping view of a Repository.
type MappingRepository struct {
	r *Repository
}

// Mappings returns the mapping repository backed by r.
func (r *Repository) Mappings() *MappingRepository {
	return &MappingRepository{r: r}
}

// Exists reports whether a mapping exists for the internal entity.
func (m *MappingRepository) Exists(ctx context.Context, provider model.Provider, internalID string) (bool, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	_, ok := m.r.mappings[mappingKey{provider, internalID}]
	return ok, nil
}

// Create inserts a mapping. Both the internal and the external ID must be unused for the provider.
func (m *MappingRepository) Create(ctx context.Context, mapping *model.ExternalMapping) (string, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()

	key := mappingKey{mapping.Provider, mapping.InternalEntityID}
	extKey := mappingKey{mapping.Provider, mapping.ExternalEntityID}
	if _, ok := m.r.mappings[key]; ok {
		return "", repository.ErrMappingConflict
	}
	if _, ok := m.r.externalIDs[extKey]; ok {
		return "", repository.ErrMappingConflict
	}
	m.r.mappings[key] = cloneMapping(mapping)
	m.r.externalIDs[extKey] = mapping.InternalEntityID
	return mapping.ID, nil
}

// Get returns the mapping of the internal entity.
func (m *MappingRepository) Get(ctx context.Context, provider model.Provider, internalID string) (*model.ExternalMapping, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()

	mapping, ok := m.r.mappings[mappingKey{provider, internalID}]
	if !ok {
		return nil, repository.ErrMappingNotFound
	}
	return cloneMapping(mapping), nil
}

// Update refreshes the sync fields of an existing mapping.
func (m *MappingRepository) Update(ctx context.Context, mapping *model.ExternalMapping) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()

	key := mappingKey{mapping.Provider, mapping.InternalEntityID}
	stored, ok := m.r.mappings[key]
	if !ok {
		return repository.ErrMappingNotFound
	}
	stored.SyncStatus = mapping.SyncStatus
	stored.LastSyncedAt = mapping.LastSyncedAt
	stored.ExternalSnapshot = mapping.ExternalSnapshot.Copy()
	return nil
}

// Delete removes the mapping of the internal entity.
func (m *MappingRepository) Delete(ctx context.Context, provider model.Provider, internalID string) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()

	key := mappingKey{provider, internalID}
	stored, ok := m.r.mappings[key]
	if !ok {
		return repository.ErrMappingNotFound
	}
	delete(m.r.externalIDs, mappingKey{provider, stored.ExternalEntityID})
	delete(m.r.mappings, key)
	return nil
}
