package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	repository "github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
)

// SQLMappingRepository implements repository.MappingRepository.
// The unique indexes on the mapping table are the authority on duplicates: Create never
// checks before inserting, it translates the constraint violation.
type SQLMappingRepository struct {
	r *SQLRepository
}

// Mappings returns the mapping repository sharing r's connection.
func (r *SQLRepository) Mappings() *SQLMappingRepository {
	return &SQLMappingRepository{r: r}
}

func (m *SQLMappingRepository) Exists(ctx context.Context, provider model.Provider, internalID string) (bool, error) {
	const opName = "SQLMappingRepository.Exists"
	db, err := m.r.getDB(ctx)
	if err != nil {
		return false, err
	}

	var count int64
	if err := db.Model(&ExternalMappingEntity{}).
		Where("provider = ? AND internal_entity_id = ?", string(provider), internalID).
		Count(&count).Error; err != nil {
		return false, dbError(opName, fmt.Sprintf("failed to check %s mapping of %s", provider, internalID), err)
	}
	return count > 0, nil
}

func (m *SQLMappingRepository) Create(ctx context.Context, mapping *model.ExternalMapping) (string, error) {
	const opName = "SQLMappingRepository.Create"
	db, err := m.r.getDB(ctx)
	if err != nil {
		return "", err
	}

	if err := db.Create(fromDomainMapping(mapping)).Error; err != nil {
		if isDuplicateKey(err) {
			return "", repository.ErrMappingConflict
		}
		return "", dbError(opName, fmt.Sprintf("failed to create %s mapping of %s", mapping.Provider, mapping.InternalEntityID), err)
	}
	return mapping.ID, nil
}

func (m *SQLMappingRepository) Get(ctx context.Context, provider model.Provider, internalID string) (*model.ExternalMapping, error) {
	const opName = "SQLMappingRepository.Get"
	db, err := m.r.getDB(ctx)
	if err != nil {
		return nil, err
	}

	var entity ExternalMappingEntity
	err = db.Where("provider = ? AND internal_entity_id = ?", string(provider), internalID).Take(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrMappingNotFound
	}
	if err != nil {
		return nil, dbError(opName, fmt.Sprintf("failed to get %s mapping of %s", provider, internalID), err)
	}
	return toDomainMapping(&entity), nil
}

func (m *SQLMappingRepository) Update(ctx context.Context, mapping *model.ExternalMapping) error {
	const opName = "SQLMappingRepository.Update"
	db, err := m.r.getDB(ctx)
	if err != nil {
		return err
	}

	syncedAt := mapping.LastSyncedAt
	if syncedAt.IsZero() {
		syncedAt = time.Now()
	}
	res := db.Model(&ExternalMappingEntity{}).
		Where("provider = ? AND internal_entity_id = ?", string(mapping.Provider), mapping.InternalEntityID).
		Updates(map[string]interface{}{
			"sync_status":       string(mapping.SyncStatus),
			"last_synced_at":    syncedAt.UTC(),
			"external_snapshot": mapping.ExternalSnapshot,
		})
	if res.Error != nil {
		return dbError(opName, fmt.Sprintf("failed to update %s mapping of %s", mapping.Provider, mapping.InternalEntityID), res.Error)
	}
	if res.RowsAffected == 0 {
		exists, err := m.Exists(ctx, mapping.Provider, mapping.InternalEntityID)
		if err != nil {
			return err
		}
		if !exists {
			return repository.ErrMappingNotFound
		}
	}
	return nil
}

func (m *SQLMappingRepository) Delete(ctx context.Context, provider model.Provider, internalID string) error {
	const opName = "SQLMappingRepository.Delete"
	db, err := m.r.getDB(ctx)
	if err != nil {
		return err
	}

	res := db.Where("provider = ? AND internal_entity_id = ?", string(provider), internalID).Delete(&ExternalMappingEntity{})
	if res.Error != nil {
		return dbError(opName, fmt.Sprintf("failed to delete %s mapping of %s", provider, internalID), res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrMappingNotFound
	}
	return nil
}
