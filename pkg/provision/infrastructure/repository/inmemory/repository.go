// Package inmemory provides map-backed implementations of the ledger, mapping and mailbox
// repositories. It is used by tests and by dry runs where nothing must be persisted.
package inmemory

import (
	"sync"

	"github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
)

type mappingKey struct {
	provider model.Provider
	id       string
}

// Repository holds every provisioner record in memory.
// All methods copy records on the way in and out, so callers never share state with the store.
type Repository struct {
	batches     map[string]*model.BatchOperation
	items       map[string][]*model.BatchItem // keyed by batch ID, ordered by index
	mappings    map[mappingKey]*model.ExternalMapping
	externalIDs map[mappingKey]string // (provider, external ID) -> internal ID
	accounts    map[string]*model.MailboxAccount
	credentials map[string]*model.MailboxCredentials
	mu          sync.RWMutex
}

// NewRepository creates and initializes a new instance of Repository.
func NewRepository() *Repository {
	return &Repository{
		batches:     make(map[string]*model.BatchOperation),
		items:       make(map[string][]*model.BatchItem),
		mappings:    make(map[mappingKey]*model.ExternalMapping),
		externalIDs: make(map[mappingKey]string),
		accounts:    make(map[string]*model.MailboxAccount),
		credentials: make(map[string]*model.MailboxCredentials),
	}
}

// Close releases resources used by the repository. It holds none.
func (r *Repository) Close() error {
	return nil
}

func cloneBatch(b *model.BatchOperation) *model.BatchOperation {
	c := *b
	c.InputSnapshot = b.InputSnapshot.Copy()
	return &c
}

func cloneItem(i *model.BatchItem) *model.BatchItem {
	c := *i
	c.ItemData = i.ItemData.Copy()
	if i.ResultData != nil {
		c.ResultData = i.ResultData.Copy()
	}
	return &c
}

func cloneMapping(m *model.ExternalMapping) *model.ExternalMapping {
	c := *m
	c.ExternalSnapshot = m.ExternalSnapshot.Copy()
	return &c
}
