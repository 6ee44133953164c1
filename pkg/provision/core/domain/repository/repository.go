package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
)

var (
	// ErrBatchNotFound is returned when a batch ID does not exist.
	ErrBatchNotFound = errors.New("batch not found")
	// ErrItemNotFound is returned when a batch item does not exist.
	ErrItemNotFound = errors.New("batch item not found")
	// ErrMappingNotFound is returned when no mapping exists for an entity.
	ErrMappingNotFound = errors.New("external mapping not found")
	// ErrMappingConflict is returned when the storage layer rejects a mapping as a duplicate.
	ErrMappingConflict = errors.New("external mapping already exists")
	// ErrAccountNotFound is returned when a mailbox account does not exist.
	ErrAccountNotFound = errors.New("mailbox account not found")
	// ErrCredentialsNotFound is returned when no credentials are stored for an account.
	ErrCredentialsNotFound = errors.New("mailbox credentials not found")
)

// BatchRepository is the progress ledger.
// Implementations must apply IncrementOutcome atomically so concurrent workers never lose updates.
type BatchRepository interface {
	// CreateBatch persists the batch and all of its items in one transaction.
	CreateBatch(ctx context.Context, op *model.BatchOperation, items []*model.BatchItem) error
	// FindBatchByID returns ErrBatchNotFound when id is unknown.
	FindBatchByID(ctx context.Context, id string) (*model.BatchOperation, error)
	// ListBatches returns the most recently created batches first.
	ListBatches(ctx context.Context, limit int) ([]*model.BatchOperation, error)
	// UpdateBatch saves status, timestamps and aggregates.
	UpdateBatch(ctx context.Context, op *model.BatchOperation) error

	// FindItems returns all items of a batch ordered by index.
	FindItems(ctx context.Context, batchID string) ([]*model.BatchItem, error)
	// FindItemsByStatus returns the items of a batch in any of statuses, ordered by index.
	FindItemsByStatus(ctx context.Context, batchID string, statuses ...model.ItemStatus) ([]*model.BatchItem, error)
	// UpdateItem saves one item state transition.
	UpdateItem(ctx context.Context, item *model.BatchItem) error

	// IncrementOutcome atomically bumps the aggregate counter matching status.
	// Success and failure also bump processed_items in the same statement.
	IncrementOutcome(ctx context.Context, batchID string, status model.ItemStatus) error
	// RecomputeAggregates rescans item rows, stores the resulting counts and returns the batch.
	RecomputeAggregates(ctx context.Context, batchID string) (*model.BatchOperation, error)
}

// MappingRepository stores ExternalMapping rows.
type MappingRepository interface {
	// Exists reports whether a mapping exists for the internal entity.
	Exists(ctx context.Context, provider model.Provider, internalID string) (bool, error)
	// Create inserts a mapping and returns its ID. A unique constraint violation yields ErrMappingConflict.
	Create(ctx context.Context, m *model.ExternalMapping) (string, error)
	// Get returns ErrMappingNotFound when no mapping exists.
	Get(ctx context.Context, provider model.Provider, internalID string) (*model.ExternalMapping, error)
	// Update refreshes sync status, snapshot and LastSyncedAt.
	Update(ctx context.Context, m *model.ExternalMapping) error
	// Delete removes the mapping. Deleting a missing mapping returns ErrMappingNotFound.
	Delete(ctx context.Context, provider model.Provider, internalID string) error
}

// MailboxRepository stores mailbox account status and sealed credentials.
type MailboxRepository interface {
	// SaveAccount inserts or updates the account.
	SaveAccount(ctx context.Context, account *model.MailboxAccount) error
	// FindAccount returns ErrAccountNotFound when id is unknown.
	FindAccount(ctx context.Context, id string) (*model.MailboxAccount, error)
	// SetAccountStatus updates the status, creating the account row when missing.
	SetAccountStatus(ctx context.Context, id, email string, status model.AccountStatus) error

	// SaveCredentials inserts or replaces the credentials of an account.
	SaveCredentials(ctx context.Context, creds *model.MailboxCredentials) error
	// FindCredentials returns ErrCredentialsNotFound when none are stored.
	FindCredentials(ctx context.Context, accountID string) (*model.MailboxCredentials, error)
}
