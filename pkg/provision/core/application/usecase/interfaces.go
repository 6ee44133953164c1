package usecase

import (
	"context"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	"github.com/tigerroll/provisioner/pkg/provision/engine/executor"
)

// RetryOptions controls which items RetryFailedBatchItems replays.
type RetryOptions struct {
	// IncludeSkipped also replays items that never ran because the batch was stopped.
	IncludeSkipped bool
}

// DisconnectResult is the outcome of DisconnectWarmup.
// Warnings lists the external cleanup steps that failed; the local mapping is removed regardless.
type DisconnectResult struct {
	AccountID  string   `yaml:"account_id"`
	ExternalID string   `yaml:"external_id"`
	Warnings   []string `yaml:"warnings,omitempty"`
}

// DeprovisionResult is the outcome of DeprovisionAccount.
type DeprovisionResult struct {
	AccountID  string `yaml:"account_id"`
	Email      string `yaml:"email"`
	ExternalID string `yaml:"external_id"`
	// Warnings carries failures of the warmup cleanup that ran first.
	Warnings []string `yaml:"warnings,omitempty"`
}

// AccountStatus is the identity provider state of an account, as last refreshed.
type AccountStatus struct {
	AccountID  string              `yaml:"account_id"`
	Email      string              `yaml:"email"`
	ExternalID string              `yaml:"external_id"`
	Suspended  bool                `yaml:"suspended"`
	Archived   bool                `yaml:"archived"`
	Status     model.AccountStatus `yaml:"status"`
	// WarmupConnected reports whether a warmup mapping exists for the account.
	WarmupConnected bool `yaml:"warmup_connected"`
}

// ProvisioningService is the entry point of the provisioning engine.
// Batch calls return a full result even when items fail; only structurally
// invalid input is rejected with an error.
type ProvisioningService interface {
	// SubmitAccountBatch creates one identity account per spec.
	SubmitAccountBatch(ctx context.Context, specs []model.AccountSpec) (*executor.BatchResult, error)
	// SubmitWarmupBatch connects one mailbox per spec to the warmup service.
	SubmitWarmupBatch(ctx context.Context, specs []model.ConnectSpec) (*executor.BatchResult, error)
	// RetryFailedBatchItems replays the failed items of a finished batch under their original index.
	RetryFailedBatchItems(ctx context.Context, batchID string, opts RetryOptions) (*executor.BatchResult, error)
	// StopBatch cancels a running batch.
	StopBatch(ctx context.Context, batchID string) error
	// AbandonBatch closes a batch left in progress by a process that no longer runs it.
	AbandonBatch(ctx context.Context, batchID string) (*executor.BatchResult, error)
	// GetBatch returns a batch with its items.
	GetBatch(ctx context.Context, batchID string) (*executor.BatchResult, error)
	// ListBatches returns the most recent batches first.
	ListBatches(ctx context.Context, limit int) ([]*model.BatchOperation, error)

	// UpdateWarmupSettings applies a partial settings update to a connected mailbox.
	UpdateWarmupSettings(ctx context.Context, accountID string, patch model.WarmupSettingsPatch) (*model.WarmupSettings, error)
	// DisconnectWarmup deprovisions the mailbox on the warmup side and removes its mapping.
	DisconnectWarmup(ctx context.Context, accountID string) (*DisconnectResult, error)

	// GetAccountStatus reads the identity provider state and refreshes the mapping snapshot.
	GetAccountStatus(ctx context.Context, accountID string) (*AccountStatus, error)
	// DeprovisionAccount disconnects warmup if connected, deletes the identity account and its mapping.
	DeprovisionAccount(ctx context.Context, accountID string) (*DeprovisionResult, error)

	// ExportBatchReport writes a finished batch to report storage and returns the object name.
	ExportBatchReport(ctx context.Context, batchID string) (string, error)
}
