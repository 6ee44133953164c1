package sql

import (
	"time"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
)

// BatchOperationEntity is the persisted form of model.BatchOperation.
type BatchOperationEntity struct {
	ID              string           `gorm:"column:id;primaryKey"`
	Kind            string           `gorm:"column:kind"`
	Status          string           `gorm:"column:status"`
	TotalItems      int              `gorm:"column:total_items"`
	ProcessedItems  int              `gorm:"column:processed_items"`
	SuccessfulItems int              `gorm:"column:successful_items"`
	FailedItems     int              `gorm:"column:failed_items"`
	SkippedItems    int              `gorm:"column:skipped_items"`
	InputSnapshot   model.Properties `gorm:"column:input_snapshot"`
	StartedAt       *time.Time       `gorm:"column:started_at"`
	CompletedAt     *time.Time       `gorm:"column:completed_at"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime:false"`
	LastUpdated     time.Time        `gorm:"column:last_updated"`
}

func (BatchOperationEntity) TableName() string {
	return "provision_batch_operations"
}

// BatchItemEntity is the persisted form of model.BatchItem.
type BatchItemEntity struct {
	ID           string           `gorm:"column:id;primaryKey"`
	BatchID      string           `gorm:"column:batch_id"`
	ItemIndex    int              `gorm:"column:item_index"`
	ItemData     model.Properties `gorm:"column:item_data"`
	Status       string           `gorm:"column:status"`
	ResultData   model.Properties `gorm:"column:result_data"`
	ErrorMessage string           `gorm:"column:error_message"`
	ErrorCode    string           `gorm:"column:error_code"`
	Attempts     int              `gorm:"column:attempts"`
	StartedAt    *time.Time       `gorm:"column:started_at"`
	CompletedAt  *time.Time       `gorm:"column:completed_at"`
}

func (BatchItemEntity) TableName() string {
	return "provision_batch_items"
}

// ExternalMappingEntity is the persisted form of model.ExternalMapping.
// (provider, internal_entity_id) and (provider, external_entity_id) are unique.
type ExternalMappingEntity struct {
	ID               string           `gorm:"column:id;primaryKey"`
	Provider         string           `gorm:"column:provider"`
	InternalEntityID string           `gorm:"column:internal_entity_id"`
	ExternalEntityID string           `gorm:"column:external_entity_id"`
	SyncStatus       string           `gorm:"column:sync_status"`
	LastSyncedAt     time.Time        `gorm:"column:last_synced_at"`
	ExternalSnapshot model.Properties `gorm:"column:external_snapshot"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime:false"`
}

func (ExternalMappingEntity) TableName() string {
	return "provision_external_mappings"
}

// MailboxAccountEntity is the persisted form of model.MailboxAccount.
type MailboxAccountEntity struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Email     string    `gorm:"column:email"`
	Status    string    `gorm:"column:status"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (MailboxAccountEntity) TableName() string {
	return "provision_mailbox_accounts"
}

// MailboxCredentialsEntity flattens model.MailboxCredentials into one row.
type MailboxCredentialsEntity struct {
	AccountID         string    `gorm:"column:account_id;primaryKey"`
	Email             string    `gorm:"column:email"`
	SMTPHost          string    `gorm:"column:smtp_host"`
	SMTPPort          int       `gorm:"column:smtp_port"`
	SMTPUsername      string    `gorm:"column:smtp_username"`
	SMTPPasswordToken string    `gorm:"column:smtp_password_token"`
	SMTPSecure        bool      `gorm:"column:smtp_secure"`
	IMAPHost          string    `gorm:"column:imap_host"`
	IMAPPort          int       `gorm:"column:imap_port"`
	IMAPUsername      string    `gorm:"column:imap_username"`
	IMAPPasswordToken string    `gorm:"column:imap_password_token"`
	IMAPSecure        bool      `gorm:"column:imap_secure"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (MailboxCredentialsEntity) TableName() string {
	return "provision_mailbox_credentials"
}
