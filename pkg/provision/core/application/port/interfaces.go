// Package port defines the interfaces (ports) between the provisioning engine and the systems it
// drives: the identity provider, the warmup service, the secret cipher and per-kind item handlers.
package port

import (
	"context"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
)

// CreateAccountRequest is the identity provider input for one mailbox.
type CreateAccountRequest struct {
	Domain      string
	LocalPart   string
	FirstName   string
	LastName    string
	Password    string
	OrgUnitPath string
}

// IdentityUser is the identity provider record of a created mailbox.
type IdentityUser struct {
	ExternalID string
	Email      string
}

// IdentityAccountStatus is the provider-side state of a mailbox.
type IdentityAccountStatus struct {
	ExternalID string
	Email      string
	Suspended  bool
	Archived   bool
}

// IdentityProvider creates and removes mailbox accounts.
// Implementations return raw provider errors; classification happens in the caller.
type IdentityProvider interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*IdentityUser, error)
	DeleteAccount(ctx context.Context, email string) error
	GetAccountStatus(ctx context.Context, email string) (*IdentityAccountStatus, error)
}

// MailServerLogin is one plaintext SMTP or IMAP login, built just before a provider call.
type MailServerLogin struct {
	Host     string
	Port     int
	Username string
	Password string
	Secure   bool
}

// WarmupMailbox is the warmup service input for one mailbox.
type WarmupMailbox struct {
	Email     string
	FirstName string
	LastName  string
	SMTP      MailServerLogin
	IMAP      MailServerLogin
	Settings  model.WarmupSettings
}

// WarmupRegistration is the warmup service record of a connected mailbox.
type WarmupRegistration struct {
	ExternalID string
	WarmupKey  string
	Settings   model.WarmupSettings
}

// WarmupCampaign is a grouping in the warmup service that mailboxes can belong to.
type WarmupCampaign struct {
	ID         string
	Name       string
	AccountIDs []string
}

// WarmupService registers mailboxes with a deliverability warmup provider.
type WarmupService interface {
	Connect(ctx context.Context, mailbox WarmupMailbox) (*WarmupRegistration, error)
	UpdateSettings(ctx context.Context, externalID string, patch model.WarmupSettingsPatch) (*model.WarmupSettings, error)
	Disconnect(ctx context.Context, externalID string) error
	ListCampaigns(ctx context.Context) ([]WarmupCampaign, error)
	AddToCampaign(ctx context.Context, campaignID, externalID string) error
	RemoveFromCampaign(ctx context.Context, campaignID, externalID string) error
}

// SecretCipher seals secrets into opaque tokens and opens them again.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, error)
}

// ItemTask is one prepared item ready to run.
type ItemTask interface {
	// Call performs the external provisioning call. The executor retries it on retryable errors.
	Call(ctx context.Context) error
	// Commit persists the outcome of a successful Call (mapping, side effects) and returns result data.
	Commit(ctx context.Context) (model.Properties, error)
}

// ItemHandler turns stored item data into runnable tasks for one batch kind.
type ItemHandler interface {
	// Kind returns the batch kind this handler serves.
	Kind() model.BatchKind
	// Prepare decodes the item and performs idempotency checks. Any error is terminal for the item.
	Prepare(ctx context.Context, item *model.BatchItem) (ItemTask, error)
}

// BatchListener observes batch runs.
type BatchListener interface {
	BeforeBatch(ctx context.Context, op *model.BatchOperation)
	AfterBatch(ctx context.Context, op *model.BatchOperation)
}

// ItemListener observes item outcomes and retries.
type ItemListener interface {
	AfterItem(ctx context.Context, op *model.BatchOperation, item *model.BatchItem)
	OnItemRetry(ctx context.Context, op *model.BatchOperation, item *model.BatchItem, attempt int, err error)
}

// ReportExporter writes a finished batch and its items to report storage.
type ReportExporter interface {
	// Export returns the name of the written object.
	Export(ctx context.Context, op *model.BatchOperation, items []*model.BatchItem) (string, error)
}
