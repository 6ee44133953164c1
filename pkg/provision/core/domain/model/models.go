package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BatchKind identifies what a batch provisions.
type BatchKind string

const (
	BatchKindCreateAccounts BatchKind = "create_accounts"
	BatchKindConnectWarmup  BatchKind = "connect_warmup"
)

// BatchStatus represents the state of a BatchOperation.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusPartial    BatchStatus = "partial"
)

// String returns the string representation of the BatchStatus.
func (s BatchStatus) String() string {
	return string(s)
}

// IsFinished checks if the BatchStatus represents a finished state.
func (s BatchStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusPartial:
		return true
	default:
		return false
	}
}

// ItemStatus represents the state of a BatchItem.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusSuccess    ItemStatus = "success"
	ItemStatusFailed     ItemStatus = "failed"
	ItemStatusSkipped    ItemStatus = "skipped"
)

// IsTerminal reports whether the item reached a final state for the current run.
func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusSuccess || s == ItemStatusFailed || s == ItemStatusSkipped
}

// Provider names the external system an ExternalMapping points into.
type Provider string

const (
	ProviderIdentity Provider = "identity"
	ProviderWarmup   Provider = "warmup"
)

// SyncStatus is the synchronization state of an ExternalMapping.
type SyncStatus string

const (
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusFailed   SyncStatus = "failed"
	SyncStatusConflict SyncStatus = "conflict"
)

// Properties is a JSON object persisted in a single text column.
type Properties map[string]interface{}

// Value implements the `driver.Valuer` interface, converting the Properties to a JSON string.
func (p Properties) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to Properties.
func (p *Properties) Scan(value interface{}) error {
	if value == nil {
		*p = make(Properties)
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for Properties: %T", value)
	}

	if len(b) == 0 {
		*p = make(Properties)
		return nil
	}
	if err := json.Unmarshal(b, p); err != nil {
		return fmt.Errorf("failed to unmarshal Properties JSON: %w", err)
	}
	return nil
}

// Copy returns a shallow copy.
func (p Properties) Copy() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// BatchOperation is one submitted batch and its aggregate progress.
// ProcessedItems always equals SuccessfulItems + FailedItems.
type BatchOperation struct {
	ID              string
	Kind            BatchKind
	Status          BatchStatus
	TotalItems      int
	ProcessedItems  int
	SuccessfulItems int
	FailedItems     int
	SkippedItems    int
	InputSnapshot   Properties
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	LastUpdated     time.Time
}

// NewBatchOperation creates a pending batch with a fresh ID.
func NewBatchOperation(kind BatchKind, totalItems int, snapshot Properties, now time.Time) *BatchOperation {
	return &BatchOperation{
		ID:            uuid.NewString(),
		Kind:          kind,
		Status:        BatchStatusPending,
		TotalItems:    totalItems,
		InputSnapshot: snapshot,
		CreatedAt:     now,
		LastUpdated:   now,
	}
}

// Start moves the batch to in_progress. A re-run keeps the original StartedAt.
func (b *BatchOperation) Start(now time.Time) {
	b.Status = BatchStatusInProgress
	if b.StartedAt == nil {
		b.StartedAt = &now
	}
	b.CompletedAt = nil
	b.LastUpdated = now
}

// ApplyCounts overwrites the aggregates with counts computed from item rows.
func (b *BatchOperation) ApplyCounts(c ItemCounts) {
	b.TotalItems = c.Total
	b.SuccessfulItems = c.Success
	b.FailedItems = c.Failed
	b.SkippedItems = c.Skipped
	b.ProcessedItems = c.Success + c.Failed
}

// Finish derives the final status from the aggregates and stamps CompletedAt.
func (b *BatchOperation) Finish(now time.Time) {
	b.Status = DeriveStatus(b.TotalItems, b.SuccessfulItems)
	b.CompletedAt = &now
	b.LastUpdated = now
}

// DeriveStatus computes the terminal batch status from item outcomes.
// A batch is completed only when every item succeeded; it failed when none did.
// Failed, skipped and unfinished items all count against completion.
func DeriveStatus(total, successful int) BatchStatus {
	switch {
	case successful == 0:
		return BatchStatusFailed
	case successful == total:
		return BatchStatusCompleted
	default:
		return BatchStatusPartial
	}
}

// Unfinished reports how many items are neither terminal nor skipped.
func (c ItemCounts) Unfinished() int {
	return c.Pending + c.Processing
}

// ItemCounts is a tally of item rows by status.
type ItemCounts struct {
	Total      int
	Pending    int
	Processing int
	Success    int
	Failed     int
	Skipped    int
}

// CountItems tallies items by status.
func CountItems(items []*BatchItem) ItemCounts {
	c := ItemCounts{Total: len(items)}
	for _, it := range items {
		c.Add(it.Status)
	}
	return c
}

// Add counts one item of the given status.
func (c *ItemCounts) Add(status ItemStatus) {
	c.AddN(status, 1)
}

// AddN counts n items of the given status. Total is left to the caller.
func (c *ItemCounts) AddN(status ItemStatus, n int) {
	switch status {
	case ItemStatusPending:
		c.Pending += n
	case ItemStatusProcessing:
		c.Processing += n
	case ItemStatusSuccess:
		c.Success += n
	case ItemStatusFailed:
		c.Failed += n
	case ItemStatusSkipped:
		c.Skipped += n
	}
}

// BatchItem is the ledger row for one item of a batch.
// Index is stable, 0-based and unique per batch.
type BatchItem struct {
	ID           string
	BatchID      string
	Index        int
	ItemData     Properties
	Status       ItemStatus
	ResultData   Properties
	ErrorMessage string
	ErrorCode    string
	Attempts     int
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// NewBatchItem creates a pending item.
func NewBatchItem(batchID string, index int, data Properties) *BatchItem {
	return &BatchItem{
		ID:       uuid.NewString(),
		BatchID:  batchID,
		Index:    index,
		ItemData: data,
		Status:   ItemStatusPending,
	}
}

// MarkProcessing records the start of an attempt run and clears the previous error.
// ResultData is kept so a handler can resume a commit that failed part way.
func (i *BatchItem) MarkProcessing(now time.Time) {
	i.Status = ItemStatusProcessing
	i.StartedAt = &now
	i.CompletedAt = nil
	i.ErrorCode = ""
	i.ErrorMessage = ""
	i.Attempts = 0
}

// MarkSuccess records a successful outcome.
func (i *BatchItem) MarkSuccess(result Properties, attempts int, now time.Time) {
	i.Status = ItemStatusSuccess
	i.ResultData = result
	i.Attempts = attempts
	i.ErrorCode = ""
	i.ErrorMessage = ""
	i.CompletedAt = &now
}

// MarkFailed records a terminal failure.
func (i *BatchItem) MarkFailed(code, message string, attempts int, now time.Time) {
	i.Status = ItemStatusFailed
	i.ErrorCode = code
	i.ErrorMessage = message
	i.Attempts = attempts
	i.CompletedAt = &now
}

// MarkSkipped records that the item never ran.
func (i *BatchItem) MarkSkipped(code, message string, now time.Time) {
	i.Status = ItemStatusSkipped
	i.ErrorCode = code
	i.ErrorMessage = message
	i.CompletedAt = &now
}

// ExternalMapping links an internal entity to its identifier in a provider.
// At most one mapping exists per (Provider, InternalEntityID).
type ExternalMapping struct {
	ID               string
	Provider         Provider
	InternalEntityID string
	ExternalEntityID string
	SyncStatus       SyncStatus
	LastSyncedAt     time.Time
	ExternalSnapshot Properties
	CreatedAt        time.Time
}

// NewExternalMapping creates a synced mapping.
func NewExternalMapping(provider Provider, internalID, externalID string, snapshot Properties, now time.Time) *ExternalMapping {
	return &ExternalMapping{
		ID:               uuid.NewString(),
		Provider:         provider,
		InternalEntityID: internalID,
		ExternalEntityID: externalID,
		SyncStatus:       SyncStatusSynced,
		LastSyncedAt:     now,
		ExternalSnapshot: snapshot,
		CreatedAt:        now,
	}
}

// AccountStatus is the lifecycle state of a mailbox account.
type AccountStatus string

const (
	AccountStatusPending      AccountStatus = "pending"
	AccountStatusActive       AccountStatus = "active"
	AccountStatusWarming      AccountStatus = "warming"
	AccountStatusSuspended    AccountStatus = "suspended"
	AccountStatusDisconnected AccountStatus = "disconnected"
)

// MailboxAccount is the internal record whose status the pipeline updates as a side effect.
type MailboxAccount struct {
	ID        string
	Email     string
	Status    AccountStatus
	UpdatedAt time.Time
}

// MailEndpoint is one SMTP or IMAP server login. The password is held only as a sealed token.
type MailEndpoint struct {
	Host          string
	Port          int
	Username      string
	PasswordToken string
	Secure        bool
}

// MailboxCredentials are the stored logins of a mailbox.
type MailboxCredentials struct {
	AccountID string
	Email     string
	SMTP      MailEndpoint
	IMAP      MailEndpoint
	UpdatedAt time.Time
}
