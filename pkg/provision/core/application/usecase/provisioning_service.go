package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	"github.com/tigerroll/provisioner/pkg/provision/connector/identity"
	"github.com/tigerroll/provisioner/pkg/provision/connector/warmup"
	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	config "github.com/tigerroll/provisioner/pkg/provision/core/config"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	repository "github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
	"github.com/tigerroll/provisioner/pkg/provision/engine/executor"
	"github.com/tigerroll/provisioner/pkg/provision/engine/handler"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
	logger "github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/serialization"
)

const moduleName = "provisioning_service"

// ServiceParams defines the dependencies of the DefaultProvisioningService.
type ServiceParams struct {
	fx.In
	Cfg            *config.Config
	Executor       *executor.Executor
	Batches        repository.BatchRepository
	Mappings       repository.MappingRepository
	Mailboxes      repository.MailboxRepository
	AccountHandler *handler.AccountHandler
	WarmupHandler  *handler.WarmupHandler
	Identity       *identity.Connector
	Warmup         *warmup.Connector
	Exporter       port.ReportExporter
}

// DefaultProvisioningService is the default implementation of ProvisioningService.
type DefaultProvisioningService struct {
	executor       *executor.Executor
	batches        repository.BatchRepository
	mappings       repository.MappingRepository
	mailboxes      repository.MailboxRepository
	accountHandler *handler.AccountHandler
	warmupHandler  *handler.WarmupHandler
	identity       *identity.Connector
	warmup         *warmup.Connector
	exporter       port.ReportExporter
	maskedKeys     []string
	now            func() time.Time
}

// Verify that DefaultProvisioningService implements the ProvisioningService interface.
var _ ProvisioningService = (*DefaultProvisioningService)(nil)

// NewDefaultProvisioningService creates a new instance of DefaultProvisioningService.
func NewDefaultProvisioningService(p ServiceParams) *DefaultProvisioningService {
	return &DefaultProvisioningService{
		executor:       p.Executor,
		batches:        p.Batches,
		mappings:       p.Mappings,
		mailboxes:      p.Mailboxes,
		accountHandler: p.AccountHandler,
		warmupHandler:  p.WarmupHandler,
		identity:       p.Identity,
		warmup:         p.Warmup,
		exporter:       p.Exporter,
		maskedKeys:     p.Cfg.Provisioner.Security.MaskedParameterKeys,
		now:            time.Now,
	}
}

// SubmitAccountBatch encodes the specs, sealing any supplied password, and runs a create_accounts batch.
func (s *DefaultProvisioningService) SubmitAccountBatch(ctx context.Context, specs []model.AccountSpec) (*executor.BatchResult, error) {
	logger.Infof("ProvisioningService: SubmitAccountBatch called with %d accounts.", len(specs))
	if err := s.checkSize(len(specs)); err != nil {
		return nil, err
	}
	data := make([]model.Properties, len(specs))
	for i, spec := range specs {
		props, err := s.accountHandler.EncodeItem(spec)
		if err != nil {
			return nil, err
		}
		data[i] = props
	}
	return s.executor.Submit(ctx, model.BatchKindCreateAccounts, data, s.snapshot(model.BatchKindCreateAccounts, data))
}

// SubmitWarmupBatch runs a connect_warmup batch.
func (s *DefaultProvisioningService) SubmitWarmupBatch(ctx context.Context, specs []model.ConnectSpec) (*executor.BatchResult, error) {
	logger.Infof("ProvisioningService: SubmitWarmupBatch called with %d mailboxes.", len(specs))
	if err := s.checkSize(len(specs)); err != nil {
		return nil, err
	}
	data := make([]model.Properties, len(specs))
	for i, spec := range specs {
		props, err := s.warmupHandler.EncodeItem(spec)
		if err != nil {
			return nil, err
		}
		data[i] = props
	}
	return s.executor.Submit(ctx, model.BatchKindConnectWarmup, data, s.snapshot(model.BatchKindConnectWarmup, data))
}

// checkSize rejects empty and oversized batches before any item is encoded.
func (s *DefaultProvisioningService) checkSize(n int) error {
	if n == 0 {
		return exception.NewBatchError(moduleName, exception.KindEmptyBatch, "batch has no items", nil)
	}
	if limit := s.executor.MaxBatchSize(); n > limit {
		return exception.NewBatchErrorf(moduleName, exception.KindBatchSizeExceeded,
			"batch has %d items, the limit is %d", n, limit)
	}
	return nil
}

// snapshot records the submitted items with secrets masked.
func (s *DefaultProvisioningService) snapshot(kind model.BatchKind, data []model.Properties) model.Properties {
	items := make([]interface{}, len(data))
	for i, d := range data {
		items[i] = map[string]interface{}(d)
	}
	raw := map[string]interface{}{
		"kind":  string(kind),
		"count": len(data),
		"items": items,
	}
	return model.Properties(serialization.MaskSecrets(raw, s.maskedKeys))
}

// RetryFailedBatchItems replays failed items, and skipped ones when requested.
func (s *DefaultProvisioningService) RetryFailedBatchItems(ctx context.Context, batchID string, opts RetryOptions) (*executor.BatchResult, error) {
	logger.Infof("ProvisioningService: RetryFailedBatchItems called. Batch ID: %s (include skipped: %t)", batchID, opts.IncludeSkipped)
	return s.executor.RetryFailedBatchItems(ctx, batchID, opts.IncludeSkipped)
}

// StopBatch cancels a running batch. Stopping a finished batch is an error.
func (s *DefaultProvisioningService) StopBatch(ctx context.Context, batchID string) error {
	logger.Infof("ProvisioningService: StopBatch called. Batch ID: %s", batchID)
	if s.executor.Stop(batchID) {
		return nil
	}
	op, err := s.batches.FindBatchByID(ctx, batchID)
	if errors.Is(err, repository.ErrBatchNotFound) {
		return exception.NewBatchErrorf(moduleName, exception.KindBatchNotFound, "batch %s not found", batchID, err)
	}
	if err != nil {
		return exception.NewBatchErrorf(moduleName, exception.KindDatabase, "failed to load batch %s", batchID, err)
	}
	logger.Warnf("Batch %s is not running in this process (status: %s).", batchID, op.Status)
	return exception.NewBatchErrorf(moduleName, exception.KindValidation,
		"batch %s is not running (status: %s)", batchID, op.Status)
}

// AbandonBatch finalizes a batch stranded in progress so it can be retried.
func (s *DefaultProvisioningService) AbandonBatch(ctx context.Context, batchID string) (*executor.BatchResult, error) {
	logger.Infof("ProvisioningService: AbandonBatch called. Batch ID: %s", batchID)
	return s.executor.AbandonBatch(ctx, batchID)
}

// GetBatch returns a batch with its items.
func (s *DefaultProvisioningService) GetBatch(ctx context.Context, batchID string) (*executor.BatchResult, error) {
	return s.executor.GetBatch(ctx, batchID)
}

// ListBatches returns the most recent batches first.
func (s *DefaultProvisioningService) ListBatches(ctx context.Context, limit int) ([]*model.BatchOperation, error) {
	ops, err := s.batches.ListBatches(ctx, limit)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to list batches", err)
	}
	return ops, nil
}

// UpdateWarmupSettings applies the patch and refreshes the warmup mapping snapshot.
func (s *DefaultProvisioningService) UpdateWarmupSettings(ctx context.Context, accountID string, patch model.WarmupSettingsPatch) (*model.WarmupSettings, error) {
	logger.Infof("ProvisioningService: UpdateWarmupSettings called. Account ID: %s", accountID)
	mapping, err := s.requireMapping(ctx, model.ProviderWarmup, accountID)
	if err != nil {
		return nil, err
	}

	settings, err := s.warmup.UpdateSettings(ctx, mapping.ExternalEntityID, patch)
	if err != nil {
		return nil, exception.Classify(err)
	}

	snapshot := mapping.ExternalSnapshot.Copy()
	snapshot["enabled"] = settings.Enabled
	snapshot["daily_limit"] = settings.DailyLimit
	snapshot["ramp_up_increment"] = settings.RampUpIncrement
	snapshot["reply_rate"] = settings.ReplyRate
	if settings.Tag != "" {
		snapshot["tag"] = settings.Tag
	}
	s.markSynced(ctx, mapping, snapshot)
	return settings, nil
}

// DisconnectWarmup runs the external cleanup best-effort, then deletes the mapping
// even when some cleanup steps failed. An account without a warmup mapping
// yields NOT_CONNECTED without any external call.
func (s *DefaultProvisioningService) DisconnectWarmup(ctx context.Context, accountID string) (*DisconnectResult, error) {
	logger.Infof("ProvisioningService: DisconnectWarmup called. Account ID: %s", accountID)
	mapping, err := s.requireMapping(ctx, model.ProviderWarmup, accountID)
	if err != nil {
		return nil, err
	}

	result := &DisconnectResult{AccountID: accountID, ExternalID: mapping.ExternalEntityID}
	if err := s.warmup.Disconnect(ctx, mapping.ExternalEntityID); err != nil {
		result.Warnings = warnings(err)
		logger.Warnf("Warmup cleanup for %s finished with %d failures; removing the mapping anyway.", accountID, len(result.Warnings))
	}

	if err := s.mappings.Delete(ctx, model.ProviderWarmup, accountID); err != nil && !errors.Is(err, repository.ErrMappingNotFound) {
		return result, exception.NewBatchErrorf(moduleName, exception.KindDatabase, "failed to delete warmup mapping of %s", accountID, err)
	}
	if err := s.mailboxes.SetAccountStatus(ctx, accountID, snapshotEmail(mapping), model.AccountStatusActive); err != nil {
		logger.Warnf("Failed to update account status of %s: %v", accountID, err)
	}
	return result, nil
}

// GetAccountStatus reads the identity provider state of the account and stores it in the mapping snapshot.
func (s *DefaultProvisioningService) GetAccountStatus(ctx context.Context, accountID string) (*AccountStatus, error) {
	mapping, err := s.requireMapping(ctx, model.ProviderIdentity, accountID)
	if err != nil {
		return nil, err
	}
	email := snapshotEmail(mapping)

	st, err := s.identity.GetAccountStatus(ctx, email)
	if err != nil {
		be := exception.Classify(err)
		s.markFailed(ctx, mapping)
		return nil, be
	}

	snapshot := mapping.ExternalSnapshot.Copy()
	snapshot["email"] = email
	snapshot["suspended"] = st.Suspended
	snapshot["archived"] = st.Archived
	s.markSynced(ctx, mapping, snapshot)

	warmupConnected, err := s.mappings.Exists(ctx, model.ProviderWarmup, accountID)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to check warmup mapping", err)
	}

	status := model.AccountStatusActive
	switch {
	case st.Suspended || st.Archived:
		status = model.AccountStatusSuspended
	case warmupConnected:
		status = model.AccountStatusWarming
	}
	if err := s.mailboxes.SetAccountStatus(ctx, accountID, email, status); err != nil {
		logger.Warnf("Failed to update account status of %s: %v", accountID, err)
	}

	return &AccountStatus{
		AccountID:       accountID,
		Email:           email,
		ExternalID:      mapping.ExternalEntityID,
		Suspended:       st.Suspended,
		Archived:        st.Archived,
		Status:          status,
		WarmupConnected: warmupConnected,
	}, nil
}

// DeprovisionAccount disconnects warmup first when connected, then deletes the
// identity account. The identity mapping is kept if the provider delete fails.
func (s *DefaultProvisioningService) DeprovisionAccount(ctx context.Context, accountID string) (*DeprovisionResult, error) {
	logger.Infof("ProvisioningService: DeprovisionAccount called. Account ID: %s", accountID)
	mapping, err := s.requireMapping(ctx, model.ProviderIdentity, accountID)
	if err != nil {
		return nil, err
	}
	result := &DeprovisionResult{AccountID: accountID, Email: snapshotEmail(mapping), ExternalID: mapping.ExternalEntityID}

	connected, err := s.mappings.Exists(ctx, model.ProviderWarmup, accountID)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindDatabase, "failed to check warmup mapping", err)
	}
	if connected {
		dr, err := s.DisconnectWarmup(ctx, accountID)
		if err != nil {
			return nil, err
		}
		result.Warnings = append(result.Warnings, dr.Warnings...)
	}

	if err := s.identity.DeleteAccount(ctx, result.Email); err != nil {
		s.markFailed(ctx, mapping)
		return result, exception.Classify(err)
	}
	if err := s.mappings.Delete(ctx, model.ProviderIdentity, accountID); err != nil && !errors.Is(err, repository.ErrMappingNotFound) {
		return result, exception.NewBatchErrorf(moduleName, exception.KindDatabase, "failed to delete identity mapping of %s", accountID, err)
	}
	if err := s.mailboxes.SetAccountStatus(ctx, accountID, result.Email, model.AccountStatusDisconnected); err != nil {
		logger.Warnf("Failed to update account status of %s: %v", accountID, err)
	}
	logger.Infof("Account %s (%s) deprovisioned.", accountID, result.Email)
	return result, nil
}

// ExportBatchReport writes a finished batch to report storage.
func (s *DefaultProvisioningService) ExportBatchReport(ctx context.Context, batchID string) (string, error) {
	res, err := s.executor.GetBatch(ctx, batchID)
	if err != nil {
		return "", err
	}
	if !res.Batch.Status.IsFinished() {
		return "", exception.NewBatchErrorf(moduleName, exception.KindBatchInProgress,
			"batch %s has not finished (status: %s)", batchID, res.Batch.Status)
	}
	name, err := s.exporter.Export(ctx, res.Batch, res.Items)
	if err != nil {
		return "", err
	}
	logger.Infof("Report of batch %s written to %s.", batchID, name)
	return name, nil
}

func (s *DefaultProvisioningService) requireMapping(ctx context.Context, provider model.Provider, accountID string) (*model.ExternalMapping, error) {
	mapping, err := s.mappings.Get(ctx, provider, accountID)
	if errors.Is(err, repository.ErrMappingNotFound) {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindNotConnected,
			"%s is not connected to %s", accountID, provider)
	}
	if err != nil {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindDatabase,
			"failed to load %s mapping of %s", provider, accountID, err)
	}
	return mapping, nil
}

// markSynced stores a fresh snapshot. A failed write is logged; the provider call already succeeded.
func (s *DefaultProvisioningService) markSynced(ctx context.Context, m *model.ExternalMapping, snapshot model.Properties) {
	m.ExternalSnapshot = snapshot
	m.SyncStatus = model.SyncStatusSynced
	m.LastSyncedAt = s.now()
	if err := s.mappings.Update(ctx, m); err != nil {
		logger.Warnf("Failed to refresh %s mapping of %s: %v", m.Provider, m.InternalEntityID, err)
	}
}

func (s *DefaultProvisioningService) markFailed(ctx context.Context, m *model.ExternalMapping) {
	m.SyncStatus = model.SyncStatusFailed
	if err := s.mappings.Update(ctx, m); err != nil {
		logger.Warnf("Failed to mark %s mapping of %s as failed: %v", m.Provider, m.InternalEntityID, err)
	}
}

func snapshotEmail(m *model.ExternalMapping) string {
	if email, ok := m.ExternalSnapshot["email"].(string); ok && email != "" {
		return email
	}
	return m.InternalEntityID
}

// warnings flattens a multierror into one message per failed step.
func warnings(err error) []string {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{fmt.Sprint(err)}
}
