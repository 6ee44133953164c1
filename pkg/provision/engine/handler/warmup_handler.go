package handler

import (
	"context"
	"errors"
	"time"

	"github.com/tigerroll/provisioner/pkg/provision/connector/warmup"
	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	repository "github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// WarmupHandler runs connect_warmup items.
type WarmupHandler struct {
	connector *warmup.Connector
	mappings  repository.MappingRepository
	mailboxes repository.MailboxRepository
	cipher    port.SecretCipher
	now       func() time.Time
}

// NewWarmupHandler creates a WarmupHandler.
func NewWarmupHandler(
	connector *warmup.Connector,
	mappings repository.MappingRepository,
	mailboxes repository.MailboxRepository,
	cipher port.SecretCipher,
) *WarmupHandler {
	return &WarmupHandler{connector: connector, mappings: mappings, mailboxes: mailboxes, cipher: cipher, now: time.Now}
}

func (h *WarmupHandler) Kind() model.BatchKind {
	return model.BatchKindConnectWarmup
}

// EncodeItem turns a spec into ledger item data.
func (h *WarmupHandler) EncodeItem(spec model.ConnectSpec) (model.Properties, error) {
	return encodeItem(spec)
}

// Prepare checks for an existing warmup mapping, then loads and opens the stored logins.
func (h *WarmupHandler) Prepare(ctx context.Context, item *model.BatchItem) (port.ItemTask, error) {
	var spec model.ConnectSpec
	if err := decodeItem(item, &spec); err != nil {
		return nil, err
	}
	if spec.AccountID == "" {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindValidation, "item %d has no account_id", item.Index)
	}

	exists, err := h.mappings.Exists(ctx, model.ProviderWarmup, spec.AccountID)
	if err != nil {
		return nil, databaseError("check warmup mapping", err)
	}
	if exists {
		return nil, alreadyConnected(model.ProviderWarmup, spec.AccountID)
	}

	creds, err := h.mailboxes.FindCredentials(ctx, spec.AccountID)
	if errors.Is(err, repository.ErrCredentialsNotFound) {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindCredentialsNotFound,
			"no mailbox credentials stored for %s", spec.AccountID)
	}
	if err != nil {
		return nil, databaseError("load mailbox credentials", err)
	}
	if spec.Email == "" {
		spec.Email = creds.Email
	}

	smtp, err := h.openLogin(creds.SMTP)
	if err != nil {
		return nil, err
	}
	imap, err := h.openLogin(creds.IMAP)
	if err != nil {
		return nil, err
	}
	return &warmupTask{h: h, spec: spec, logins: warmup.Logins{SMTP: smtp, IMAP: imap}}, nil
}

func (h *WarmupHandler) openLogin(e model.MailEndpoint) (port.MailServerLogin, error) {
	login := port.MailServerLogin{Host: e.Host, Port: e.Port, Username: e.Username, Secure: e.Secure}
	if e.PasswordToken == "" {
		return login, nil
	}
	password, err := h.cipher.Decrypt(e.PasswordToken)
	if err != nil {
		return login, exception.NewBatchError(moduleName, exception.KindInvalidCredentials, "failed to open stored mail server password", err)
	}
	login.Password = password
	return login, nil
}

type warmupTask struct {
	h      *WarmupHandler
	spec   model.ConnectSpec
	logins warmup.Logins
	reg    *warmup.Registration
}

func (t *warmupTask) Call(ctx context.Context) error {
	reg, err := t.h.connector.Connect(ctx, t.spec, t.logins)
	if err != nil {
		return err
	}
	t.reg = reg
	return nil
}

func (t *warmupTask) Commit(ctx context.Context) (model.Properties, error) {
	h, reg := t.h, t.reg
	mapping := model.NewExternalMapping(model.ProviderWarmup, t.spec.AccountID, reg.ExternalID, reg.Snapshot, h.now())
	mappingID, err := h.mappings.Create(ctx, mapping)
	if err != nil {
		return nil, mappingError(model.ProviderWarmup, t.spec.AccountID, err)
	}
	if err := h.mailboxes.SetAccountStatus(ctx, t.spec.AccountID, t.spec.Email, model.AccountStatusWarming); err != nil {
		return nil, databaseError("update account status", err)
	}
	logger.Infof("Mailbox %s connected to warmup (account %s).", t.spec.Email, t.spec.AccountID)

	return model.Properties{
		"account_id":  t.spec.AccountID,
		"external_id": reg.ExternalID,
		"warmup_key":  reg.WarmupKey,
		"mapping_id":  mappingID,
	}, nil
}

var _ port.ItemHandler = (*WarmupHandler)(nil)
