package handler

import (
	"context"
	"errors"
	"time"

	"github.com/tigerroll/provisioner/pkg/provision/connector/identity"
	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	repository "github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// AccountHandler runs create_accounts items: identity provider account creation
// followed by the identity mapping, stored credentials and account status.
type AccountHandler struct {
	connector *identity.Connector
	mappings  repository.MappingRepository
	mailboxes repository.MailboxRepository
	cipher    port.SecretCipher
	now       func() time.Time
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(
	connector *identity.Connector,
	mappings repository.MappingRepository,
	mailboxes repository.MailboxRepository,
	cipher port.SecretCipher,
) *AccountHandler {
	return &AccountHandler{connector: connector, mappings: mappings, mailboxes: mailboxes, cipher: cipher, now: time.Now}
}

func (h *AccountHandler) Kind() model.BatchKind {
	return model.BatchKindCreateAccounts
}

// EncodeItem turns a spec into ledger item data. A supplied password is sealed
// into password_token so the plaintext never reaches the ledger.
func (h *AccountHandler) EncodeItem(spec model.AccountSpec) (model.Properties, error) {
	if spec.Password != "" {
		token, err := h.cipher.Encrypt(spec.Password)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, exception.KindInvalidCredentials, "failed to seal password", err)
		}
		spec.Password = ""
		spec.PasswordToken = token
	}
	return encodeItem(spec)
}

// Prepare decodes the item and rejects accounts that already have an identity mapping.
// An item whose earlier commit failed after the account was created resumes from
// the result it recorded and skips the provider call.
func (h *AccountHandler) Prepare(ctx context.Context, item *model.BatchItem) (port.ItemTask, error) {
	var spec model.AccountSpec
	if err := decodeItem(item, &spec); err != nil {
		return nil, err
	}
	internalID := accountID(spec)

	if res, token, ok := resumedAccount(item.ResultData); ok {
		password, err := h.cipher.Decrypt(token)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, exception.KindInvalidCredentials, "failed to open recorded account password", err)
		}
		res.Password = password
		logger.Infof("Resuming commit of mailbox %s (account %s).", res.Email, internalID)
		return &accountTask{h: h, spec: spec, internalID: internalID, result: res, token: token}, nil
	}

	exists, err := h.mappings.Exists(ctx, model.ProviderIdentity, internalID)
	if err != nil {
		return nil, databaseError("check identity mapping", err)
	}
	if exists {
		return nil, alreadyConnected(model.ProviderIdentity, internalID)
	}

	password := spec.Password
	if spec.PasswordToken != "" {
		if password, err = h.cipher.Decrypt(spec.PasswordToken); err != nil {
			return nil, exception.NewBatchError(moduleName, exception.KindInvalidCredentials, "failed to open sealed password", err)
		}
	}
	return &accountTask{h: h, spec: spec, internalID: internalID, password: password}, nil
}

// accountID is the internal entity ID of an account: its AccountID, or its email when unset.
func accountID(spec model.AccountSpec) string {
	if spec.AccountID != "" {
		return spec.AccountID
	}
	return spec.Email()
}

// resumedAccount reads the account a failed commit recorded in the item result.
func resumedAccount(result model.Properties) (*identity.AccountResult, string, bool) {
	externalID, _ := result["external_id"].(string)
	email, _ := result["email"].(string)
	token, _ := result["password_token"].(string)
	if externalID == "" || email == "" || token == "" {
		return nil, "", false
	}
	generated, _ := result["password_generated"].(bool)
	return &identity.AccountResult{ExternalID: externalID, Email: email, Generated: generated}, token, true
}

type accountTask struct {
	h          *AccountHandler
	spec       model.AccountSpec
	internalID string
	password   string
	result     *identity.AccountResult
	// token is the sealed password, set once the account exists.
	token string
}

func (t *accountTask) Call(ctx context.Context) error {
	if t.result != nil {
		return nil
	}
	res, err := t.h.connector.CreateAccount(ctx, t.spec, t.password)
	if err != nil {
		return err
	}
	t.result = res
	return nil
}

// Commit stores credentials and account status before the identity mapping, so a
// mapping only exists for a fully committed account. On failure it returns the
// account data with the error; the executor keeps it on the item for a resume.
func (t *accountTask) Commit(ctx context.Context) (model.Properties, error) {
	h, res := t.h, t.result
	now := h.now()

	if t.token == "" {
		token, err := h.cipher.Encrypt(res.Password)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, exception.KindUnknown, "failed to seal account password", err)
		}
		t.token = token
	}
	result := model.Properties{
		"account_id":         t.internalID,
		"external_id":        res.ExternalID,
		"email":              res.Email,
		"password_generated": res.Generated,
		"password_token":     t.token,
	}

	// Do not touch the credentials of an account another writer already connected.
	if existing, err := h.mappings.Get(ctx, model.ProviderIdentity, t.internalID); err == nil && existing.ExternalEntityID != res.ExternalID {
		return result, alreadyConnected(model.ProviderIdentity, t.internalID)
	}

	creds := &model.MailboxCredentials{
		AccountID: t.internalID,
		Email:     res.Email,
		SMTP:      model.MailEndpoint{Host: DefaultSMTPHost, Port: DefaultSMTPPort, Username: res.Email, PasswordToken: t.token},
		IMAP:      model.MailEndpoint{Host: DefaultIMAPHost, Port: DefaultIMAPPort, Username: res.Email, PasswordToken: t.token, Secure: true},
		UpdatedAt: now,
	}
	if err := h.mailboxes.SaveCredentials(ctx, creds); err != nil {
		return result, databaseError("save mailbox credentials", err)
	}
	if err := h.mailboxes.SetAccountStatus(ctx, t.internalID, res.Email, model.AccountStatusActive); err != nil {
		return result, databaseError("update account status", err)
	}

	mappingID, err := h.createMapping(ctx, t.internalID, res, now)
	if err != nil {
		return result, err
	}
	logger.Infof("Mailbox %s created (account %s).", res.Email, t.internalID)

	result["mapping_id"] = mappingID
	return result, nil
}

// createMapping inserts the identity mapping. A conflicting mapping that already
// points at the same external account is the outcome of an earlier commit and is reused.
func (h *AccountHandler) createMapping(ctx context.Context, internalID string, res *identity.AccountResult, now time.Time) (string, error) {
	mapping := model.NewExternalMapping(model.ProviderIdentity, internalID, res.ExternalID,
		model.Properties{"email": res.Email}, now)
	mappingID, err := h.mappings.Create(ctx, mapping)
	if err == nil {
		return mappingID, nil
	}
	if errors.Is(err, repository.ErrMappingConflict) {
		existing, gerr := h.mappings.Get(ctx, model.ProviderIdentity, internalID)
		if gerr == nil && existing.ExternalEntityID == res.ExternalID {
			return existing.ID, nil
		}
	}
	return "", mappingError(model.ProviderIdentity, internalID, err)
}

var _ port.ItemHandler = (*AccountHandler)(nil)
