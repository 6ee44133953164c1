package handler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/provisioner/pkg/provision/connector/identity"
	"github.com/tigerroll/provisioner/pkg/provision/connector/warmup"
	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	repository "github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
	"github.com/tigerroll/provisioner/pkg/provision/engine/handler"
	"github.com/tigerroll/provisioner/pkg/provision/infrastructure/repository/inmemory"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
	"github.com/tigerroll/provisioner/pkg/provision/test"
)

func accountItem(t *testing.T, h *handler.AccountHandler, spec model.AccountSpec) *model.BatchItem {
	t.Helper()
	data, err := h.EncodeItem(spec)
	require.NoError(t, err)
	return model.NewBatchItem("b1", 0, data)
}

func TestAccountHandler_SealsPasswordInItemData(t *testing.T) {
	repo := inmemory.NewRepository()
	h := handler.NewAccountHandler(identity.NewConnector(new(test.MockIdentityProvider)), repo.Mappings(), repo.Mailboxes(), test.PlainCipher{})

	data, err := h.EncodeItem(model.AccountSpec{AccountID: "a1", Domain: "example.com", LocalPart: "jane", Password: "Str0ng!Password"})

	require.NoError(t, err)
	assert.NotContains(t, data, "password")
	assert.Equal(t, "sealed:Str0ng!Password", data["password_token"])
	assert.Equal(t, "jane", data["local_part"])
}

func TestAccountHandler_CreatesMappingCredentialsAndStatus(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRepository()
	provider := new(test.MockIdentityProvider)
	provider.On("CreateAccount", mock.Anything, mock.MatchedBy(func(req port.CreateAccountRequest) bool {
		return req.Password == "Str0ng!Password"
	})).Return(&port.IdentityUser{ExternalID: "g-1", Email: "jane@example.com"}, nil).Once()
	h := handler.NewAccountHandler(identity.NewConnector(provider), repo.Mappings(), repo.Mailboxes(), test.PlainCipher{})
	item := accountItem(t, h, model.AccountSpec{AccountID: "a1", Domain: "example.com", LocalPart: "jane", Password: "Str0ng!Password"})

	task, err := h.Prepare(ctx, item)
	require.NoError(t, err)
	require.NoError(t, task.Call(ctx))
	result, err := task.Commit(ctx)
	require.NoError(t, err)

	assert.Equal(t, "g-1", result["external_id"])
	assert.Equal(t, "sealed:Str0ng!Password", result["password_token"])
	assert.Equal(t, false, result["password_generated"])

	mapping, err := repo.Mappings().Get(ctx, model.ProviderIdentity, "a1")
	require.NoError(t, err)
	assert.Equal(t, "g-1", mapping.ExternalEntityID)

	creds, err := repo.Mailboxes().FindCredentials(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, handler.DefaultSMTPHost, creds.SMTP.Host)
	assert.Equal(t, 993, creds.IMAP.Port)
	assert.Equal(t, "sealed:Str0ng!Password", creds.SMTP.PasswordToken)

	account, err := repo.Mailboxes().FindAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.AccountStatusActive, account.Status)

	// A second run of the same entity stops at Prepare.
	_, err = h.Prepare(ctx, item)
	assert.True(t, exception.HasKind(err, exception.KindAlreadyConnected))
	provider.AssertExpectations(t)
}

func TestAccountHandler_ConcurrentWriterWinsMappingRace(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRepository()
	provider := new(test.MockIdentityProvider)
	provider.On("CreateAccount", mock.Anything, mock.Anything).
		Return(&port.IdentityUser{ExternalID: "g-2", Email: "jane@example.com"}, nil)
	h := handler.NewAccountHandler(identity.NewConnector(provider), repo.Mappings(), repo.Mailboxes(), test.PlainCipher{})
	item := accountItem(t, h, model.AccountSpec{AccountID: "a1", Domain: "example.com", LocalPart: "jane"})

	task, err := h.Prepare(ctx, item)
	require.NoError(t, err)
	require.NoError(t, task.Call(ctx))

	winner := model.NewExternalMapping(model.ProviderIdentity, "a1", "g-1", nil, time.Now())
	_, err = repo.Mappings().Create(ctx, winner)
	require.NoError(t, err)

	partial, err := task.Commit(ctx)
	assert.True(t, exception.HasKind(err, exception.KindAlreadyConnected))
	assert.Equal(t, "g-2", partial["external_id"])
	assert.NotEmpty(t, partial["password_token"])

	stored, err := repo.Mappings().Get(ctx, model.ProviderIdentity, "a1")
	require.NoError(t, err)
	assert.Equal(t, "g-1", stored.ExternalEntityID)
	_, err = repo.Mailboxes().FindCredentials(ctx, "a1")
	assert.ErrorIs(t, err, repository.ErrCredentialsNotFound)
}

// flakyMailboxes fails the next failures SaveCredentials calls.
type flakyMailboxes struct {
	repository.MailboxRepository
	failures int
}

func (m *flakyMailboxes) SaveCredentials(ctx context.Context, creds *model.MailboxCredentials) error {
	if m.failures > 0 {
		m.failures--
		return errors.New("disk full")
	}
	return m.MailboxRepository.SaveCredentials(ctx, creds)
}

func TestAccountHandler_ResumesCommitAfterCredentialWriteFailure(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRepository()
	provider := new(test.MockIdentityProvider)
	provider.On("CreateAccount", mock.Anything, mock.Anything).
		Return(&port.IdentityUser{ExternalID: "g-1", Email: "jane@example.com"}, nil).Once()
	mailboxes := &flakyMailboxes{MailboxRepository: repo.Mailboxes(), failures: 1}
	h := handler.NewAccountHandler(identity.NewConnector(provider), repo.Mappings(), mailboxes, test.PlainCipher{})
	item := accountItem(t, h, model.AccountSpec{AccountID: "a1", Domain: "example.com", LocalPart: "jane"})

	task, err := h.Prepare(ctx, item)
	require.NoError(t, err)
	require.NoError(t, task.Call(ctx))
	partial, err := task.Commit(ctx)
	assert.True(t, exception.HasKind(err, exception.KindDatabase))
	require.NotNil(t, partial)
	assert.Equal(t, "g-1", partial["external_id"])
	assert.NotEmpty(t, partial["password_token"], "the generated password must not be lost")

	exists, err := repo.Mappings().Exists(ctx, model.ProviderIdentity, "a1")
	require.NoError(t, err)
	assert.False(t, exists, "no mapping without credentials")

	// The failed item keeps the partial result and is picked up by a retry.
	now := time.Now()
	item.ResultData = partial
	item.MarkFailed(string(exception.KindDatabase), err.Error(), 1, now)
	item.MarkProcessing(now)

	resumed, err := h.Prepare(ctx, item)
	require.NoError(t, err)
	require.NoError(t, resumed.Call(ctx))
	result, err := resumed.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, partial["password_token"], result["password_token"])
	assert.NotEmpty(t, result["mapping_id"])

	creds, err := repo.Mailboxes().FindCredentials(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, partial["password_token"], creds.SMTP.PasswordToken)
	provider.AssertExpectations(t)
}

func TestAccountHandler_ResumeReusesMatchingMapping(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRepository()
	h := handler.NewAccountHandler(identity.NewConnector(new(test.MockIdentityProvider)), repo.Mappings(), repo.Mailboxes(), test.PlainCipher{})
	item := accountItem(t, h, model.AccountSpec{AccountID: "a1", Domain: "example.com", LocalPart: "jane"})
	item.ResultData = model.Properties{
		"external_id":        "g-1",
		"email":              "jane@example.com",
		"password_token":     "sealed:Gen3rated!Pass",
		"password_generated": true,
	}
	mappingID, err := repo.Mappings().Create(ctx, model.NewExternalMapping(model.ProviderIdentity, "a1", "g-1", nil, time.Now()))
	require.NoError(t, err)

	task, err := h.Prepare(ctx, item)
	require.NoError(t, err)
	require.NoError(t, task.Call(ctx))
	result, err := task.Commit(ctx)

	require.NoError(t, err)
	assert.Equal(t, mappingID, result["mapping_id"])
	assert.Equal(t, true, result["password_generated"])
}

func warmupItem(t *testing.T, h *handler.WarmupHandler, spec model.ConnectSpec) *model.BatchItem {
	t.Helper()
	data, err := h.EncodeItem(spec)
	require.NoError(t, err)
	return model.NewBatchItem("b1", 0, data)
}

func TestWarmupHandler_RequiresStoredCredentials(t *testing.T) {
	repo := inmemory.NewRepository()
	h := handler.NewWarmupHandler(warmup.NewConnector(new(test.MockWarmupService)), repo.Mappings(), repo.Mailboxes(), test.PlainCipher{})

	_, err := h.Prepare(context.Background(), warmupItem(t, h, model.ConnectSpec{AccountID: "a1"}))

	assert.True(t, exception.HasKind(err, exception.KindCredentialsNotFound))
}

func TestWarmupHandler_RequiresAccountID(t *testing.T) {
	repo := inmemory.NewRepository()
	h := handler.NewWarmupHandler(warmup.NewConnector(new(test.MockWarmupService)), repo.Mappings(), repo.Mailboxes(), test.PlainCipher{})

	_, err := h.Prepare(context.Background(), warmupItem(t, h, model.ConnectSpec{Email: "jane@example.com"}))

	assert.True(t, exception.HasKind(err, exception.KindValidation))
}

func TestWarmupHandler_ConnectsAndMarksWarming(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRepository()
	require.NoError(t, repo.Mailboxes().SaveCredentials(ctx, &model.MailboxCredentials{
		AccountID: "a1",
		Email:     "jane@example.com",
		SMTP:      model.MailEndpoint{Host: "smtp.gmail.com", Port: 587, Username: "jane@example.com", PasswordToken: "sealed:pw"},
		IMAP:      model.MailEndpoint{Host: "imap.gmail.com", Port: 993, Username: "jane@example.com", PasswordToken: "sealed:pw", Secure: true},
	}))

	svc := new(test.MockWarmupService)
	svc.On("Connect", mock.Anything, mock.MatchedBy(func(m port.WarmupMailbox) bool {
		return m.Email == "jane@example.com" && m.SMTP.Password == "pw" && m.IMAP.Password == "pw" && m.FirstName == "jane"
	})).Return(&port.WarmupRegistration{ExternalID: "w-1", WarmupKey: "wk", Settings: model.DefaultWarmupSettings()}, nil).Once()
	h := handler.NewWarmupHandler(warmup.NewConnector(svc), repo.Mappings(), repo.Mailboxes(), test.PlainCipher{})
	item := warmupItem(t, h, model.ConnectSpec{AccountID: "a1", Warmup: model.DefaultWarmupSettings()})

	task, err := h.Prepare(ctx, item)
	require.NoError(t, err)
	require.NoError(t, task.Call(ctx))
	result, err := task.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "w-1", result["external_id"])

	account, err := repo.Mailboxes().FindAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.AccountStatusWarming, account.Status)

	mapping, err := repo.Mappings().Get(ctx, model.ProviderWarmup, "a1")
	require.NoError(t, err)
	assert.Equal(t, "wk", mapping.ExternalSnapshot["warmup_key"])

	_, err = h.Prepare(ctx, item)
	assert.True(t, exception.HasKind(err, exception.KindAlreadyConnected))
	svc.AssertExpectations(t)
}
