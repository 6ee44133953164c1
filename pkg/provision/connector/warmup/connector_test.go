package warmup_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/provisioner/pkg/provision/connector/warmup"
	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
	"github.com/tigerroll/provisioner/pkg/provision/test"
)

func logins() warmup.Logins {
	return warmup.Logins{
		SMTP: port.MailServerLogin{Host: "smtp.gmail.com", Port: 587, Username: "jane@example.com", Password: "p"},
		IMAP: port.MailServerLogin{Host: "imap.gmail.com", Port: 993, Username: "jane@example.com", Password: "p", Secure: true},
	}
}

func TestConnect_MapsMailboxAndReturnsRegistration(t *testing.T) {
	svc := new(test.MockWarmupService)
	settings := model.DefaultWarmupSettings()
	svc.On("Connect", mock.Anything, mock.MatchedBy(func(m port.WarmupMailbox) bool {
		return m.FirstName == "Jane" && m.LastName == "van Doe" && m.SMTP.Port == 587
	})).Return(&port.WarmupRegistration{ExternalID: "w-1", WarmupKey: "key-1", Settings: settings}, nil)

	reg, err := warmup.NewConnector(svc).Connect(context.Background(),
		model.ConnectSpec{AccountID: "a1", Email: "jane@example.com", DisplayName: "Jane van Doe", Warmup: settings}, logins())

	require.NoError(t, err)
	assert.Equal(t, "w-1", reg.ExternalID)
	assert.Equal(t, "key-1", reg.Snapshot["warmup_key"])
	svc.AssertExpectations(t)
}

func TestConnect_IncompleteCredentials(t *testing.T) {
	svc := new(test.MockWarmupService)
	l := logins()
	l.IMAP.Port = 0

	_, err := warmup.NewConnector(svc).Connect(context.Background(), model.ConnectSpec{Email: "jane@example.com"}, l)

	assert.True(t, exception.HasKind(err, exception.KindInvalidCredentials))
	svc.AssertNotCalled(t, "Connect", mock.Anything, mock.Anything)
}

func TestSplitDisplayName(t *testing.T) {
	first, last := warmup.SplitDisplayName("  Jane   Mary Doe ", "x@example.com")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Mary Doe", last)

	first, last = warmup.SplitDisplayName("", "jane.doe@example.com")
	assert.Equal(t, "jane.doe", first)
	assert.Empty(t, last)
}

func TestDisconnect_ContinuesPastFailures(t *testing.T) {
	svc := new(test.MockWarmupService)
	svc.On("UpdateSettings", mock.Anything, "w-1", mock.MatchedBy(func(p model.WarmupSettingsPatch) bool {
		return p.Enabled != nil && !*p.Enabled
	})).Return(nil, errors.New("rate limit exceeded"))
	svc.On("ListCampaigns", mock.Anything).Return([]port.WarmupCampaign{
		{ID: "c1", AccountIDs: []string{"w-1", "w-2"}},
		{ID: "c2", AccountIDs: []string{"w-2"}},
	}, nil)
	svc.On("RemoveFromCampaign", mock.Anything, "c1", "w-1").Return(nil)
	svc.On("Disconnect", mock.Anything, "w-1").Return(nil)

	err := warmup.NewConnector(svc).Disconnect(context.Background(), "w-1")

	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 1)
	svc.AssertExpectations(t)
	svc.AssertNotCalled(t, "RemoveFromCampaign", mock.Anything, "c2", "w-1")
}

func TestDisconnect_AllStepsSucceed(t *testing.T) {
	svc := new(test.MockWarmupService)
	svc.On("UpdateSettings", mock.Anything, "w-1", mock.Anything).Return(&model.WarmupSettings{}, nil)
	svc.On("ListCampaigns", mock.Anything).Return([]port.WarmupCampaign{}, nil)
	svc.On("Disconnect", mock.Anything, "w-1").Return(nil)

	assert.NoError(t, warmup.NewConnector(svc).Disconnect(context.Background(), "w-1"))
}

func TestUpdateSettings_RejectsEmptyPatch(t *testing.T) {
	svc := new(test.MockWarmupService)
	_, err := warmup.NewConnector(svc).UpdateSettings(context.Background(), "w-1", model.WarmupSettingsPatch{})
	assert.True(t, exception.HasKind(err, exception.KindValidation))
}
