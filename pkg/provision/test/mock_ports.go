package test

import (
	"context"
	"errors"
	"strings"

	"github.com/stretchr/testify/mock"

	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
)

// MockIdentityProvider is a mock implementation of the port.IdentityProvider interface.
type MockIdentityProvider struct {
	mock.Mock
}

// CreateAccount mocks the CreateAccount method of port.IdentityProvider.
func (m *MockIdentityProvider) CreateAccount(ctx context.Context, req port.CreateAccountRequest) (*port.IdentityUser, error) {
	args := m.Called(ctx, req)
	user, _ := args.Get(0).(*port.IdentityUser)
	return user, args.Error(1)
}

// DeleteAccount mocks the DeleteAccount method of port.IdentityProvider.
func (m *MockIdentityProvider) DeleteAccount(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// GetAccountStatus mocks the GetAccountStatus method of port.IdentityProvider.
func (m *MockIdentityProvider) GetAccountStatus(ctx context.Context, email string) (*port.IdentityAccountStatus, error) {
	args := m.Called(ctx, email)
	status, _ := args.Get(0).(*port.IdentityAccountStatus)
	return status, args.Error(1)
}

var _ port.IdentityProvider = (*MockIdentityProvider)(nil)

// MockWarmupService is a mock implementation of the port.WarmupService interface.
type MockWarmupService struct {
	mock.Mock
}

// Connect mocks the Connect method of port.WarmupService.
func (m *MockWarmupService) Connect(ctx context.Context, mailbox port.WarmupMailbox) (*port.WarmupRegistration, error) {
	args := m.Called(ctx, mailbox)
	reg, _ := args.Get(0).(*port.WarmupRegistration)
	return reg, args.Error(1)
}

// UpdateSettings mocks the UpdateSettings method of port.WarmupService.
func (m *MockWarmupService) UpdateSettings(ctx context.Context, externalID string, patch model.WarmupSettingsPatch) (*model.WarmupSettings, error) {
	args := m.Called(ctx, externalID, patch)
	s, _ := args.Get(0).(*model.WarmupSettings)
	return s, args.Error(1)
}

// Disconnect mocks the Disconnect method of port.WarmupService.
func (m *MockWarmupService) Disconnect(ctx context.Context, externalID string) error {
	args := m.Called(ctx, externalID)
	return args.Error(0)
}

// ListCampaigns mocks the ListCampaigns method of port.WarmupService.
func (m *MockWarmupService) ListCampaigns(ctx context.Context) ([]port.WarmupCampaign, error) {
	args := m.Called(ctx)
	campaigns, _ := args.Get(0).([]port.WarmupCampaign)
	return campaigns, args.Error(1)
}

// AddToCampaign mocks the AddToCampaign method of port.WarmupService.
func (m *MockWarmupService) AddToCampaign(ctx context.Context, campaignID, externalID string) error {
	args := m.Called(ctx, campaignID, externalID)
	return args.Error(0)
}

// RemoveFromCampaign mocks the RemoveFromCampaign method of port.WarmupService.
func (m *MockWarmupService) RemoveFromCampaign(ctx context.Context, campaignID, externalID string) error {
	args := m.Called(ctx, campaignID, externalID)
	return args.Error(0)
}

var _ port.WarmupService = (*MockWarmupService)(nil)

// sealedPrefix marks tokens produced by PlainCipher.
const sealedPrefix = "sealed:"

// PlainCipher is a reversible port.SecretCipher for tests. Tokens are "sealed:" + plaintext.
type PlainCipher struct{}

// Encrypt returns the plaintext with a marker prefix.
func (PlainCipher) Encrypt(plaintext string) (string, error) {
	return sealedPrefix + plaintext, nil
}

// Decrypt strips the marker prefix and rejects tokens that lack it.
func (PlainCipher) Decrypt(token string) (string, error) {
	if !strings.HasPrefix(token, sealedPrefix) {
		return "", errors.New("token was not sealed by PlainCipher")
	}
	return strings.TrimPrefix(token, sealedPrefix), nil
}

var _ port.SecretCipher = PlainCipher{}
