// Package identity creates mailbox accounts in the identity provider.
// Input is validated before any network call; provider errors are returned raw
// so the retry orchestrator can classify them.
package identity

import (
	"context"
	"strings"

	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

const moduleName = "identity_connector"

// AccountResult is the outcome of a successful CreateAccount.
type AccountResult struct {
	ExternalID string
	Email      string
	// Password is the plaintext password the account was created with.
	Password string
	// Generated reports whether Password was generated rather than supplied.
	Generated bool
}

// Connector wraps a port.IdentityProvider with validation and password handling.
type Connector struct {
	provider port.IdentityProvider
}

// NewConnector creates a Connector.
func NewConnector(provider port.IdentityProvider) *Connector {
	return &Connector{provider: provider}
}

// CreateAccount validates spec and creates the account. password is the plaintext
// supplied by the caller; when empty a policy-compliant password is generated.
func (c *Connector) CreateAccount(ctx context.Context, spec model.AccountSpec, password string) (*AccountResult, error) {
	if err := ValidateDomain(spec.Domain); err != nil {
		return nil, err
	}
	if err := ValidateLocalPart(spec.LocalPart); err != nil {
		return nil, err
	}

	generated := false
	if password == "" {
		p, err := GeneratePassword()
		if err != nil {
			return nil, err
		}
		password = p
		generated = true
	} else if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	req := port.CreateAccountRequest{
		Domain:      strings.ToLower(spec.Domain),
		LocalPart:   strings.ToLower(spec.LocalPart),
		FirstName:   spec.FirstName,
		LastName:    spec.LastName,
		Password:    password,
		OrgUnitPath: spec.OrgUnitPath,
	}
	user, err := c.provider.CreateAccount(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Debugf("Identity account created: %s (external id %s)", user.Email, user.ExternalID)

	return &AccountResult{
		ExternalID: user.ExternalID,
		Email:      user.Email,
		Password:   password,
		Generated:  generated,
	}, nil
}

// DeleteAccount removes the account from the identity provider.
func (c *Connector) DeleteAccount(ctx context.Context, email string) error {
	return c.provider.DeleteAccount(ctx, email)
}

// GetAccountStatus reads the provider-side state of the account.
func (c *Connector) GetAccountStatus(ctx context.Context, email string) (*port.IdentityAccountStatus, error) {
	return c.provider.GetAccountStatus(ctx, email)
}
