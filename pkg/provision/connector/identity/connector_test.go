package identity_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/provisioner/pkg/provision/connector/identity"
	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
	"github.com/tigerroll/provisioner/pkg/provision/test"
)

func spec() model.AccountSpec {
	return model.AccountSpec{AccountID: "acc-1", Domain: "Example.com", LocalPart: "Jane.Doe", FirstName: "Jane", LastName: "Doe"}
}

func TestCreateAccount_GeneratesPasswordWhenMissing(t *testing.T) {
	provider := new(test.MockIdentityProvider)
	provider.On("CreateAccount", mock.Anything, mock.MatchedBy(func(req port.CreateAccountRequest) bool {
		return req.Domain == "example.com" && req.LocalPart == "jane.doe" && identity.ValidatePassword(req.Password) == nil
	})).Return(&port.IdentityUser{ExternalID: "g-1", Email: "jane.doe@example.com"}, nil)

	res, err := identity.NewConnector(provider).CreateAccount(context.Background(), spec(), "")

	require.NoError(t, err)
	assert.Equal(t, "g-1", res.ExternalID)
	assert.True(t, res.Generated)
	assert.Len(t, res.Password, 16)
	provider.AssertExpectations(t)
}

func TestCreateAccount_WeakPasswordIsRejectedBeforeProviderCall(t *testing.T) {
	provider := new(test.MockIdentityProvider)

	_, err := identity.NewConnector(provider).CreateAccount(context.Background(), spec(), "short")

	assert.True(t, exception.HasKind(err, exception.KindInvalidCredentials))
	provider.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
}

func TestCreateAccount_InvalidDomainIsValidationError(t *testing.T) {
	provider := new(test.MockIdentityProvider)
	s := spec()
	s.Domain = "localhost"

	_, err := identity.NewConnector(provider).CreateAccount(context.Background(), s, "")

	assert.True(t, exception.HasKind(err, exception.KindValidation))
	provider.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
}

func TestCreateAccount_ProviderErrorIsReturnedRaw(t *testing.T) {
	provider := new(test.MockIdentityProvider)
	raw := errors.New("Entity already exists.")
	provider.On("CreateAccount", mock.Anything, mock.Anything).Return(nil, raw)

	_, err := identity.NewConnector(provider).CreateAccount(context.Background(), spec(), "Str0ng!Password")

	assert.Same(t, raw, err)
	assert.Equal(t, exception.KindUserAlreadyExists, exception.Classify(err).Kind)
}

func TestValidateDomain(t *testing.T) {
	valid := []string{"example.com", "mail.example.co.uk", "a-b.io", "example.com."}
	invalid := []string{"", "example", "-bad.com", "bad-.com", "under_score.com", "a..b.com", strings.Repeat("a", 64) + ".com", strings.Repeat("abcdefghi.", 26) + "com"}
	for _, d := range valid {
		assert.NoError(t, identity.ValidateDomain(d), d)
	}
	for _, d := range invalid {
		assert.True(t, exception.HasKind(identity.ValidateDomain(d), exception.KindValidation), d)
	}
}

func TestValidateLocalPart(t *testing.T) {
	valid := []string{"jane", "jane.doe", "j_d-1", strings.Repeat("a", 64)}
	invalid := []string{"", ".jane", "jane.", "ja..ne", "ja ne", "jane+tag", strings.Repeat("a", 65)}
	for _, lp := range valid {
		assert.NoError(t, identity.ValidateLocalPart(lp), lp)
	}
	for _, lp := range invalid {
		assert.Error(t, identity.ValidateLocalPart(lp), lp)
	}
}

func TestGeneratePassword_SatisfiesPolicy(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		p, err := identity.GeneratePassword()
		require.NoError(t, err)
		assert.NoError(t, identity.ValidatePassword(p))
		seen[p] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, identity.ValidatePassword("Str0ng!Password"))
	assert.Error(t, identity.ValidatePassword("alllowercase1!"))
	assert.Error(t, identity.ValidatePassword("NoDigitsHere!!"))
	assert.Error(t, identity.ValidatePassword("NoSymbols1234"))
}
