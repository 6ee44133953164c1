package google

import (
	"context"
	"strings"

	"go.uber.org/fx"

	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	config "github.com/tigerroll/provisioner/pkg/provision/core/config"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// unconfiguredProvider fails every call. It stands in when identity.provider is "none"
// so commands that never reach the identity provider still start.
type unconfiguredProvider struct{}

func (unconfiguredProvider) err() error {
	return exception.NewBatchError("identity", exception.KindConfiguration, "no identity provider is configured", nil)
}

func (p unconfiguredProvider) CreateAccount(context.Context, port.CreateAccountRequest) (*port.IdentityUser, error) {
	return nil, p.err()
}

func (p unconfiguredProvider) DeleteAccount(context.Context, string) error {
	return p.err()
}

func (p unconfiguredProvider) GetAccountStatus(context.Context, string) (*port.IdentityAccountStatus, error) {
	return nil, p.err()
}

// NewIdentityProvider selects the identity provider from identity.provider.
func NewIdentityProvider(cfg *config.Config) (port.IdentityProvider, error) {
	idCfg := cfg.Provisioner.Identity
	switch strings.ToLower(idCfg.Provider) {
	case "google":
		if idCfg.Google.CredentialsFile == "" {
			logger.Warnf("identity.google.credentials_file is empty; identity calls will fail.")
			return unconfiguredProvider{}, nil
		}
		return NewDirectoryClient(context.Background(), idCfg.Google)
	case "", "none":
		return unconfiguredProvider{}, nil
	default:
		return nil, exception.NewBatchErrorf("identity", exception.KindConfiguration, "unknown identity provider %q", idCfg.Provider)
	}
}

// Module provides the port.IdentityProvider.
var Module = fx.Options(
	fx.Provide(NewIdentityProvider),
)
