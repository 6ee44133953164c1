package usecase

import (
	"go.uber.org/fx"
)

// Module is the Fx module for the ProvisioningService.
var Module = fx.Options(
	fx.Provide(NewDefaultProvisioningService),
	// Expose the concrete service through its interface.
	fx.Provide(func(s *DefaultProvisioningService) ProvisioningService { return s }),
)
