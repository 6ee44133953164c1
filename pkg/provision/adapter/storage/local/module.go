// Package local provides the Fx module for the local storage adapter.
package local

import (
	"go.uber.org/fx"
)

// Module is the Fx module for the Local storage adapter.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewLocalProvider,
		fx.ResultTags(`group:"storage_providers"`),
	)),
)
