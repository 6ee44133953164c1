package rest

import "go.uber.org/fx"

// Module provides the REST port.WarmupService.
var Module = fx.Options(
	fx.Provide(NewClientFromConfig),
)
