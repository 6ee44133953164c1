package warmup

import "go.uber.org/fx"

// Module provides the warmup Connector.
var Module = fx.Options(
	fx.Provide(NewConnector),
)
