package identity

import "go.uber.org/fx"

// Module provides the identity Connector.
var Module = fx.Options(
	fx.Provide(NewConnector),
)
