package logger

import "go.uber.org/fx"

// Module is an Fx module that routes container events through the provisioner logger.
var Module = fx.Options(
	fx.WithLogger(NewFxLoggerAdapter),
)
