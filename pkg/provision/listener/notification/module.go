package notification

import (
	"go.uber.org/fx"
)

// Module provides notification-related components.
var Module = fx.Options(
	// 1. Provides a concrete implementation of ports.Notifier.
	fx.Provide(NewLoggingNotifier),

	// 2. Contributes the listener to the executor's batch listener group.
	fx.Provide(fx.Annotate(NewNotificationListener, fx.ResultTags(`group:"batchListeners"`))),
)
