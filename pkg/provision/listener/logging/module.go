package logging

import (
	"go.uber.org/fx"
)

// Module contributes the logging listeners to the executor's listener groups.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewLoggingBatchListener, fx.ResultTags(`group:"batchListeners"`))),
	fx.Provide(fx.Annotate(NewLoggingItemListener, fx.ResultTags(`group:"itemListeners"`))),
)
