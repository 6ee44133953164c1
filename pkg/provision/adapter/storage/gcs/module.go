package gcs

import (
	"go.uber.org/fx"
)

// Module is the Fx module for the GCS storage adapter.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewGCSProvider,
		fx.ResultTags(`group:"storage_providers"`),
	)),
)
