package storage

import (
	"context"

	"go.uber.org/fx"
)

// Module provides the StorageConnectionResolver. Provider modules (local, gcs)
// contribute to the storage_providers group.
var Module = fx.Options(
	fx.Provide(NewConnectionResolver),
	fx.Provide(func(r *ConnectionResolver) StorageConnectionResolver { return r }),
	fx.Invoke(func(lc fx.Lifecycle, r *ConnectionResolver) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				r.CloseAll()
				return nil
			},
		})
	}),
)
