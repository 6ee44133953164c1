package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/provisioner/pkg/provision/adapter/database"
)

// Module provides the connection resolver. Concrete dialect providers live in the
// sqlite, postgres and mysql subpackages and register under the db_providers group.
var Module = fx.Options(
	fx.Provide(NewGormDBConnectionResolver),
	fx.Provide(func(r *GormDBConnectionResolver) database.DBConnectionResolver { return r }),
	fx.Invoke(func(lc fx.Lifecycle, r *GormDBConnectionResolver) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return r.CloseAll()
			},
		})
	}),
)
