package postgres

import (
	"go.uber.org/fx"

	"github.com/tigerroll/provisioner/pkg/provision/adapter/database"
)

// Module registers the provider under the db_providers group.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewProvider,
			fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
		),
	),
)
