package inmemory

import (
	"go.uber.org/fx"

	repository "github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
)

// Module is an Fx module that provides the in-memory store behind every repository interface.
var Module = fx.Options(
	fx.Provide(
		NewRepository,
		func(r *Repository) repository.BatchRepository { return r },
		func(r *Repository) repository.MappingRepository { return r.Mappings() },
		func(r *Repository) repository.MailboxRepository { return r.Mailboxes() },
	),
)
