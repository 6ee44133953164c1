package handler

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
)

// Module provides both item handlers, concretely and in the "itemHandlers" group.
var Module = fx.Options(
	fx.Provide(NewAccountHandler, NewWarmupHandler),
	fx.Provide(
		fx.Annotate(func(h *AccountHandler) port.ItemHandler { return h }, fx.ResultTags(`group:"itemHandlers"`)),
		fx.Annotate(func(h *WarmupHandler) port.ItemHandler { return h }, fx.ResultTags(`group:"itemHandlers"`)),
	),
)
