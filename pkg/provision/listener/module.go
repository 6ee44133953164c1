package listener

import (
	"github.com/tigerroll/provisioner/pkg/provision/listener/logging"
	"github.com/tigerroll/provisioner/pkg/provision/listener/notification"

	"go.uber.org/fx"
)

// Module aggregates all listener modules of the provisioning engine.
var Module = fx.Options(
	logging.Module,
	notification.Module,
)
