package executor

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	config "github.com/tigerroll/provisioner/pkg/provision/core/config"
	repository "github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
	metrics "github.com/tigerroll/provisioner/pkg/provision/core/metrics"
)

// ExecutorParams defines the dependencies for NewExecutorFromParams.
type ExecutorParams struct {
	fx.In
	Repo           repository.BatchRepository
	BatchConfig    *config.BatchConfig
	Recorder       metrics.MetricRecorder
	Tracer         metrics.Tracer
	Handlers       []port.ItemHandler   `group:"itemHandlers"`
	BatchListeners []port.BatchListener `group:"batchListeners"`
	ItemListeners  []port.ItemListener  `group:"itemListeners"`
}

// NewExecutorFromParams builds the Executor and registers every listener in the container.
func NewExecutorFromParams(p ExecutorParams) *Executor {
	e := NewExecutor(p.Repo, p.BatchConfig, p.Handlers, p.Recorder, p.Tracer)
	for _, l := range p.BatchListeners {
		if l != nil {
			e.AddBatchListener(l)
		}
	}
	for _, l := range p.ItemListeners {
		if l != nil {
			e.AddItemListener(l)
		}
	}
	return e
}

// Module provides the Executor.
var Module = fx.Options(
	fx.Provide(NewExecutorFromParams),
)
