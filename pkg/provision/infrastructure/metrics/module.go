package metrics

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/provisioner/pkg/provision/core/config"
	metrics "github.com/tigerroll/provisioner/pkg/provision/core/metrics"
	logger "github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// DecorateParams defines the dependencies of the recorder and tracer decorators.
type DecorateParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Cfg        *config.Config
	Prometheus *PrometheusRecorder
	Telemetry  *Telemetry
}

// DecorateMetricRecorder replaces the no-op recorder with the enabled backends.
// Prometheus is used when metrics are enabled, OTLP when tracing exports metrics;
// with both, calls fan out to each. An async_buffer_size above 0 wraps the result
// in an AsyncMetricRecorder that is drained on stop.
func DecorateMetricRecorder(base metrics.MetricRecorder, p DecorateParams) (metrics.MetricRecorder, error) {
	var recorders []metrics.MetricRecorder
	if p.Cfg.Provisioner.Metrics.Enabled {
		recorders = append(recorders, p.Prometheus)
	}
	if p.Telemetry.MeterProvider != nil {
		otelRecorder, err := NewOTelMetricRecorder(p.Telemetry.MeterProvider)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, otelRecorder)
	}

	var recorder metrics.MetricRecorder
	switch len(recorders) {
	case 0:
		return base, nil
	case 1:
		recorder = recorders[0]
	default:
		recorder = NewCompositeRecorder(recorders...)
	}

	if size := p.Cfg.Provisioner.Metrics.AsyncBufferSize; size > 0 {
		async := NewAsyncMetricRecorder(size, recorder)
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				async.Close()
				return nil
			},
		})
		logger.Debugf("MetricRecorder decorated with asynchronous wrapper.")
		recorder = async
	}
	return recorder, nil
}

// DecorateTracer replaces the no-op tracer when OpenTelemetry export is enabled.
func DecorateTracer(base metrics.Tracer, p DecorateParams) metrics.Tracer {
	if p.Telemetry.TracerProvider == nil {
		return base
	}
	return NewOpenTelemetryTracer(p.Telemetry.TracerProvider)
}

// RegisterServer starts the /metrics endpoint when metrics are enabled.
func RegisterServer(lc fx.Lifecycle, cfg *config.Config, prom *PrometheusRecorder) {
	mc := cfg.Provisioner.Metrics
	if !mc.Enabled || mc.ListenAddress == "" {
		return
	}
	srv := NewServer(mc.ListenAddress, prom.GetRegistry())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return srv.Start()
		},
		OnStop: srv.Stop,
	})
}

// Module replaces the no-op recorder and tracer from core/metrics with
// Prometheus and OpenTelemetry backends according to configuration.
var Module = fx.Options(
	fx.Provide(NewPrometheusRecorder),
	fx.Provide(NewTelemetryFromConfig),
	fx.Decorate(DecorateMetricRecorder),
	fx.Decorate(DecorateTracer),
	fx.Invoke(RegisterServer),
)
