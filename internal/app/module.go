// Package app assembles the checkout service from its adapters with fx.
package app

import (
	"log/slog"

	"github.com/DanielPopoola/ficmart-checkout/internal/config"
	"github.com/DanielPopoola/ficmart-checkout/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
)

// Module wires the whole service. opts are appended last so tests can
// fx.Replace any provided value.
func Module(opts ...fx.Option) fx.Option {
	modules := []fx.Option{
		fx.Provide(
			config.LoadConfig,
			newLogger,
			newMetrics,
		),
		StorageModule,
		GatewayModule,
		ServiceModule,
		HTTPModule,
		WorkerModule,
	}
	modules = append(modules, opts...)
	return fx.Options(modules...)
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)
	return logger
}

func newMetrics(cfg *config.Config) *metrics.Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewRecorder(registry, cfg.Metrics.Namespace)
}
