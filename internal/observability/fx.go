package observability

import (
	"github.com/smallbiznis/tenantcore/internal/config"
	"github.com/smallbiznis/tenantcore/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
	),
)

func provideMetricsConfig(cfg config.Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.Metrics.Enabled,
		ExporterEndpoint: cfg.Metrics.Endpoint,
		ExporterProtocol: cfg.Metrics.Exporter,
		ServiceName:      cfg.AppName,
	}
}
