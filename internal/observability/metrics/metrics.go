// Package metrics exposes the application-level OTLP instruments.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	tenantsProvisioned  metric.Int64Counter
	planChanges         metric.Int64Counter
	refunds             metric.Int64Counter
	downgradesScheduled metric.Int64Counter
	downgradesApplied   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "tenantcore"
	}
	meter := provider.Meter(name)

	tenantsProvisioned, err := meter.Int64Counter("tenantcore_tenants_provisioned_total")
	if err != nil {
		return nil, err
	}
	planChanges, err := meter.Int64Counter("tenantcore_plan_changes_total")
	if err != nil {
		return nil, err
	}
	refunds, err := meter.Int64Counter("tenantcore_refunds_total")
	if err != nil {
		return nil, err
	}
	downgradesScheduled, err := meter.Int64Counter("tenantcore_downgrades_scheduled_total")
	if err != nil {
		return nil, err
	}
	downgradesApplied, err := meter.Int64Counter("tenantcore_downgrades_applied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		tenantsProvisioned:  tenantsProvisioned,
		planChanges:         planChanges,
		refunds:             refunds,
		downgradesScheduled: downgradesScheduled,
		downgradesApplied:   downgradesApplied,
	}, nil
}

// NewNop builds instruments backed by the noop provider, used in tests.
func NewNop() *Metrics {
	m, _ := New(Config{ServiceName: "tenantcore"}, noop.NewMeterProvider())
	return m
}

// RecordProvisioned increments provisioned tenant counts.
func (m *Metrics) RecordProvisioned(ctx context.Context, degraded bool) {
	if m == nil {
		return
	}
	m.tenantsProvisioned.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("degraded", degraded),
	))
}

// RecordPlanChange increments plan change counts per outcome.
func (m *Metrics) RecordPlanChange(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.planChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordRefund increments refund counts.
func (m *Metrics) RecordRefund(ctx context.Context, partial bool) {
	if m == nil {
		return
	}
	m.refunds.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("partial", partial),
	))
}

// RecordDowngradeScheduled increments scheduled downgrade counts.
func (m *Metrics) RecordDowngradeScheduled(ctx context.Context) {
	if m == nil {
		return
	}
	m.downgradesScheduled.Add(ctx, 1)
}

// RecordDowngradeApplied increments applied downgrade counts.
func (m *Metrics) RecordDowngradeApplied(ctx context.Context) {
	if m == nil {
		return
	}
	m.downgradesApplied.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
