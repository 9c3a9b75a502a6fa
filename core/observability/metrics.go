package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type metrics struct {
	queryExecutionsTotal metric.Int64Counter
	queryDuration        metric.Float64Histogram
	queryRows            metric.Int64Counter
	acquireTotal         metric.Int64Counter
	acquireDuration      metric.Float64Histogram
}

var (
	metricsOnce sync.Once
	m           metrics
)

func buildMeterProvider(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	if !cfg.Enabled || !cfg.MetricsEnabled {
		return sdkmetric.NewMeterProvider(), nil
	}

	exporter, err := otlpmetricgrpc.New(
		ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter),
		),
	), nil
}

func initInstruments() {
	metricsOnce.Do(func() {
		meter := otel.Meter("yetii/dispatcher")
		m.queryExecutionsTotal, _ = meter.Int64Counter("yetii.query.executions_total")
		m.queryDuration, _ = meter.Float64Histogram("yetii.query.execution_duration_ms")
		m.queryRows, _ = meter.Int64Counter("yetii.query.rows_total")
		m.acquireTotal, _ = meter.Int64Counter("yetii.connection.acquisitions_total")
		m.acquireDuration, _ = meter.Float64Histogram("yetii.connection.acquire_duration_ms")
	})
}

// RecordQueryExecution counts one attempted query.
func RecordQueryExecution(ctx context.Context, queryName, connectionID, status string, rows int64, durationMS float64) {
	initInstruments()
	attrs := metric.WithAttributes(
		attribute.String(AttrQueryName, queryName),
		attribute.String(AttrConnectionID, connectionID),
		attribute.String(AttrStatus, status),
	)
	m.queryExecutionsTotal.Add(ctx, 1, attrs)
	m.queryDuration.Record(ctx, durationMS, attrs)
	if rows > 0 {
		m.queryRows.Add(ctx, rows, attrs)
	}
}

// RecordConnectionAcquire counts one pool acquisition, including the connect it
// may have triggered.
func RecordConnectionAcquire(ctx context.Context, connectionID, backendKind string, success bool, durationMS float64) {
	initInstruments()
	attrs := metric.WithAttributes(
		attribute.String(AttrConnectionID, connectionID),
		attribute.String(AttrBackendKind, backendKind),
		attribute.Bool("success", success),
	)
	m.acquireTotal.Add(ctx, 1, attrs)
	m.acquireDuration.Record(ctx, durationMS, attrs)
}
