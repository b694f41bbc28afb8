package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	sessionCounter  otelmetric.Int64Counter
	sessionDuration otelmetric.Float64Histogram
	toolCounter     otelmetric.Int64Counter
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	sessionCounter, _ := meter.Int64Counter(
		"sessions.completed",
		otelmetric.WithDescription("Number of realtime sessions completed"),
	)

	sessionDuration, _ := meter.Float64Histogram(
		"sessions.duration",
		otelmetric.WithDescription("Realtime session duration"),
		otelmetric.WithUnit("ms"),
	)

	toolCounter, _ := meter.Int64Counter(
		"tools.invoked",
		otelmetric.WithDescription("Number of tool invocations"),
	)

	return &Observability{
		meterProvider:   provider,
		meter:           meter,
		sessionCounter:  sessionCounter,
		sessionDuration: sessionDuration,
		toolCounter:     toolCounter,
	}
}

func (o *Observability) RecordSessionCompleted(ctx context.Context, outcome string, duration time.Duration) {
	if o.sessionCounter != nil {
		o.sessionCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
	if o.sessionDuration != nil {
		o.sessionDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
}

func (o *Observability) RecordToolInvocation(ctx context.Context, tool, status string) {
	if o.toolCounter != nil {
		o.toolCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
