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
	"go.opentelemetry.io/otel/trace"
)

// Observability owns the OpenTelemetry meter provider backed by the
// Prometheus exporter, plus the tracer used for workflow/stage spans.
type Observability struct {
	meterProvider    *metric.MeterProvider
	meter            otelmetric.Meter
	tracer           trace.Tracer
	workflowCounter  otelmetric.Int64Counter
	workflowDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{tracer: otel.Tracer(serviceName)}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	workflowCounter, _ := meter.Int64Counter(
		"workflows.processed",
		otelmetric.WithDescription("Number of loan workflows processed"),
	)

	workflowDuration, _ := meter.Float64Histogram(
		"workflows.duration",
		otelmetric.WithDescription("Loan workflow processing duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:    provider,
		meter:            meter,
		tracer:           otel.Tracer(serviceName),
		workflowCounter:  workflowCounter,
		workflowDuration: workflowDuration,
	}
}

// Tracer returns the tracer for workflow/stage spans.
func (o *Observability) Tracer() trace.Tracer {
	if o.tracer == nil {
		o.tracer = otel.Tracer("loanflow")
	}
	return o.tracer
}

func (o *Observability) RecordWorkflowProcessed(ctx context.Context, outcome string) {
	if o.workflowCounter != nil {
		o.workflowCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
}

func (o *Observability) RecordWorkflowDuration(ctx context.Context, duration time.Duration, outcome string) {
	if o.workflowDuration != nil {
		o.workflowDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("outcome", outcome),
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
