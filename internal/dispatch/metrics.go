package dispatch

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics provides OpenTelemetry metrics for the dispatch engine.
type Metrics struct {
	dispatches      metric.Int64Counter
	secondaryFaults metric.Int64Counter
}

// NewMetrics registers the dispatch instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	dispatches, err := meter.Int64Counter(
		"dispatch_faults_total",
		metric.WithDescription("Total number of faults dispatched, by kind and outcome"),
	)
	if err != nil {
		return nil, err
	}

	secondaryFaults, err := meter.Int64Counter(
		"dispatch_secondary_faults_total",
		metric.WithDescription("Total number of contained secondary faults, by handler"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		dispatches:      dispatches,
		secondaryFaults: secondaryFaults,
	}, nil
}

// RecordDispatch records one dispatched fault. Outcome is "handler",
// "default" or "contained".
func (m *Metrics) RecordDispatch(ctx context.Context, kind, outcome string) {
	m.dispatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
		))
}

// RecordSecondaryFault records a contained secondary fault.
func (m *Metrics) RecordSecondaryFault(ctx context.Context, handler string) {
	m.secondaryFaults.Add(ctx, 1,
		metric.WithAttributes(attribute.String("handler", handler)))
}
