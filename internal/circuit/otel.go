package circuit

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/circuitd/circuitd/internal/circuit"

// instruments holds the OpenTelemetry instruments for breaker activity.
type instruments struct {
	executions  metric.Int64Counter
	rejections  metric.Int64Counter
	transitions metric.Int64Counter
}

func newInstruments() (*instruments, error) {
	meter := otel.Meter(meterName)

	executions, err := meter.Int64Counter(
		"circuit.executions",
		metric.WithDescription("Protected calls executed through the breaker"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	rejections, err := meter.Int64Counter(
		"circuit.rejections",
		metric.WithDescription("Calls rejected because the circuit was open"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"circuit.transitions",
		metric.WithDescription("Circuit state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &instruments{
		executions:  executions,
		rejections:  rejections,
		transitions: transitions,
	}, nil
}

func (i *instruments) recordExecution(ctx context.Context, name string, failed bool) {
	if i == nil {
		return
	}
	i.executions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("circuit.name", name),
		attribute.Bool("error", failed),
	))
}

func (i *instruments) recordRejection(ctx context.Context, name string) {
	if i == nil {
		return
	}
	i.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("circuit.name", name),
	))
}

func (i *instruments) recordTransition(ctx context.Context, name string, tr *transition) {
	if i == nil || tr == nil {
		return
	}
	i.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("circuit.name", name),
		attribute.String("circuit.from", string(tr.from)),
		attribute.String("circuit.to", string(tr.to)),
	))
}
