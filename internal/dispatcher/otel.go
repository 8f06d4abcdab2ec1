package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/placefinder/internal/dispatcher"

// instruments are the OTel metrics for dispatched commands.
type instruments struct {
	commands metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments(d *Dispatcher) (*instruments, error) {
	m := otel.Meter(instrumentationName)

	commands, err := m.Int64Counter("placefinder.commands",
		metric.WithDescription("Commands by name and outcome"))
	if err != nil {
		return nil, fmt.Errorf("creating command counter: %w", err)
	}
	duration, err := m.Float64Histogram("placefinder.command.duration",
		metric.WithDescription("Time spent in command handlers"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	depth, err := m.Int64ObservableGauge("placefinder.command.queue",
		metric.WithDescription("Commands waiting for a buffered worker"))
	if err != nil {
		return nil, fmt.Errorf("creating queue gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		for cmd, r := range d.routes {
			if r.queue != nil {
				o.ObserveInt64(depth, int64(len(r.queue)), metric.WithAttributes(attribute.String("command", cmd)))
			}
		}
		return nil
	}, depth)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	return &instruments{commands: commands, duration: duration}, nil
}

func (i *instruments) record(o Outcome) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("command", o.Command),
		attribute.String("outcome", o.Status()),
	)
	i.commands.Add(ctx, 1, attrs)
	if !o.Queued && o.Status() != "dropped" {
		i.duration.Record(ctx, float64(o.Duration.Microseconds())/1000, attrs)
	}
}
