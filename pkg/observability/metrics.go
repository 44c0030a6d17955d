package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCommandsTotal   = "atomtable.commands.total"
	metricCommandDuration = "atomtable.command.duration.seconds"
	metricErrorsTotal     = "atomtable.errors.total"
	metricInternedTotal   = "atomtable.interned.total"

	attrCommand = "command"
	attrStatus  = "status"

	// StatusOK marks a command that returned nil.
	StatusOK = "ok"
	// StatusError marks a command that returned an error.
	StatusError = "error"
)

// durationBucketBoundaries covers 1ms to 120s: one-shot interning of a few
// files up to long multi-worker bench runs.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120}

// CommandMetrics holds the OTel instruments for command rate, errors,
// duration and interned string volume.
type CommandMetrics struct {
	commandsTotal   metric.Int64Counter
	commandDuration metric.Float64Histogram
	errorsTotal     metric.Int64Counter
	internedTotal   metric.Int64Counter
}

// NewCommandMetrics creates command instruments from the given meter.
func NewCommandMetrics(mt metric.Meter) (*CommandMetrics, error) {
	total, err := mt.Int64Counter(metricCommandsTotal,
		metric.WithDescription("Total number of commands run"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCommandsTotal, err)
	}

	duration, err := mt.Float64Histogram(metricCommandDuration,
		metric.WithDescription("Command duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCommandDuration, err)
	}

	errTotal, err := mt.Int64Counter(metricErrorsTotal,
		metric.WithDescription("Total number of failed commands"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricErrorsTotal, err)
	}

	interned, err := mt.Int64Counter(metricInternedTotal,
		metric.WithDescription("Strings passed through Intern"),
		metric.WithUnit("{string}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricInternedTotal, err)
	}

	return &CommandMetrics{
		commandsTotal:   total,
		commandDuration: duration,
		errorsTotal:     errTotal,
		internedTotal:   interned,
	}, nil
}

// RecordCommand records a finished command with its status and duration.
func (cm *CommandMetrics) RecordCommand(ctx context.Context, command, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrCommand, command),
		attribute.String(attrStatus, status),
	)

	cm.commandsTotal.Add(ctx, 1, attrs)
	cm.commandDuration.Record(ctx, duration.Seconds(), attrs)

	if status == StatusError {
		cm.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrCommand, command),
		))
	}
}

// RecordInterned adds n to the interned string counter for command.
func (cm *CommandMetrics) RecordInterned(ctx context.Context, command string, n int) {
	cm.internedTotal.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String(attrCommand, command),
	))
}
