package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/atomtable/pkg/atom"
)

// tableTracer reports atom.Table spans to an OpenTelemetry tracer.
type tableTracer struct {
	tracer trace.Tracer
}

// NewTableTracer adapts tracer to the atom.Tracer hook. Table spans have no
// parent context, so each one starts a new root span.
func NewTableTracer(tracer trace.Tracer) atom.Tracer {
	return tableTracer{tracer: tracer}
}

// StartSpan implements atom.Tracer.
func (t tableTracer) StartSpan(name string) func() {
	_, span := t.tracer.Start(context.Background(), name)

	return func() { span.End() }
}

// filteringTracerProvider drops hot-path spans to keep trace volume
// proportional to structural work rather than to the number of strings.
type filteringTracerProvider struct {
	embedded.TracerProvider

	delegate trace.TracerProvider
	noop     trace.TracerProvider
	suppress map[string]bool
}

// NewFilteringTracerProvider wraps delegate so that per-insert table spans
// become no-op spans while batch, clear and clone spans are kept.
func NewFilteringTracerProvider(delegate trace.TracerProvider) trace.TracerProvider {
	return &filteringTracerProvider{
		delegate: delegate,
		noop:     nooptrace.NewTracerProvider(),
		suppress: map[string]bool{
			atom.SpanInternCold: true,
		},
	}
}

// Tracer returns a tracer that suppresses hot-path span names.
func (f *filteringTracerProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return &filteringTracer{
		delegate: f.delegate.Tracer(name, opts...),
		noop:     f.noop.Tracer(name, opts...),
		suppress: f.suppress,
	}
}

type filteringTracer struct {
	embedded.Tracer

	delegate trace.Tracer
	noop     trace.Tracer
	suppress map[string]bool
}

// Start creates a span, returning a noop span for suppressed names.
func (f *filteringTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if f.suppress[name] {
		return f.noop.Start(ctx, name, opts...)
	}

	return f.delegate.Start(ctx, name, opts...)
}
