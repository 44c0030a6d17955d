package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const (
	tracerName = "atomtable"
	meterName  = "atomtable"

	// attrAppMode is the resource attribute carrying the launch mode.
	attrAppMode = "app.mode"

	// envTracesSampler is the standard OTel env var for selecting a sampler.
	envTracesSampler = "OTEL_TRACES_SAMPLER"

	// envTracesSamplerArg is the standard OTel env var for sampler arguments.
	envTracesSamplerArg = "OTEL_TRACES_SAMPLER_ARG"
)

// Sampler names accepted in OTEL_TRACES_SAMPLER.
const (
	// samplerAlwaysOn selects the always-on sampler.
	samplerAlwaysOn = "always_on"

	// samplerAlwaysOff selects the always-off sampler.
	samplerAlwaysOff = "always_off"

	// samplerTraceIDRatio selects the trace-ID ratio sampler.
	samplerTraceIDRatio = "traceidratio"

	// samplerParentBasedAlwaysOn selects parent-based always-on sampling.
	samplerParentBasedAlwaysOn = "parentbased_always_on"

	// samplerParentBasedAlwaysOff selects parent-based always-off sampling.
	samplerParentBasedAlwaysOff = "parentbased_always_off"

	// samplerParentBasedTraceIDRatio selects parent-based trace-ID ratio sampling.
	samplerParentBasedTraceIDRatio = "parentbased_traceidratio"
)

// Providers holds the initialized observability providers.
type Providers struct {
	// Tracer is the named tracer for creating spans.
	Tracer trace.Tracer

	// Meter is the named meter for creating instruments.
	Meter metric.Meter

	// Logger is the context-aware structured logger.
	Logger *slog.Logger

	// Tables reports the gauges of every tracked atom table through Meter.
	Tables *TableRegistry

	// Shutdown flushes pending telemetry, including a final collection of
	// the table gauges, and releases resources. Safe to call more than once.
	Shutdown func(ctx context.Context) error
}

// Init initializes OpenTelemetry tracing, metrics, and structured logging.
// Logs go to stderr. Without an OTLP endpoint or extra metric readers the
// providers are no-op.
func Init(cfg Config) (Providers, error) {
	return InitWithWriter(cfg, os.Stderr)
}

// InitWithWriter is Init with logs written to w.
func InitWithWriter(cfg Config, w io.Writer) (Providers, error) {
	ctx := context.Background()
	target := newOTLPTarget(cfg)
	chain := &shutdownChain{}

	res, err := buildResource(ctx, cfg)
	if err != nil {
		return Providers{}, err
	}

	tp, err := buildTracerProvider(ctx, cfg, target, res, chain)
	if err != nil {
		return Providers{}, fmt.Errorf("build tracer provider: %w", err)
	}

	mp, err := buildMeterProvider(ctx, cfg, target, res, chain)
	if err != nil {
		return Providers{}, errors.Join(fmt.Errorf("build meter provider: %w", err), chain.run(ctx))
	}

	meter := mp.Meter(meterName)

	tables, err := NewTableRegistry(meter)
	if err != nil {
		return Providers{}, errors.Join(fmt.Errorf("register table gauges: %w", err), chain.run(ctx))
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return Providers{
		Tracer:   tp.Tracer(tracerName),
		Meter:    meter,
		Logger:   NewLogger(cfg, w),
		Tables:   tables,
		Shutdown: chain.bounded(cfg.shutdownTimeout()),
	}, nil
}

// shutdownChain collects provider shutdown hooks and runs them once,
// last registered first.
type shutdownChain struct {
	once  sync.Once
	err   error
	hooks []func(context.Context) error
}

func (c *shutdownChain) add(hook func(context.Context) error) {
	c.hooks = append(c.hooks, hook)
}

func (c *shutdownChain) run(ctx context.Context) error {
	c.once.Do(func() {
		errs := make([]error, 0, len(c.hooks))

		for _, hook := range slices.Backward(c.hooks) {
			errs = append(errs, hook(ctx))
		}

		c.err = errors.Join(errs...)
	})

	return c.err
}

// bounded returns run with every call capped at timeout.
func (c *shutdownChain) bounded(timeout time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return c.run(deadlineCtx)
	}
}

// otlpTarget is the collector both exporters talk to.
type otlpTarget struct {
	endpoint string
	insecure bool
	headers  map[string]string
}

func newOTLPTarget(cfg Config) otlpTarget {
	return otlpTarget{
		endpoint: cfg.OTLPEndpoint,
		insecure: cfg.OTLPInsecure,
		headers:  cfg.OTLPHeaders,
	}
}

func (o otlpTarget) enabled() bool { return o.endpoint != "" }

func (o otlpTarget) traceOptions() []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.endpoint)}

	if o.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	if len(o.headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(o.headers))
	}

	return opts
}

func (o otlpTarget) metricOptions() []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(o.endpoint)}

	if o.insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	if len(o.headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(o.headers))
	}

	return opts
}

func buildResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}

	if cfg.Mode != "" {
		attrs = append(attrs, attribute.String(attrAppMode, string(cfg.Mode)))
	}

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	return res, nil
}

// buildTracerProvider exports spans over OTLP when a collector is configured.
// Per-insert spans are filtered out unless cfg.TraceVerbose is set.
func buildTracerProvider(
	ctx context.Context, cfg Config, target otlpTarget, res *resource.Resource, chain *shutdownChain,
) (trace.TracerProvider, error) {
	if !target.enabled() {
		return nooptrace.NewTracerProvider(), nil
	}

	exporter, err := otlptracegrpc.New(ctx, target.traceOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(selectSampler(cfg)),
	)
	chain.add(tp.Shutdown)

	if cfg.TraceVerbose {
		return tp, nil
	}

	return NewFilteringTracerProvider(tp), nil
}

// buildMeterProvider attaches cfg.MetricReaders and, with a collector, a
// periodic OTLP reader. With no reader at all the provider is no-op.
func buildMeterProvider(
	ctx context.Context, cfg Config, target otlpTarget, res *resource.Resource, chain *shutdownChain,
) (metric.MeterProvider, error) {
	readers := slices.Clone(cfg.MetricReaders)

	if target.enabled() {
		exporter, err := otlpmetricgrpc.New(ctx, target.metricOptions()...)
		if err != nil {
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}

		readers = append(readers, sdkmetric.NewPeriodicReader(exporter))
	}

	if len(readers) == 0 {
		return noopmetric.NewMeterProvider(), nil
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	chain.add(mp.Shutdown)

	return mp, nil
}

// selectSampler lets OTEL_TRACES_SAMPLER override the configured ratio.
func selectSampler(cfg Config) sdktrace.Sampler {
	if envSampler := os.Getenv(envTracesSampler); envSampler != "" {
		return envSampler2Sampler(envSampler, os.Getenv(envTracesSamplerArg))
	}

	if cfg.SampleRatio > 0 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}

func envSampler2Sampler(name, arg string) sdktrace.Sampler {
	switch name {
	case samplerAlwaysOn:
		return sdktrace.AlwaysSample()
	case samplerAlwaysOff:
		return sdktrace.NeverSample()
	case samplerTraceIDRatio:
		return sdktrace.TraceIDRatioBased(parseRatio(arg))
	case samplerParentBasedAlwaysOn:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case samplerParentBasedAlwaysOff:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case samplerParentBasedTraceIDRatio:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(parseRatio(arg)))
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

// ParseOTLPHeaders parses an OTLP headers string in "key=value,key=value"
// format. Returns nil for empty or invalid input.
func ParseOTLPHeaders(raw string) map[string]string {
	if raw == "" {
		return nil
	}

	result := make(map[string]string)

	for pair := range strings.SplitSeq(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}

		result[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

func parseRatio(s string) float64 {
	ratio, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 1.0
	}

	return ratio
}
