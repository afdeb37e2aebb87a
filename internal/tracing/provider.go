// Package tracing exports one OpenTelemetry span per benchmark run and carries
// W3C trace context across the relay transports.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/echobench/internal/config"
)

const instrumentationName = "github.com/torosent/echobench"

// Suite describes the benchmark being traced. Every exported span carries it
// as resource attributes so runs of different suites can be told apart.
type Suite struct {
	ID        string
	Transport string
	Endpoint  string
	Clock     string
	Sizes     []int
	Samples   int
	Rate      float64
}

func (s Suite) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("echobench.transport", s.Transport),
		attribute.String("echobench.clock", s.Clock),
		attribute.IntSlice("echobench.sizes", s.Sizes),
		attribute.Int("echobench.samples_per_run", s.Samples),
	}
	if s.ID != "" {
		attrs = append(attrs, attribute.String("echobench.suite_id", s.ID))
	}
	if s.Endpoint != "" {
		attrs = append(attrs, attribute.String("echobench.endpoint", s.Endpoint))
	}
	if s.Rate > 0 {
		attrs = append(attrs, attribute.Float64("echobench.rate", s.Rate))
	}
	return attrs
}

// Provider owns the span pipeline of one suite. The zero value and nil are disabled providers.
type Provider struct {
	tp        *sdktrace.TracerProvider
	res       *resource.Resource
	propagate bool
}

// Init builds the exporter named by cfg. Without an endpoint, from cfg or
// OTEL_EXPORTER_OTLP_ENDPOINT, spans are dropped but propagation may still be on.
func Init(ctx context.Context, cfg config.TracingConfig, suite Suite) (*Provider, error) {
	p := &Provider{propagate: cfg.ShouldPropagate()}
	if p.propagate {
		EnablePropagation()
	}

	endpoint := firstNonEmpty(cfg.Endpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return p, nil
	}
	sampler, err := samplerFor(cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	p.res, err = resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(firstNonEmpty(cfg.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), "echobench"))),
		resource.WithAttributes(suite.attributes()...),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg.Protocol, endpoint, cfg.Insecure)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}
	p.tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(p.res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	return p, nil
}

// Tracer returns the suite's tracer, or a no-op tracer when nothing is exported.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tp == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tp.Tracer(instrumentationName)
}

// Resource returns the attributes attached to every exported span, nil when disabled.
func (p *Provider) Resource() *resource.Resource {
	if p == nil {
		return nil
	}
	return p.res
}

// ShouldPropagate reports whether trace context is sent to the relay.
func (p *Provider) ShouldPropagate() bool {
	return p != nil && p.propagate
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// EnablePropagation installs the W3C trace context and baggage propagators
// used by the Inject and Extract helpers.
func EnablePropagation() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

func samplerFor(rate float64) (sdktrace.Sampler, error) {
	switch {
	case rate < 0 || rate > 1:
		return nil, fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", rate)
	case rate == 0:
		return sdktrace.NeverSample(), nil
	case rate == 1:
		return sdktrace.AlwaysSample(), nil
	default:
		return sdktrace.TraceIDRatioBased(rate), nil
	}
}

func newExporter(ctx context.Context, protocol, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(protocol) {
	case "", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", protocol)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
