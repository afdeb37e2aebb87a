package tracing

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"

	"github.com/torosent/echobench/internal/metrics"
)

// StartRunSpan starts the span covering one payload size. overhead is the
// calibrated clock cost subtracted from every sample of the run.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, size, samples int, overhead time.Duration) (context.Context, trace.Span) {
	return tracer.Start(ctx, "echobench run",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int("echobench.payload_bytes", size),
			attribute.Int("echobench.samples", samples),
			attribute.Int64("echobench.clock_overhead_ns", int64(overhead)),
		),
	)
}

// StatsAttributes converts a run summary into span attributes.
func StatsAttributes(ts metrics.TimeStats) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("echobench.mean_ns", int64(ts.Mean)),
		attribute.Int64("echobench.stdev_ns", int64(ts.Stdev)),
		attribute.Int64("echobench.min_ns", int64(ts.Min)),
		attribute.Int64("echobench.max_ns", int64(ts.Max)),
		attribute.Int64("echobench.p50_ns", int64(ts.P50)),
		attribute.Int64("echobench.p90_ns", int64(ts.P90)),
		attribute.Int64("echobench.p99_ns", int64(ts.P99)),
		attribute.Int64("echobench.p9999_ns", int64(ts.P9999)),
	}
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into the WebSocket handshake headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// ExtractHTTPHeaders returns ctx carrying the remote span context found in headers.
func ExtractHTTPHeaders(ctx context.Context, headers http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// grpcMetadataCarrier adapts grpc metadata.MD to the OTel TextMapCarrier interface.
type grpcMetadataCarrier metadata.MD

func (c grpcMetadataCarrier) Get(key string) string {
	vals := metadata.MD(c).Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (c grpcMetadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c grpcMetadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectGRPCMetadata injects W3C trace context into gRPC stream metadata.
func InjectGRPCMetadata(ctx context.Context, md metadata.MD) {
	otel.GetTextMapPropagator().Inject(ctx, grpcMetadataCarrier(md))
}

// ExtractGRPCMetadata returns ctx carrying the remote span context found in md.
func ExtractGRPCMetadata(ctx context.Context, md metadata.MD) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, grpcMetadataCarrier(md))
}
