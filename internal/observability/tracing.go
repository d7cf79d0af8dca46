// Package observability wires OpenTelemetry tracing for the catalogue pipeline.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/bububa/catalogue-rag/components"
)

// TracerName names the pipeline tracer
const TracerName = "github.com/bububa/catalogue-rag"

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, tracing is disabled.
	OTLPEndpoint string
	// SampleRate is the trace sampling rate (0.0 to 1.0)
	SampleRate float64
}

func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "catalogue-rag",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing installs the global tracer provider.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}
	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

const (
	SpanIngest   = "rag.ingest"
	SpanBatch    = "rag.batch"
	SpanRetrieve = "rag.retrieve"
	SpanAssemble = "rag.assemble"
	SpanLLM      = "llm.chat"
)

func start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
}

// StartIngestSpan covers one ingestion run
func StartIngestSpan(ctx context.Context, namespace string, records int) (context.Context, trace.Span) {
	return start(ctx, SpanIngest, trace.SpanKindInternal,
		attribute.String("rag.namespace", namespace),
		attribute.Int("rag.records", records),
	)
}

// StartBatchSpan covers embedding and upserting one batch
func StartBatchSpan(ctx context.Context, batch int, chunks int) (context.Context, trace.Span) {
	return start(ctx, SpanBatch, trace.SpanKindClient,
		attribute.Int("rag.batch", batch),
		attribute.Int("rag.chunks", chunks),
	)
}

func StartRetrieveSpan(ctx context.Context, namespace string, topK int) (context.Context, trace.Span) {
	return start(ctx, SpanRetrieve, trace.SpanKindClient,
		attribute.String("rag.namespace", namespace),
		attribute.Int("rag.top_k", topK),
	)
}

func StartAssembleSpan(ctx context.Context, model string, maxTokens int) (context.Context, trace.Span) {
	return start(ctx, SpanAssemble, trace.SpanKindInternal,
		attribute.String("llm.model", model),
		attribute.Int("rag.max_tokens", maxTokens),
	)
}

func StartLLMSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return start(ctx, SpanLLM, trace.SpanKindClient,
		attribute.String("llm.model", model),
	)
}

// RecordUsage stores token usage on a span, nil is ignored
func RecordUsage(span trace.Span, usage *components.LLMUsage) {
	if usage == nil {
		return
	}
	span.SetAttributes(
		attribute.Int64("llm.input_tokens", usage.InputTokens),
		attribute.Int64("llm.output_tokens", usage.OutputTokens),
		attribute.Int64("llm.total_tokens", usage.Total()),
	)
}

// EndSpan records err, if any, and ends the span
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
