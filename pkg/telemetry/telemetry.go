// Package telemetry provides OpenTelemetry tracing for the supply-chain analyzer.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used for every span in this module.
const TracerName = "github.com/quantumlayerhq/ql-supplychain"

// Config holds configuration for telemetry.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool

	ExporterType ExporterType
	OTLPEndpoint string
	OTLPInsecure bool

	// SampleRate is between 0.0 and 1.0.
	SampleRate float64

	Attributes map[string]string
}

// ExporterType defines the type of trace exporter.
type ExporterType string

const (
	ExporterStdout   ExporterType = "stdout"
	ExporterOTLPGRPC ExporterType = "otlp_grpc"
	ExporterOTLPHTTP ExporterType = "otlp_http"
)

// Provider wraps the OpenTelemetry TracerProvider.
type Provider struct {
	cfg      *Config
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// DefaultConfig returns default telemetry configuration. Tracing is off
// unless enabled explicitly because the stdout exporter would interleave
// with CLI output.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "supplychain-analyzer",
		ServiceVersion: "0.1.0",
		Environment:    os.Getenv("SCA_ENV"),
		Enabled:        false,
		ExporterType:   ExporterStdout,
		SampleRate:     1.0,
		Attributes:     make(map[string]string),
	}
}

// NewProvider creates a new telemetry provider and installs it globally.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if !cfg.Enabled {
		return &Provider{
			cfg:    cfg,
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	}
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := createExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		cfg:      cfg,
		provider: tp,
		tracer:   tp.Tracer(TracerName),
	}, nil
}

func createExporter(cfg *Config) (sdktrace.SpanExporter, error) {
	ctx := context.Background()

	switch cfg.ExporterType {
	case ExporterOTLPGRPC:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return stdouttrace.New(
			stdouttrace.WithWriter(os.Stderr),
			stdouttrace.WithPrettyPrint(),
		)
	}
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Span represents a traced operation.
type Span struct {
	trace.Span
}

// StartSpan starts a span on the global tracer provider.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, *Span) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, name, opts...)
	return ctx, &Span{Span: span}
}

// SetAttribute sets an attribute on the span.
func (s *Span) SetAttribute(key string, value any) {
	switch v := value.(type) {
	case string:
		s.SetAttributes(attribute.String(key, v))
	case int:
		s.SetAttributes(attribute.Int(key, v))
	case int64:
		s.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.SetAttributes(attribute.Bool(key, v))
	default:
		s.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

// SetError records an error on the span.
func (s *Span) SetError(err error) {
	s.RecordError(err)
	s.SetStatus(codes.Error, err.Error())
}

// SetOK marks the span as successful.
func (s *Span) SetOK() {
	s.SetStatus(codes.Ok, "")
}

// AnalysisSpan starts the root span of one supply-chain analysis.
func AnalysisSpan(ctx context.Context, analysisID string, components, relationships int) (context.Context, *Span) {
	ctx, span := StartSpan(ctx, "supplychain.analyze")
	span.SetAttributes(
		attribute.String("analysis.id", analysisID),
		attribute.Int("sbom.components", components),
		attribute.Int("sbom.relationships", relationships),
	)
	return ctx, span
}

// EnrichmentSpan starts a span for one enrichment batch.
func EnrichmentSpan(ctx context.Context, batch, size int) (context.Context, *Span) {
	ctx, span := StartSpan(ctx, "supplychain.enrich_batch",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.Int("enrichment.batch", batch),
		attribute.Int("enrichment.batch_size", size),
	)
	return ctx, span
}

// DatabaseSpan starts a span for database operations.
func DatabaseSpan(ctx context.Context, operation, statement string) (context.Context, *Span) {
	ctx, span := StartSpan(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		semconv.DBSystemKey.String("postgresql"),
		semconv.DBOperationKey.String(operation),
		semconv.DBStatementKey.String(statement),
	)
	return ctx, span
}

// MessagingSpan starts a span for publishing or consuming a Kafka message.
func MessagingSpan(ctx context.Context, operation, topic string, kind trace.SpanKind) (context.Context, *Span) {
	ctx, span := StartSpan(ctx, fmt.Sprintf("%s %s", topic, operation),
		trace.WithSpanKind(kind),
	)
	span.SetAttributes(
		semconv.MessagingSystemKafka,
		semconv.MessagingDestinationName(topic),
		attribute.String("messaging.operation", operation),
	)
	return ctx, span
}

// Inject writes the trace context of ctx into carrier.
func Inject(ctx context.Context, carrier map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(carrier))
}

// Extract returns ctx enriched with the trace context found in carrier.
func Extract(ctx context.Context, carrier map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(carrier))
}

// GetTraceID returns the trace ID from context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// Timed is a helper to measure function duration and add it to the span.
func Timed(span *Span) func() {
	start := time.Now()
	return func() {
		span.SetAttribute("duration_ms", time.Since(start).Milliseconds())
	}
}
