package observability

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig selects a span exporter. Exporter "none" behaves like
// Enabled=false.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter       string  `yaml:"exporter" mapstructure:"exporter"` // otlp, zipkin, none
	OTLPEndpoint   string  `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	ZipkinEndpoint string  `yaml:"zipkin_endpoint" mapstructure:"zipkin_endpoint"`
	SampleRate     float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
	ServiceName    string  `yaml:"service_name" mapstructure:"service_name"`
	ServiceVersion string  `yaml:"service_version" mapstructure:"service_version"`
}

func (c TracingConfig) active() bool {
	return c.Enabled && !strings.EqualFold(c.Exporter, "none")
}

// Span names, one per engine stage.
const (
	SpanCoordinatorTurn = "reasoner.coordinator.handle"
	SpanStrategySelect  = "reasoner.strategy.select"
	SpanReactRun        = "reasoner.react.run"
	SpanReactIteration  = "reasoner.react.iteration"
	SpanToolInvoke      = "reasoner.tool.invoke"
	SpanEngineRun       = "reasoner.engine.run"
	SpanTaskExecute     = "reasoner.engine.task"
	SpanEvaluate        = "reasoner.reflection.evaluate"
)

// Span attribute keys.
const (
	AttrRunID      = "reasoner.run_id"
	AttrStrategy   = "reasoner.strategy"
	AttrConfidence = "reasoner.confidence"
	AttrIteration  = "reasoner.iteration"
	AttrAction     = "reasoner.action"
	AttrToolName   = "reasoner.tool_name"
	AttrTaskID     = "reasoner.task_id"
	AttrAgent      = "reasoner.agent"
	AttrStatus     = "reasoner.status"
)

// TracerProvider owns the SDK provider installed by NewTracerProvider.
type TracerProvider struct {
	sdk *sdktrace.TracerProvider
}

// NewTracerProvider installs a global provider exporting to the configured
// backend. When tracing is off the global no-op provider stays in place and
// StartSpan costs almost nothing.
func NewTracerProvider(cfg TracingConfig) (*TracerProvider, error) {
	if !cfg.active() {
		return &TracerProvider{}, nil
	}
	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}

	name := cfg.ServiceName
	if name == "" {
		name = "reasoner"
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(name),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	rate := cfg.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}
	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)
	otel.SetTracerProvider(sdk)
	return &TracerProvider{sdk: sdk}, nil
}

func newExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "otlp", "":
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4318"
		}
		exp, err := otlptracehttp.New(context.Background(),
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		return exp, nil
	case "zipkin":
		endpoint := cfg.ZipkinEndpoint
		if endpoint == "" {
			endpoint = "http://localhost:9411/api/v2/spans"
		}
		exp, err := zipkin.New(endpoint)
		if err != nil {
			return nil, fmt.Errorf("zipkin exporter: %w", err)
		}
		return exp, nil
	}
	return nil, fmt.Errorf("unsupported exporter %q", cfg.Exporter)
}

// Enabled reports whether spans are exported.
func (tp *TracerProvider) Enabled() bool { return tp != nil && tp.sdk != nil }

// Shutdown flushes buffered spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if !tp.Enabled() {
		return nil
	}
	return tp.sdk.Shutdown(ctx)
}

// StartSpan starts a span on the global provider under scope and tags it with
// the run id carried by ctx.
func StartSpan(ctx context.Context, scope, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if runID := RunIDFromContext(ctx); runID != "" {
		attrs = append([]attribute.KeyValue{attribute.String(AttrRunID, runID)}, attrs...)
	}
	return otel.Tracer(scope).Start(ctx, name, trace.WithAttributes(attrs...))
}

// MarkSpanResult records err, or success when err is nil, on span.
func MarkSpanResult(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(AttrStatus, "error"))
		return
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.String(AttrStatus, "success"))
}
