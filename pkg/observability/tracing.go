// Package observability sets up OpenTelemetry tracing for sync runs.
package observability

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ajitpratap0/syncflow/pkg/config"
	"github.com/ajitpratap0/syncflow/pkg/errors"
)

// TracerName names the tracer used for sync spans
const TracerName = "github.com/ajitpratap0/syncflow"

// Span attribute keys
const (
	AttrSyncID     = "sync.id"
	AttrSyncRunID  = "sync_run.id"
	AttrStream     = "sync.stream"
	AttrBatchLimit = "batch.limit"
	AttrBatchOff   = "batch.offset"
	AttrBatchSize  = "batch.size"
)

// Provider owns the tracer provider built from configuration
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// TracingOption customises InitTracing
type TracingOption func(*tracingOptions)

type tracingOptions struct {
	exporter sdktrace.SpanExporter
	writer   io.Writer
	global   bool
}

// WithExporter replaces the stdout exporter
func WithExporter(exp sdktrace.SpanExporter) TracingOption {
	return func(o *tracingOptions) {
		o.exporter = exp
	}
}

// WithWriter sends stdout exporter output to w
func WithWriter(w io.Writer) TracingOption {
	return func(o *tracingOptions) {
		o.writer = w
	}
}

// WithGlobal installs the provider as the otel global
func WithGlobal() TracingOption {
	return func(o *tracingOptions) {
		o.global = true
	}
}

// InitTracing builds a provider from cfg. Disabled tracing yields a
// provider whose spans are no-ops.
func InitTracing(cfg config.TracingConfig, opts ...TracingOption) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer(TracerName)}, nil
	}

	var o tracingOptions
	for _, opt := range opts {
		opt(&o)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create trace resource")
	}

	exporter := o.exporter
	if exporter == nil {
		stdoutOpts := []stdouttrace.Option{}
		if cfg.PrettyPrint {
			stdoutOpts = append(stdoutOpts, stdouttrace.WithPrettyPrint())
		}
		if o.writer != nil {
			stdoutOpts = append(stdoutOpts, stdouttrace.WithWriter(o.writer))
		}
		exporter, err = stdouttrace.New(stdoutOpts...)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create stdout exporter")
		}
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	if o.global {
		otel.SetTracerProvider(tp)
	}

	return &Provider{tp: tp, tracer: tp.Tracer(TracerName)}, nil
}

// Tracer returns the provider's tracer; a nil provider yields a no-op one
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(TracerName)
	}
	return p.tracer
}

// Shutdown flushes pending spans and stops the exporter
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to shutdown tracer")
	}
	return nil
}

// Span wraps a trace span, batching attributes until End
type Span struct {
	span       trace.Span
	attributes []attribute.KeyValue
}

// StartSpan starts a span named name under ctx
func StartSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, name)
	return ctx, &Span{span: span}
}

// StartRunSpan starts the span covering one sync run
func StartRunSpan(ctx context.Context, tracer trace.Tracer, syncID, runID string) (context.Context, *Span) {
	ctx, span := StartSpan(ctx, tracer, "sync_run")
	span.SetAttribute(AttrSyncID, syncID)
	span.SetAttribute(AttrSyncRunID, runID)
	return ctx, span
}

// StartBatchSpan starts the span covering one page read and written
func StartBatchSpan(ctx context.Context, tracer trace.Tracer, stream string, limit, offset int) (context.Context, *Span) {
	ctx, span := StartSpan(ctx, tracer, "sync_run.batch")
	span.SetAttribute(AttrStream, stream)
	span.SetAttribute(AttrBatchLimit, limit)
	span.SetAttribute(AttrBatchOff, offset)
	return ctx, span
}

// SetAttribute adds an attribute, applied when the span ends
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Fail records err and marks the span as errored
func (s *Span) Fail(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// End flushes batched attributes and ends the span
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	s.span.End()
}
