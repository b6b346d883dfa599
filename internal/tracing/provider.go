// Package tracing exports one client span per scenario request over OTLP and
// injects W3C trace context into outgoing requests.
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
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vuramp/vuramp/internal/config"
)

const (
	defaultServiceName  = "vuramp"
	instrumentationName = "github.com/vuramp/vuramp"

	// RunIDKey tags every exported span with the run that produced it.
	RunIDKey = attribute.Key("vuramp.run_id")
)

// Provider owns the tracer used for request spans. The zero value and a nil
// Provider are both valid and trace nothing.
type Provider struct {
	tp        *sdktrace.TracerProvider
	tracer    trace.Tracer
	propagate bool
}

type options struct {
	runID    string
	exporter sdktrace.SpanExporter
}

// Option customizes Init.
type Option func(*options)

// WithRunID adds the run id to the exported resource.
func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

// WithExporter sends spans to exp synchronously instead of building an OTLP
// exporter. Tracing is enabled even when no endpoint is configured.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// settings is the tracing config after environment fallbacks are applied.
type settings struct {
	serviceName string
	endpoint    string
	protocol    string
}

func resolve(cfg config.TracingConfig) settings {
	s := settings{
		serviceName: firstNonEmpty(cfg.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), defaultServiceName),
		endpoint:    firstNonEmpty(cfg.Endpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		protocol:    strings.ToLower(strings.TrimSpace(cfg.Protocol)),
	}
	if s.protocol == "" {
		s.protocol = "grpc"
	}
	return s
}

// Init builds the provider for a run. It returns a provider that traces
// nothing when tracing is not configured, and one that only propagates
// headers when propagation is requested without an endpoint.
func Init(ctx context.Context, cfg config.TracingConfig, opts ...Option) (*Provider, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if !cfg.Enabled() && o.exporter == nil && strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")) == "" {
		return &Provider{}, nil
	}
	if cfg.SampleRate < 0 || cfg.SampleRate > 1.0 {
		return nil, fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", cfg.SampleRate)
	}

	s := resolve(cfg)
	if s.endpoint == "" && o.exporter == nil {
		return &Provider{propagate: cfg.ShouldPropagate()}, nil
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(s.serviceName)}
	if o.runID != "" {
		attrs = append(attrs, RunIDKey.String(o.runID))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(samplerFor(cfg.SampleRate))),
	}
	if o.exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithSyncer(o.exporter))
	} else {
		exporter, err := newExporter(ctx, s, cfg.Insecure)
		if err != nil {
			return nil, fmt.Errorf("tracing exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	propagate := true
	if cfg.Propagate != nil {
		propagate = *cfg.Propagate
	}
	return &Provider{
		tp:        tp,
		tracer:    tp.Tracer(instrumentationName),
		propagate: propagate,
	}, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer returns the run tracer, or a no-op tracer when nothing is exported.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tracer
}

// Exporting reports whether spans leave the process.
func (p *Provider) Exporting() bool {
	return p != nil && p.tp != nil
}

func (p *Provider) ShouldPropagate() bool {
	if p == nil {
		return false
	}
	return p.propagate
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

func newExporter(ctx context.Context, s settings, insecureTransport bool) (sdktrace.SpanExporter, error) {
	switch s.protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(s.endpoint)}
		if insecureTransport {
			opts = append(opts,
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
				otlptracegrpc.WithInsecure(),
			)
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(s.endpoint)}
		if insecureTransport {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", s.protocol)
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
