// Package tracing records one OpenTelemetry span per effect invocation
// through the onEffect extension point.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/model"
	"github.com/flemzord/statekit/pkg/plugin"
	"github.com/flemzord/statekit/pkg/saga"
)

// InstrumentationName names the tracer.
const InstrumentationName = "github.com/flemzord/statekit/modules/tracing"

// ErrMissingEndpoint is returned by NewProvider without an endpoint.
var ErrMissingEndpoint = errors.New("tracing: endpoint is required")

// Extensions returns the onEffect extension tracing through tp.
func Extensions(tp trace.TracerProvider) plugin.Extensions {
	return plugin.Extensions{plugin.OnEffect: Enhancer(tp)}
}

// Enhancer wraps every invocation of an effect in a span named after its key.
func Enhancer(tp trace.TracerProvider) plugin.EffectEnhancer {
	tracer := tp.Tracer(InstrumentationName)
	return func(w saga.Worker, _ saga.Effects, m *model.Model, key string) saga.Worker {
		return func(ctx context.Context, a action.Action) (any, error) {
			ctx, span := tracer.Start(ctx, "effect "+key,
				trace.WithAttributes(
					attribute.String("statekit.namespace", m.Namespace),
					attribute.String("statekit.action.type", a.Type),
				),
			)
			defer span.End()
			if a.ID != "" {
				span.SetAttributes(attribute.String("statekit.action.id", a.ID))
			}

			ret, err := w(ctx, a)
			switch {
			case ctx.Err() != nil:
				span.SetAttributes(attribute.Bool("statekit.cancelled", true))
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			default:
				span.SetStatus(codes.Ok, "")
			}
			return ret, err
		}
	}
}

// Config configures the OTLP/HTTP exporter.
type Config struct {
	// Endpoint is the collector host and port, e.g. "localhost:4318".
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS.
	Insecure bool `yaml:"insecure"`

	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `yaml:"service_name"`
}

// NewProvider creates a tracer provider exporting spans in batches over
// OTLP/HTTP. The caller shuts it down.
func NewProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	if cfg.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tracing: creating exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "statekit"
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
	), nil
}
