// Package otel installs the global tracer provider behind the spans the
// runtime, policy and pool emit.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/wilhg/sherpa/pkg/config"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	// SampleRatio applies to root spans; children follow their parent.
	// Zero means sample everything.
	SampleRatio float64
	// Stdout pretty-prints spans in batches.
	Stdout bool
	// Exporter receives every span synchronously and takes precedence over
	// Stdout. Tests use an in-memory exporter here.
	Exporter sdktrace.SpanExporter
}

func FromConfig(c config.Otel, version string) Config {
	return Config{ServiceName: c.ServiceName, ServiceVersion: version, SampleRatio: c.SampleRatio, Stdout: c.Stdout}
}

// Init sets the global tracer provider. Without an exporter spans are
// still created and sampled but go nowhere. Call the returned func to
// flush on exit.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "sherpa"
	}
	res, err := sdkresource.New(ctx,
		sdkresource.WithFromEnv(),
		sdkresource.WithHost(),
		sdkresource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	}
	if cfg.Exporter != nil {
		opts = append(opts, sdktrace.WithSyncer(cfg.Exporter))
	} else if cfg.Stdout {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(time.Second)))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
