// Package telemetry sets up OpenTelemetry tracing for backend calls.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// ServiceName identifies the client in exported spans.
const ServiceName = "anjoman-cli"

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Options controls tracer setup.
type Options struct {
	Enabled     bool
	ServiceName string
	// Writer receives exported spans. Defaults to stderr so spans never mix
	// with command output on stdout.
	Writer io.Writer
	Logger *slog.Logger
}

// InitTracer installs a global tracer provider exporting to Writer. When
// tracing is disabled the global no-op provider is left in place.
func InitTracer(opts Options) (ShutdownFunc, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if !opts.Enabled {
		return noopShutdown, nil
	}
	name := opts.ServiceName
	if name == "" {
		name = ServiceName
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(name),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	logger.Debug("OpenTelemetry initialized", slog.String("service", name))

	return tp.Shutdown, nil
}
