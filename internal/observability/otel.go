// Package observability wires the OpenTelemetry tracer used around
// pipeline transforms and model calls.
package observability

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/prepcoach/backend/internal/logger"
)

const tracerName = "github.com/prepcoach/backend"

// Setup installs a tracer provider. When OTEL_STDOUT=1 spans are
// printed to stdout; otherwise the default no-op provider stays in
// place. Returns a shutdown function.
func Setup(ctx context.Context, log *logger.Logger) (func(context.Context) error, error) {
	if os.Getenv("OTEL_STDOUT") != "1" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	log.Info("Tracing enabled", "exporter", "stdout")

	return tp.Shutdown, nil
}

// Tracer returns the shared tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
