// Package telemetry configures OpenTelemetry tracing for the CLI and server.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Exporter names accepted by Setup.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// DefaultEndpoint is the OTLP collector used when none is configured.
const DefaultEndpoint = "localhost:4317"

// Options selects where spans are sent.
type Options struct {
	ServiceName string
	Exporter    string
	// Endpoint is the OTLP gRPC collector address. Falls back to
	// OTEL_EXPORTER_OTLP_ENDPOINT, then DefaultEndpoint.
	Endpoint string
	// Writer receives spans from the stdout exporter. Defaults to os.Stderr.
	Writer io.Writer
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(ctx context.Context)

// Setup installs a global tracer provider and propagator. With ExporterNone
// (or an empty exporter) the global no-op provider is left in place.
func Setup(ctx context.Context, opts Options) (Shutdown, error) {
	noop := func(context.Context) {}

	var (
		exporter sdktrace.SpanExporter
		conn     *grpc.ClientConn
	)
	switch opts.Exporter {
	case "", ExporterNone:
		return noop, nil
	case ExporterStdout:
		w := opts.Writer
		if w == nil {
			w = os.Stderr
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating stdout exporter: %w", err)
		}
		exporter = exp
	case ExporterOTLP:
		endpoint := opts.Endpoint
		if endpoint == "" {
			endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if endpoint == "" {
			endpoint = DefaultEndpoint
		}
		c, err := dialCollector(endpoint)
		if err != nil {
			return nil, fmt.Errorf("dialing collector %s: %w", endpoint, err)
		}
		conn = c
		exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("creating OTLP exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", opts.Exporter)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(opts.ServiceName)))
	if err != nil {
		_ = exporter.Shutdown(ctx)
		if conn != nil {
			_ = conn.Close()
		}
		return nil, fmt.Errorf("building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("failed to shut down tracer provider", "error", err)
		}
		// The exporter does not own a connection passed with WithGRPCConn.
		if conn != nil {
			if err := conn.Close(); err != nil {
				slog.Error("failed to close collector connection", "error", err)
			}
		}
	}, nil
}

// dialCollector opens the gRPC client connection to the OTLP collector.
var dialCollector = func(endpoint string) (*grpc.ClientConn, error) {
	return grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
}
