// Package observability holds the tracing bootstrap and the Prometheus
// collectors of the integrity core.
package observability

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"google.golang.org/grpc/credentials"

	"github.com/tbourn/go-setlogs-backend/internal/config"
	"github.com/tbourn/go-setlogs-backend/internal/domain"
)

// Test seams; tests swap these to force exporter and resource failures.
var (
	newOTLPClient = otlptracegrpc.NewClient

	// No exporter options exposed here -> stable for tests.
	newOTLPExporterFn = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
		return otlptrace.New(ctx, client)
	}

	newServiceResourceFn = func(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
		host, _ := os.Hostname()
		return resource.New(
			ctx,
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion(version),
				semconv.ServiceInstanceID(host),
			),
		)
	}
)

// SetupOTel installs a batching OTLP/gRPC tracer provider sampled by
// cfg.SampleRatio (parent-based) and the W3C propagators. The returned
// function flushes and stops the provider. When tracing is disabled it is a
// no-op and the global no-op provider stays in place, so core spans cost
// nothing.
func SetupOTel(ctx context.Context, cfg config.OTELConfig, version string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		creds := credentials.NewClientTLSFromCert(nil, "")
		opts = append(opts, otlptracegrpc.WithTLSCredentials(creds))
	}

	client := newOTLPClient(opts...)
	exp, err := newOTLPExporterFn(ctx, client)
	if err != nil {
		return nil, err
	}

	res, err := newServiceResourceFn(ctx, cfg.ServiceName, version)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// Finish annotates span with the result of a core operation. Rejections the
// client caused (stale stamps, key conflicts, validation, missing entities)
// are recorded as an outcome attribute and leave the span status unset; only
// store failures and unexpected errors mark the span as failed.
func Finish(span trace.Span, err error) {
	if err == nil || !span.IsRecording() {
		return
	}
	kind := domain.Kind(err)
	span.SetAttributes(attribute.String("setlogs.outcome", outcomeOf(kind)))
	switch kind {
	case "", "unavailable":
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		span.AddEvent("rejected", trace.WithAttributes(attribute.String("reason", kind)))
	}
}

func outcomeOf(kind string) string {
	if kind == "" {
		return "error"
	}
	return kind
}
