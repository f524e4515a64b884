// Package otel installs the OpenTelemetry trace SDK for the latera daemon.
// Without an endpoint the global tracer stays a no-op.
package otel

import (
	"context"
	"os"
	"strings"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const DefaultServiceName = "latera"

type SDKOptions struct {
	// Endpoint is the OTLP/HTTP collector address. Empty disables the SDK
	// unless Exporter is set.
	Endpoint           string
	ServiceName        string
	ServiceVersion     string
	ResourceAttributes map[string]string
	// Exporter replaces the OTLP exporter.
	Exporter sdktrace.SpanExporter
}

func (options SDKOptions) enabled() bool {
	return options.Exporter != nil || normalizeEndpoint(options.Endpoint) != ""
}

// SetupSDK registers a batching tracer provider and the W3C propagators as
// globals. The returned func flushes and shuts the provider down.
func SetupSDK(ctx context.Context, options SDKOptions) (func(context.Context) error, error) {
	if !options.enabled() {
		return func(context.Context) error { return nil }, nil
	}

	exporter := options.Exporter
	if exporter == nil {
		otlpExporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(normalizeEndpoint(options.Endpoint)),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		exporter = otlpExporter
	}

	res, err := sdkresource.New(ctx, sdkresource.WithAttributes(resourceAttributes(options)...))
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otelapi.SetTracerProvider(tracerProvider)
	otelapi.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tracerProvider.Shutdown, nil
}

func resourceAttributes(options SDKOptions) []attribute.KeyValue {
	serviceName := strings.TrimSpace(options.ServiceName)
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", serviceName)}
	if version := strings.TrimSpace(options.ServiceVersion); version != "" {
		attrs = append(attrs, attribute.String("service.version", version))
	}
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		attrs = append(attrs, attribute.String("host.name", host))
	}
	for key, value := range options.ResourceAttributes {
		if key = strings.TrimSpace(key); key != "" {
			attrs = append(attrs, attribute.String(key, value))
		}
	}
	return attrs
}

// ParseResourceAttributes reads "k=v,k2=v2". Malformed pairs are skipped.
func ParseResourceAttributes(raw string) map[string]string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	attributes := make(map[string]string)
	for _, pair := range strings.Split(trimmed, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		if key = strings.TrimSpace(key); key == "" {
			continue
		}
		attributes[key] = strings.TrimSpace(value)
	}
	if len(attributes) == 0 {
		return nil
	}
	return attributes
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	endpoint = strings.TrimSuffix(endpoint, "/")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimSuffix(endpoint, "/")
}
