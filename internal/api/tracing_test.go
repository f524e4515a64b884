package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otelapi.GetTracerProvider()
	otelapi.SetTracerProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otelapi.SetTracerProvider(previous)
	})
	return recorder
}

func TestServerSpanRedactsToken(t *testing.T) {
	recorder := installRecorder(t)

	request := httptest.NewRequest("GET", "http://example.com/api/events?token=secret&since=3", nil)
	_, span := startServerSpan(request, websocketSpanName, "/api/events", attribute.String("latera.stream", "updates"))
	span.End()

	ended := findSpan(recorder.Ended(), websocketSpanName, "/api/events")
	if ended == nil {
		t.Fatalf("expected websocket span")
	}
	attrs := spanAttributes(ended.Attributes())
	if target := attrs["http.target"]; strings.Contains(target, "token") || !strings.Contains(target, "since=3") {
		t.Fatalf("expected token stripped and other params kept, got %q", target)
	}
	if attrs["latera.stream"] != "updates" {
		t.Fatalf("expected latera.stream updates, got %q", attrs["latera.stream"])
	}
	if attrs["http.scheme"] != "http" {
		t.Fatalf("unexpected scheme %q", attrs["http.scheme"])
	}
}

func TestServerSpanContinuesIncomingTrace(t *testing.T) {
	recorder := installRecorder(t)
	previous := otelapi.GetTextMapPropagator()
	otelapi.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otelapi.SetTextMapPropagator(previous) })

	request := httptest.NewRequest("POST", "/api/watcher/start", nil)
	request.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	_, span := startServerSpan(request, "POST /api/watcher/start", "/api/watcher/start")
	span.End()

	ended := findSpan(recorder.Ended(), "POST /api/watcher/start", "/api/watcher/start")
	if ended == nil {
		t.Fatalf("expected request span")
	}
	if got := ended.SpanContext().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected incoming trace id, got %s", got)
	}
	if !ended.Parent().IsRemote() {
		t.Fatalf("expected remote parent")
	}
}

func TestRedactedTargetWithoutToken(t *testing.T) {
	request := httptest.NewRequest("GET", "/api/logs?limit=5", nil)
	if got := redactedTarget(request.URL); got != "/api/logs?limit=5" {
		t.Fatalf("unexpected target %q", got)
	}
	if redactedTarget(nil) != "" {
		t.Fatalf("expected empty target for nil url")
	}
}

func findSpan(spans []sdktrace.ReadOnlySpan, name, route string) sdktrace.ReadOnlySpan {
	for _, span := range spans {
		if span.Name() == name && spanAttributes(span.Attributes())["http.route"] == route {
			return span
		}
	}
	return nil
}

func spanAttributes(attrs []attribute.KeyValue) map[string]string {
	values := make(map[string]string, len(attrs))
	for _, attr := range attrs {
		values[string(attr.Key)] = attr.Value.Emit()
	}
	return values
}
