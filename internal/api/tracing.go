package api

import (
	"context"
	"net/http"
	"net/url"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName        = "latera/api"
	websocketSpanName = "websocket.connect"
)

// tracingMiddleware opens a server span named "METHOD route" per request.
func tracingMiddleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := startServerSpan(r, r.Method+" "+route, route)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// startServerSpan continues any trace carried in the request headers.
func startServerSpan(r *http.Request, name, route string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx := otelapi.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	attrs := append(requestAttributes(r, route), extra...)
	return otelapi.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}

func requestAttributes(r *http.Request, route string) []attribute.KeyValue {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", r.Method),
		attribute.String("http.scheme", scheme),
		attribute.String("http.target", redactedTarget(r.URL)),
	}
	if route != "" {
		attrs = append(attrs, attribute.String("http.route", route))
	}
	if agent := r.UserAgent(); agent != "" {
		attrs = append(attrs, attribute.String("user_agent.original", agent))
	}
	return attrs
}

// redactedTarget is the request URI without the token query parameter.
func redactedTarget(u *url.URL) string {
	if u == nil {
		return ""
	}
	query := u.Query()
	if !query.Has("token") {
		return u.RequestURI()
	}
	query.Del("token")
	clean := *u
	clean.RawQuery = query.Encode()
	return clean.RequestURI()
}
