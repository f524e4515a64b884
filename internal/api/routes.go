package api

import (
	"net/http"
	"time"

	"latera/internal/logging"
	"latera/internal/metrics"
)

// RegisterRoutes mounts the status, lifecycle, stream, log and metrics
// endpoints on mux.
func RegisterRoutes(mux *http.ServeMux, options Options) {
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.For("api")
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}

	rest := &RestHandler{
		Coordinator: options.Coordinator,
		Logger:      logger,
		Registry:    registry,
		ServerStart: time.Now().UTC(),
	}
	limiter := newLimiter(options.RateLimit, options.RateBurst)
	token := options.AuthToken

	wrap := func(route string, handler http.Handler) http.Handler {
		return tracingMiddleware(route, loggingMiddleware(logger, handler))
	}
	lifecycle := func(handler apiHandler) http.HandlerFunc {
		return restHandler(token, rateLimitMiddleware(limiter, handler))
	}

	mux.Handle("/api/status", wrap("/api/status", restHandler(token, rest.handleStatus)))
	mux.Handle("/api/watcher/start", wrap("/api/watcher/start", lifecycle(rest.handleStart)))
	mux.Handle("/api/watcher/stop", wrap("/api/watcher/stop", lifecycle(rest.handleStop)))
	mux.Handle("/api/logs", wrap("/api/logs", restHandler(token, rest.handleLogs)))
	mux.Handle("/metrics", wrap("/metrics", restHandler(token, rest.handleMetrics)))

	mux.Handle("/api/events", securityHeadersMiddleware(cacheControlNoStore, &EventsHandler{
		Coordinator:       options.Coordinator,
		Logger:            logger,
		AuthToken:         token,
		AllowedOrigins:    options.AllowedOrigins,
		HeartbeatInterval: options.HeartbeatInterval,
	}))
	mux.Handle("/api/logs/stream", tracingMiddleware("/api/logs/stream", securityHeadersMiddleware(cacheControlNoStore, &LogsSSEHandler{
		Logger:            logger,
		AuthToken:         token,
		HeartbeatInterval: options.HeartbeatInterval,
	})))
	mux.Handle("/api/events/stream", tracingMiddleware("/api/events/stream", securityHeadersMiddleware(cacheControlNoStore, &EventsSSEHandler{
		Coordinator:       options.Coordinator,
		Logger:            logger,
		AuthToken:         token,
		HeartbeatInterval: options.HeartbeatInterval,
	})))
}

func NewHandler(options Options) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, options)
	return mux
}
