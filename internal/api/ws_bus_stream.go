package api

import (
	"net/http"
	"strings"
	"time"

	"latera/internal/logging"
)

type wsBusStreamConfig[T any] struct {
	Logger            *logging.Logger
	AuthToken         string
	AllowedOrigins    []string
	Subscribe         func() (<-chan T, func())
	UnavailableReason string
	BuildPayload      func(T) (any, bool)
	PingInterval      time.Duration
}

// serveWSBusStream subscribes to a stream and forwards payloads to a websocket
// connection until either side goes away.
func serveWSBusStream[T any](w http.ResponseWriter, r *http.Request, config wsBusStreamConfig[T]) {
	if !requireWSToken(w, r, config.AuthToken, config.Logger) {
		return
	}

	if config.Subscribe == nil {
		writeWSError(w, r, nil, config.Logger, streamError{
			Status:  http.StatusServiceUnavailable,
			Message: unavailableReason(config.UnavailableReason),
		})
		return
	}

	output, cancel := config.Subscribe()
	if output == nil {
		cancel()
		writeWSError(w, r, nil, config.Logger, streamError{
			Status:  http.StatusServiceUnavailable,
			Message: unavailableReason(config.UnavailableReason),
		})
		return
	}

	conn, err := upgradeWebSocket(w, r, config.AllowedOrigins)
	if err != nil {
		cancel()
		streamError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		}.log(config.Logger, r, "websocket error")
		return
	}
	defer cancel()

	spanCtx, span := startServerSpan(r, websocketSpanName, r.URL.Path)
	defer span.End()
	r = r.WithContext(spanCtx)

	serveWSStream(w, r, wsStreamConfig[T]{
		Conn:         conn,
		Logger:       config.Logger,
		Output:       output,
		BuildPayload: config.BuildPayload,
		PingInterval: config.PingInterval,
	})
}

func unavailableReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "event stream unavailable"
	}
	return reason
}
