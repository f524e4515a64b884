package api

import (
	"net/http"
	"time"

	"latera/internal/coordinator"
	"latera/internal/coreerr"
	"latera/internal/logging"
)

// updatePayload is the wire shape shared by the websocket and SSE streams.
type updatePayload struct {
	Type  string               `json:"type"`
	Event *coordinator.UiEvent `json:"event,omitempty"`
	Error *coreerr.Error       `json:"error,omitempty"`
}

func buildUpdatePayload(update coordinator.Update) (any, bool) {
	if update.Event == nil && update.Err == nil {
		return nil, false
	}
	return updatePayload{
		Type:  update.Type(),
		Event: update.Event,
		Error: update.Err,
	}, true
}

// EventsHandler streams coordinator updates over a websocket, pinging the
// peer every HeartbeatInterval.
type EventsHandler struct {
	Coordinator       Coordinator
	Logger            *logging.Logger
	AuthToken         string
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var subscribe func() (<-chan coordinator.Update, func())
	if h.Coordinator != nil {
		subscribe = h.Coordinator.Subscribe
	}
	serveWSBusStream(w, r, wsBusStreamConfig[coordinator.Update]{
		Logger:            h.Logger,
		AuthToken:         h.AuthToken,
		AllowedOrigins:    h.AllowedOrigins,
		Subscribe:         subscribe,
		UnavailableReason: "coordinator unavailable",
		BuildPayload:      buildUpdatePayload,
		PingInterval:      h.HeartbeatInterval,
	})
}

// EventsSSEHandler streams coordinator updates as server-sent events named
// after the update type.
type EventsSSEHandler struct {
	Coordinator       Coordinator
	Logger            *logging.Logger
	AuthToken         string
	HeartbeatInterval time.Duration
}

func (h *EventsSSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireSSEToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	if h.Coordinator == nil {
		writeSSEHTTPError(w, r, h.Logger, streamError{
			Status:  http.StatusServiceUnavailable,
			Message: "coordinator unavailable",
		})
		return
	}
	output, cancel := h.Coordinator.Subscribe()
	defer cancel()

	serveSSEStream(w, r, sseStreamConfig[coordinator.Update]{
		Logger:            h.Logger,
		Output:            output,
		BuildPayload:      buildUpdatePayload,
		EventName:         func(update coordinator.Update) string { return update.Type() },
		HeartbeatInterval: h.HeartbeatInterval,
	})
}
