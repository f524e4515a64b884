package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"latera/internal/logging"
)

const (
	defaultSSEHeartbeatInterval = 15 * time.Second
	defaultSSERetryInterval     = 5 * time.Second
)

var errSSENoFlusher = errors.New("sse response writer does not support flushing")

type sseStreamConfig[T any] struct {
	Logger       *logging.Logger
	Output       <-chan T
	BuildPayload func(T) (any, bool)
	// EventName names each frame; nil sends unnamed frames.
	EventName         func(T) string
	HeartbeatInterval time.Duration
	RetryInterval     time.Duration
}

// sseWriter frames server-sent events and flushes after every frame. Ids
// increase by one per event, continuing from the client's Last-Event-ID.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	lastID  uint64
}

func requireSSEToken(w http.ResponseWriter, r *http.Request, token string, logger *logging.Logger) bool {
	if validateToken(r, token) {
		return true
	}
	writeSSEHTTPError(w, r, logger, streamError{Status: http.StatusUnauthorized, Message: "unauthorized"})
	return false
}

func serveSSEStream[T any](w http.ResponseWriter, r *http.Request, config sseStreamConfig[T]) {
	if config.Output == nil {
		writeSSEHTTPError(w, r, config.Logger, streamError{Status: http.StatusServiceUnavailable})
		return
	}
	writer, err := startSSEWriter(w)
	if err != nil {
		streamError{Message: "sse stream unavailable", Err: err}.withDefaults().log(config.Logger, r, "sse error")
		return
	}
	writer.lastID = lastEventID(r)
	runSSEStream(r, writer, config)
}

func runSSEStream[T any](r *http.Request, writer *sseWriter, config sseStreamConfig[T]) {
	retry := config.RetryInterval
	if retry <= 0 {
		retry = defaultSSERetryInterval
	}
	if err := writer.printf("retry: %d\n\n", retry.Milliseconds()); err != nil {
		return
	}

	interval := config.HeartbeatInterval
	if interval <= 0 {
		interval = defaultSSEHeartbeatInterval
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	build := config.BuildPayload
	if build == nil {
		build = func(value T) (any, bool) { return value, true }
	}
	name := config.EventName
	if name == nil {
		name = func(T) string { return "" }
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := writer.WriteComment("ping"); err != nil {
				return
			}
		case value, ok := <-config.Output:
			if !ok {
				_ = writer.WriteComment("closed")
				return
			}
			payload, send := build(value)
			if !send {
				continue
			}
			if err := writer.WriteEvent(name(value), payload); err != nil {
				return
			}
		}
	}
}

func startSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errSSENoFlusher
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", cacheControlNoStore)
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, nil
}

// lastEventID reads the id a reconnecting EventSource resumes from; anything
// unparsable restarts numbering at zero.
func lastEventID(r *http.Request) uint64 {
	raw := strings.TrimSpace(r.Header.Get("Last-Event-ID"))
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (s *sseWriter) printf(format string, args ...any) error {
	if _, err := fmt.Fprintf(s.w, format, args...); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) WriteComment(comment string) error {
	return s.printf(": %s\n\n", strings.TrimSpace(comment))
}

// WriteEvent sends payload as one JSON frame. Multi-line JSON is split across
// data lines.
func (s *sseWriter) WriteEvent(eventName string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.lastID++

	var frame strings.Builder
	fmt.Fprintf(&frame, "id: %d\n", s.lastID)
	if eventName != "" {
		fmt.Fprintf(&frame, "event: %s\n", eventName)
	}
	for _, line := range strings.Split(string(data), "\n") {
		fmt.Fprintf(&frame, "data: %s\n", line)
	}
	frame.WriteByte('\n')
	return s.printf("%s", frame.String())
}

func writeSSEHTTPError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, sseErr streamError) {
	sseErr = sseErr.withDefaults()
	sseErr.log(logger, r, "sse error")
	http.Error(w, sseErr.Message, sseErr.Status)
}
